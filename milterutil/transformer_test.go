package milterutil

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"golang.org/x/text/transform"
)

type transformerTestCase struct {
	inputs   []string
	expected string
}

// doTransformation feeds the inputs chunk by chunk so chunk-boundary
// handling (a CR split from its LF) gets exercised.
func doTransformation(t *testing.T, transformer transform.Transformer, inputs []string) string {
	t.Helper()
	r, w := io.Pipe()
	go func() {
		for _, s := range inputs {
			if _, err := w.Write([]byte(s)); err != nil {
				_ = w.CloseWithError(err)
				return
			}
		}
		_ = w.Close()
	}()
	out, err := io.ReadAll(transform.NewReader(r, transformer))
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

func runTransformerTests(t *testing.T, getTransformer func() transform.Transformer, tests []transformerTestCase) {
	t.Helper()
	for i, tt := range tests {
		t.Run(fmt.Sprintf("%d:%q", i, tt.inputs), func(t *testing.T) {
			if got := doTransformation(t, getTransformer(), tt.inputs); got != tt.expected {
				t.Fatalf("chunked: expected %q, got %q", tt.expected, got)
			}
			got, _, err := transform.String(getTransformer(), strings.Join(tt.inputs, ""))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.expected {
				t.Fatalf("whole: expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCrLfToLfTransformer(t *testing.T) {
	t.Parallel()
	runTransformerTests(t, func() transform.Transformer { return &CrLfToLfTransformer{} }, []transformerTestCase{
		{[]string{""}, ""},
		{[]string{"plain"}, "plain"},
		{[]string{"a\r\nb\r\n"}, "a\nb\n"},
		{[]string{"a\nb"}, "a\nb"},
		{[]string{"a\rb"}, "a\rb"},
		{[]string{"a\r"}, "a\r"},
		{[]string{"a\r", "\nb"}, "a\nb"},
		{[]string{"a\r", "b"}, "a\rb"},
		{[]string{"\r\n\r\n"}, "\n\n"},
	})
}

func TestLfToCrLfTransformer(t *testing.T) {
	t.Parallel()
	runTransformerTests(t, func() transform.Transformer { return &LfToCrLfTransformer{} }, []transformerTestCase{
		{[]string{""}, ""},
		{[]string{"plain"}, "plain"},
		{[]string{"a\nb\n"}, "a\r\nb\r\n"},
		{[]string{"\n"}, "\r\n"},
	})
}

func TestCrLfCanonicalTransformer(t *testing.T) {
	t.Parallel()
	runTransformerTests(t, NewCrLfCanonicalTransformer, []transformerTestCase{
		{[]string{""}, ""},
		{[]string{"Hello\nWorld\n"}, "Hello\r\nWorld\r\n"},
		{[]string{"Hello\r\nWorld\r\n"}, "Hello\r\nWorld\r\n"},
		{[]string{"a\nb\r\nc\n"}, "a\r\nb\r\nc\r\n"},
		{[]string{"a\r", "\nb\n"}, "a\r\nb\r\n"},
		// a bare CR is data, not a line ending
		{[]string{"a\rb\n"}, "a\rb\r\n"},
	})
}

// Canonicalisation must be idempotent: running the transformer over its
// own output changes nothing.
func TestCrLfCanonicalIdempotent(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"Hello\nWorld\n",
		"Hello\r\nWorld\r\n",
		"mixed\r\nline\nends\r\n",
		"trailing\r",
		"bare\rcr\n",
	}
	for _, in := range inputs {
		once, _, err := transform.String(NewCrLfCanonicalTransformer(), in)
		if err != nil {
			t.Fatal(err)
		}
		twice, _, err := transform.String(NewCrLfCanonicalTransformer(), once)
		if err != nil {
			t.Fatal(err)
		}
		if once != twice {
			t.Errorf("not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
