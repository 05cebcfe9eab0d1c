package report

import (
	"bytes"
)

// field holds all values received for one header name, in arrival order.
type field struct {
	name   string
	values []string
}

// Headers accumulates message headers exactly as the MTA delivered them:
// names case-preserved, values verbatim, duplicates appended. Rendering
// groups values under the first occurrence of their name.
type Headers struct {
	fields []*field
	index  map[string]*field
}

// Add appends value under name. A name seen before reuses its slot so
// repeatable headers (Received, ...) keep their arrival order.
func (h *Headers) Add(name, value string) {
	if h.index == nil {
		h.index = make(map[string]*field)
	}
	f := h.index[name]
	if f == nil {
		f = &field{name: name}
		h.index[name] = f
		h.fields = append(h.fields, f)
	}
	f.values = append(f.values, value)
}

// Len returns the total number of header values collected.
func (h *Headers) Len() int {
	n := 0
	for _, f := range h.fields {
		n += len(f.values)
	}
	return n
}

// Reset drops all collected headers, restoring the per-transaction
// initial state.
func (h *Headers) Reset() {
	h.fields = nil
	h.index = nil
}

// render writes the header section: one "name: value" CRLF line per
// value, names in insertion order.
func (h *Headers) render(buf *bytes.Buffer) {
	for _, f := range h.fields {
		for _, v := range f.values {
			buf.WriteString(f.name)
			buf.WriteString(": ")
			buf.WriteString(v)
			buf.WriteString("\r\n")
		}
	}
}
