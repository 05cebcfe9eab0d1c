// Package report turns the streamed milter events back into an RFC 5322
// message, parses it and renders a human-readable summary.
package report

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"golang.org/x/text/transform"

	"github.com/aknrt/mimewatch/milterutil"
)

const noneLabel = "(なし)"
const noFilenameLabel = "(ファイル名なし)"

// Reassemble joins the collected headers and body into one message buffer:
// header lines, a blank line, then the body with line endings rewritten to
// canonical CR LF.
func Reassemble(h *Headers, body []byte) []byte {
	var buf bytes.Buffer
	h.render(&buf)
	buf.WriteString("\r\n")
	normalized, _, err := transform.Bytes(milterutil.NewCrLfCanonicalTransformer(), body)
	if err != nil {
		normalized = body
	}
	buf.Write(normalized)
	return buf.Bytes()
}

// part is one leaf entity of the parsed message.
type part struct {
	mediaType  string
	encoding   string
	dispParams map[string]string
	ctParams   map[string]string
	body       []byte
}

func (p *part) isText() bool {
	return strings.HasPrefix(p.mediaType, "text/")
}

func (p *part) subtype() string {
	if i := strings.IndexByte(p.mediaType, '/'); i >= 0 {
		return p.mediaType[i+1:]
	}
	return ""
}

// filename prefers the Content-Disposition filename attribute, then the
// Content-Type name attribute.
func (p *part) filename() string {
	if v := p.dispParams["filename"]; v != "" {
		return v
	}
	if v := p.ctParams["name"]; v != "" {
		return v
	}
	return ""
}

// Describe parses a reassembled message and returns the report lines. A
// parser failure yields a single "parse error" line; it is never fatal to
// the session.
func Describe(raw []byte) []string {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return []string{fmt.Sprintf("parse error: %v", err)}
	}
	entity = entityOrEmpty(entity)

	var lines []string
	mh := gomail.Header{Header: entity.Header}
	lines = append(lines, "from: "+addressList(&mh, "From"))
	lines = append(lines, "to: "+addressList(&mh, "To"))
	subject, _ := mh.Subject()
	if subject == "" {
		subject = noneLabel
	}
	lines = append(lines, "subject: "+subject)
	if v := entity.Header.Get("Content-Type"); v != "" {
		lines = append(lines, "content-type: "+v)
	}
	if v := entity.Header.Get("Content-Transfer-Encoding"); v != "" {
		lines = append(lines, "content-transfer-encoding: "+v)
	}

	if entity.MultipartReader() != nil {
		lines = append(lines, "multipart message")
	} else {
		lines = append(lines, "single-part message")
	}

	parts, walkErr := collectParts(entity)
	texts, others := 0, 0
	for _, p := range parts {
		if p.isText() {
			texts++
		} else {
			others++
		}
	}
	lines = append(lines, fmt.Sprintf("text parts: %d, non-text parts: %d", texts, others))

	textOrdinal := 0
	for i, p := range parts {
		if p.isText() {
			textOrdinal++
			if st := p.subtype(); st == "plain" || st == "html" {
				lines = append(lines, fmt.Sprintf("text part %d (%s):", textOrdinal, p.mediaType))
				lines = append(lines, string(p.body))
			}
			continue
		}
		name := p.filename()
		if name == "" {
			name = noFilenameLabel
		}
		lines = append(lines, fmt.Sprintf("attachment part %d: content-type=%s; encoding=%s; filename=%s; size=%d bytes",
			i+1, p.mediaType, p.encoding, name, len(p.body)))
	}
	if walkErr != nil {
		lines = append(lines, fmt.Sprintf("parse error: %v", walkErr))
	}
	return lines
}

// addressList renders the named address header as "Name <addr>" entries
// joined by ", ".
func addressList(h *gomail.Header, key string) string {
	addrs, err := h.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return noneLabel
	}
	rendered := make([]string, len(addrs))
	for i, a := range addrs {
		if a.Name != "" {
			rendered[i] = fmt.Sprintf("%s <%s>", a.Name, a.Address)
		} else {
			rendered[i] = a.Address
		}
	}
	return strings.Join(rendered, ", ")
}

// collectParts flattens the entity tree into its leaves. Multipart
// containers are descended into; everything else is captured with its
// decoded body.
func collectParts(e *message.Entity) ([]*part, error) {
	var parts []*part
	var walk func(e *message.Entity) error
	walk = func(e *message.Entity) error {
		if mr := e.MultipartReader(); mr != nil {
			for {
				p, err := mr.NextPart()
				if err == io.EOF {
					return nil
				}
				if err != nil && !message.IsUnknownCharset(err) {
					return err
				}
				if err := walk(p); err != nil {
					return err
				}
			}
		}
		mediaType, ctParams, err := e.Header.ContentType()
		if err != nil || mediaType == "" {
			mediaType, ctParams = "text/plain", nil
		}
		var dispParams map[string]string
		if v := e.Header.Get("Content-Disposition"); v != "" {
			_, dispParams, _ = mime.ParseMediaType(v)
		}
		body, err := io.ReadAll(e.Body)
		if err != nil {
			return err
		}
		parts = append(parts, &part{
			mediaType:  mediaType,
			encoding:   e.Header.Get("Content-Transfer-Encoding"),
			dispParams: dispParams,
			ctParams:   ctParams,
			body:       body,
		})
		return nil
	}
	err := walk(e)
	return parts, err
}

// entityOrEmpty guards against a nil entity from a tolerated charset
// error at the top level.
func entityOrEmpty(e *message.Entity) *message.Entity {
	if e != nil {
		return e
	}
	empty, _ := message.New(message.Header{}, bytes.NewReader(nil))
	return empty
}
