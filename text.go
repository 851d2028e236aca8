package isore

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TextFormatter renders the payload of a textual "mime" item.
type TextFormatter interface {
	FormatText(data []byte) (string, error)
}

// TextFormatterFunc adapts a function to TextFormatter.
type TextFormatterFunc func(data []byte) (string, error)

func (fn TextFormatterFunc) FormatText(data []byte) (string, error) { return fn(data) }

// PlainText decodes UTF-8, or UTF-16 when a byte order mark says so, and
// drops trailing NUL padding.
type PlainText struct{}

func (PlainText) FormatText(data []byte) (string, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\x00"), nil
}

// XMLIndent re-indents XML payloads such as XMP packets. Namespace
// prefixes are kept as written. Payloads that do not start with a tag
// are returned as PlainText does.
type XMLIndent struct {
	Indent string
}

func (x XMLIndent) FormatText(data []byte) (string, error) {
	text, err := PlainText{}.FormatText(data)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(strings.TrimSpace(text), "<") {
		return text, nil
	}

	dec := xml.NewDecoder(strings.NewReader(text))
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", x.Indent)
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) == 0 {
				continue
			}
		case xml.StartElement:
			t.Name = flatName(t.Name)
			attrs := make([]xml.Attr, len(t.Attr))
			for i, a := range t.Attr {
				attrs[i] = xml.Attr{Name: flatName(a.Name), Value: a.Value}
			}
			t.Attr = attrs
			tok = t
		case xml.EndElement:
			t.Name = flatName(t.Name)
			tok = t
		}
		if err := enc.EncodeToken(xml.CopyToken(tok)); err != nil {
			return "", fmt.Errorf("xml: %w", err)
		}
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// flatName folds a raw prefix into the local name so the encoder writes
// it back unchanged.
func flatName(n xml.Name) xml.Name {
	if n.Space == "" {
		return n
	}
	return xml.Name{Local: n.Space + ":" + n.Local}
}

// isTextual reports whether a mime item's content type is rendered as
// text.
func isTextual(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "text/"):
		return true
	case strings.HasSuffix(ct, "/xml"), strings.HasSuffix(ct, "+xml"):
		return true
	case strings.HasSuffix(ct, "/json"), strings.HasSuffix(ct, "+json"):
		return true
	}
	return false
}
