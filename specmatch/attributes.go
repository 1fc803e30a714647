// CLAUDE:SUMMARY Parses data-* attribute specs and extracts data-* attributes from page HTML with x/net/html.
package specmatch

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// AttributeSpec is the expected set of data-* attributes carried by one
// element, in spec order.
type AttributeSpec struct {
	Names  []string
	Values map[string]*Scalar
}

var attrPairRe = regexp.MustCompile(`(data-[A-Za-z0-9_\-:.]+)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

// ParseAttributes reads data-x="value" pairs from a spec such as
//
//	data-event-id= "join_group"
//	data-page_name="${page_name}"
func ParseAttributes(codeSpec string) (*AttributeSpec, error) {
	text := strings.TrimSpace(codeSpec)
	if text == "" {
		return nil, &SpecError{Kind: ErrMissingSpec}
	}

	matches := attrPairRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, malformed("no data-* attribute found", nil)
	}

	spec := &AttributeSpec{Values: make(map[string]*Scalar, len(matches))}
	for _, m := range matches {
		name := strings.ToLower(m[1])
		raw := m[2]
		if raw == "" {
			raw = m[3]
		}
		if _, dup := spec.Values[name]; !dup {
			spec.Names = append(spec.Names, name)
		}
		spec.Values[name] = attributeValue(raw)
	}
	return spec, nil
}

// attributeValue applies the placeholder convention to an attribute value.
func attributeValue(raw string) *Scalar {
	v := strings.TrimSpace(raw)
	if strings.HasPrefix(v, "$") {
		if name, next := placeholderName([]rune(v), 1); name != "" && next == len([]rune(v)) {
			return &Scalar{Value: name, Placeholder: true}
		}
	}
	return &Scalar{Value: strings.ReplaceAll(v, "$", "")}
}

// ExtractDataAttributes tokenises an HTML document and returns, in document
// order, the data-* attributes of every element that has at least one.
func ExtractDataAttributes(doc []byte) ([]map[string]string, error) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var out []map[string]string
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return out, err
			}
			return out, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			var attrs map[string]string
			for _, a := range tok.Attr {
				key := strings.ToLower(a.Key)
				if !strings.HasPrefix(key, "data-") {
					continue
				}
				if attrs == nil {
					attrs = make(map[string]string)
				}
				attrs[key] = a.Val
			}
			if attrs != nil {
				out = append(out, attrs)
			}
		}
	}
}

// MatchAttributes reports whether some element carries every attribute of
// spec. Values are compared only under StrictValueMatch.
func (m Matcher) MatchAttributes(spec *AttributeSpec, elements []map[string]string) bool {
	if spec == nil || len(spec.Names) == 0 {
		return false
	}
	for _, el := range elements {
		if m.elementMatches(spec, el) {
			return true
		}
	}
	return false
}

func (m Matcher) elementMatches(spec *AttributeSpec, el map[string]string) bool {
	for _, name := range spec.Names {
		got, ok := el[name]
		if !ok {
			return false
		}
		want := spec.Values[name]
		if m.StrictValueMatch && !want.Placeholder && want.Value != got {
			return false
		}
	}
	return true
}
