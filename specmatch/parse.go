package specmatch

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingSpec is returned for an empty code spec.
	ErrMissingSpec = errors.New("specmatch: missing spec")
	// ErrMalformedSpec is returned when no single balanced literal can be extracted or decoded.
	ErrMalformedSpec = errors.New("specmatch: malformed spec")
)

// SpecError describes why a code spec could not be parsed.
// errors.Is(err, ErrMissingSpec) and errors.Is(err, ErrMalformedSpec) work on it.
type SpecError struct {
	Kind   error // ErrMissingSpec or ErrMalformedSpec
	Reason string
	Err    error
}

func (e *SpecError) Error() string {
	msg := e.Kind.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SpecError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func malformed(reason string, err error) error {
	return &SpecError{Kind: ErrMalformedSpec, Reason: reason, Err: err}
}

// placeholderRe matches the canonical form template variables are rewritten to.
var placeholderRe = regexp.MustCompile(`^\{\{([A-Za-z_][\w.\-]*)\}\}$`)

// Parse reduces a free-text code spec to a Node tree.
//
// The literal is the text between the first "(" and its matching ")"; without
// a parenthesis the whole text is the literal. Template variables (${name} or
// $name) become placeholder scalars, other "$" are dropped.
func Parse(codeSpec string) (Node, error) {
	text := strings.TrimSpace(codeSpec)
	if text == "" {
		return nil, &SpecError{Kind: ErrMissingSpec}
	}

	lit, wrapped, err := extractLiteral(text)
	if err != nil {
		return nil, err
	}
	// A statement terminator may sit inside the call: push({...};)
	lit = strings.TrimRight(strings.TrimSpace(rewritePlaceholders(lit)), "; \n")
	if lit == "" {
		return nil, malformed("empty literal", nil)
	}

	// A bare word or sentence is a scalar, not a YAML document.
	if !wrapped && lit[0] != '{' && lit[0] != '[' {
		return bareScalar(lit), nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(lit), &doc); err != nil {
		return nil, malformed("decode literal", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, malformed("empty literal", nil)
	}
	return convert(doc.Content[0])
}

// extractLiteral returns the literal embedded in text and whether it came
// from inside a call-like wrapper.
func extractLiteral(text string) (string, bool, error) {
	open := strings.IndexByte(text, '(')
	if open < 0 {
		if err := checkBalanced(text); err != nil {
			return "", false, err
		}
		return text, false, nil
	}

	body := text[open+1:]
	end, err := matchClose(body)
	if err != nil {
		return "", true, err
	}
	return body[:end], true, nil
}

var closers = map[rune]rune{'(': ')', '[': ']', '{': '}'}

// matchClose returns the index in s of the ")" closing an already-opened
// parenthesis, honouring nested brackets and quoted strings.
func matchClose(s string) (int, error) {
	stack := []rune{')'}
	var quote rune
	escaped := false
	for i, r := range s {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'', '`':
			quote = r
		case '(', '[', '{':
			stack = append(stack, closers[r])
		case ')', ']', '}':
			top := stack[len(stack)-1]
			if r != top {
				return 0, malformed(fmt.Sprintf("unexpected %q at offset %d", r, i), nil)
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, nil
			}
		}
	}
	if quote != 0 {
		return 0, malformed("unterminated string", nil)
	}
	return 0, malformed("unbalanced delimiters", nil)
}

func checkBalanced(s string) error {
	var stack []rune
	var quote rune
	escaped := false
	for i, r := range s {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '`':
			quote = r
		case '[', '{':
			stack = append(stack, closers[r])
		case ']', '}', ')':
			if len(stack) == 0 || stack[len(stack)-1] != r {
				return malformed(fmt.Sprintf("unexpected %q at offset %d", r, i), nil)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if quote != 0 {
		return malformed("unterminated string", nil)
	}
	if len(stack) > 0 {
		return malformed("unbalanced delimiters", nil)
	}
	return nil
}

// rewritePlaceholders turns ${name} and $name into the canonical {{name}}
// form (quoted when outside a string) and drops any other "$". Outside
// strings it replaces tabs, which YAML rejects as indentation, and puts a
// space after every ":" so compact keys like {event:"x"} split into a
// key and a value instead of one plain scalar.
func rewritePlaceholders(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	rs := []rune(s)
	var quote rune
	escaped := false

	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
		} else if r == '"' || r == '\'' {
			quote = r
		}

		if r == '\t' && quote == 0 {
			b.WriteRune(' ')
			continue
		}
		if r == ':' && quote == 0 {
			b.WriteRune(':')
			if i+1 < len(rs) && !unicode.IsSpace(rs[i+1]) {
				b.WriteRune(' ')
			}
			continue
		}
		if r != '$' {
			b.WriteRune(r)
			continue
		}

		name, next := placeholderName(rs, i+1)
		if name == "" {
			continue // stray sigil
		}
		if quote != 0 {
			b.WriteString("{{" + name + "}}")
		} else {
			b.WriteString(`"{{` + name + `}}"`)
		}
		i = next - 1
	}
	return b.String()
}

// placeholderName reads a variable name starting at rs[i], either braced
// ({name}) or bare. It returns the name and the index after it.
func placeholderName(rs []rune, i int) (string, int) {
	if i >= len(rs) {
		return "", i
	}
	if rs[i] == '{' {
		j := i + 1
		for j < len(rs) && rs[j] != '}' {
			j++
		}
		if j >= len(rs) {
			return "", i
		}
		name := strings.TrimSpace(string(rs[i+1 : j]))
		if !validName(name) {
			return "", i
		}
		return name, j + 1
	}
	j := i
	for j < len(rs) && isNameRune(rs[j], j == i) {
		j++
	}
	return string(rs[i:j]), j
}

func isNameRune(r rune, first bool) bool {
	if r == '_' || unicode.IsLetter(r) {
		return true
	}
	if first {
		return false
	}
	return unicode.IsDigit(r) || r == '.' || r == '-'
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if !isNameRune(r, i == 0) {
			return false
		}
	}
	return true
}

func bareScalar(lit string) Node {
	var v any
	if err := yaml.Unmarshal([]byte(lit), &v); err == nil {
		switch val := v.(type) {
		case string:
			return stringScalar(val)
		case bool:
			return &Scalar{Value: val}
		case int:
			return &Scalar{Value: float64(val)}
		case float64:
			return &Scalar{Value: val}
		}
	}
	return stringScalar(lit)
}

func stringScalar(s string) *Scalar {
	if m := placeholderRe.FindStringSubmatch(s); m != nil {
		return &Scalar{Value: m[1], Placeholder: true}
	}
	return &Scalar{Value: s}
}

// convert maps a decoded YAML node onto the Node variants.
func convert(n *yaml.Node) (Node, error) {
	switch n.Kind {
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, malformed("dangling alias", nil)
		}
		return convert(n.Alias)

	case yaml.ScalarNode:
		return convertScalar(n)

	case yaml.MappingNode:
		obj := &Object{Fields: make(map[string]Node, len(n.Content)/2)}
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, malformed(fmt.Sprintf("non-scalar key at line %d", k.Line), nil)
			}
			child, err := convert(v)
			if err != nil {
				return nil, err
			}
			obj.Set(k.Value, child)
		}
		return obj, nil

	case yaml.SequenceNode:
		arr := &Array{Elems: make([]Node, 0, len(n.Content))}
		for _, c := range n.Content {
			child, err := convert(c)
			if err != nil {
				return nil, err
			}
			arr.Elems = append(arr.Elems, child)
		}
		return arr, nil
	}
	return nil, malformed(fmt.Sprintf("unsupported node kind %d", n.Kind), nil)
}

func convertScalar(n *yaml.Node) (Node, error) {
	switch n.ShortTag() {
	case "!!null":
		return &Scalar{}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, malformed("decode bool", err)
		}
		return &Scalar{Value: b}, nil
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, malformed("decode number", err)
		}
		return &Scalar{Value: f}, nil
	}
	return stringScalar(n.Value), nil
}
