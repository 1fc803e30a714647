// CLAUDE:SUMMARY Parsed code-spec tree: sealed Node interface with Scalar, Object and Array variants.
// Package specmatch parses textual tracking specifications (data-layer pushes
// and data-* attribute lists) and validates observed page data against them.
//
// A code spec is free text that embeds one structural literal, typically
//
//	window.dataLayer.push({"event": "ad_impression", "promotion_id": "${promotion_id}"});
//
// Parse reduces it to a Node tree. A Matcher then compares that tree with
// what the browser actually observed.
package specmatch

import (
	"fmt"
	"sort"
	"strings"
)

// Node is one element of a parsed code spec. The concrete type is always one
// of *Scalar, *Object or *Array.
type Node interface {
	node()
	String() string
}

// Scalar is a leaf value: string, float64, bool or nil.
// Placeholder scalars come from template variables (${name}) and only
// require the observed key to exist.
type Scalar struct {
	Value       any
	Placeholder bool
}

// Object is a mapping. Keys keeps the literal's order for display; matching
// never depends on it.
type Object struct {
	Keys   []string
	Fields map[string]Node
}

// Array is a sequence. Only Elems[0] is used for matching: array specs
// describe a homogeneous element shape.
type Array struct {
	Elems []Node
}

func (*Scalar) node() {}
func (*Object) node() {}
func (*Array) node()  {}

func (s *Scalar) String() string {
	if s.Placeholder {
		return fmt.Sprintf("${%v}", s.Value)
	}
	if str, ok := s.Value.(string); ok {
		return fmt.Sprintf("%q", str)
	}
	if s.Value == nil {
		return "null"
	}
	return fmt.Sprint(s.Value)
}

func (o *Object) String() string {
	parts := make([]string, 0, len(o.Keys))
	for _, k := range o.Keys {
		parts = append(parts, fmt.Sprintf("%q: %s", k, o.Fields[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (a *Array) String() string {
	parts := make([]string, 0, len(a.Elems))
	for _, e := range a.Elems {
		parts = append(parts, e.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// KeySet returns the object's keys sorted, for set comparisons and logs.
func (o *Object) KeySet() []string {
	keys := make([]string, 0, len(o.Fields))
	for k := range o.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set adds or replaces a field, keeping first-seen key order.
func (o *Object) Set(key string, n Node) {
	if o.Fields == nil {
		o.Fields = make(map[string]Node)
	}
	if _, ok := o.Fields[key]; !ok {
		o.Keys = append(o.Keys, key)
	}
	o.Fields[key] = n
}
