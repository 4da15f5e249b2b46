// Package filter implements the small, non-Turing-complete boolean expression
// language used to prune entity streams at the policy boundary: lexer,
// recursive-descent parser, and a tree-walking evaluator over a tagged
// dynamic value model.
package filter

import "fmt"

// Kind tags the dynamic type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindTuple
)

// Value is the tagged variant every expression evaluates to: Null, Bool,
// Number (float64), String, or Tuple (ordered heterogeneous sequence). There
// are no other types and no user-defined functions.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	t    []Value
}

var Null = Value{kind: KindNull}

func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }
func String(s string) Value  { return Value{kind: KindString, s: s} }
func Tuple(vs []Value) Value { return Value{kind: KindTuple, t: vs} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) AsNumber() (float64, bool)  { return v.n, v.kind == KindNumber }
func (v Value) AsString() (string, bool)   { return v.s, v.kind == KindString }
func (v Value) AsTuple() ([]Value, bool)   { return v.t, v.kind == KindTuple }

// Truthy implements §4.1's truthiness rule: Null, false, 0, "", and the
// empty tuple are falsey; everything else is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0
	case KindString:
		return v.s != ""
	case KindTuple:
		return len(v.t) != 0
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindNumber:
		return fmt.Sprintf("%g", v.n)
	case KindString:
		return v.s
	case KindTuple:
		return fmt.Sprintf("%v", v.t)
	default:
		return "?"
	}
}

// Context resolves a top-level identifier (e.g. "repo", "release", "asset",
// "gist", "meta") to a value capable of further dotted-path lookup.
// Unresolved identifiers yield Null rather than an error, per §4.2, so a
// filter can be shared across policies of different kinds.
type Context interface {
	Lookup(name string) Lookuper
}

// Lookuper is the "small capability (lookup(path) -> Value)" §9 calls for:
// entity projections implement this instead of exposing reflective field
// access.
type Lookuper interface {
	Lookup(field string) Value
}

// MapContext is a Context backed by a plain map, useful for tests and for
// assembling the top-level {repo, release, asset, gist, meta} bindings.
type MapContext map[string]Lookuper

func (m MapContext) Lookup(name string) Lookuper {
	if l, ok := m[name]; ok {
		return l
	}
	return nullLookuper{}
}

type nullLookuper struct{}

func (nullLookuper) Lookup(string) Value { return Null }

// ValueLookuper lets a plain Value (e.g. a Tuple) act as a Lookuper whose
// only valid "field" is empty (i.e. a leaf in a dotted path); any further
// segment yields Null.
type ValueLookuper struct{ V Value }

func (v ValueLookuper) Lookup(field string) Value {
	if field == "" {
		return v.V
	}
	return Null
}
