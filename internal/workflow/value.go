package workflow

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Reference points at an output slot of another node.
type Reference struct {
	Node string
	Slot int
}

func (r Reference) String() string {
	return fmt.Sprintf("%s[%d]", r.Node, r.Slot)
}

type valueKind uint8

const (
	literalValue valueKind = iota + 1
	referenceValue
)

// InputValue is the value of a single node input: exactly one of a literal
// or a reference. The zero value is an empty literal.
type InputValue struct {
	kind valueKind
	lit  cty.Value
	ref  Reference
}

// Literal wraps a literal value.
func Literal(v cty.Value) InputValue {
	return InputValue{kind: literalValue, lit: v}
}

// String is shorthand for a string literal.
func String(s string) InputValue {
	return Literal(cty.StringVal(s))
}

// Int is shorthand for an integer literal.
func Int(n int64) InputValue {
	return Literal(cty.NumberIntVal(n))
}

// Ref builds a reference to slot of the node with the given id.
func Ref(node string, slot int) InputValue {
	return InputValue{kind: referenceValue, ref: Reference{Node: node, Slot: slot}}
}

// IsRef reports whether v references another node.
func (v InputValue) IsRef() bool {
	return v.kind == referenceValue
}

// Reference returns the referenced output, if v is a reference.
func (v InputValue) Reference() (Reference, bool) {
	if v.kind != referenceValue {
		return Reference{}, false
	}
	return v.ref, true
}

// Literal returns the literal value. It returns a null value for references
// and for the zero InputValue.
func (v InputValue) Literal() cty.Value {
	if v.kind != literalValue || v.lit == cty.NilVal {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	return v.lit
}

// AsString returns the literal as a Go string when it is a known string.
func (v InputValue) AsString() (string, bool) {
	lit := v.Literal()
	if lit.IsNull() || !lit.IsKnown() || !lit.Type().Equals(cty.String) {
		return "", false
	}
	return lit.AsString(), true
}

// AsInt returns the literal as an int64 when it is a known whole number.
func (v InputValue) AsInt() (int64, bool) {
	lit := v.Literal()
	if lit.IsNull() || !lit.IsKnown() || !lit.Type().Equals(cty.Number) {
		return 0, false
	}
	var n int64
	if err := gocty.FromCtyValue(lit, &n); err != nil {
		return 0, false
	}
	return n, true
}

// Equal reports whether two input values are the same literal or the same
// reference.
func (v InputValue) Equal(other InputValue) bool {
	if v.IsRef() || other.IsRef() {
		return v.IsRef() && other.IsRef() && v.ref == other.ref
	}
	a, b := v.Literal(), other.Literal()
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	if !a.Type().Equals(b.Type()) {
		return false
	}
	if a.Type().IsPrimitiveType() {
		return a.Equals(b).True()
	}
	return a.RawEquals(b)
}

func (v InputValue) String() string {
	if ref, ok := v.Reference(); ok {
		return ref.String()
	}
	lit := v.Literal()
	if lit.IsNull() {
		return "null"
	}
	if s, ok := v.AsString(); ok {
		return fmt.Sprintf("%q", s)
	}
	return lit.GoString()
}
