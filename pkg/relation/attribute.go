package relation

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
)

// Attribute is a named column of a Set. Its identity is the pair (set, name). Attributes are
// immutable once created.
type Attribute interface {
	fmt.Stringer
	// Set returns the owning collection.
	Set() *Set
	// Name returns the attribute name.
	Name() string
	// Type returns the attribute type. Synthetic attributes are of type object.
	Type() Type
	// IsSynthetic reports whether the attribute is computed from the tuple instead of stored.
	IsSynthetic() bool

	Eq(other any) *Comparison
	Ne(other any) *Comparison
	Gt(other any) *Comparison
	Ge(other any) *Comparison
	Lt(other any) *Comparison
	Le(other any) *Comparison

	attribute()
}

// DefaultFunc computes the default value of an attribute for a tuple under construction. Values
// supplied explicitly are already assigned when it runs.
type DefaultFunc func(t *PrimitiveTuple) any

// AttributeOptions customize a primitive attribute.
type AttributeOptions struct {
	// Default is a static default value.
	Default any
	// DefaultFunc computes the default value. Takes precedence over Default.
	DefaultFunc DefaultFunc
	// Transform is applied to every value after type conversion.
	Transform func(any) any
}

type attributeBase struct {
	self Attribute
	set  *Set
	name string
}

func (a *attributeBase) Set() *Set      { return a.set }
func (a *attributeBase) Name() string   { return a.name }
func (a *attributeBase) String() string { return a.set.name + "." + a.name }
func (a *attributeBase) attribute()     {}

func (a *attributeBase) Eq(other any) *Comparison { return EqualTo(a.self, other) }
func (a *attributeBase) Ne(other any) *Comparison { return NotEqualTo(a.self, other) }
func (a *attributeBase) Gt(other any) *Comparison { return GreaterThan(a.self, other) }
func (a *attributeBase) Ge(other any) *Comparison { return GreaterThanOrEqual(a.self, other) }
func (a *attributeBase) Lt(other any) *Comparison { return LessThan(a.self, other) }
func (a *attributeBase) Le(other any) *Comparison { return LessThanOrEqual(a.self, other) }

// PrimitiveAttribute is a typed, stored attribute.
type PrimitiveAttribute struct {
	attributeBase
	typ         Type
	defaultFunc DefaultFunc
	transform   func(any) any
}

var _ Attribute = &PrimitiveAttribute{}

func newPrimitiveAttribute(set *Set, name string, typ Type, opts AttributeOptions) *PrimitiveAttribute {
	a := &PrimitiveAttribute{
		attributeBase: attributeBase{set: set, name: name},
		typ:           typ,
		transform:     opts.Transform,
		defaultFunc:   opts.DefaultFunc,
	}
	a.self = a
	if a.defaultFunc == nil && opts.Default != nil {
		def := opts.Default
		a.defaultFunc = func(*PrimitiveTuple) any { return def }
	}
	return a
}

// Type returns the attribute type.
func (a *PrimitiveAttribute) Type() Type { return a.typ }

// IsSynthetic returns false.
func (a *PrimitiveAttribute) IsSynthetic() bool { return false }

// HasDefault reports whether the attribute declares a default value.
func (a *PrimitiveAttribute) HasDefault() bool { return a.defaultFunc != nil }

// Convert normalizes a value to the attribute type and applies the transform.
func (a *PrimitiveAttribute) Convert(v any) (any, error) {
	c, err := a.typ.Convert(v)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", a, err)
	}
	if a.transform != nil {
		c = a.transform(c)
	}
	return c, nil
}

// SyntheticFunc computes the value of a synthetic attribute.
type SyntheticFunc func(t *PrimitiveTuple) (any, error)

// SyntheticAttribute is computed from a tuple and never stored.
type SyntheticAttribute struct {
	attributeBase
	compute SyntheticFunc
}

var _ Attribute = &SyntheticAttribute{}

func newSyntheticAttribute(set *Set, name string, compute SyntheticFunc) *SyntheticAttribute {
	a := &SyntheticAttribute{attributeBase: attributeBase{set: set, name: name}, compute: compute}
	a.self = a
	return a
}

// newJSONPathAttribute creates a synthetic attribute that evaluates a JSONPath expression on the
// field map of the tuple.
func newJSONPathAttribute(set *Set, name, path string) (*SyntheticAttribute, error) {
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, newError(ErrInvalidValue, "invalid JSONPath expression %q for attribute %s.%s: %s",
			path, set.name, name, err)
	}
	return newSyntheticAttribute(set, name, func(t *PrimitiveTuple) (any, error) {
		values := expr.Get(t.Fields())
		if len(values) == 0 {
			return nil, nil
		}
		return values[0], nil
	}), nil
}

// Type returns TypeObject.
func (a *SyntheticAttribute) Type() Type { return TypeObject }

// IsSynthetic returns true.
func (a *SyntheticAttribute) IsSynthetic() bool { return true }

// Compute evaluates the attribute on a tuple.
func (a *SyntheticAttribute) Compute(t *PrimitiveTuple) (any, error) {
	v, err := a.compute(t)
	if err != nil {
		return nil, fmt.Errorf("synthetic attribute %s: %w", a, err)
	}
	return v, nil
}
