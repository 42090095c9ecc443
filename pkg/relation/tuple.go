package relation

import (
	"fmt"
	"strings"

	"github.com/l7mp/liverel/pkg/event"
	"github.com/l7mp/liverel/pkg/retain"
)

// Tuple is one row of a relation: a PrimitiveTuple of a Set or a CompoundTuple produced by a join.
type Tuple interface {
	retain.Retainable
	fmt.Stringer
	// Key is the structural identity of the tuple.
	Key() string
	// IsCompound reports whether the tuple is a joined pair.
	IsCompound() bool
	// Has reports whether the tuple, or any nested tuple, owns the attribute.
	Has(attr Attribute) bool
	// Get returns the value of an attribute, recursing into nested tuples.
	Get(attr Attribute) (any, error)
	// HasSet reports whether the tuple, or any nested tuple, belongs to the set.
	HasSet(set *Set) bool
	// TupleFor returns the (nested) primitive tuple that belongs to the set.
	TupleFor(set *Set) (*PrimitiveTuple, error)
	// Primitives returns the flattened primitive tuples, left to right.
	Primitives() []*PrimitiveTuple
}

// UpdateEvent describes a field change on a tuple.
type UpdateEvent struct {
	// Tuple is the tuple as seen by the relation that fires the event: a primitive tuple for sets,
	// a compound tuple for joins.
	Tuple     Tuple
	Attribute Attribute
	Old, New  any
}

// String returns a string representation of the event.
func (e UpdateEvent) String() string {
	return fmt.Sprintf("%s: %s %v -> %v", e.Tuple, e.Attribute, e.Old, e.New)
}

type field struct {
	value any
	dirty bool
}

// PrimitiveTuple is a flat row of a Set. Its identity is the value of its id attribute.
type PrimitiveTuple struct {
	*retain.Lifecycle
	set     *Set
	fields  map[*PrimitiveAttribute]*field
	isNew   bool
	dirty   bool
	updates event.Node[UpdateEvent]
}

var _ Tuple = &PrimitiveTuple{}

func newPrimitiveTuple(set *Set, id string, values map[string]any) (*PrimitiveTuple, error) {
	t := &PrimitiveTuple{
		Lifecycle: retain.New(retain.Hooks{}),
		set:       set,
		fields:    map[*PrimitiveAttribute]*field{},
		isNew:     true,
	}
	t.updates.SetMaxDepth(set.environment().maxDepth)

	for name := range values {
		attr, err := set.Attribute(name)
		if err != nil {
			return nil, err
		}
		if attr.IsSynthetic() {
			return nil, newError(ErrUnsupportedOperation, "cannot assign synthetic attribute %s", attr)
		}
	}

	t.fields[set.idAttr] = &field{value: id}
	supplied := map[*PrimitiveAttribute]bool{set.idAttr: true}

	// explicit values first, then defaults, both in declaration order
	for _, attr := range set.PrimitiveAttributes() {
		v, ok := values[attr.name]
		if !ok {
			continue
		}
		if attr == set.idAttr {
			continue
		}
		c, err := attr.Convert(v)
		if err != nil {
			return nil, err
		}
		t.fields[attr] = &field{value: c}
		supplied[attr] = true
	}

	for _, attr := range set.PrimitiveAttributes() {
		if supplied[attr] || !attr.HasDefault() {
			continue
		}
		c, err := attr.Convert(attr.defaultFunc(t))
		if err != nil {
			return nil, err
		}
		t.fields[attr] = &field{value: c}
	}

	return t, nil
}

// Set returns the owning collection.
func (t *PrimitiveTuple) Set() *Set { return t.set }

// ID returns the identity of the tuple.
func (t *PrimitiveTuple) ID() string {
	id, _ := t.fields[t.set.idAttr].value.(string)
	return id
}

// Key returns "<set>/<id>".
func (t *PrimitiveTuple) Key() string { return t.set.name + "/" + t.ID() }

// IsCompound returns false.
func (t *PrimitiveTuple) IsCompound() bool { return false }

// Has reports whether the attribute is defined on the tuple's set.
func (t *PrimitiveTuple) Has(attr Attribute) bool { return t.set.HasAttribute(attr) }

// Get returns the value of an attribute. Synthetic attributes are computed on each call.
func (t *PrimitiveTuple) Get(attr Attribute) (any, error) {
	if !t.Has(attr) {
		return nil, newError(ErrUnknownAttribute, "attribute %s is not defined on set %q", attr, t.set.name)
	}
	switch a := attr.(type) {
	case *SyntheticAttribute:
		return a.Compute(t)
	case *PrimitiveAttribute:
		if f, ok := t.fields[a]; ok {
			return f.value, nil
		}
	}
	return nil, nil
}

// Value returns the value of the attribute with the given name.
func (t *PrimitiveTuple) Value(name string) (any, error) {
	attr, err := t.set.Attribute(name)
	if err != nil {
		return nil, err
	}
	return t.Get(attr)
}

// HasSet reports whether the tuple belongs to the set.
func (t *PrimitiveTuple) HasSet(set *Set) bool { return t.set == set }

// TupleFor returns the tuple itself if it belongs to the set.
func (t *PrimitiveTuple) TupleFor(set *Set) (*PrimitiveTuple, error) {
	if t.set != set {
		return nil, newError(ErrUnknownAttribute, "tuple %s does not belong to set %q", t, set.name)
	}
	return t, nil
}

// Primitives returns the tuple itself.
func (t *PrimitiveTuple) Primitives() []*PrimitiveTuple { return []*PrimitiveTuple{t} }

// Update assigns a new value to the attribute with the given name.
func (t *PrimitiveTuple) Update(name string, value any) error {
	attr, err := t.set.Attribute(name)
	if err != nil {
		return err
	}
	return t.UpdateAttribute(attr, value)
}

// UpdateAttribute assigns a new value to an attribute. If the converted value differs from the
// current one, the field is marked dirty, the tuple's update subscribers are notified and, if the
// tuple is a member of its set, the update is propagated through the set.
func (t *PrimitiveTuple) UpdateAttribute(attr Attribute, value any) error {
	if !t.Has(attr) {
		return newError(ErrUnknownAttribute, "attribute %s is not defined on set %q", attr, t.set.name)
	}
	pa, ok := attr.(*PrimitiveAttribute)
	if !ok {
		return newError(ErrUnsupportedOperation, "cannot assign synthetic attribute %s", attr)
	}
	if pa == t.set.idAttr {
		return newError(ErrUnsupportedOperation, "cannot change the identity of tuple %s", t)
	}

	converted, err := pa.Convert(value)
	if err != nil {
		return err
	}

	f, exists := t.fields[pa]
	if !exists {
		f = &field{}
		t.fields[pa] = f
	}
	old := f.value
	if exists && valuesEqual(old, converted) {
		return nil
	}

	f.value = converted
	f.dirty = true
	if !t.isNew {
		t.dirty = true
	}

	ev := UpdateEvent{Tuple: t, Attribute: pa, Old: old, New: converted}
	if err := t.updates.Fire(ev); err != nil {
		return err
	}
	return t.set.tupleUpdated(t, ev)
}

// OnUpdate subscribes to field changes of this tuple.
func (t *PrimitiveTuple) OnUpdate(callback event.Callback[UpdateEvent]) *event.Subscription {
	return t.updates.Subscribe(callback)
}

// Signal returns a reactive cell bound to the named field of this tuple.
func (t *PrimitiveTuple) Signal(name string) (*FieldSignal, error) {
	attr, err := t.set.Attribute(name)
	if err != nil {
		return nil, err
	}
	return NewFieldSignal(t, attr)
}

// Fields returns the stored field values keyed by attribute name.
func (t *PrimitiveTuple) Fields() map[string]any {
	ret := make(map[string]any, len(t.fields))
	for attr, f := range t.fields {
		ret[attr.name] = f.value
	}
	return ret
}

// DirtyFields returns the names of the fields changed since the tuple was last pushed, in
// declaration order.
func (t *PrimitiveTuple) DirtyFields() []string {
	ret := []string{}
	for _, attr := range t.set.PrimitiveAttributes() {
		if f, ok := t.fields[attr]; ok && f.dirty {
			ret = append(ret, attr.name)
		}
	}
	return ret
}

// IsNew reports whether the tuple has never been pushed to persistence.
func (t *PrimitiveTuple) IsNew() bool { return t.isNew }

// IsDirty reports whether the tuple has unsaved field changes since it was last pushed.
func (t *PrimitiveTuple) IsDirty() bool { return t.dirty }

// Pushed acknowledges a write to persistence: the tuple is no longer new or dirty.
func (t *PrimitiveTuple) Pushed() {
	t.isNew = false
	t.dirty = false
	for _, f := range t.fields {
		f.dirty = false
	}
}

// Delete removes the tuple from its set.
func (t *PrimitiveTuple) Delete() error { return t.set.Delete(t) }

// Compare orders tuples by id.
func (t *PrimitiveTuple) Compare(other *PrimitiveTuple) int { return strings.Compare(t.ID(), other.ID()) }

// String returns a string representation of the tuple.
func (t *PrimitiveTuple) String() string {
	parts := []string{}
	for _, attr := range t.set.PrimitiveAttributes() {
		if f, ok := t.fields[attr]; ok {
			parts = append(parts, fmt.Sprintf("%s:%v", attr.name, f.value))
		}
	}
	return fmt.Sprintf("<%s %s>", t.set.name, strings.Join(parts, " "))
}

// CompoundTuple is an ordered pair of nested tuples, one row of a join. It retains the nested
// tuples only while it is retained itself.
type CompoundTuple struct {
	*retain.Lifecycle
	left, right Tuple
}

var _ Tuple = &CompoundTuple{}

// NewCompoundTuple creates a new compound tuple.
func NewCompoundTuple(left, right Tuple) *CompoundTuple {
	c := &CompoundTuple{left: left, right: right}
	c.Lifecycle = retain.New(retain.Hooks{
		Children: func() []retain.Retainable { return distinctRetainables(c.left, c.right) },
	})
	return c
}

func compoundKey(left, right Tuple) string { return "(" + left.Key() + "," + right.Key() + ")" }

// Left returns the left nested tuple.
func (c *CompoundTuple) Left() Tuple { return c.left }

// Right returns the right nested tuple.
func (c *CompoundTuple) Right() Tuple { return c.right }

// Key returns the structural identity of the pair.
func (c *CompoundTuple) Key() string { return compoundKey(c.left, c.right) }

// IsCompound returns true.
func (c *CompoundTuple) IsCompound() bool { return true }

// Has reports whether either side owns the attribute.
func (c *CompoundTuple) Has(attr Attribute) bool { return c.left.Has(attr) || c.right.Has(attr) }

// Get returns the attribute value from whichever side owns the attribute.
func (c *CompoundTuple) Get(attr Attribute) (any, error) {
	if c.left.Has(attr) {
		return c.left.Get(attr)
	}
	if c.right.Has(attr) {
		return c.right.Get(attr)
	}
	return nil, newError(ErrUnknownAttribute, "attribute %s is not defined on compound tuple %s", attr, c)
}

// HasSet reports whether either side belongs to the set.
func (c *CompoundTuple) HasSet(set *Set) bool { return c.left.HasSet(set) || c.right.HasSet(set) }

// TupleFor returns the first nested primitive tuple that belongs to the set.
func (c *CompoundTuple) TupleFor(set *Set) (*PrimitiveTuple, error) {
	if c.left.HasSet(set) {
		return c.left.TupleFor(set)
	}
	if c.right.HasSet(set) {
		return c.right.TupleFor(set)
	}
	return nil, newError(ErrUnknownAttribute, "compound tuple %s has no member of set %q", c, set.name)
}

// Primitives returns the flattened primitive tuples, left to right.
func (c *CompoundTuple) Primitives() []*PrimitiveTuple {
	return append(c.left.Primitives(), c.right.Primitives()...)
}

// Equal reports structural equality.
func (c *CompoundTuple) Equal(other *CompoundTuple) bool { return c.Key() == other.Key() }

// String returns a string representation of the tuple.
func (c *CompoundTuple) String() string { return "(" + c.left.String() + ", " + c.right.String() + ")" }
