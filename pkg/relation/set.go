package relation

import (
	"strings"

	"github.com/google/uuid"
)

// IDAttribute is the name of the identity attribute every Set defines.
const IDAttribute = "id"

// TupleHook runs on a tuple inserted into a Set.
type TupleHook func(t *PrimitiveTuple) error

// Set is a named base relation: an identity-keyed collection of primitive tuples. A Set holds
// tuples only while it is retained.
type Set struct {
	base
	name      string
	attrs     []Attribute
	attrIndex map[string]Attribute
	idAttr    *PrimitiveAttribute

	createHook, mergeHook               TupleHook
	createHookEnabled, mergeHookEnabled bool
}

var _ Relation = &Set{}

// NewSet creates a new unretained Set with an "id" attribute. Use a Registry to create sets that
// stay retained for the lifetime of the registry.
func NewSet(name string, opts Options) (*Set, error) {
	e, err := newEnv(opts)
	if err != nil {
		return nil, err
	}
	return newSet(name, e), nil
}

func newSet(name string, e *env) *Set {
	s := &Set{
		name:              name,
		attrIndex:         map[string]Attribute{},
		createHookEnabled: true,
		mergeHookEnabled:  true,
	}
	s.init(s, KindSet, e, nil, nil)
	s.idAttr, _ = s.AddAttribute(IDAttribute, TypeString, AttributeOptions{
		DefaultFunc: func(*PrimitiveTuple) any { return uuid.NewString() },
	})
	return s
}

// Name returns the name of the set.
func (s *Set) Name() string { return s.name }

// String returns the name of the set.
func (s *Set) String() string { return s.name }

// AddAttribute declares a stored attribute. Redeclaring an attribute with the same type returns
// the existing attribute.
func (s *Set) AddAttribute(name string, typ Type, opts AttributeOptions) (*PrimitiveAttribute, error) {
	if name == "" || strings.Contains(name, ".") {
		return nil, newError(ErrInvalidValue, "invalid attribute name %q", name)
	}
	if existing, ok := s.attrIndex[name]; ok {
		pa, ok := existing.(*PrimitiveAttribute)
		if !ok || pa.typ != typ {
			return nil, newError(ErrInvalidValue, "attribute %s is already defined with type %s",
				existing, existing.Type())
		}
		return pa, nil
	}

	a := newPrimitiveAttribute(s, name, typ, opts)
	s.addAttribute(a)
	return a, nil
}

// AddSyntheticAttribute declares an attribute computed from the tuple.
func (s *Set) AddSyntheticAttribute(name string, compute SyntheticFunc) (*SyntheticAttribute, error) {
	if _, ok := s.attrIndex[name]; ok {
		return nil, newError(ErrInvalidValue, "attribute %s.%s is already defined", s.name, name)
	}
	a := newSyntheticAttribute(s, name, compute)
	s.addAttribute(a)
	return a, nil
}

// AddJSONPathAttribute declares a synthetic attribute that evaluates a JSONPath expression on the
// fields of the tuple, e.g., "$.address.city".
func (s *Set) AddJSONPathAttribute(name, path string) (*SyntheticAttribute, error) {
	if _, ok := s.attrIndex[name]; ok {
		return nil, newError(ErrInvalidValue, "attribute %s.%s is already defined", s.name, name)
	}
	a, err := newJSONPathAttribute(s, name, path)
	if err != nil {
		return nil, err
	}
	s.addAttribute(a)
	return a, nil
}

func (s *Set) addAttribute(a Attribute) {
	s.attrs = append(s.attrs, a)
	s.attrIndex[a.Name()] = a
}

// Attribute returns the attribute with the given name. The name may be qualified with the set
// name.
func (s *Set) Attribute(name string) (Attribute, error) {
	if setName, attrName, ok := strings.Cut(name, "."); ok {
		if setName != s.name {
			return nil, newError(ErrUnknownAttribute, "attribute %q does not belong to set %q", name, s.name)
		}
		name = attrName
	}
	a, ok := s.attrIndex[name]
	if !ok {
		return nil, newError(ErrUnknownAttribute, "attribute %q is not defined on set %q", name, s.name)
	}
	return a, nil
}

// MustAttribute is like Attribute but panics if the attribute does not exist.
func (s *Set) MustAttribute(name string) Attribute {
	a, err := s.Attribute(name)
	if err != nil {
		panic(err)
	}
	return a
}

// HasAttribute reports whether the attribute belongs to this set.
func (s *Set) HasAttribute(attr Attribute) bool { return attr != nil && attr.Set() == s }

// Attributes returns the attributes in declaration order.
func (s *Set) Attributes() []Attribute { return append([]Attribute{}, s.attrs...) }

// PrimitiveAttributes returns the stored attributes in declaration order.
func (s *Set) PrimitiveAttributes() []*PrimitiveAttribute {
	ret := []*PrimitiveAttribute{}
	for _, a := range s.attrs {
		if pa, ok := a.(*PrimitiveAttribute); ok {
			ret = append(ret, pa)
		}
	}
	return ret
}

// IDAttribute returns the identity attribute.
func (s *Set) IDAttribute() *PrimitiveAttribute { return s.idAttr }

// NewTuple constructs a tuple with a generated identity. It is not inserted.
func (s *Set) NewTuple(fields map[string]any) (*PrimitiveTuple, error) {
	if _, ok := fields[IDAttribute]; ok {
		return nil, newError(ErrInvalidValue, "the identity of a new tuple of set %q is generated", s.name)
	}
	id, _ := s.idAttr.defaultFunc(nil).(string)
	return newPrimitiveTuple(s, id, fields)
}

// NewTupleWithID constructs a tuple with an explicit identity. It is meant for fixtures and for
// rows loaded from persistence.
func (s *Set) NewTupleWithID(id string, fields map[string]any) (*PrimitiveTuple, error) {
	if id == "" {
		return nil, newError(ErrInvalidValue, "empty identity for a tuple of set %q", s.name)
	}
	if v, ok := fields[IDAttribute]; ok && v != id {
		return nil, newError(ErrInvalidValue, "conflicting identities %q and %v", id, v)
	}
	return newPrimitiveTuple(s, id, fields)
}

// Create constructs a tuple with a generated identity and inserts it.
func (s *Set) Create(fields map[string]any) (*PrimitiveTuple, error) {
	t, err := s.NewTuple(fields)
	if err != nil {
		return nil, err
	}
	if err := s.Insert(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Insert adds a tuple of this set. The creation hook runs for tuples that were never pushed to
// persistence.
func (s *Set) Insert(t *PrimitiveTuple) error {
	if !s.IsRetained() {
		return newError(ErrNotRetained, "cannot insert into set %q", s.name)
	}
	if t.set != s {
		return newError(ErrInvalidValue, "tuple %s belongs to set %q, not %q", t.Key(), t.set.name, s.name)
	}

	var hook func() error
	if s.createHook != nil && s.createHookEnabled && t.IsNew() {
		hook = func() error { return s.createHook(t) }
	}
	if err := s.insert(t, hook); err != nil {
		return err
	}
	s.env.metrics.setTuples(s.name, len(s.members.tuples))
	return nil
}

// Delete removes a member tuple.
func (s *Set) Delete(t *PrimitiveTuple) error {
	if !s.IsRetained() {
		return newError(ErrNotRetained, "cannot delete from set %q", s.name)
	}
	if s.member(t.Key()) != Tuple(t) {
		return newError(ErrNotAMember, "tuple %s is not a member of set %q", t.Key(), s.name)
	}
	if err := s.delete(t); err != nil {
		return err
	}
	s.env.metrics.setTuples(s.name, len(s.members.tuples))
	return nil
}

// Find returns the member with the given id or nil.
func (s *Set) Find(id string) (*PrimitiveTuple, error) {
	if t, ok := s.member(s.name + "/" + id).(*PrimitiveTuple); ok {
		return t, nil
	}
	return nil, nil
}

// Merge inserts the tuples whose id is not yet present and skips the rest. The merge hook runs on
// every inserted tuple.
func (s *Set) Merge(tuples []*PrimitiveTuple) error {
	for _, t := range tuples {
		if s.member(t.Key()) != nil {
			s.log.V(8).Info("merge: skipping existing tuple", "set", s.name, "id", t.ID())
			continue
		}
		if err := s.Insert(t); err != nil {
			return err
		}
		if s.mergeHook != nil && s.mergeHookEnabled {
			if err := s.mergeHook(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clear deletes every member, in insertion order.
func (s *Set) Clear() error {
	if s.members == nil {
		return nil
	}
	for _, t := range s.members.list() {
		if err := s.Delete(t.(*PrimitiveTuple)); err != nil {
			return err
		}
	}
	return nil
}

// BaseSet returns the set itself.
func (s *Set) BaseSet() (*Set, error) { return s, nil }

// SetCreateHook installs a hook run on inserted tuples that were never pushed to persistence.
func (s *Set) SetCreateHook(hook TupleHook) { s.createHook = hook }

// SetMergeHook installs a hook run on tuples inserted by Merge.
func (s *Set) SetMergeHook(hook TupleHook) { s.mergeHook = hook }

// EnableCreateHook toggles the creation hook and returns the previous setting.
func (s *Set) EnableCreateHook(enabled bool) bool {
	prev := s.createHookEnabled
	s.createHookEnabled = enabled
	return prev
}

// EnableMergeHook toggles the merge hook and returns the previous setting.
func (s *Set) EnableMergeHook(enabled bool) bool {
	prev := s.mergeHookEnabled
	s.mergeHookEnabled = enabled
	return prev
}

func (s *Set) Operands() []Relation { return nil }
func (s *Set) ComposedSets() []*Set { return []*Set{s} }
func (s *Set) IsCompound() bool     { return false }

// initialRead returns no tuples: a set starts empty on every activation.
func (s *Set) initialRead() ([]Tuple, error) { return []Tuple{}, nil }

// tupleUpdated propagates a field update of a member tuple.
func (s *Set) tupleUpdated(t *PrimitiveTuple, ev UpdateEvent) error {
	if s.member(t.Key()) != Tuple(t) {
		return nil
	}
	return s.update(ev)
}
