// Package relation implements an in-process incremental relational engine.
//
// A query is a tree of relations: base Sets at the leaves and derived operators (Selection,
// InnerJoin, Projection, Ordering) above them. A relation that is retained maintains a
// materialized result: it reads its operands once on activation and from then on it updates the
// result incrementally from the insert, delete and tuple-update events fired by its operands,
// firing events of its own. A relation that is not retained holds no state and no subscriptions;
// reading its tuples recomputes them from the operands.
//
// Propagation is synchronous: a mutation on a Set returns only after every activated dependent
// relation has processed it. The engine assumes a single mutator and uses no locks.
package relation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/l7mp/liverel/pkg/event"
	"github.com/l7mp/liverel/pkg/retain"
)

// Kind identifies the variant of a relation.
type Kind string

const (
	KindSet        Kind = "set"
	KindSelection  Kind = "selection"
	KindInnerJoin  Kind = "inner_join"
	KindProjection Kind = "projection"
	KindOrdering   Kind = "ordering"
)

// Relation is a composable source of tuples.
type Relation interface {
	retain.Retainable
	fmt.Stringer

	// Kind returns the variant of the relation.
	Kind() Kind
	// Operands returns the input relations; nil for a Set.
	Operands() []Relation
	// ComposedSets returns the base collections contributing to the relation, flattened through
	// compound operators.
	ComposedSets() []*Set
	// IsCompound reports whether the tuples of the relation are compound.
	IsCompound() bool
	// IsSingleton reports whether the result is constrained to at most one tuple.
	IsSingleton() bool
	// Singleton constrains the result to at most one tuple and returns the relation.
	Singleton() Relation

	// Attribute resolves an attribute by name ("name" or "set.name") on the composed sets.
	Attribute(name string) (Attribute, error)
	// HasAttribute reports whether the attribute belongs to one of the composed sets.
	HasAttribute(attr Attribute) bool

	// Tuples returns the materialized result of a retained relation, or computes the result of an
	// unretained one.
	Tuples() ([]Tuple, error)
	// Len returns the number of tuples.
	Len() (int, error)
	// Contains reports whether a tuple with the same key is in the result.
	Contains(t Tuple) (bool, error)
	// First returns the first tuple of the result or nil.
	First() (Tuple, error)
	// Tuple returns the only tuple of a singleton relation or nil.
	Tuple() (Tuple, error)
	// Find returns the primitive tuple of the result with the given id or nil.
	Find(id string) (*PrimitiveTuple, error)

	// OnInsert subscribes to tuples entering the result.
	OnInsert(callback event.Callback[Tuple]) (*event.Subscription, error)
	// OnDelete subscribes to tuples leaving the result.
	OnDelete(callback event.Callback[Tuple]) (*event.Subscription, error)
	// OnTupleUpdate subscribes to field changes of the tuples in the result.
	OnTupleUpdate(callback event.Callback[UpdateEvent]) (*event.Subscription, error)

	// Where filters the relation.
	Where(p Predicate) *Selection
	// Join starts a join with another relation; finish it with On.
	Join(other Relation) *PartialJoin
	// Project projects the relation onto one of its composed sets.
	Project(set *Set) (*Projection, error)
	// OrderBy sorts the relation.
	OrderBy(terms ...OrderTerm) *Ordering

	// Merge upserts externally fetched tuples into the underlying Set.
	Merge(tuples []*PrimitiveTuple) error
	// BaseSet returns the Set new tuples of this relation belong to.
	BaseSet() (*Set, error)

	// RetainWith retains the relation by an owner and returns the relation.
	RetainWith(owner retain.Retainer) (Relation, error)
	// ReleaseFrom releases the relation from an owner.
	ReleaseFrom(owner retain.Retainer) error

	initialRead() ([]Tuple, error)
	environment() *env
}

// Options configure the relations created by a Registry or by NewSet.
type Options struct {
	// Logger is the base logger. Defaults to logr.Discard().
	Logger logr.Logger
	// Registerer receives the engine metrics. Metrics are disabled if nil.
	Registerer prometheus.Registerer
	// MaxDispatchDepth bounds reentrant event dispatch. Defaults to event.DefaultMaxDepth.
	MaxDispatchDepth int
}

// env is the shared configuration of a relation graph. Derived relations inherit the env of their
// first operand.
type env struct {
	log      logr.Logger
	metrics  *Metrics
	maxDepth int
}

func newEnv(opts Options) (*env, error) {
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	e := &env{log: log, maxDepth: opts.MaxDispatchDepth}
	if e.maxDepth <= 0 {
		e.maxDepth = event.DefaultMaxDepth
	}
	if opts.Registerer != nil {
		m, err := NewMetrics(opts.Registerer)
		if err != nil {
			return nil, err
		}
		e.metrics = m
	}
	return e, nil
}

// memberList is the materialized result of a retained relation: tuples in result order, indexed
// by key. With a comparator the list is kept sorted.
type memberList struct {
	tuples []Tuple
	index  map[string]Tuple
	cmp    func(a, b Tuple) int
}

func newMemberList(cmp func(a, b Tuple) int) *memberList {
	return &memberList{tuples: []Tuple{}, index: map[string]Tuple{}, cmp: cmp}
}

func (m *memberList) get(key string) Tuple { return m.index[key] }

func (m *memberList) has(key string) bool {
	_, ok := m.index[key]
	return ok
}

func (m *memberList) add(t Tuple) error {
	if m.has(t.Key()) {
		return newError(ErrIdentityConflict, "tuple %s is already a member", t.Key())
	}
	m.index[t.Key()] = t
	if m.cmp == nil {
		m.tuples = append(m.tuples, t)
		return nil
	}
	i, _ := slices.BinarySearchFunc(m.tuples, t, m.cmp)
	m.tuples = slices.Insert(m.tuples, i, t)
	return nil
}

func (m *memberList) remove(key string) Tuple {
	t, ok := m.index[key]
	if !ok {
		return nil
	}
	delete(m.index, key)
	m.tuples = slices.DeleteFunc(m.tuples, func(x Tuple) bool { return x.Key() == key })
	return t
}

// reposition moves a tuple to its sorted position after its sort key has changed.
func (m *memberList) reposition(t Tuple) {
	if m.cmp == nil || m.remove(t.Key()) == nil {
		return
	}
	_ = m.add(t)
}

func (m *memberList) list() []Tuple { return slices.Clone(m.tuples) }

// base implements the behavior shared by every relation.
type base struct {
	*retain.Lifecycle
	self      Relation
	kind      Kind
	env       *env
	log       logr.Logger
	singleton bool
	cmp       func(a, b Tuple) int

	members *memberList
	subs    []*event.Subscription
	inserts event.Node[Tuple]
	deletes event.Node[Tuple]
	updates event.Node[UpdateEvent]
}

// init installs the lifecycle: on activation the result is materialized from initialRead and the
// relation subscribes to its operands; on deactivation the subscriptions are cancelled and the
// result is dropped.
func (b *base) init(self Relation, kind Kind, e *env, children func() []retain.Retainable, subscribe func() error) {
	b.self, b.kind, b.env = self, kind, e
	b.log = e.log.WithName(string(kind))
	b.inserts.SetMaxDepth(e.maxDepth)
	b.deletes.SetMaxDepth(e.maxDepth)
	b.updates.SetMaxDepth(e.maxDepth)
	b.Lifecycle = retain.New(retain.Hooks{
		Children:         children,
		AfterFirstRetain: func() error { return b.activate(subscribe) },
		AfterLastRelease: b.deactivate,
	})
}

func (b *base) activate(subscribe func() error) error {
	tuples, err := b.self.initialRead()
	if err != nil {
		return fmt.Errorf("cannot activate %s: %w", b.self, err)
	}

	b.members = newMemberList(b.cmp)
	for _, t := range tuples {
		if err := b.members.add(t); err != nil {
			return err
		}
		if err := t.RetainedBy(b); err != nil {
			return err
		}
	}
	b.log.V(1).Info("activated", "relation", b.self.String(), "tuples", len(tuples))

	if subscribe == nil {
		return nil
	}
	return subscribe()
}

func (b *base) deactivate() error {
	for _, s := range b.subs {
		s.Unsubscribe()
	}
	b.subs = nil

	var tuples []Tuple
	if b.members != nil {
		tuples = b.members.list()
	}
	b.members = nil
	for _, t := range tuples {
		if err := t.ReleasedBy(b); err != nil {
			return err
		}
	}

	b.inserts.Clear()
	b.deletes.Clear()
	b.updates.Clear()
	b.log.V(1).Info("deactivated", "relation", b.self.String())
	return nil
}

// subscribe records a subscription to be cancelled on deactivation.
func (b *base) subscribe(sub *event.Subscription, err error) error {
	if err != nil {
		return err
	}
	b.subs = append(b.subs, sub)
	return nil
}

func (b *base) isMember(t Tuple) bool { return b.members != nil && b.members.has(t.Key()) }

func (b *base) member(key string) Tuple {
	if b.members == nil {
		return nil
	}
	return b.members.get(key)
}

// insert adds a tuple to the result, retains it, runs the hook if given and fires insert.
func (b *base) insert(t Tuple, hook func() error) error {
	if b.members == nil {
		return newError(ErrNotRetained, "cannot insert into %s", b.self)
	}
	if err := b.members.add(t); err != nil {
		return err
	}
	if err := t.RetainedBy(b); err != nil {
		return err
	}
	if hook != nil {
		if err := hook(); err != nil {
			return err
		}
	}

	b.log.V(4).Info("insert", "relation", b.self.String(), "tuple", t.Key())
	b.env.metrics.event(b.kind, "insert")
	return b.inserts.Fire(t)
}

// delete removes the member with the key of the tuple, releases it and fires delete.
func (b *base) delete(t Tuple) error {
	if b.members == nil {
		return newError(ErrNotRetained, "cannot delete from %s", b.self)
	}
	existing := b.members.remove(t.Key())
	if existing == nil {
		return newError(ErrNotAMember, "tuple %s is not a member of %s", t.Key(), b.self)
	}
	if err := existing.ReleasedBy(b); err != nil {
		return err
	}

	b.log.V(4).Info("delete", "relation", b.self.String(), "tuple", existing.Key())
	b.env.metrics.event(b.kind, "delete")
	return b.deletes.Fire(existing)
}

func (b *base) update(ev UpdateEvent) error {
	b.log.V(4).Info("update", "relation", b.self.String(), "tuple", ev.Tuple.Key(),
		"attribute", ev.Attribute.String(), "old", ev.Old, "new", ev.New)
	b.env.metrics.event(b.kind, "update")
	return b.updates.Fire(ev)
}

func (b *base) Kind() Kind          { return b.kind }
func (b *base) IsSingleton() bool   { return b.singleton }
func (b *base) Singleton() Relation { b.singleton = true; return b.self }
func (b *base) environment() *env   { return b.env }

func (b *base) Attribute(name string) (Attribute, error) {
	return resolveAttribute(b.self.ComposedSets(), name)
}

func (b *base) HasAttribute(attr Attribute) bool {
	return slices.Contains(b.self.ComposedSets(), attr.Set())
}

func (b *base) Tuples() ([]Tuple, error) {
	if b.members != nil {
		return b.members.list(), nil
	}
	return b.self.initialRead()
}

func (b *base) Len() (int, error) {
	if b.members != nil {
		return len(b.members.tuples), nil
	}
	ts, err := b.self.initialRead()
	return len(ts), err
}

func (b *base) Contains(t Tuple) (bool, error) {
	if b.members != nil {
		return b.members.has(t.Key()), nil
	}
	ts, err := b.self.initialRead()
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(ts, func(x Tuple) bool { return x.Key() == t.Key() }), nil
}

func (b *base) First() (Tuple, error) {
	ts, err := b.Tuples()
	if err != nil || len(ts) == 0 {
		return nil, err
	}
	return ts[0], nil
}

func (b *base) Tuple() (Tuple, error) {
	if !b.singleton {
		return nil, newError(ErrUnsupportedOperation, "%s is not a singleton relation", b.self)
	}
	return b.First()
}

func (b *base) Find(id string) (*PrimitiveTuple, error) {
	if b.self.IsCompound() {
		return nil, newError(ErrUnsupportedOperation, "cannot find by id in compound relation %s", b.self)
	}
	ts, err := b.Tuples()
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		if p, ok := t.(*PrimitiveTuple); ok && p.ID() == id {
			return p, nil
		}
	}
	return nil, nil
}

func (b *base) OnInsert(callback event.Callback[Tuple]) (*event.Subscription, error) {
	if !b.IsRetained() {
		return nil, newError(ErrNotRetained, "cannot subscribe to %s", b.self)
	}
	return b.inserts.Subscribe(callback), nil
}

func (b *base) OnDelete(callback event.Callback[Tuple]) (*event.Subscription, error) {
	if !b.IsRetained() {
		return nil, newError(ErrNotRetained, "cannot subscribe to %s", b.self)
	}
	return b.deletes.Subscribe(callback), nil
}

func (b *base) OnTupleUpdate(callback event.Callback[UpdateEvent]) (*event.Subscription, error) {
	if !b.IsRetained() {
		return nil, newError(ErrNotRetained, "cannot subscribe to %s", b.self)
	}
	return b.updates.Subscribe(callback), nil
}

func (b *base) Where(p Predicate) *Selection          { return NewSelection(b.self, p) }
func (b *base) Join(other Relation) *PartialJoin      { return &PartialJoin{left: b.self, right: other} }
func (b *base) Project(set *Set) (*Projection, error) { return NewProjection(b.self, set) }
func (b *base) OrderBy(terms ...OrderTerm) *Ordering  { return NewOrdering(b.self, terms...) }

func (b *base) RetainWith(owner retain.Retainer) (Relation, error) {
	if err := b.RetainedBy(owner); err != nil {
		return nil, err
	}
	return b.self, nil
}

func (b *base) ReleaseFrom(owner retain.Retainer) error { return b.ReleasedBy(owner) }

// resolveAttribute looks up "name" or "set.name" on a list of sets. A bare name must be unique.
func resolveAttribute(sets []*Set, name string) (Attribute, error) {
	if setName, attrName, ok := strings.Cut(name, "."); ok {
		for _, s := range sets {
			if s.name == setName {
				return s.Attribute(attrName)
			}
		}
		return nil, newError(ErrUnknownAttribute, "no set %q in relation", setName)
	}

	var found Attribute
	for _, s := range sets {
		if a, ok := s.attrIndex[name]; ok {
			if found != nil && found != a {
				return nil, newError(ErrUnknownAttribute, "ambiguous attribute %q, qualify it with the set name", name)
			}
			found = a
		}
	}
	if found == nil {
		return nil, newError(ErrUnknownAttribute, "unknown attribute %q", name)
	}
	return found, nil
}

// distinctSets removes repeated sets, keeping the first occurrence.
func distinctSets(sets []*Set) []*Set {
	ret := []*Set{}
	for _, s := range sets {
		if !slices.Contains(ret, s) {
			ret = append(ret, s)
		}
	}
	return ret
}

// distinctRetainables returns the relations to retain as children: a retainer holds each once.
func distinctRetainables(items ...retain.Retainable) []retain.Retainable {
	ret := []retain.Retainable{}
	for _, r := range items {
		if !slices.Contains(ret, r) {
			ret = append(ret, r)
		}
	}
	return ret
}
