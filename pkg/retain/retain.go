// Package retain implements activation by reference counting.
//
// Every activatable entity (relations, tuples, predicates, signals) embeds a Lifecycle. A
// Lifecycle records the set of distinct retainers currently holding the entity. The first retain
// recursively retains the entity's declared children and then runs the activation hook; the last
// release runs the deactivation hook and then releases the children.
//
// Retainers are identified by stable ID handles rather than by pointers, so an operator graph that
// is not a tree (e.g., a set feeding both sides of a join) is counted correctly.
package retain

import (
	"errors"
	"fmt"
	"sync/atomic"

	"k8s.io/apimachinery/pkg/util/sets"
)

// ErrRetainerConflict is returned when an entity is retained twice by the same retainer or
// released by an entity that does not retain it.
var ErrRetainerConflict = errors.New("retainer conflict")

// ID is a stable handle identifying a retainer.
type ID uint64

var lastID atomic.Uint64

// NewID returns a fresh handle.
func NewID() ID { return ID(lastID.Add(1)) }

// Retainer is anything that can hold a reference on a Retainable.
type Retainer interface {
	RetainerID() ID
}

// Retainable is the activation capability.
type Retainable interface {
	Retainer
	RetainedBy(by Retainer) error
	ReleasedBy(by Retainer) error
	IsRetained() bool
	IsRetainedBy(by Retainer) bool
	RefCount() int
}

// Owner is an external retainer, e.g., an application component or a test.
type Owner struct {
	id   ID
	name string
}

// NewOwner creates a new owner with a fresh handle.
func NewOwner(name string) *Owner { return &Owner{id: NewID(), name: name} }

// RetainerID implements Retainer.
func (o *Owner) RetainerID() ID { return o.id }

// String returns the owner name.
func (o *Owner) String() string { return fmt.Sprintf("owner:%s#%d", o.name, o.id) }

// Hooks customize a Lifecycle. All fields are optional.
type Hooks struct {
	// Children returns the entities retained while this one is retained. It is called on
	// activation and again on deactivation.
	Children func() []Retainable
	// AfterFirstRetain runs after the children were retained.
	AfterFirstRetain func() error
	// AfterLastRelease runs before the children are released.
	AfterLastRelease func() error
}

// Lifecycle is the reference-counting state embedded into activatable entities.
type Lifecycle struct {
	id        ID
	retainers sets.Set[ID]
	hooks     Hooks
}

var _ Retainable = &Lifecycle{}

// New creates a Lifecycle with the given hooks.
func New(hooks Hooks) *Lifecycle {
	return &Lifecycle{id: NewID(), retainers: sets.New[ID](), hooks: hooks}
}

// SetHooks replaces the hooks. Entities that need to refer to themselves from the hooks construct
// the Lifecycle first and install the hooks afterwards.
func (l *Lifecycle) SetHooks(hooks Hooks) { l.hooks = hooks }

// RetainerID implements Retainer.
func (l *Lifecycle) RetainerID() ID { return l.id }

// RetainedBy records a new retainer. On the 0->1 transition the children are retained and the
// activation hook is run.
func (l *Lifecycle) RetainedBy(by Retainer) error {
	if l.retainers.Has(by.RetainerID()) {
		return fmt.Errorf("%w: #%d already retains #%d", ErrRetainerConflict, by.RetainerID(), l.id)
	}
	l.retainers.Insert(by.RetainerID())
	if l.retainers.Len() != 1 {
		return nil
	}

	for _, child := range l.children() {
		if err := child.RetainedBy(l); err != nil {
			return err
		}
	}
	if l.hooks.AfterFirstRetain != nil {
		return l.hooks.AfterFirstRetain()
	}
	return nil
}

// ReleasedBy removes a retainer. On the 1->0 transition the deactivation hook is run and the
// children are released.
func (l *Lifecycle) ReleasedBy(by Retainer) error {
	if !l.retainers.Has(by.RetainerID()) {
		return fmt.Errorf("%w: #%d does not retain #%d", ErrRetainerConflict, by.RetainerID(), l.id)
	}
	l.retainers.Delete(by.RetainerID())
	if l.retainers.Len() != 0 {
		return nil
	}

	if l.hooks.AfterLastRelease != nil {
		if err := l.hooks.AfterLastRelease(); err != nil {
			return err
		}
	}
	for _, child := range l.children() {
		if err := child.ReleasedBy(l); err != nil {
			return err
		}
	}
	return nil
}

// IsRetained reports whether at least one retainer holds the entity.
func (l *Lifecycle) IsRetained() bool { return l.retainers.Len() > 0 }

// IsRetainedBy reports whether the given retainer holds the entity.
func (l *Lifecycle) IsRetainedBy(by Retainer) bool { return l.retainers.Has(by.RetainerID()) }

// RefCount returns the number of distinct retainers.
func (l *Lifecycle) RefCount() int { return l.retainers.Len() }

func (l *Lifecycle) children() []Retainable {
	if l.hooks.Children == nil {
		return nil
	}
	return l.hooks.Children()
}
