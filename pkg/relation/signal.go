package relation

import (
	"fmt"

	"github.com/l7mp/liverel/pkg/event"
	"github.com/l7mp/liverel/pkg/retain"
)

// Signal is a reactive scalar. While retained, it fires OnChange whenever its value changes.
type Signal interface {
	retain.Retainable
	fmt.Stringer
	// Value returns the current value.
	Value() any
	// OnChange subscribes to value changes.
	OnChange(callback event.Callback[SignalChange]) *event.Subscription
	// Derive creates a signal whose value is transform applied to this signal's value.
	Derive(transform Transform) *DerivedSignal
	signal()
}

// SignalChange carries the value of a signal before and after a change.
type SignalChange struct {
	Old, New any
}

// Transform is a pure function applied by a DerivedSignal.
type Transform func(any) any

type signalBase struct {
	*retain.Lifecycle
	changes event.Node[SignalChange]
	sub     *event.Subscription
}

func (s *signalBase) OnChange(callback event.Callback[SignalChange]) *event.Subscription {
	return s.changes.Subscribe(callback)
}

func (s *signalBase) signal() {}

// FieldSignal is bound to one field of a primitive tuple.
type FieldSignal struct {
	signalBase
	tuple *PrimitiveTuple
	attr  *PrimitiveAttribute
}

var _ Signal = &FieldSignal{}

// NewFieldSignal creates a signal bound to a stored attribute of a tuple. Synthetic attributes
// have no update stream and are refused.
func NewFieldSignal(t *PrimitiveTuple, attr Attribute) (*FieldSignal, error) {
	if !t.Has(attr) {
		return nil, newError(ErrUnknownAttribute, "attribute %s is not defined on set %q", attr, t.set.name)
	}
	pa, ok := attr.(*PrimitiveAttribute)
	if !ok {
		return nil, newError(ErrUnsupportedOperation, "cannot bind a signal to synthetic attribute %s", attr)
	}

	s := &FieldSignal{tuple: t, attr: pa}
	s.Lifecycle = retain.New(retain.Hooks{
		Children: func() []retain.Retainable { return []retain.Retainable{s.tuple} },
		AfterFirstRetain: func() error {
			s.sub = s.tuple.OnUpdate(func(ev UpdateEvent) error {
				if ev.Attribute != Attribute(s.attr) {
					return nil
				}
				return s.changes.Fire(SignalChange{Old: ev.Old, New: ev.New})
			})
			return nil
		},
		AfterLastRelease: func() error {
			s.sub.Unsubscribe()
			s.sub = nil
			return nil
		},
	})
	s.changes.SetMaxDepth(t.set.environment().maxDepth)
	return s, nil
}

// Tuple returns the bound tuple.
func (s *FieldSignal) Tuple() *PrimitiveTuple { return s.tuple }

// Attribute returns the bound attribute.
func (s *FieldSignal) Attribute() *PrimitiveAttribute { return s.attr }

// Value reads the current field value.
func (s *FieldSignal) Value() any {
	v, _ := s.tuple.Get(s.attr)
	return v
}

// Derive creates a derived signal.
func (s *FieldSignal) Derive(transform Transform) *DerivedSignal { return NewDerivedSignal(s, transform) }

// String returns a string representation of the signal.
func (s *FieldSignal) String() string {
	return fmt.Sprintf("signal(%s#%s)", s.attr, s.tuple.ID())
}

// DerivedSignal applies a pure transform to a source signal. While retained, the value is memoized
// and recomputed whenever the source changes.
type DerivedSignal struct {
	signalBase
	source    Signal
	transform Transform
	value     any
	valid     bool
}

var _ Signal = &DerivedSignal{}

// NewDerivedSignal creates a derived signal.
func NewDerivedSignal(source Signal, transform Transform) *DerivedSignal {
	d := &DerivedSignal{source: source, transform: transform}
	d.Lifecycle = retain.New(retain.Hooks{
		Children: func() []retain.Retainable { return []retain.Retainable{d.source} },
		AfterFirstRetain: func() error {
			d.sub = d.source.OnChange(func(ch SignalChange) error {
				old := d.value
				if !d.valid {
					old = d.transform(ch.Old)
				}
				d.value, d.valid = d.transform(ch.New), true
				return d.changes.Fire(SignalChange{Old: old, New: d.value})
			})
			return nil
		},
		AfterLastRelease: func() error {
			d.sub.Unsubscribe()
			d.sub = nil
			d.value, d.valid = nil, false
			return nil
		},
	})
	return d
}

// Source returns the source signal.
func (d *DerivedSignal) Source() Signal { return d.source }

// Value returns the transformed value of the source. The first read of a retained signal is
// memoized.
func (d *DerivedSignal) Value() any {
	if d.valid {
		return d.value
	}
	v := d.transform(d.source.Value())
	if d.IsRetained() {
		d.value, d.valid = v, true
	}
	return v
}

// Derive creates a derived signal chained on this one.
func (d *DerivedSignal) Derive(transform Transform) *DerivedSignal {
	return NewDerivedSignal(d, transform)
}

// String returns a string representation of the signal.
func (d *DerivedSignal) String() string { return "derived(" + d.source.String() + ")" }
