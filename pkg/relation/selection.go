package relation

import (
	"fmt"

	"github.com/l7mp/liverel/pkg/retain"
	"github.com/l7mp/liverel/pkg/zset"
)

// Selection is the subset of the operand tuples that satisfy a predicate.
type Selection struct {
	base
	operand   Relation
	predicate Predicate
}

var _ Relation = &Selection{}

// NewSelection creates a selection. The selection inherits the logger and metrics of the operand.
func NewSelection(operand Relation, p Predicate) *Selection {
	s := &Selection{operand: operand, predicate: p}
	s.init(s, KindSelection, operand.environment(),
		func() []retain.Retainable { return []retain.Retainable{s.operand, s.predicate} },
		s.subscribeOperands)
	return s
}

func (s *Selection) subscribeOperands() error {
	if err := s.subscribe(s.operand.OnInsert(s.onInsert)); err != nil {
		return err
	}
	if err := s.subscribe(s.operand.OnDelete(s.onDelete)); err != nil {
		return err
	}
	if err := s.subscribe(s.operand.OnTupleUpdate(s.onUpdate)); err != nil {
		return err
	}
	return s.subscribe(s.predicate.OnUpdate(s.onPredicateChange), nil)
}

// Operand returns the filtered relation.
func (s *Selection) Operand() Relation { return s.operand }

// Predicate returns the filter.
func (s *Selection) Predicate() Predicate { return s.predicate }

func (s *Selection) Operands() []Relation { return []Relation{s.operand} }
func (s *Selection) ComposedSets() []*Set { return s.operand.ComposedSets() }
func (s *Selection) IsCompound() bool     { return s.operand.IsCompound() }

// Merge merges into the operand.
func (s *Selection) Merge(tuples []*PrimitiveTuple) error { return s.operand.Merge(tuples) }

// BaseSet returns the base set of the operand.
func (s *Selection) BaseSet() (*Set, error) { return s.operand.BaseSet() }

// String returns a string representation of the relation.
func (s *Selection) String() string { return fmt.Sprintf("σ[%s](%s)", s.predicate, s.operand) }

func (s *Selection) initialRead() ([]Tuple, error) {
	tuples, err := s.operand.Tuples()
	if err != nil {
		return nil, err
	}
	ret := []Tuple{}
	for _, t := range tuples {
		ok, err := s.predicate.Eval(t)
		if err != nil {
			return nil, err
		}
		if ok {
			ret = append(ret, t)
		}
	}
	return ret, nil
}

func (s *Selection) onInsert(t Tuple) error {
	if !s.IsRetained() {
		return nil
	}
	ok, err := s.predicate.Eval(t)
	if err != nil {
		return err
	}
	if !ok {
		s.log.V(8).Info("insert: predicate false", "relation", s.String(), "tuple", t.Key())
		return nil
	}
	return s.insert(t, nil)
}

func (s *Selection) onDelete(t Tuple) error {
	if !s.IsRetained() || !s.isMember(t) {
		return nil
	}
	return s.delete(t)
}

func (s *Selection) onUpdate(ev UpdateEvent) error {
	if !s.IsRetained() {
		return nil
	}
	ok, err := s.predicate.Eval(ev.Tuple)
	if err != nil {
		return err
	}

	switch member := s.isMember(ev.Tuple); {
	case ok && member:
		return s.update(ev)
	case ok:
		return s.insert(ev.Tuple, nil)
	case member:
		return s.delete(ev.Tuple)
	}
	return nil
}

// onPredicateChange recomputes the result and fires the difference: deletes in the order of the
// old result first, then inserts in the order of the new result.
func (s *Selection) onPredicateChange(PredicateChange) error {
	if !s.IsRetained() {
		return nil
	}
	current, err := s.Tuples()
	if err != nil {
		return err
	}
	next, err := s.initialRead()
	if err != nil {
		return err
	}

	delta := zset.FromElems(next...).Subtract(zset.FromElems(current...))
	s.log.V(4).Info("predicate changed", "relation", s.String(), "delta", delta.String())
	for _, t := range delta.Negative() {
		if err := s.delete(t); err != nil {
			return err
		}
	}
	for _, t := range delta.Positive() {
		if err := s.insert(t, nil); err != nil {
			return err
		}
	}
	return nil
}
