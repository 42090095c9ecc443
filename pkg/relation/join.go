package relation

import (
	"fmt"

	"github.com/l7mp/liverel/pkg/retain"
	"github.com/l7mp/liverel/pkg/zset"
)

// PartialJoin is a join whose predicate is not yet given.
type PartialJoin struct {
	left, right Relation
}

// On completes the join.
func (p *PartialJoin) On(predicate Predicate) *InnerJoin {
	return NewInnerJoin(p.left, p.right, predicate)
}

// Attribute resolves an attribute on the sets of both sides, so that the join predicate can be
// built before the join exists.
func (p *PartialJoin) Attribute(name string) (Attribute, error) {
	return resolveAttribute(distinctSets(append(p.left.ComposedSets(), p.right.ComposedSets()...)), name)
}

// InnerJoin pairs the tuples of two operands that satisfy a predicate. The result consists of
// compound tuples.
type InnerJoin struct {
	base
	left, right Relation
	predicate   Predicate
}

var _ Relation = &InnerJoin{}

// NewInnerJoin creates a join. The join inherits the logger and metrics of the left operand.
func NewInnerJoin(left, right Relation, predicate Predicate) *InnerJoin {
	j := &InnerJoin{left: left, right: right, predicate: predicate}
	j.init(j, KindInnerJoin, left.environment(),
		func() []retain.Retainable { return distinctRetainables(j.left, j.right, j.predicate) },
		j.subscribeOperands)
	return j
}

func (j *InnerJoin) subscribeOperands() error {
	if err := j.subscribe(j.left.OnInsert(func(t Tuple) error { return j.onInsert(t, true) })); err != nil {
		return err
	}
	if err := j.subscribe(j.right.OnInsert(func(t Tuple) error { return j.onInsert(t, false) })); err != nil {
		return err
	}
	if err := j.subscribe(j.left.OnDelete(func(t Tuple) error { return j.onDelete(t, true) })); err != nil {
		return err
	}
	if err := j.subscribe(j.right.OnDelete(func(t Tuple) error { return j.onDelete(t, false) })); err != nil {
		return err
	}
	if err := j.subscribe(j.left.OnTupleUpdate(func(ev UpdateEvent) error { return j.onUpdate(ev, true) })); err != nil {
		return err
	}
	if err := j.subscribe(j.right.OnTupleUpdate(func(ev UpdateEvent) error { return j.onUpdate(ev, false) })); err != nil {
		return err
	}
	return j.subscribe(j.predicate.OnUpdate(j.onPredicateChange), nil)
}

// Left returns the left operand.
func (j *InnerJoin) Left() Relation { return j.left }

// Right returns the right operand.
func (j *InnerJoin) Right() Relation { return j.right }

// Predicate returns the join condition.
func (j *InnerJoin) Predicate() Predicate { return j.predicate }

func (j *InnerJoin) Operands() []Relation { return []Relation{j.left, j.right} }
func (j *InnerJoin) IsCompound() bool     { return true }

// ComposedSets returns the composed sets of the left operand followed by those of the right one.
func (j *InnerJoin) ComposedSets() []*Set {
	return append(j.left.ComposedSets(), j.right.ComposedSets()...)
}

// Merge is not supported: a join is not identity-addressable.
func (j *InnerJoin) Merge([]*PrimitiveTuple) error {
	return newError(ErrUnsupportedOperation, "cannot merge into join %s", j)
}

// BaseSet is not supported: a join does not own its tuples.
func (j *InnerJoin) BaseSet() (*Set, error) {
	return nil, newError(ErrUnsupportedOperation, "join %s has no base set", j)
}

// String returns a string representation of the relation.
func (j *InnerJoin) String() string {
	return fmt.Sprintf("(%s ⋈[%s] %s)", j.left, j.predicate, j.right)
}

func (j *InnerJoin) initialRead() ([]Tuple, error) {
	lefts, err := j.left.Tuples()
	if err != nil {
		return nil, err
	}
	rights, err := j.right.Tuples()
	if err != nil {
		return nil, err
	}

	ret := []Tuple{}
	for _, l := range lefts {
		for _, r := range rights {
			pair := NewCompoundTuple(l, r)
			ok, err := j.predicate.Eval(pair)
			if err != nil {
				return nil, err
			}
			if ok {
				ret = append(ret, pair)
			}
		}
	}
	return ret, nil
}

func pairOf(t, other Tuple, isLeft bool) (Tuple, Tuple) {
	if isLeft {
		return t, other
	}
	return other, t
}

// tryInsert adds the pair if it is not yet a member and it satisfies the predicate.
func (j *InnerJoin) tryInsert(l, r Tuple) error {
	if j.member(compoundKey(l, r)) != nil {
		return nil
	}
	pair := NewCompoundTuple(l, r)
	ok, err := j.predicate.Eval(pair)
	if err != nil || !ok {
		return err
	}
	return j.insert(pair, nil)
}

func (j *InnerJoin) onInsert(t Tuple, isLeft bool) error {
	if !j.IsRetained() {
		return nil
	}
	others, err := j.otherSide(isLeft).Tuples()
	if err != nil {
		return err
	}
	for _, o := range others {
		if err := j.tryInsert(pairOf(t, o, isLeft)); err != nil {
			return err
		}
	}
	return nil
}

func (j *InnerJoin) onDelete(t Tuple, isLeft bool) error {
	if !j.IsRetained() {
		return nil
	}
	for _, m := range j.members.list() {
		pair := m.(*CompoundTuple)
		side := pair.right
		if isLeft {
			side = pair.left
		}
		if side.Key() != t.Key() {
			continue
		}
		if err := j.delete(pair); err != nil {
			return err
		}
	}
	return nil
}

func (j *InnerJoin) onUpdate(ev UpdateEvent, isLeft bool) error {
	if !j.IsRetained() {
		return nil
	}
	others, err := j.otherSide(isLeft).Tuples()
	if err != nil {
		return err
	}

	selfJoin := j.left == j.right
	for _, o := range others {
		// in a self join the (t,t) pair is handled by the left pass
		if selfJoin && !isLeft && o.Key() == ev.Tuple.Key() {
			continue
		}
		l, r := pairOf(ev.Tuple, o, isLeft)
		existing := j.member(compoundKey(l, r))
		if existing == nil {
			if err := j.tryInsert(l, r); err != nil {
				return err
			}
			continue
		}

		ok, err := j.predicate.Eval(existing)
		if err != nil {
			return err
		}
		if ok {
			err = j.update(UpdateEvent{Tuple: existing, Attribute: ev.Attribute, Old: ev.Old, New: ev.New})
		} else {
			err = j.delete(existing)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// onPredicateChange recomputes the pairs and fires the difference, the same way a Selection does.
func (j *InnerJoin) onPredicateChange(PredicateChange) error {
	if !j.IsRetained() {
		return nil
	}
	next, err := j.initialRead()
	if err != nil {
		return err
	}

	delta := zset.FromElems(next...).Subtract(zset.FromElems(j.members.list()...))
	for _, t := range delta.Negative() {
		if err := j.delete(t); err != nil {
			return err
		}
	}
	for _, t := range delta.Positive() {
		if err := j.insert(t, nil); err != nil {
			return err
		}
	}
	return nil
}

func (j *InnerJoin) otherSide(isLeft bool) Relation {
	if isLeft {
		return j.right
	}
	return j.left
}
