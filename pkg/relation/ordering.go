package relation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/l7mp/liverel/pkg/retain"
)

// OrderTerm is one sort key of an Ordering.
type OrderTerm struct {
	Attribute  Attribute
	Descending bool
}

// Asc sorts by an attribute in ascending order.
func Asc(attr Attribute) OrderTerm { return OrderTerm{Attribute: attr} }

// Desc sorts by an attribute in descending order.
func Desc(attr Attribute) OrderTerm { return OrderTerm{Attribute: attr, Descending: true} }

// String returns a string representation of the term.
func (o OrderTerm) String() string {
	if o.Descending {
		return o.Attribute.String() + " desc"
	}
	return o.Attribute.String()
}

// Ordering keeps the tuples of its operand sorted by a list of terms. Ties are broken by the tuple
// key, so the order is total.
type Ordering struct {
	base
	operand Relation
	terms   []OrderTerm
}

var _ Relation = &Ordering{}

// NewOrdering creates an ordering.
func NewOrdering(operand Relation, terms ...OrderTerm) *Ordering {
	o := &Ordering{operand: operand, terms: terms}
	o.cmp = o.compare
	o.init(o, KindOrdering, operand.environment(),
		func() []retain.Retainable { return []retain.Retainable{o.operand} },
		o.subscribeOperands)
	return o
}

func (o *Ordering) subscribeOperands() error {
	if err := o.subscribe(o.operand.OnInsert(o.onInsert)); err != nil {
		return err
	}
	if err := o.subscribe(o.operand.OnDelete(o.onDelete)); err != nil {
		return err
	}
	return o.subscribe(o.operand.OnTupleUpdate(o.onUpdate))
}

// Operand returns the sorted relation.
func (o *Ordering) Operand() Relation { return o.operand }

// Terms returns the sort keys.
func (o *Ordering) Terms() []OrderTerm { return o.terms }

func (o *Ordering) Operands() []Relation { return []Relation{o.operand} }
func (o *Ordering) ComposedSets() []*Set { return o.operand.ComposedSets() }
func (o *Ordering) IsCompound() bool     { return o.operand.IsCompound() }

// Merge merges into the operand.
func (o *Ordering) Merge(tuples []*PrimitiveTuple) error { return o.operand.Merge(tuples) }

// BaseSet returns the base set of the operand.
func (o *Ordering) BaseSet() (*Set, error) { return o.operand.BaseSet() }

// String returns a string representation of the relation.
func (o *Ordering) String() string {
	terms := make([]string, len(o.terms))
	for i, t := range o.terms {
		terms[i] = t.String()
	}
	return fmt.Sprintf("τ[%s](%s)", strings.Join(terms, ","), o.operand)
}

func (o *Ordering) compare(a, b Tuple) int {
	for _, term := range o.terms {
		va, _ := a.Get(term.Attribute)
		vb, _ := b.Get(term.Attribute)
		c := orderValues(va, vb)
		if term.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return strings.Compare(a.Key(), b.Key())
}

func (o *Ordering) initialRead() ([]Tuple, error) {
	tuples, err := o.operand.Tuples()
	if err != nil {
		return nil, err
	}
	slices.SortFunc(tuples, o.compare)
	return tuples, nil
}

func (o *Ordering) onInsert(t Tuple) error {
	if !o.IsRetained() {
		return nil
	}
	return o.insert(t, nil)
}

func (o *Ordering) onDelete(t Tuple) error {
	if !o.IsRetained() || !o.isMember(t) {
		return nil
	}
	return o.delete(t)
}

func (o *Ordering) onUpdate(ev UpdateEvent) error {
	if !o.IsRetained() || !o.isMember(ev.Tuple) {
		return nil
	}
	// synthetic sort keys may derive from the updated attribute
	if slices.ContainsFunc(o.terms, func(t OrderTerm) bool {
		return t.Attribute == ev.Attribute || t.Attribute.IsSynthetic()
	}) {
		o.members.reposition(o.member(ev.Tuple.Key()))
	}
	return o.update(ev)
}
