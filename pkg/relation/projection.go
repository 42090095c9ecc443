package relation

import (
	"fmt"

	"github.com/l7mp/liverel/pkg/retain"
	"github.com/l7mp/liverel/pkg/zset"
)

// Projection projects a relation onto one of its composed sets: the result is the distinct
// primitive tuples of that set occurring in the operand.
type Projection struct {
	base
	operand Relation
	set     *Set
	counts  *zset.ZSet[*PrimitiveTuple]
}

var _ Relation = &Projection{}

// NewProjection creates a projection. The set must be one of the composed sets of the operand.
func NewProjection(operand Relation, set *Set) (*Projection, error) {
	if set == nil || !operand.HasAttribute(set.idAttr) {
		return nil, newError(ErrUnknownAttribute, "cannot project %s onto a set it is not composed of", operand)
	}
	p := &Projection{operand: operand, set: set}
	p.init(p, KindProjection, operand.environment(),
		func() []retain.Retainable { return distinctRetainables(p.operand, p.set) },
		p.subscribeOperands)
	return p, nil
}

func (p *Projection) subscribeOperands() error {
	operandTuples, err := p.operand.Tuples()
	if err != nil {
		return err
	}
	p.counts = zset.New[*PrimitiveTuple]()
	for _, t := range operandTuples {
		pt, err := t.TupleFor(p.set)
		if err != nil {
			return err
		}
		p.counts.Insert(pt, 1)
	}

	if err := p.subscribe(p.operand.OnInsert(p.onInsert)); err != nil {
		return err
	}
	if err := p.subscribe(p.operand.OnDelete(p.onDelete)); err != nil {
		return err
	}
	// updates come from the set itself so that a tuple paired several times is reported once
	return p.subscribe(p.set.OnTupleUpdate(p.onUpdate))
}

// Operand returns the projected relation.
func (p *Projection) Operand() Relation { return p.operand }

// Target returns the set projected onto.
func (p *Projection) Target() *Set { return p.set }

func (p *Projection) Operands() []Relation { return []Relation{p.operand} }
func (p *Projection) ComposedSets() []*Set { return []*Set{p.set} }
func (p *Projection) IsCompound() bool     { return false }

// Merge merges into the target set.
func (p *Projection) Merge(tuples []*PrimitiveTuple) error { return p.set.Merge(tuples) }

// BaseSet returns the target set.
func (p *Projection) BaseSet() (*Set, error) { return p.set, nil }

// String returns a string representation of the relation.
func (p *Projection) String() string { return fmt.Sprintf("π[%s](%s)", p.set.name, p.operand) }

func (p *Projection) initialRead() ([]Tuple, error) {
	tuples, err := p.operand.Tuples()
	if err != nil {
		return nil, err
	}
	seen := zset.New[*PrimitiveTuple]()
	for _, t := range tuples {
		pt, err := t.TupleFor(p.set)
		if err != nil {
			return nil, err
		}
		seen.Insert(pt, 1)
	}

	ret := []Tuple{}
	for _, pt := range seen.Positive() {
		ret = append(ret, pt)
	}
	return ret, nil
}

func (p *Projection) onInsert(t Tuple) error {
	if !p.IsRetained() {
		return nil
	}
	pt, err := t.TupleFor(p.set)
	if err != nil {
		return err
	}
	if before, _ := p.counts.Insert(pt, 1); before > 0 {
		return nil
	}
	return p.insert(pt, nil)
}

func (p *Projection) onDelete(t Tuple) error {
	if !p.IsRetained() {
		return nil
	}
	pt, err := t.TupleFor(p.set)
	if err != nil {
		return err
	}
	if _, after := p.counts.Insert(pt, -1); after > 0 {
		return nil
	}
	return p.delete(pt)
}

func (p *Projection) onUpdate(ev UpdateEvent) error {
	if !p.IsRetained() || !p.isMember(ev.Tuple) {
		return nil
	}
	return p.update(ev)
}
