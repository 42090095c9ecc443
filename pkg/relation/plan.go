package relation

// Plan is the compiled form of a relation handed to external query compilers: the operand tree
// with the predicate, projection and ordering of each node. Signals embedded in predicates are
// kept as signals; compilers read their current value.
type Plan struct {
	Kind       Kind
	Set        *Set
	Predicate  Predicate
	Attributes []Attribute
	Order      []OrderTerm
	Singleton  bool
	Operands   []*Plan
}

// Compile converts a relation tree into a Plan.
func Compile(r Relation) (*Plan, error) {
	p := &Plan{Kind: r.Kind(), Singleton: r.IsSingleton()}

	switch rel := r.(type) {
	case *Set:
		p.Set = rel
		p.Attributes = rel.Attributes()
		return p, nil
	case *Selection:
		p.Predicate = rel.predicate
	case *InnerJoin:
		p.Predicate = rel.predicate
	case *Projection:
		p.Set = rel.set
		p.Attributes = rel.set.Attributes()
	case *Ordering:
		p.Order = rel.terms
	default:
		return nil, newError(ErrUnsupportedOperation, "cannot compile relation %s", r)
	}

	for _, op := range r.Operands() {
		child, err := Compile(op)
		if err != nil {
			return nil, err
		}
		p.Operands = append(p.Operands, child)
	}
	return p, nil
}

// Sets returns the base sets referenced by the plan, left to right.
func (p *Plan) Sets() []*Set {
	if p.Kind == KindSet {
		return []*Set{p.Set}
	}
	ret := []*Set{}
	for _, op := range p.Operands {
		ret = append(ret, op.Sets()...)
	}
	return distinctSets(ret)
}
