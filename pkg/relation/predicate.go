package relation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/l7mp/liverel/pkg/event"
	"github.com/l7mp/liverel/pkg/retain"
)

// Predicate is a boolean expression evaluated per tuple. A predicate that embeds signals changes
// its value over time: while retained, it fires OnUpdate whenever an embedded signal changes.
type Predicate interface {
	retain.Retainable
	fmt.Stringer
	// Eval evaluates the predicate on a tuple.
	Eval(t Tuple) (bool, error)
	// OnUpdate subscribes to value changes of the embedded signals.
	OnUpdate(callback event.Callback[PredicateChange]) *event.Subscription
	predicate()
}

// PredicateChange is fired when the value of a predicate may have changed for some tuples.
type PredicateChange struct {
	Predicate Predicate
}

type predicateBase struct {
	*retain.Lifecycle
	updates event.Node[PredicateChange]
	subs    []*event.Subscription
}

func (p *predicateBase) OnUpdate(callback event.Callback[PredicateChange]) *event.Subscription {
	return p.updates.Subscribe(callback)
}

func (p *predicateBase) unsubscribe() error {
	for _, s := range p.subs {
		s.Unsubscribe()
	}
	p.subs = nil
	return nil
}

func (p *predicateBase) predicate() {}

// ComparisonOp is a binary comparison operator.
type ComparisonOp string

const (
	OpEqualTo            ComparisonOp = "EqualTo"
	OpNotEqualTo         ComparisonOp = "NotEqualTo"
	OpGreaterThan        ComparisonOp = "GreaterThan"
	OpGreaterThanOrEqual ComparisonOp = "GreaterThanOrEqual"
	OpLessThan           ComparisonOp = "LessThan"
	OpLessThanOrEqual    ComparisonOp = "LessThanOrEqual"
)

var comparisonSymbols = map[ComparisonOp]string{
	OpEqualTo:            "==",
	OpNotEqualTo:         "!=",
	OpGreaterThan:        ">",
	OpGreaterThanOrEqual: ">=",
	OpLessThan:           "<",
	OpLessThanOrEqual:    "<=",
}

// ParseComparisonOp resolves a comparison operator by name.
func ParseComparisonOp(name string) (ComparisonOp, bool) {
	op := ComparisonOp(name)
	_, ok := comparisonSymbols[op]
	return op, ok
}

// Symbol returns the infix notation of the operator.
func (op ComparisonOp) Symbol() string { return comparisonSymbols[op] }

// Comparison compares two operands. An operand is an Attribute (resolved on the evaluated tuple),
// a Signal (resolved to its current value) or a literal.
type Comparison struct {
	predicateBase
	op          ComparisonOp
	left, right any
}

var _ Predicate = &Comparison{}

// NewComparison creates a comparison predicate.
func NewComparison(op ComparisonOp, left, right any) *Comparison {
	c := &Comparison{op: op, left: left, right: right}
	c.Lifecycle = retain.New(retain.Hooks{})
	c.SetHooks(retain.Hooks{
		Children: func() []retain.Retainable {
			ret := []retain.Retainable{}
			for _, s := range c.Signals() {
				ret = append(ret, s)
			}
			return ret
		},
		AfterFirstRetain: func() error {
			for _, s := range c.Signals() {
				c.subs = append(c.subs, s.OnChange(func(SignalChange) error {
					return c.updates.Fire(PredicateChange{Predicate: c})
				}))
			}
			return nil
		},
		AfterLastRelease: c.unsubscribe,
	})
	return c
}

func EqualTo(left, right any) *Comparison    { return NewComparison(OpEqualTo, left, right) }
func NotEqualTo(left, right any) *Comparison { return NewComparison(OpNotEqualTo, left, right) }
func GreaterThan(left, right any) *Comparison {
	return NewComparison(OpGreaterThan, left, right)
}
func GreaterThanOrEqual(left, right any) *Comparison {
	return NewComparison(OpGreaterThanOrEqual, left, right)
}
func LessThan(left, right any) *Comparison { return NewComparison(OpLessThan, left, right) }
func LessThanOrEqual(left, right any) *Comparison {
	return NewComparison(OpLessThanOrEqual, left, right)
}

// Op returns the comparison operator.
func (c *Comparison) Op() ComparisonOp { return c.op }

// Left returns the left operand.
func (c *Comparison) Left() any { return c.left }

// Right returns the right operand.
func (c *Comparison) Right() any { return c.right }

// Signals returns the distinct signal operands.
func (c *Comparison) Signals() []Signal {
	ret := []Signal{}
	for _, o := range []any{c.left, c.right} {
		if s, ok := o.(Signal); ok && !slices.Contains(ret, s) {
			ret = append(ret, s)
		}
	}
	return ret
}

// Eval resolves both operands and compares them.
func (c *Comparison) Eval(t Tuple) (bool, error) {
	l, err := resolveOperand(c.left, t)
	if err != nil {
		return false, err
	}
	r, err := resolveOperand(c.right, t)
	if err != nil {
		return false, err
	}

	switch c.op {
	case OpEqualTo:
		return valuesEqual(l, r), nil
	case OpNotEqualTo:
		return !valuesEqual(l, r), nil
	}

	if l == nil || r == nil {
		return false, nil
	}
	res, err := compareValues(l, r)
	if err != nil {
		return false, fmt.Errorf("predicate %s: %w", c, err)
	}

	switch c.op {
	case OpGreaterThan:
		return res > 0, nil
	case OpGreaterThanOrEqual:
		return res >= 0, nil
	case OpLessThan:
		return res < 0, nil
	case OpLessThanOrEqual:
		return res <= 0, nil
	default:
		return false, newError(ErrUnsupportedOperation, "unknown comparison operator %q", c.op)
	}
}

// String returns a string representation of the predicate.
func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", operandString(c.left), c.op.Symbol(), operandString(c.right))
}

func resolveOperand(operand any, t Tuple) (any, error) {
	switch o := operand.(type) {
	case Attribute:
		return t.Get(o)
	case Signal:
		return o.Value(), nil
	default:
		return o, nil
	}
}

func operandString(operand any) string {
	switch o := operand.(type) {
	case Attribute, Signal:
		return fmt.Sprintf("%s", o)
	case string:
		return fmt.Sprintf("%q", o)
	default:
		return fmt.Sprintf("%v", o)
	}
}

// JunctionOp is a boolean combinator.
type JunctionOp string

const (
	OpAnd JunctionOp = "And"
	OpOr  JunctionOp = "Or"
)

// Junction combines child predicates with a boolean combinator. Every child is evaluated.
type Junction struct {
	predicateBase
	op       JunctionOp
	children []Predicate
}

var _ Predicate = &Junction{}

func newJunction(op JunctionOp, children []Predicate) *Junction {
	j := &Junction{op: op, children: children}
	j.Lifecycle = retain.New(retain.Hooks{})
	j.SetHooks(retain.Hooks{
		Children: func() []retain.Retainable { return predicatesToRetainables(j.children) },
		AfterFirstRetain: func() error {
			for _, ch := range j.children {
				j.subs = append(j.subs, ch.OnUpdate(func(PredicateChange) error {
					return j.updates.Fire(PredicateChange{Predicate: j})
				}))
			}
			return nil
		},
		AfterLastRelease: j.unsubscribe,
	})
	return j
}

// AllOf is true if all child predicates are true.
func AllOf(children ...Predicate) *Junction { return newJunction(OpAnd, children) }

// AnyOf is true if at least one child predicate is true.
func AnyOf(children ...Predicate) *Junction { return newJunction(OpOr, children) }

// Op returns the combinator.
func (j *Junction) Op() JunctionOp { return j.op }

// Children returns the child predicates.
func (j *Junction) Children() []Predicate { return j.children }

// Eval evaluates all children, without short-circuiting.
func (j *Junction) Eval(t Tuple) (bool, error) {
	ret := j.op == OpAnd
	for _, ch := range j.children {
		v, err := ch.Eval(t)
		if err != nil {
			return false, err
		}
		if j.op == OpAnd {
			ret = ret && v
		} else {
			ret = ret || v
		}
	}
	return ret, nil
}

// String returns a string representation of the predicate.
func (j *Junction) String() string {
	parts := make([]string, len(j.children))
	for i, ch := range j.children {
		parts[i] = "(" + ch.String() + ")"
	}
	sep := " && "
	if j.op == OpOr {
		sep = " || "
	}
	return strings.Join(parts, sep)
}

// Negation inverts a predicate.
type Negation struct {
	predicateBase
	operand Predicate
}

var _ Predicate = &Negation{}

// Negate is true if the operand is false.
func Negate(operand Predicate) *Negation {
	n := &Negation{operand: operand}
	n.Lifecycle = retain.New(retain.Hooks{})
	n.SetHooks(retain.Hooks{
		Children: func() []retain.Retainable { return []retain.Retainable{n.operand} },
		AfterFirstRetain: func() error {
			n.subs = append(n.subs, n.operand.OnUpdate(func(PredicateChange) error {
				return n.updates.Fire(PredicateChange{Predicate: n})
			}))
			return nil
		},
		AfterLastRelease: n.unsubscribe,
	})
	return n
}

// Operand returns the negated predicate.
func (n *Negation) Operand() Predicate { return n.operand }

// Eval evaluates the operand and inverts the result.
func (n *Negation) Eval(t Tuple) (bool, error) {
	v, err := n.operand.Eval(t)
	if err != nil {
		return false, err
	}
	return !v, nil
}

// String returns a string representation of the predicate.
func (n *Negation) String() string { return "!(" + n.operand.String() + ")" }

// predicatesToRetainables returns the distinct predicates: a retainer holds each child once.
func predicatesToRetainables(ps []Predicate) []retain.Retainable {
	ret := make([]retain.Retainable, 0, len(ps))
	for _, p := range ps {
		if !slices.ContainsFunc(ret, func(r retain.Retainable) bool { return r == retain.Retainable(p) }) {
			ret = append(ret, p)
		}
	}
	return ret
}
