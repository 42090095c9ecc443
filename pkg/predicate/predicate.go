// Package predicate implements serialized predicates: JSON/YAML documents compiled into relation
// predicates.
//
// A comparison is an object with a single comparison operator key and a two-element operand list,
// e.g., {"EqualTo": ["@photos.user_id", "nathan"]}. A boolean predicate combines predicates:
// {"And": [<pred>, ...]}, {"Or": [...]} or {"Not": [<pred>]}. Operand strings starting with "@"
// refer to attributes ("@name" or "@set.name"), strings starting with "$" refer to named signals;
// every other value is a literal.
package predicate

import (
	encodingjson "encoding/json"
	"errors"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/json"

	"github.com/l7mp/liverel/pkg/relation"
)

var _ encodingjson.Marshaler = &Predicate{}
var _ encodingjson.Unmarshaler = &Predicate{}

const (
	attributePrefix = "@"
	signalPrefix    = "$"
)

// Resolver resolves attribute references. Every relation is a resolver.
type Resolver interface {
	Attribute(name string) (relation.Attribute, error)
}

// Comparison is a serialized comparison: a single operator mapped to two operands.
type Comparison map[string][]any

// BoolPredicate is a complex predicate composed of other predicates.
type BoolPredicate map[string][]Predicate

// Predicate is the top level representation of a predicate.
type Predicate struct {
	*Comparison    `json:",inline"`
	*BoolPredicate `json:",inline"`
}

// Parse decodes a predicate from JSON or YAML converted to JSON.
func Parse(data []byte) (*Predicate, error) {
	p := &Predicate{}
	if err := p.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return p, nil
}

// Compile converts a serialized predicate into a relation predicate. Attribute references are
// resolved on the resolver, signal references on the signals map.
func (p *Predicate) Compile(r Resolver, signals map[string]relation.Signal) (relation.Predicate, error) {
	if p.Comparison != nil {
		return p.Comparison.Compile(r, signals)
	}
	if p.BoolPredicate != nil {
		return p.BoolPredicate.Compile(r, signals)
	}
	return nil, errors.New("invalid predicate")
}

// String returns the JSON form of the predicate.
func (p Predicate) String() string {
	b, err := p.MarshalJSON()
	if err != nil {
		return "<invalid>"
	}
	return string(b)
}

// MarshalJSON encodes a predicate in JSON format.
func (p Predicate) MarshalJSON() ([]byte, error) {
	if p.Comparison != nil {
		return json.Marshal(p.Comparison)
	}
	if p.BoolPredicate != nil {
		return json.Marshal(p.BoolPredicate)
	}
	return nil, errors.New("invalid predicate")
}

// UnmarshalJSON decodes a predicate from JSON format. The operator key decides between a
// comparison and a boolean predicate.
func (p *Predicate) UnmarshalJSON(data []byte) error {
	var raw map[string]encodingjson.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return errors.New("expecting a single predicate op")
	}

	for k := range raw {
		if _, ok := relation.ParseComparisonOp(k); ok {
			var c Comparison
			if err := json.Unmarshal(data, &c); err != nil {
				return err
			}
			*p = Predicate{Comparison: &c}
			return nil
		}
	}

	var bp BoolPredicate
	if err := json.Unmarshal(data, &bp); err != nil {
		return err
	}
	*p = Predicate{BoolPredicate: &bp}
	return nil
}

// Compile implements Compile for comparisons.
func (c *Comparison) Compile(r Resolver, signals map[string]relation.Signal) (relation.Predicate, error) {
	if len(*c) != 1 {
		return nil, errors.New("expecting a single comparison op")
	}

	for k, v := range *c {
		op, ok := relation.ParseComparisonOp(k)
		if !ok {
			return nil, fmt.Errorf("unknown comparison type: %s", k)
		}
		if len(v) != 2 {
			return nil, fmt.Errorf("invalid arguments to %s predicate: expecting 2 operands, got %d", k, len(v))
		}

		operands := make([]any, 2)
		for i, arg := range v {
			o, err := compileOperand(arg, r, signals)
			if err != nil {
				return nil, err
			}
			operands[i] = o
		}
		return relation.NewComparison(op, operands[0], operands[1]), nil
	}

	return nil, errors.New("invalid comparison")
}

func compileOperand(arg any, r Resolver, signals map[string]relation.Signal) (any, error) {
	s, ok := arg.(string)
	if !ok {
		return arg, nil
	}

	switch {
	case strings.HasPrefix(s, attributePrefix):
		return r.Attribute(strings.TrimPrefix(s, attributePrefix))
	case strings.HasPrefix(s, signalPrefix):
		name := strings.TrimPrefix(s, signalPrefix)
		sig, ok := signals[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown signal %q", relation.ErrUnknownAttribute, name)
		}
		return sig, nil
	default:
		return s, nil
	}
}

// Compile implements Compile for bool predicates.
func (bp *BoolPredicate) Compile(r Resolver, signals map[string]relation.Signal) (relation.Predicate, error) {
	if len(*bp) != 1 {
		return nil, errors.New("expecting a single predicate op")
	}

	for k, v := range *bp {
		predicates := make([]relation.Predicate, len(v))
		for i, p := range v {
			c, err := p.Compile(r, signals)
			if err != nil {
				return nil, err
			}
			predicates[i] = c
		}

		switch k {
		case "And":
			return relation.AllOf(predicates...), nil
		case "Or":
			return relation.AnyOf(predicates...), nil
		case "Not":
			if len(predicates) != 1 {
				return nil, errors.New("invalid arguments to Not predicate")
			}
			return relation.Negate(predicates[0]), nil
		default:
			return nil, fmt.Errorf("unknown bool predicate type: %s", k)
		}
	}

	return nil, errors.New("invalid bool predicate")
}

// FromRelation serializes a relation predicate. Signal operands cannot be serialized.
func FromRelation(p relation.Predicate) (*Predicate, error) {
	switch rp := p.(type) {
	case *relation.Comparison:
		operands := []any{}
		for _, o := range []any{rp.Left(), rp.Right()} {
			switch v := o.(type) {
			case relation.Attribute:
				operands = append(operands, attributePrefix+v.String())
			case relation.Signal:
				return nil, fmt.Errorf("%w: cannot serialize signal %s", relation.ErrUnsupportedOperation, v)
			default:
				operands = append(operands, v)
			}
		}
		return &Predicate{Comparison: &Comparison{string(rp.Op()): operands}}, nil

	case *relation.Junction:
		children := []Predicate{}
		for _, ch := range rp.Children() {
			c, err := FromRelation(ch)
			if err != nil {
				return nil, err
			}
			children = append(children, *c)
		}
		return &Predicate{BoolPredicate: &BoolPredicate{string(rp.Op()): children}}, nil

	case *relation.Negation:
		c, err := FromRelation(rp.Operand())
		if err != nil {
			return nil, err
		}
		return &Predicate{BoolPredicate: &BoolPredicate{"Not": {*c}}}, nil

	default:
		return nil, fmt.Errorf("%w: unknown predicate %s", relation.ErrUnsupportedOperation, p)
	}
}
