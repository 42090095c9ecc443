package sqlite

import (
	"fmt"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/json"

	"github.com/l7mp/liverel/pkg/relation"
)

// Datetimes are stored as fixed-width UTC text so that they order lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type selectQuery struct {
	set   *relation.Set
	where []string
	order []string
	args  []any
	limit bool
}

// compile translates a plan into a single SELECT on the table of one set.
func compile(p *relation.Plan) (*selectQuery, error) {
	switch p.Kind {
	case relation.KindSet:
		return &selectQuery{set: p.Set}, nil

	case relation.KindSelection:
		q, err := compile(p.Operands[0])
		if err != nil {
			return nil, err
		}
		cond, args, err := q.condition(p.Predicate)
		if err != nil {
			return nil, err
		}
		q.where = append(q.where, cond)
		q.args = append(q.args, args...)
		q.limit = q.limit || p.Singleton
		return q, nil

	case relation.KindOrdering:
		q, err := compile(p.Operands[0])
		if err != nil {
			return nil, err
		}
		order := []string{}
		for _, term := range p.Order {
			col, err := q.column(term.Attribute)
			if err != nil {
				return nil, err
			}
			if term.Descending {
				col += " DESC"
			}
			order = append(order, col)
		}
		// Sort terms of an outer ordering take precedence.
		q.order = append(order, q.order...)
		q.limit = q.limit || p.Singleton
		return q, nil

	default:
		return nil, fmt.Errorf("%w: cannot fetch %s relations from sqlite", relation.ErrUnsupportedOperation, p.Kind)
	}
}

func (q *selectQuery) String() string {
	cols := []string{}
	for _, attr := range q.set.PrimitiveAttributes() {
		cols = append(cols, quote(attr.Name()))
	}
	ret := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), quote(q.set.Name()))
	if len(q.where) > 0 {
		ret += " WHERE " + strings.Join(q.where, " AND ")
	}
	// The id is the final tie-break, same as the in-memory ordering.
	ret += " ORDER BY " + strings.Join(append(q.order, quote(relation.IDAttribute)), ", ")
	if q.limit {
		ret += " LIMIT 1"
	}
	return ret
}

func (q *selectQuery) column(attr relation.Attribute) (string, error) {
	if attr.Set() != q.set {
		return "", fmt.Errorf("%w: attribute %s is not stored in table %s", relation.ErrUnknownAttribute,
			attr, q.set.Name())
	}
	if attr.IsSynthetic() {
		return "", fmt.Errorf("%w: synthetic attribute %s is not stored", relation.ErrUnsupportedOperation, attr)
	}
	return quote(attr.Name()), nil
}

func (q *selectQuery) condition(p relation.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case *relation.Comparison:
		return q.comparison(pred)

	case *relation.Junction:
		sep := " AND "
		if pred.Op() == relation.OpOr {
			sep = " OR "
		}
		conds, args := []string{}, []any{}
		for _, c := range pred.Children() {
			cond, a, err := q.condition(c)
			if err != nil {
				return "", nil, err
			}
			conds = append(conds, cond)
			args = append(args, a...)
		}
		if len(conds) == 0 {
			if pred.Op() == relation.OpOr {
				return "0", nil, nil
			}
			return "1", nil, nil
		}
		return "(" + strings.Join(conds, sep) + ")", args, nil

	case *relation.Negation:
		cond, args, err := q.condition(pred.Operand())
		if err != nil {
			return "", nil, err
		}
		return "NOT " + cond, args, nil

	default:
		return "", nil, fmt.Errorf("%w: cannot translate predicate %s", relation.ErrUnsupportedOperation, p)
	}
}

func (q *selectQuery) comparison(c *relation.Comparison) (string, []any, error) {
	left, largs, err := q.operand(c.Left())
	if err != nil {
		return "", nil, err
	}
	right, rargs, err := q.operand(c.Right())
	if err != nil {
		return "", nil, err
	}

	// Comparisons with nil follow the in-memory semantics: nil equals only nil and is never
	// ordered.
	switch c.Op() {
	case relation.OpEqualTo:
		return "(" + left + " IS " + right + ")", append(largs, rargs...), nil
	case relation.OpNotEqualTo:
		return "(" + left + " IS NOT " + right + ")", append(largs, rargs...), nil
	default:
		return "(" + left + " " + c.Op().Symbol() + " " + right + ")", append(largs, rargs...), nil
	}
}

// operand returns a column reference for attributes and a bound parameter for values. Signals
// are bound with their current value.
func (q *selectQuery) operand(o any) (string, []any, error) {
	switch v := o.(type) {
	case relation.Attribute:
		col, err := q.column(v)
		return col, nil, err
	case relation.Signal:
		return q.operand(v.Value())
	default:
		a, err := encode(v)
		if err != nil {
			return "", nil, err
		}
		return "?", []any{a}, nil
	}
}

// encode converts a field value into its stored form.
func encode(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, int64, float64:
		return x, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case time.Time:
		return x.UTC().Format(timeFormat), nil
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

func columnType(t relation.Type) string {
	switch t {
	case relation.TypeInteger, relation.TypeBoolean:
		return "INTEGER"
	case relation.TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func quote(name string) string { return `"` + strings.ReplaceAll(name, `"`, `""`) + `"` }
