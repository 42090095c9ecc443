package relation

import (
	"cmp"
	"reflect"
	"time"
)

// valuesEqual compares two attribute values. Numbers compare by value across integer and float
// representations.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, aInt, ok := toNumber(a); ok {
		if nb, bInt, ok := toNumber(b); ok {
			if aInt && bInt {
				return na.(int64) == nb.(int64)
			}
			return asFloat(na) == asFloat(nb)
		}
		return false
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two non-nil values of compatible types.
func compareValues(a, b any) (int, error) {
	if na, aInt, ok := toNumber(a); ok {
		if nb, bInt, ok := toNumber(b); ok {
			if aInt && bInt {
				return cmp.Compare(na.(int64), nb.(int64)), nil
			}
			return cmp.Compare(asFloat(na), asFloat(nb)), nil
		}
	}

	switch va := a.(type) {
	case string:
		if vb, ok := b.(string); ok {
			return cmp.Compare(va, vb), nil
		}
	case time.Time:
		if vb, ok := b.(time.Time); ok {
			return va.Compare(vb), nil
		}
	case bool:
		if vb, ok := b.(bool); ok {
			switch {
			case va == vb:
				return 0, nil
			case !va:
				return -1, nil
			default:
				return 1, nil
			}
		}
	}

	return 0, newError(ErrInvalidValue, "cannot compare %#v (%T) with %#v (%T)", a, a, b, b)
}

// orderValues is a total order used for sorting: nil sorts first, incomparable values are
// considered equal.
func orderValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, err := compareValues(a, b)
	if err != nil {
		return 0
	}
	return c
}

func asFloat(n any) float64 {
	if i, ok := n.(int64); ok {
		return float64(i)
	}
	return n.(float64)
}
