package relation

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"k8s.io/apimachinery/pkg/util/json"
)

// Type is the type of a primitive attribute.
type Type string

const (
	TypeString   Type = "string"
	TypeInteger  Type = "integer"
	TypeFloat    Type = "float"
	TypeBoolean  Type = "boolean"
	TypeDatetime Type = "datetime"
	TypeObject   Type = "object"
)

// ParseType returns the attribute type with the given name.
func ParseType(name string) (Type, error) {
	switch t := Type(name); t {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeDatetime, TypeObject:
		return t, nil
	case "":
		return TypeString, nil
	default:
		return "", newError(ErrInvalidValue, "unknown attribute type %q", name)
	}
}

// Convert normalizes a value to the canonical Go representation of the type: string, int64,
// float64, bool, time.Time, or an arbitrary JSON-like value for objects. Nil is accepted by every
// type.
func (t Type) Convert(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		case fmt.Stringer:
			return s.String(), nil
		}

	case TypeInteger:
		if i, isInt, ok := toNumber(v); ok {
			if isInt {
				return i.(int64), nil
			}
			f := i.(float64)
			// -2^63 is exact as a float64, 2^63 is not representable as int64
			if f == math.Trunc(f) && f >= math.MinInt64 && f < -math.MinInt64 {
				return int64(f), nil
			}
		}

	case TypeFloat:
		if i, isInt, ok := toNumber(v); ok {
			if isInt {
				return float64(i.(int64)), nil
			}
			return i.(float64), nil
		}

	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			if b == 0 || b == 1 {
				return b == 1, nil
			}
		case int:
			if b == 0 || b == 1 {
				return b == 1, nil
			}
		}

	case TypeDatetime:
		switch d := v.(type) {
		case time.Time:
			return d, nil
		case string:
			ts, err := time.Parse(time.RFC3339Nano, d)
			if err != nil {
				return nil, newError(ErrInvalidValue, "cannot parse datetime %q: %s", d, err)
			}
			return ts, nil
		case int64:
			return time.Unix(d, 0).UTC(), nil
		}

	case TypeObject:
		if s, ok := v.(string); ok {
			var o any
			if err := json.Unmarshal([]byte(s), &o); err != nil {
				return nil, newError(ErrInvalidValue, "cannot parse object %q: %s", s, err)
			}
			return o, nil
		}
		return v, nil
	}

	return nil, newError(ErrInvalidValue, "cannot convert %#v of type %T to %s", v, v, t)
}

// toNumber returns an int64 (isInt=true) or a float64 (isInt=false) for any Go numeric value.
func toNumber(v any) (any, bool, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, false, false
		}
		return int64(u), true, true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), false, true
	default:
		return nil, false, false
	}
}
