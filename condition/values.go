package condition

import (
	"cmp"
	"encoding/json"
	"reflect"
	"time"
)

// ToFloat converts any numeric kind (and json.Number) to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case nil:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// IsNumeric reports whether v is a number.
func IsNumeric(v any) bool {
	_, ok := ToFloat(v)
	return ok
}

// IsTemporal reports whether v is a time.Time or *time.Time.
func IsTemporal(v any) bool {
	_, ok := toTime(v)
	return ok
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	}
	return time.Time{}, false
}

// Values flattens the right-hand side of an `in` leaf. ok is false when v is
// not a slice or array.
func Values(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	// []byte is a scalar blob, not a list.
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Equal is the exact equality used by eq/ne/in: integers compare exactly,
// other numbers by float value across kinds, times with time.Equal and
// lists element by element. Everything else uses DeepEqual.
func Equal(a, b any) bool {
	if ai, ok := toInteger(a); ok {
		if bi, ok := toInteger(b); ok {
			return ai == bi
		}
	}
	if af, ok := ToFloat(a); ok {
		bf, ok := ToFloat(b)
		return ok && af == bf
	}
	if at, ok := toTime(a); ok {
		bt, ok := toTime(b)
		return ok && at.Equal(bt)
	}
	if as, ok := Values(a); ok {
		bs, ok := Values(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !Equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders a and b. ok is false when they are not both numeric or both
// temporal.
func Compare(a, b any) (int, bool) {
	if ai, ok := toInteger(a); ok {
		if bi, ok := toInteger(b); ok {
			return ai.compare(bi), true
		}
	}
	if af, ok := ToFloat(a); ok {
		bf, ok := ToFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	if at, ok := toTime(a); ok {
		bt, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	}
	return 0, false
}

// integer holds any signed or unsigned integer as sign and magnitude.
type integer struct {
	neg bool
	abs uint64
}

func toInteger(v any) (integer, bool) {
	if n, ok := v.(json.Number); ok {
		i, err := n.Int64()
		if err != nil {
			return integer{}, false
		}
		return fromInt64(i), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fromInt64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return integer{abs: rv.Uint()}, true
	}
	return integer{}, false
}

func fromInt64(i int64) integer {
	if i < 0 {
		return integer{neg: true, abs: uint64(-(i + 1)) + 1}
	}
	return integer{abs: uint64(i)}
}

func (a integer) compare(b integer) int {
	switch {
	case a.neg && !b.neg:
		return -1
	case !a.neg && b.neg:
		return 1
	}
	c := cmp.Compare(a.abs, b.abs)
	if a.neg {
		return -c
	}
	return c
}
