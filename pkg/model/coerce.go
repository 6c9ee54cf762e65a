package model

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// ProtocolType is the wire type tag of an entity value.
type ProtocolType string

const (
	ProtocolBoolean ProtocolType = "Boolean"
	ProtocolInteger ProtocolType = "Integer"
	ProtocolFloat   ProtocolType = "Float"
	ProtocolString  ProtocolType = "String"
	ProtocolObject  ProtocolType = "Object"
)

// coerceFunc converts a value into the representation of a protocol type.
type coerceFunc func(v any) (any, error)

var coercions = map[ProtocolType]coerceFunc{
	ProtocolBoolean: coerceBool,
	ProtocolInteger: coerceInt,
	ProtocolFloat:   coerceFloat,
	ProtocolString:  coerceString,
	ProtocolObject:  normalize,
}

// coercionFor looks up the coercion of a protocol type. An empty type
// passes values through.
func coercionFor(pt ProtocolType) (coerceFunc, error) {
	if pt == "" {
		return normalize, nil
	}
	fn, ok := coercions[pt]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocolType, pt)
	}
	return fn, nil
}

func coerceBool(v any) (any, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	default:
		if f, ok := toFloat(v); ok {
			return f != 0, nil
		}
	}
	return nil, fmt.Errorf("%w: %v is not a Boolean", ErrInvalidValue, v)
}

func coerceInt(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if n {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an Integer", ErrInvalidValue, n)
		}
		return i, nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	if i, ok := ToInt64(v); ok {
		return i, nil
	}
	if f, ok := toFloat(v); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int64(f), nil
	}
	return nil, fmt.Errorf("%w: %v is not an Integer", ErrInvalidValue, v)
}

func coerceFloat(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if n {
			return float64(1), nil
		}
		return float64(0), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a Float", ErrInvalidValue, n)
		}
		return f, nil
	}
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %v is not a Float", ErrInvalidValue, v)
}

func coerceString(v any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case map[string]any, []any:
		return nil, fmt.Errorf("%w: %T is not a String", ErrInvalidValue, v)
	default:
		return fmt.Sprint(v), nil
	}
}

// normalize converts decoded JSON numbers so that equal values compare
// equal regardless of how they were decoded.
func normalize(v any) (any, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, n)
		}
		return f, nil
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n), nil
		}
		return n, nil
	case int:
		return int64(n), nil
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, item := range n {
			nv, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			nv, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}

// ToInt64 converts an integral number of any Go or JSON representation to
// int64. Non-integral floats and non-numbers are rejected.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt(f)
		}
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := ToInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// valuesEqual compares two coerced values.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(b).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
