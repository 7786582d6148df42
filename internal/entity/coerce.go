package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Coerce converts a loosely typed value into T. It accepts the shapes values
// arrive in from JSON bodies and from storage decoders: float64 for every
// number, RFC 3339 strings for times, []any for lists, plain strings for
// string-kinded enums. A nil value yields T's zero value.
func Coerce[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}

	var out any
	var err error
	switch any(zero).(type) {
	case float64:
		out, err = toFloat(v)
	case int:
		var i int64
		i, err = toInt(v)
		out = int(i)
	case int64:
		out, err = toInt(v)
	case time.Time:
		out, err = toTime(v)
	case []string:
		out, err = toStrings(v)
	default:
		rv := reflect.ValueOf(&zero).Elem()
		if s, ok := v.(string); ok && rv.Kind() == reflect.String {
			rv.SetString(s)
			return zero, nil
		}
		return zero, fmt.Errorf("expected %T, got %T", zero, v)
	}
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	}
	return 0, fmt.Errorf("expected an integer, got %T", v)
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("expected an RFC 3339 time: %w", err)
		}
		return parsed.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("expected a time, got %T", v)
}

func toStrings(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of strings, got %T", v)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("item %d: expected a string, got %T", i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

// empty reports whether v counts as unset for required and immutable checks.
// Numbers and booleans are never empty.
func empty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case time.Time:
		return t.IsZero()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
