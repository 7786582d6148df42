// Package querymem compiles queries into predicates over in-memory storage
// records.
package querymem

import (
	"fmt"
	"reflect"
	"time"

	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
)

// Predicate reports whether a storage record matches.
type Predicate func(rec map[string]any) bool

// Compile converts q into a Predicate, resolving names and literals through
// schema.
func Compile(q query.Query, schema query.Schema) (Predicate, error) {
	if q == nil {
		return nil, fmt.Errorf("cannot compile nil query")
	}

	switch n := q.(type) {
	case query.NoCriteria:
		return func(map[string]any) bool { return true }, nil
	case query.And:
		left, right, err := compilePair(n.Left, n.Right, schema)
		if err != nil {
			return nil, err
		}
		return func(rec map[string]any) bool { return left(rec) && right(rec) }, nil
	case query.Or:
		left, right, err := compilePair(n.Left, n.Right, schema)
		if err != nil {
			return nil, err
		}
		return func(rec map[string]any) bool { return left(rec) || right(rec) }, nil
	case query.Eq:
		return compileComparison(n.Field, n.Operand, schema, false)
	case query.Neq:
		return compileComparison(n.Field, n.Operand, schema, true)
	default:
		return nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func compilePair(l, r query.Query, schema query.Schema) (Predicate, Predicate, error) {
	left, err := Compile(l, schema)
	if err != nil {
		return nil, nil, err
	}
	right, err := Compile(r, schema)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func compileComparison(f query.Field, op query.Operand, schema query.Schema, negate bool) (Predicate, error) {
	name, err := schema.StorageName(f)
	if err != nil {
		return nil, err
	}

	var match Predicate
	switch o := op.(type) {
	case query.Literal:
		want, err := query.StorageLiteral(schema, f, o.Value)
		if err != nil {
			return nil, err
		}
		match = func(rec map[string]any) bool { return Equal(rec[name], want) }
	case query.FieldRef:
		other, err := schema.StorageName(o.Field)
		if err != nil {
			return nil, err
		}
		match = func(rec map[string]any) bool { return Equal(rec[name], rec[other]) }
	default:
		return nil, fmt.Errorf("unsupported operand type: %T", op)
	}

	if negate {
		return func(rec map[string]any) bool { return !match(rec) }, nil
	}
	return match, nil
}

// Equal compares two storage values. Times compare by instant and numbers
// by value regardless of their Go type.
func Equal(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two storage values of the same kind. Missing values sort
// first. Values of different kinds compare by their type name so the order
// stays total.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return cmp(fa < fb, fa > fb)
		}
	}
	switch va := a.(type) {
	case string:
		if vb, ok := b.(string); ok {
			return cmp(va < vb, va > vb)
		}
	case bool:
		if vb, ok := b.(bool); ok {
			return cmp(!va && vb, va && !vb)
		}
	case time.Time:
		if vb, ok := b.(time.Time); ok {
			return va.Compare(vb)
		}
	}
	ta, tb := fmt.Sprintf("%T", a), fmt.Sprintf("%T", b)
	return cmp(ta < tb, ta > tb)
}

func cmp(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
