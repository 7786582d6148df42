// Package querymongo compiles queries into MongoDB filter documents.
package querymongo

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
)

// Compile converts q into a filter document.
//
// Translation:
//   - NoCriteria -> {}
//   - Eq with a literal -> {name: value}
//   - Neq with a literal -> {name: {$ne: value}}
//   - comparisons between fields -> {$expr: {$eq|$ne: ["$a", "$b"]}}
//   - And / Or -> {$and|$or: [left, right]}
//
// Nested And and Or nodes are flattened into a single operator array.
func Compile(q query.Query, schema query.Schema) (bson.D, error) {
	if q == nil {
		return nil, fmt.Errorf("cannot compile nil query")
	}

	switch n := q.(type) {
	case query.NoCriteria:
		return bson.D{}, nil
	case query.And:
		return compileLogical("$and", n, schema)
	case query.Or:
		return compileLogical("$or", n, schema)
	case query.Eq:
		return compileComparison(n.Field, n.Operand, schema, false)
	case query.Neq:
		return compileComparison(n.Field, n.Operand, schema, true)
	default:
		return nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func compileLogical(op string, q query.Query, schema query.Schema) (bson.D, error) {
	var clauses bson.A
	for _, operand := range flatten(q) {
		clause, err := Compile(operand, schema)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	return bson.D{{Key: op, Value: clauses}}, nil
}

// flatten collects the operands of a chain of nodes of the same kind as q.
func flatten(q query.Query) []query.Query {
	switch n := q.(type) {
	case query.And:
		return append(sameKind(n.Left, n), sameKind(n.Right, n)...)
	case query.Or:
		return append(sameKind(n.Left, n), sameKind(n.Right, n)...)
	}
	return []query.Query{q}
}

func sameKind(child, parent query.Query) []query.Query {
	switch parent.(type) {
	case query.And:
		if _, ok := child.(query.And); ok {
			return flatten(child)
		}
	case query.Or:
		if _, ok := child.(query.Or); ok {
			return flatten(child)
		}
	}
	return []query.Query{child}
}

func compileComparison(f query.Field, op query.Operand, schema query.Schema, negate bool) (bson.D, error) {
	name, err := schema.StorageName(f)
	if err != nil {
		return nil, err
	}

	switch o := op.(type) {
	case query.Literal:
		v, err := query.StorageLiteral(schema, f, o.Value)
		if err != nil {
			return nil, err
		}
		if negate {
			return bson.D{{Key: name, Value: bson.D{{Key: "$ne", Value: v}}}}, nil
		}
		return bson.D{{Key: name, Value: v}}, nil
	case query.FieldRef:
		other, err := schema.StorageName(o.Field)
		if err != nil {
			return nil, err
		}
		cmp := "$eq"
		if negate {
			cmp = "$ne"
		}
		return bson.D{{Key: "$expr", Value: bson.D{{Key: cmp, Value: bson.A{"$" + name, "$" + other}}}}}, nil
	default:
		return nil, fmt.Errorf("unsupported operand type: %T", op)
	}
}

// Sort converts a sort into a MongoDB sort document. Identity breaks ties so
// paging is stable; without a sort, documents come back in identity order.
func Sort(s *query.Sort, schema query.Schema, identity string) (bson.D, error) {
	if s == nil {
		return bson.D{{Key: identity, Value: 1}}, nil
	}
	name, err := schema.StorageName(s.Field)
	if err != nil {
		return nil, err
	}
	dir := 1
	if s.Direction == query.Descending {
		dir = -1
	}
	if name == identity {
		return bson.D{{Key: identity, Value: dir}}, nil
	}
	return bson.D{{Key: name, Value: dir}, {Key: identity, Value: 1}}, nil
}
