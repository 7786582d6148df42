package query

import (
	"fmt"

	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
)

// EntityClass returns the single entity class a query targets.
//
// Returns an AMBIGUOUS_QUERY error when fields of different classes appear
// in the tree, and an UNTARGETED_QUERY error when no class can be inferred.
func EntityClass(q Query) (string, error) {
	classes := map[string]struct{}{}
	var order []string
	add := func(name string) {
		if _, ok := classes[name]; !ok {
			classes[name] = struct{}{}
			order = append(order, name)
		}
	}
	if err := collectClasses(q, add); err != nil {
		return "", err
	}
	switch len(order) {
	case 0:
		return "", &fault.Error{Code: fault.CodeUntargetedQuery, Message: "query targets no entity class"}
	case 1:
		return order[0], nil
	default:
		return "", &fault.Error{
			Code:    fault.CodeAmbiguousQuery,
			Message: fmt.Sprintf("query mixes entity classes %v", order),
		}
	}
}

func collectClasses(q Query, add func(string)) error {
	switch n := q.(type) {
	case nil:
		return nil
	case And:
		if err := collectClasses(n.Left, add); err != nil {
			return err
		}
		return collectClasses(n.Right, add)
	case Or:
		if err := collectClasses(n.Left, add); err != nil {
			return err
		}
		return collectClasses(n.Right, add)
	case Eq:
		return collectLeaf(n.Field, n.Operand, add)
	case Neq:
		return collectLeaf(n.Field, n.Operand, add)
	case NoCriteria:
		if n.Class != "" {
			add(n.Class)
		}
		return nil
	default:
		return fmt.Errorf("unsupported query type: %T", q)
	}
}

func collectLeaf(f Field, op Operand, add func(string)) error {
	if f == nil {
		return fault.Argument("", "comparison without a field")
	}
	add(f.Owner())
	if ref, ok := op.(FieldRef); ok && ref.Field != nil {
		add(ref.Field.Owner())
	}
	return nil
}

// StorageLiteral projects a literal into the storage vocabulary: the field's
// value transform first, then the schema's to-storage converter.
func StorageLiteral(s Schema, f Field, v any) (any, error) {
	projected, err := f.Project(v)
	if err != nil {
		return nil, fmt.Errorf("project %s.%s: %w", f.Owner(), f.Name(), err)
	}
	stored, err := s.ToStorage(f, projected)
	if err != nil {
		return nil, fmt.Errorf("convert %s.%s: %w", f.Owner(), f.Name(), err)
	}
	return stored, nil
}
