package query

// Query represents a node of the query algebra.
//
// This is a sealed interface - only types in this package implement it.
// Backend compilers type-switch over And, Or, Eq, Neq and NoCriteria.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Operand is the right-hand side of a comparison.
//
// Operand types:
//   - Literal: a value in the caller's vocabulary
//   - FieldRef: another field of the same entity class
type Operand interface {
	operandNode() // Marker method - seals interface to this package
}

// Field is the view of an entity descriptor the algebra needs.
type Field interface {
	// Name is the descriptor's attribute name.
	Name() string

	// Owner is the name of the entity class declaring the descriptor.
	Owner() string

	// Project applies the descriptor's value transform to a literal.
	Project(v any) (any, error)
}

// Schema resolves fields to their storage vocabulary. Mappers implement it.
type Schema interface {
	StorageName(f Field) (string, error)
	ToStorage(f Field, v any) (any, error)
}

// And matches entities matched by both sides.
type And struct {
	Left  Query
	Right Query
}

func (And) queryNode() {}

// Or matches entities matched by either side.
type Or struct {
	Left  Query
	Right Query
}

func (Or) queryNode() {}

// Eq matches entities whose Field equals Operand.
type Eq struct {
	Field   Field
	Operand Operand
}

func (Eq) queryNode() {}

// Neq matches entities whose Field differs from Operand.
type Neq struct {
	Field   Field
	Operand Operand
}

func (Neq) queryNode() {}

// NoCriteria matches every entity of Class. It is the identity of And.
type NoCriteria struct {
	Class string
}

func (NoCriteria) queryNode() {}

// Literal is a constant operand.
type Literal struct {
	Value any
}

func (Literal) operandNode() {}

// FieldRef compares against another field of the same entity.
type FieldRef struct {
	Field Field
}

func (FieldRef) operandNode() {}

// Direction orders a Sort.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Sort orders filter results by a single field. Ties are broken by
// identity, which is insertion order.
type Sort struct {
	Field     Field
	Direction Direction
}

// Equal builds Field == v.
func Equal(f Field, v any) Query {
	return Eq{Field: f, Operand: Literal{Value: v}}
}

// NotEqual builds Field != v.
func NotEqual(f Field, v any) Query {
	return Neq{Field: f, Operand: Literal{Value: v}}
}

// SameAs builds a == b for two fields of one class.
func SameAs(a, b Field) Query {
	return Eq{Field: a, Operand: FieldRef{Field: b}}
}

// AllOf folds queries with And. NoCriteria operands are absorbed, so
// AllOf(NoCriteria{c}, q) is q.
func AllOf(qs ...Query) Query {
	var out Query
	for _, q := range qs {
		if q == nil {
			continue
		}
		out = and(out, q)
	}
	return out
}

// AnyOf folds queries with Or.
func AnyOf(qs ...Query) Query {
	var out Query
	for _, q := range qs {
		if q == nil {
			continue
		}
		if out == nil {
			out = q
			continue
		}
		out = Or{Left: out, Right: q}
	}
	return out
}

func and(left, right Query) Query {
	if left == nil {
		return right
	}
	if nc, ok := left.(NoCriteria); ok && targets(right, nc.Class) {
		return right
	}
	if nc, ok := right.(NoCriteria); ok && targets(left, nc.Class) {
		return left
	}
	return And{Left: left, Right: right}
}

// targets reports whether q resolves to class. Mixed trees are kept intact
// so EntityClass can reject them.
func targets(q Query, class string) bool {
	c, err := EntityClass(q)
	return err == nil && c == class
}
