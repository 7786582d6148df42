// Package query defines the backend-neutral query algebra used to select
// entities.
//
// A query is a small sealed tree. Inner nodes (And, Or) combine sub-queries;
// leaf nodes (Eq, Neq) compare a field with a literal or with another field;
// NoCriteria matches every entity of a class. Queries are values: building
// one never touches storage, and the same tree compiles to every backend
// (see the querymem, querymongo and querysql packages).
//
// Every query targets exactly one entity class. The class is inferred from
// the fields in the tree (EntityClass), so a query that mixes classes or
// names none cannot be compiled.
//
// Literals are written in the caller's vocabulary and projected into the
// storage vocabulary at compile time: first through the field's value
// transform, then through the mapping's to-storage converter. A query on a
// transformed field such as a hashed password therefore matches when given
// the untransformed input.
package query
