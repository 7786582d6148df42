// Package querysql compiles queries into parameterized SQLite SQL over
// collections of JSON documents.
//
// Each collection is a table with an "id" TEXT primary key and a "doc" TEXT
// column holding the JSON document. The identity attribute compiles to the
// id column; every other attribute compiles to json_extract on doc.
package querysql

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
)

// TimeLayout is how times are written into documents and parameters. The
// layout is fixed width so text order matches time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var attributeName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLCompiler compiles queries for one collection table.
//
// CRITICAL: All values are parameterized, never interpolated.
// CRITICAL: Every SELECT ends with the identity as tiebreaker so pages are
// stable.
type SQLCompiler struct {
	// Table is the collection table.
	Table string

	// Identity is the storage name compiled to the id column.
	Identity string
}

// NewSQLCompiler creates a compiler for table whose documents store their
// identity under identity.
func NewSQLCompiler(table, identity string) *SQLCompiler {
	return &SQLCompiler{Table: table, Identity: identity}
}

// Compile returns a SELECT of matching documents ordered by s (identity
// order when s is nil), with LIMIT and OFFSET placeholders appended to the
// returned parameters.
func (c *SQLCompiler) Compile(q query.Query, schema query.Schema, s *query.Sort, limit, offset int) (string, []any, error) {
	where, params, err := c.Where(q, schema)
	if err != nil {
		return "", nil, err
	}
	order, err := c.OrderBy(s, schema)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("SELECT doc FROM %s WHERE %s ORDER BY %s LIMIT ? OFFSET ?", c.Table, where, order)
	return sql, append(params, limit, offset), nil
}

// Count returns a COUNT(*) of matching documents.
func (c *SQLCompiler) Count(q query.Query, schema query.Schema) (string, []any, error) {
	where, params, err := c.Where(q, schema)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", c.Table, where), params, nil
}

// Where compiles q into a WHERE fragment.
//
// Comparisons use IS and IS NOT so a missing attribute behaves like null:
// it differs from every value and equals only null.
func (c *SQLCompiler) Where(q query.Query, schema query.Schema) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	switch n := q.(type) {
	case query.NoCriteria:
		return "1 = 1", nil, nil
	case query.And:
		return c.compileLogical("AND", n.Left, n.Right, schema)
	case query.Or:
		return c.compileLogical("OR", n.Left, n.Right, schema)
	case query.Eq:
		return c.compileComparison("IS", n.Field, n.Operand, schema)
	case query.Neq:
		return c.compileComparison("IS NOT", n.Field, n.Operand, schema)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileLogical(op string, l, r query.Query, schema query.Schema) (string, []any, error) {
	left, leftParams, err := c.Where(l, schema)
	if err != nil {
		return "", nil, err
	}
	right, rightParams, err := c.Where(r, schema)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("(%s %s %s)", left, op, right)
	return sql, append(leftParams, rightParams...), nil
}

func (c *SQLCompiler) compileComparison(op string, f query.Field, operand query.Operand, schema query.Schema) (string, []any, error) {
	column, err := c.column(f, schema)
	if err != nil {
		return "", nil, err
	}

	switch o := operand.(type) {
	case query.Literal:
		v, err := query.StorageLiteral(schema, f, o.Value)
		if err != nil {
			return "", nil, err
		}
		param, err := Param(v)
		if err != nil {
			return "", nil, fmt.Errorf("convert value: %w", err)
		}
		return fmt.Sprintf("%s %s ?", column, op), []any{param}, nil
	case query.FieldRef:
		other, err := c.column(o.Field, schema)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s %s %s", column, op, other), nil, nil
	default:
		return "", nil, fmt.Errorf("unsupported operand type: %T", operand)
	}
}

// OrderBy returns the ORDER BY clause, always ending with the identity.
// COLLATE BINARY keeps text ordering identical across SQLite builds.
func (c *SQLCompiler) OrderBy(s *query.Sort, schema query.Schema) (string, error) {
	if s == nil {
		return "id ASC COLLATE BINARY", nil
	}
	column, err := c.column(s.Field, schema)
	if err != nil {
		return "", err
	}
	dir := "ASC"
	if s.Direction == query.Descending {
		dir = "DESC"
	}
	if column == "id" {
		return "id " + dir + " COLLATE BINARY", nil
	}
	return fmt.Sprintf("%s %s, id ASC COLLATE BINARY", column, dir), nil
}

func (c *SQLCompiler) column(f query.Field, schema query.Schema) (string, error) {
	name, err := schema.StorageName(f)
	if err != nil {
		return "", err
	}
	if name == c.Identity {
		return "id", nil
	}
	return Extract(name)
}

// Extract returns the json_extract expression reading attribute name.
func Extract(name string) (string, error) {
	if !attributeName.MatchString(name) {
		return "", fmt.Errorf("invalid attribute name %q", name)
	}
	return fmt.Sprintf("json_extract(doc, '$.%s')", name), nil
}

// Param converts a storage value into the SQL parameter json_extract would
// compare it with: times become TimeLayout text and lists become compact
// JSON text.
func Param(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, float64, int, int64:
		return v, nil
	case time.Time:
		return t.UTC().Format(TimeLayout), nil
	case []string, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return nil, fmt.Errorf("unsupported parameter type: %T", v)
}

// Describe renders SQL and parameters on one line each, for logs and
// golden files.
func Describe(sql string, params []any) string {
	var b strings.Builder
	b.WriteString(sql)
	b.WriteString("\n")
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%#v", p)
	}
	b.WriteString("\n")
	return b.String()
}
