// Package filter translates AIP-160 filter expressions into the query
// algebra.
//
// Supported: comparisons with = and != between a declared field and a
// constant or timestamp("..."), combined with AND and OR. Every other
// construct is rejected with an ARGUMENT error.
package filter

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
)

var timeType = reflect.TypeFor[time.Time]()

// Schema is the set of fields a filter may reference.
type Schema struct {
	class  *entity.Class
	fields map[string]entity.Descriptor
	decls  *filtering.Declarations
}

// NewSchema declares fields of class for filtering. Fields must belong to
// class and have a scalar type.
func NewSchema(class *entity.Class, fields ...entity.Descriptor) (*Schema, error) {
	opts := []filtering.DeclarationOption{filtering.DeclareStandardFunctions()}
	byName := make(map[string]entity.Descriptor, len(fields))
	for _, d := range fields {
		if d.Class() != class {
			return nil, fmt.Errorf("field %s.%s is not a %s field", d.Owner(), d.Name(), class.Name())
		}
		t, err := declType(d.Type())
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", d.Name(), err)
		}
		opts = append(opts, filtering.DeclareIdent(d.Name(), t))
		byName[d.Name()] = d
	}
	decls, err := filtering.NewDeclarations(opts...)
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}
	return &Schema{class: class, fields: byName, decls: decls}, nil
}

// MustSchema is NewSchema for package-level declarations.
func MustSchema(class *entity.Class, fields ...entity.Descriptor) *Schema {
	s, err := NewSchema(class, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func declType(t reflect.Type) (*expr.Type, error) {
	if t == timeType {
		return filtering.TypeTimestamp, nil
	}
	switch t.Kind() {
	case reflect.String:
		return filtering.TypeString, nil
	case reflect.Bool:
		return filtering.TypeBool, nil
	case reflect.Float32, reflect.Float64:
		return filtering.TypeFloat, nil
	case reflect.Int, reflect.Int32, reflect.Int64:
		return filtering.TypeInt, nil
	}
	return nil, fmt.Errorf("type %s cannot be filtered", t)
}

// Class returns the class the schema filters.
func (s *Schema) Class() *entity.Class { return s.class }

// Field returns a declared field by name.
func (s *Schema) Field(name string) (entity.Descriptor, bool) {
	d, ok := s.fields[name]
	return d, ok
}

// Parse translates a filter expression. An empty expression matches every
// entity of the class.
func (s *Schema) Parse(filterStr string) (query.Query, error) {
	if strings.TrimSpace(filterStr) == "" {
		return s.class.NoCriteria(), nil
	}
	f, err := filtering.ParseFilterString(filterStr, s.decls)
	if err != nil {
		return nil, fault.Argument("filter", err.Error())
	}
	if f.CheckedExpr == nil || f.CheckedExpr.Expr == nil {
		return s.class.NoCriteria(), nil
	}
	q, err := s.translateExpr(f.CheckedExpr.Expr)
	if err != nil {
		return nil, fault.Argument("filter", err.Error())
	}
	return q, nil
}

func (s *Schema) translateExpr(e *expr.Expr) (query.Query, error) {
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return s.translateCall(kind.CallExpr)
	default:
		return nil, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func (s *Schema) translateCall(call *expr.Expr_Call) (query.Query, error) {
	switch call.Function {
	case "AND", "_&&_":
		return s.translateLogical(call.Args, query.AllOf)
	case "OR", "_||_":
		return s.translateLogical(call.Args, query.AnyOf)
	case "=", "_==_":
		return s.translateComparison(call.Args, query.Equal)
	case "!=", "_!=_":
		return s.translateComparison(call.Args, query.NotEqual)
	default:
		return nil, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func (s *Schema) translateLogical(args []*expr.Expr, combine func(...query.Query) query.Query) (query.Query, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("logical operator requires 2 arguments")
	}
	operands := make([]query.Query, 0, len(args))
	for _, arg := range args {
		q, err := s.translateExpr(arg)
		if err != nil {
			return nil, err
		}
		operands = append(operands, q)
	}
	return combine(operands...), nil
}

func (s *Schema) translateComparison(args []*expr.Expr, build func(query.Field, any) query.Query) (query.Query, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("comparison requires 2 arguments")
	}
	name, err := extractFieldName(args[0])
	if err != nil {
		return nil, err
	}
	field, ok := s.fields[name]
	if !ok {
		return nil, fmt.Errorf("unknown field: %s", name)
	}
	value, err := extractValue(args[1])
	if err != nil {
		return nil, err
	}
	return build(field, value), nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		return extractConstValue(kind.ConstExpr)
	case *expr.Expr_CallExpr:
		if kind.CallExpr.Function == "timestamp" && len(kind.CallExpr.Args) == 1 {
			return extractTimestampValue(kind.CallExpr.Args[0])
		}
		return nil, fmt.Errorf("unsupported function in value position: %s", kind.CallExpr.Function)
	default:
		return nil, fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}

func extractConstValue(c *expr.Constant) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("nil constant")
	}
	switch kind := c.ConstantKind.(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_Int64Value:
		return kind.Int64Value, nil
	case *expr.Constant_DoubleValue:
		return kind.DoubleValue, nil
	case *expr.Constant_BoolValue:
		return kind.BoolValue, nil
	default:
		return nil, fmt.Errorf("unsupported constant type: %T", kind)
	}
}

func extractTimestampValue(e *expr.Expr) (time.Time, error) {
	kind, ok := e.ExprKind.(*expr.Expr_ConstExpr)
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp argument must be a constant string")
	}
	str, ok := kind.ConstExpr.ConstantKind.(*expr.Constant_StringValue)
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp argument must be a string")
	}
	t, err := time.Parse(time.RFC3339Nano, str.StringValue)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format: %s", str.StringValue)
	}
	return t.UTC(), nil
}
