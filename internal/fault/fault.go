// Package fault defines the error kinds shared by the entity model, the
// repositories, the session and the HTTP layer.
//
// Every failure that crosses a package boundary is either an *Error carrying
// a Code, or a *ValidationError aggregating per-field causes. Callers match
// kinds with the IsX helpers, which use errors.As and therefore see through
// wrapping and through validation aggregates.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes an Error.
type Code string

const (
	// CodeValidation indicates one or more fields failed validation.
	CodeValidation Code = "VALIDATION"

	// CodePermission indicates the writer may not mutate the field.
	CodePermission Code = "PERMISSION"

	// CodeImmutable indicates a write to an already populated immutable field.
	CodeImmutable Code = "IMMUTABLE"

	// CodeDuplicate indicates a uniqueness violation at commit.
	CodeDuplicate Code = "DUPLICATE_ENTITY"

	// CodeNotFound indicates a lookup matched nothing.
	CodeNotFound Code = "NOT_FOUND"

	// CodeArgument indicates a malformed argument (bad page size, wrong type,
	// unknown enum value, unknown field).
	CodeArgument Code = "ARGUMENT"

	// CodeAmbiguousQuery indicates a query mixing entity classes.
	CodeAmbiguousQuery Code = "AMBIGUOUS_QUERY"

	// CodeUntargetedQuery indicates a query with no entity class.
	CodeUntargetedQuery Code = "UNTARGETED_QUERY"

	// CodeBackend indicates a storage failure.
	CodeBackend Code = "BACKEND"

	// CodeUnauthenticated indicates missing or wrong credentials.
	CodeUnauthenticated Code = "UNAUTHENTICATED"
)

// Error is a coded failure.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Entity names the entity class involved, if any.
	Entity string

	// Field names the descriptor involved, if any.
	Field string

	// Location is the resource path of a conflicting entity (duplicates only).
	Location string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	switch {
	case e.Entity != "" && e.Field != "":
		fmt.Fprintf(&b, " (%s.%s)", e.Entity, e.Field)
	case e.Entity != "":
		fmt.Fprintf(&b, " (%s)", e.Entity)
	case e.Field != "":
		fmt.Fprintf(&b, " (%s)", e.Field)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FieldError pairs a field name with the reason it was rejected.
type FieldError struct {
	Field string
	Err   error
}

func (f FieldError) Error() string {
	return fmt.Sprintf("%s: %v", f.Field, f.Err)
}

func (f FieldError) Unwrap() error {
	return f.Err
}

// ValidationError aggregates field-level causes in descriptor declaration
// order.
type ValidationError struct {
	Entity string
	Fields []FieldError
}

func (v *ValidationError) Error() string {
	parts := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		parts[i] = f.Error()
	}
	if v.Entity != "" {
		return fmt.Sprintf("%s: %s invalid: %s", CodeValidation, v.Entity, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("%s: %s", CodeValidation, strings.Join(parts, "; "))
}

// Unwrap exposes every cause so errors.As finds permission or immutability
// failures captured inside the aggregate.
func (v *ValidationError) Unwrap() []error {
	errs := make([]error, len(v.Fields))
	for i, f := range v.Fields {
		errs[i] = f
	}
	return errs
}

// Pairs renders the causes as [field, message] pairs.
func (v *ValidationError) Pairs() [][2]string {
	out := make([][2]string, len(v.Fields))
	for i, f := range v.Fields {
		out[i] = [2]string{f.Field, Message(f.Err)}
	}
	return out
}

// Validation builds a ValidationError, or returns nil when fields is empty.
func Validation(entity string, fields []FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Entity: entity, Fields: fields}
}

// Invalid is a field-level rejection carried inside a ValidationError.
func Invalid(entity, field, message string) *Error {
	return &Error{Code: CodeValidation, Message: message, Entity: entity, Field: field}
}

// Permission reports a write rejected by a mutation predicate.
func Permission(entity, field string) *Error {
	return &Error{Code: CodePermission, Message: "permission denied", Entity: entity, Field: field}
}

// Immutable reports a write to a populated immutable field.
func Immutable(entity, field string) *Error {
	return &Error{Code: CodeImmutable, Message: "field is immutable", Entity: entity, Field: field}
}

// Duplicate reports a uniqueness violation.
func Duplicate(entity string, err error) *Error {
	return &Error{Code: CodeDuplicate, Message: "entity already exists", Entity: entity, Err: err}
}

// DuplicateAt reports a uniqueness violation whose conflicting resource is
// known.
func DuplicateAt(entity, location string) *Error {
	return &Error{Code: CodeDuplicate, Message: "entity already exists", Entity: entity, Location: location}
}

// NotFound reports a lookup that matched nothing.
func NotFound(entity string) *Error {
	return &Error{Code: CodeNotFound, Message: "not found", Entity: entity}
}

// Argument reports a malformed argument.
func Argument(field, message string) *Error {
	return &Error{Code: CodeArgument, Message: message, Field: field}
}

// Backend wraps a storage failure.
func Backend(op string, err error) *Error {
	return &Error{Code: CodeBackend, Message: op, Err: err}
}

// Unauthenticated reports missing or wrong credentials.
func Unauthenticated(message string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: message}
}

// CodeOf returns the code of the first coded error in err's tree. A
// ValidationError yields CodeValidation unless one of its causes carries a
// more specific code, which callers inspect with the IsX helpers.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	var v *ValidationError
	if errors.As(err, &v) {
		return CodeValidation, true
	}
	return "", false
}

// Message returns the bare message of a coded error, or err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func is(err error, code Code) bool {
	if err == nil {
		return false
	}
	found := false
	walk(err, func(e *Error) bool {
		if e.Code == code {
			found = true
			return false
		}
		return true
	})
	return found
}

// walk visits every *Error in err's tree until fn returns false. errors.As
// stops at the first match, which is not enough inside aggregates holding
// causes with different codes.
func walk(err error, fn func(*Error) bool) bool {
	if e, ok := err.(*Error); ok {
		if !fn(e) {
			return false
		}
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if !walk(inner, fn) {
				return false
			}
		}
	case interface{ Unwrap() error }:
		if inner := u.Unwrap(); inner != nil {
			return walk(inner, fn)
		}
	}
	return true
}

// Find returns the first *Error with the given code in err's tree.
func Find(err error, code Code) (*Error, bool) {
	var found *Error
	walk(err, func(e *Error) bool {
		if e.Code == code {
			found = e
			return false
		}
		return true
	})
	return found, found != nil
}

// IsValidation returns true if err is or contains a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v) || is(err, CodeValidation)
}

// IsPermission returns true if err carries a permission failure anywhere in
// its tree.
func IsPermission(err error) bool { return is(err, CodePermission) }

// IsImmutable returns true if err carries an immutability failure.
func IsImmutable(err error) bool { return is(err, CodeImmutable) }

// IsDuplicate returns true if err carries a uniqueness violation.
func IsDuplicate(err error) bool { return is(err, CodeDuplicate) }

// IsNotFound returns true if err carries a not-found failure.
func IsNotFound(err error) bool { return is(err, CodeNotFound) }

// IsArgument returns true if err carries an argument failure.
func IsArgument(err error) bool { return is(err, CodeArgument) }

// IsQuery returns true if err is an ambiguous or untargeted query failure.
func IsQuery(err error) bool {
	return is(err, CodeAmbiguousQuery) || is(err, CodeUntargetedQuery)
}

// IsBackend returns true if err carries a storage failure.
func IsBackend(err error) bool { return is(err, CodeBackend) }

// IsUnauthenticated returns true if err carries an authentication failure.
func IsUnauthenticated(err error) bool { return is(err, CodeUnauthenticated) }
