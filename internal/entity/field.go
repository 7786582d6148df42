package entity

import (
	"fmt"
	"reflect"

	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
)

// Kind tags the descriptor variant.
type Kind int

const (
	// KindPlain is an ordinary read-write field.
	KindPlain Kind = iota

	// KindImmutable refuses writes once the field holds a non-empty value.
	KindImmutable

	// KindEnum accepts only the members of a closed set.
	KindEnum

	// KindIdentity is the class's identity field, assigned at construction
	// and never written afterwards.
	KindIdentity
)

func (k Kind) String() string {
	switch k {
	case KindImmutable:
		return "immutable"
	case KindEnum:
		return "enum"
	case KindIdentity:
		return "identity"
	default:
		return "plain"
	}
}

// Options configures a Field.
type Options[T any] struct {
	// Default produces the value of a field that was never set.
	Default func() T

	// Required fields must hold a non-empty value when validated.
	Required bool

	// Immutable fields refuse writes once populated.
	Immutable bool

	// Transform normalizes every value before it is stored and every query
	// literal before it is compared.
	Transform func(T) (T, error)

	// Validate checks a transformed value, at set time and at validation.
	Validate func(T) error

	// Visible decides who sees the field in a view. Nil means Always.
	Visible Policy

	// Mutable decides who may write the field. Nil means Always.
	Mutable Policy
}

// Const returns a default producer for a fixed value.
func Const[T any](v T) func() T {
	return func() T { return v }
}

// Descriptor is the type-erased view of a Field used by the class registry,
// the mapper and the session.
type Descriptor interface {
	query.Field

	// Class is the declaring class.
	Class() *Class

	// Kind is the descriptor variant.
	Kind() Kind

	// Required reports whether the field must be non-empty at validation.
	Required() bool

	// Type is the Go type of the field's values.
	Type() reflect.Type

	// Visible reports whether viewer may see the field on e.
	Visible(e, viewer Entity) bool

	// Value returns the current value, or the default when never set.
	Value(e Entity) any

	// IsSet reports whether e holds a value for the field.
	IsSet(e Entity) bool

	// Assign writes input, which must be a ContextualValue.
	Assign(e Entity, input any) error

	// Validate checks the stored value.
	Validate(e Entity) error

	// Decode converts a loosely typed value into the field's type.
	Decode(v any) (any, error)

	defaultValue() (any, bool)
}

// Field describes one attribute of an entity class.
type Field[T any] struct {
	name   string
	class  *Class
	kind   Kind
	opts   Options[T]
	member func(T) bool
}

// NewField declares a field on class. Fields are registered in declaration
// order; redeclaring a name panics.
func NewField[T any](class *Class, name string, opts Options[T]) *Field[T] {
	kind := KindPlain
	if opts.Immutable {
		kind = KindImmutable
	}
	f := &Field[T]{name: name, class: class, kind: kind, opts: opts}
	class.register(f)
	return f
}

// NewEnum declares a field restricted to members.
func NewEnum[T ~string](class *Class, name string, opts Options[T], members ...T) *Field[T] {
	set := make(map[T]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	f := &Field[T]{
		name:  name,
		class: class,
		kind:  KindEnum,
		opts:  opts,
		member: func(v T) bool {
			_, ok := set[v]
			return ok
		},
	}
	class.register(f)
	return f
}

func (f *Field[T]) Name() string       { return f.name }
func (f *Field[T]) Owner() string      { return f.class.name }
func (f *Field[T]) Class() *Class      { return f.class }
func (f *Field[T]) Kind() Kind         { return f.kind }
func (f *Field[T]) Required() bool     { return f.opts.Required }
func (f *Field[T]) Type() reflect.Type { return reflect.TypeFor[T]() }

func (f *Field[T]) String() string {
	return f.class.name + "." + f.name
}

// Get returns the field's value on e, or its default when never set.
func (f *Field[T]) Get(e Entity) T {
	b := e.base()
	if f.kind == KindIdentity {
		return any(b.id).(T)
	}
	if v, ok := b.values[f.name]; ok {
		if t, ok := v.(T); ok {
			return t
		}
	}
	if f.opts.Default != nil {
		return f.opts.Default()
	}
	var zero T
	return zero
}

func (f *Field[T]) Value(e Entity) any {
	return f.Get(e)
}

func (f *Field[T]) IsSet(e Entity) bool {
	if f.kind == KindIdentity {
		return true
	}
	_, ok := e.base().values[f.name]
	return ok
}

func (f *Field[T]) Visible(e, viewer Entity) bool {
	if f.kind == KindIdentity || f.opts.Visible == nil {
		return true
	}
	return f.opts.Visible(e, viewer)
}

// Set writes cv.Value on behalf of cv.Writer.
//
// The write is rejected, leaving the field unchanged, when the mutation
// policy refuses the writer (PERMISSION), when an immutable field already
// holds a value (IMMUTABLE), when the value has the wrong type or is not an
// enum member (ARGUMENT), or when the transform or validator fails
// (VALIDATION). An accepted write stores the transformed value and appends a
// set event.
func (f *Field[T]) Set(e Entity, cv ContextualValue) error {
	if f.kind == KindIdentity {
		return fault.Immutable(f.class.name, f.name)
	}
	if f.opts.Mutable != nil && !f.opts.Mutable(e, cv.Writer) {
		return fault.Permission(f.class.name, f.name)
	}
	if f.kind == KindImmutable && f.IsSet(e) && !empty(f.Get(e)) {
		return fault.Immutable(f.class.name, f.name)
	}
	v, err := f.prepare(cv.Value)
	if err != nil {
		return err
	}
	b := e.base()
	b.values[f.name] = v
	b.events = append(b.events, Event{Field: f, Value: v})
	return nil
}

func (f *Field[T]) Assign(e Entity, input any) error {
	cv, ok := input.(ContextualValue)
	if !ok {
		return fault.Argument(f.name, fmt.Sprintf("writes require a contextual value, got %T", input))
	}
	return f.Set(e, cv)
}

// prepare coerces, checks membership, transforms and validates a value.
func (f *Field[T]) prepare(raw any) (T, error) {
	v, err := f.decode(raw)
	if err != nil {
		return v, err
	}
	if f.opts.Transform != nil {
		v, err = f.opts.Transform(v)
		if err != nil {
			return v, fault.Invalid(f.class.name, f.name, err.Error())
		}
	}
	if f.opts.Validate != nil {
		if err := f.opts.Validate(v); err != nil {
			return v, fault.Invalid(f.class.name, f.name, err.Error())
		}
	}
	return v, nil
}

func (f *Field[T]) decode(raw any) (T, error) {
	v, err := Coerce[T](raw)
	if err != nil {
		return v, fault.Argument(f.name, err.Error())
	}
	if f.member != nil && raw != nil && !f.member(v) {
		return v, fault.Argument(f.name, fmt.Sprintf("%v is not an allowed value", v))
	}
	return v, nil
}

func (f *Field[T]) Decode(v any) (any, error) {
	return f.decode(v)
}

// Project applies the field's transform to a query literal.
func (f *Field[T]) Project(v any) (any, error) {
	t, err := f.decode(v)
	if err != nil {
		return nil, err
	}
	if f.opts.Transform != nil {
		t, err = f.opts.Transform(t)
		if err != nil {
			return nil, fault.Invalid(f.class.name, f.name, err.Error())
		}
	}
	return t, nil
}

func (f *Field[T]) Validate(e Entity) error {
	v := f.Get(e)
	missing := !f.IsSet(e) && f.opts.Default == nil
	if f.opts.Required && (missing || empty(v)) {
		return fault.Invalid(f.class.name, f.name, "required")
	}
	if f.opts.Validate != nil && f.IsSet(e) {
		if err := f.opts.Validate(v); err != nil {
			return fault.Invalid(f.class.name, f.name, err.Error())
		}
	}
	return nil
}

func (f *Field[T]) defaultValue() (any, bool) {
	if f.opts.Default == nil {
		return nil, false
	}
	return f.opts.Default(), true
}

// Eq builds field == v.
func (f *Field[T]) Eq(v T) query.Query { return query.Equal(f, v) }

// Neq builds field != v.
func (f *Field[T]) Neq(v T) query.Query { return query.NotEqual(f, v) }

// Ascending sorts by the field, smallest first.
func (f *Field[T]) Ascending() *query.Sort {
	return &query.Sort{Field: f, Direction: query.Ascending}
}

// Descending sorts by the field, largest first.
func (f *Field[T]) Descending() *query.Sort {
	return &query.Sort{Field: f, Direction: query.Descending}
}
