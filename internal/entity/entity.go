package entity

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
)

// Entity is an instance of a Class. Concrete types embed Base.
type Entity interface {
	Class() *Class
	StorageKey() string
	base() *Base
}

// Values maps field names to raw input values.
type Values map[string]any

// Event records one accepted write. Events are appended in write order and
// drained by the session at commit.
type Event struct {
	Field Descriptor
	Value any
}

// Base holds an entity's identity, values and pending events.
type Base struct {
	class  *Class
	id     string
	values map[string]any
	events []Event
}

func (b *Base) base() *Base { return b }

// Class returns the entity's class.
func (b *Base) Class() *Class { return b.class }

// ID returns the entity's identity.
func (b *Base) ID() string { return b.id }

// StorageKey is the identity; repositories key documents by it.
func (b *Base) StorageKey() string { return b.id }

// Events returns a copy of the pending events.
func Events(e Entity) []Event {
	b := e.base()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// HasEvents reports whether e has uncommitted writes.
func HasEvents(e Entity) bool {
	return len(e.base().events) > 0
}

// ClearEvents drops pending events once they are persisted.
func ClearEvents(e Entity) {
	e.base().events = nil
}

// Create constructs a new entity of class with a fresh identity.
//
// Fields are written in declaration order on behalf of creator; a nil
// creator means the entity writes itself. A field missing from values takes
// its default, if it has one. Every rejected write is collected and returned
// together as a *fault.ValidationError, in which case nothing is tracked.
// A successful create registers the entity with the context's tracker.
func Create(ctx context.Context, class *Class, creator Entity, values Values) (Entity, error) {
	e := class.construct(idGeneratorFrom(ctx).Generate())
	writer := creator
	if writer == nil {
		writer = e
	}

	var errs []fault.FieldError
	errs = append(errs, unknownFields(class, values)...)
	for _, d := range class.fields {
		if d.Kind() == KindIdentity {
			continue
		}
		raw, ok := values[d.Name()]
		if !ok {
			raw, ok = d.defaultValue()
		}
		if !ok {
			continue
		}
		if err := d.Assign(e, As(writer, raw)); err != nil {
			errs = append(errs, fault.FieldError{Field: d.Name(), Err: err})
		}
	}
	if err := fault.Validation(class.name, errs); err != nil {
		return nil, err
	}
	return track(ctx, e), nil
}

// Update writes values on behalf of actor, in declaration order, and returns
// every rejected write as a *fault.ValidationError. Accepted writes stay
// applied.
func Update(e Entity, actor Entity, values Values) error {
	class := e.Class()
	errs := unknownFields(class, values)
	for _, d := range class.fields {
		raw, ok := values[d.Name()]
		if !ok {
			continue
		}
		if err := d.Assign(e, As(actor, raw)); err != nil {
			errs = append(errs, fault.FieldError{Field: d.Name(), Err: err})
		}
	}
	return fault.Validation(class.name, errs)
}

func unknownFields(class *Class, values Values) []fault.FieldError {
	var errs []fault.FieldError
	for name := range values {
		if _, ok := class.byName[name]; !ok {
			errs = append(errs, fault.FieldError{
				Field: name,
				Err:   fault.Argument(name, "unknown field"),
			})
		}
	}
	slices.SortFunc(errs, func(a, b fault.FieldError) int { return strings.Compare(a.Field, b.Field) })
	return errs
}

// Hydrate rebuilds a stored entity. values must hold "id"; the remaining
// entries are installed without running setters and without producing
// events. The entity is registered with the context's tracker, and the
// tracked instance is returned.
func Hydrate(ctx context.Context, class *Class, values Values) (Entity, error) {
	id, ok := values["id"].(string)
	if !ok || id == "" {
		return nil, fault.Argument("id", fmt.Sprintf("cannot hydrate %s without an identity", class.name))
	}
	e := class.construct(id)
	b := e.base()
	for name, v := range values {
		if name == "id" {
			continue
		}
		if _, known := class.byName[name]; known {
			b.values[name] = v
		}
	}
	return track(ctx, e), nil
}

// Validate checks every descriptor and class rule and aggregates the
// failures in declaration order.
func Validate(e Entity) error {
	class := e.Class()
	var errs []fault.FieldError
	for _, d := range class.fields {
		if err := d.Validate(e); err != nil {
			errs = append(errs, fault.FieldError{Field: d.Name(), Err: err})
		}
	}
	for _, check := range class.checks {
		if field, err := check(e); err != nil {
			errs = append(errs, fault.FieldError{
				Field: field,
				Err:   fault.Invalid(class.name, field, err.Error()),
			})
		}
	}
	return fault.Validation(class.name, errs)
}

// View returns the fields of e that viewer may see, keyed by field name.
func View(e Entity, viewer Entity) map[string]any {
	out := make(map[string]any)
	for _, d := range e.Class().fields {
		if d.Visible(e, viewer) {
			out[d.Name()] = d.Value(e)
		}
	}
	return out
}

// IdentityQuery matches exactly e.
func IdentityQuery(e Entity) query.Query {
	return e.Class().ID().Eq(e.StorageKey())
}

// Flatten keeps the last write per field, ordered by each field's first
// write.
func Flatten(events []Event) []Event {
	index := make(map[string]int)
	var out []Event
	for _, ev := range events {
		name := ev.Field.Name()
		if i, ok := index[name]; ok {
			out[i] = ev
			continue
		}
		index[name] = len(out)
		out = append(out, ev)
	}
	return out
}
