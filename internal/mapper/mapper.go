// Package mapper translates between entities and storage records.
//
// A Mapper holds one Mapping per persisted descriptor of a class. Each
// mapping names the storage attribute and converts values in both
// directions. Mappers also implement query.Schema, so backend compilers
// resolve field names and literal values through them.
package mapper

import (
	"context"
	"fmt"
	"reflect"

	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
)

// IdentityName is the storage name of every identity field.
const IdentityName = "_id"

// Record is a storage-level document: storage names to storage values.
type Record = map[string]any

// Converter converts one value between vocabularies.
type Converter func(any) (any, error)

// Mapping binds a descriptor to a storage attribute.
type Mapping struct {
	Field       entity.Descriptor
	StorageName string
	toStorage   Converter
	fromStorage Converter
}

// Option customizes a Mapping.
type Option func(*Mapping)

// Named sets the storage name.
func Named(name string) Option {
	return func(m *Mapping) { m.StorageName = name }
}

// Converting replaces both converters.
func Converting(to, from Converter) Option {
	return func(m *Mapping) {
		m.toStorage = to
		m.fromStorage = from
	}
}

// Map maps d under its attribute name. Values are stored as is and decoded
// into the descriptor's type on load; enum descriptors store the underlying
// string.
func Map(d entity.Descriptor, opts ...Option) Mapping {
	m := Mapping{
		Field:       d,
		StorageName: d.Name(),
		toStorage:   identity,
		fromStorage: d.Decode,
	}
	if d.Kind() == entity.KindIdentity {
		m.StorageName = IdentityName
	}
	if d.Kind() == entity.KindEnum {
		m.toStorage = underlyingString
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Enum maps an enum descriptor to its underlying string. Loading a value
// outside the enum fails with an ARGUMENT error.
func Enum[T ~string](f *entity.Field[T], opts ...Option) Mapping {
	m := Mapping{
		Field:       f,
		StorageName: f.Name(),
		toStorage: func(v any) (any, error) {
			t, ok := v.(T)
			if !ok {
				return nil, fmt.Errorf("expected %T, got %T", t, v)
			}
			return string(t), nil
		},
		fromStorage: f.Decode,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func identity(v any) (any, error) { return v, nil }

func underlyingString(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return nil, fmt.Errorf("expected a string-kinded value, got %T", v)
	}
	return rv.String(), nil
}

// Mapper maps one entity class.
type Mapper struct {
	class     *entity.Class
	mappings  []*Mapping
	byField   map[string]*Mapping
	byStorage map[string]*Mapping
}

// New builds a Mapper. Every mapping must belong to class and storage names
// must be distinct. The identity field is mapped to IdentityName when no
// mapping names it.
func New(class *entity.Class, mappings ...Mapping) (*Mapper, error) {
	m := &Mapper{
		class:     class,
		byField:   make(map[string]*Mapping),
		byStorage: make(map[string]*Mapping),
	}
	hasID := false
	for _, mp := range mappings {
		if mp.Field.Kind() == entity.KindIdentity {
			hasID = true
		}
	}
	if !hasID {
		mappings = append([]Mapping{Map(class.ID())}, mappings...)
	}
	for i := range mappings {
		mp := mappings[i]
		if mp.Field.Class() != class {
			return nil, fmt.Errorf("mapping %s belongs to %s, not %s", mp.Field.Name(), mp.Field.Owner(), class.Name())
		}
		if _, dup := m.byField[mp.Field.Name()]; dup {
			return nil, fmt.Errorf("field %s mapped twice", mp.Field.Name())
		}
		if _, dup := m.byStorage[mp.StorageName]; dup {
			return nil, fmt.Errorf("storage name %s used twice", mp.StorageName)
		}
		m.mappings = append(m.mappings, &mp)
		m.byField[mp.Field.Name()] = &mp
		m.byStorage[mp.StorageName] = &mp
	}
	return m, nil
}

// MustNew is New for package-level declarations.
func MustNew(class *entity.Class, mappings ...Mapping) *Mapper {
	m, err := New(class, mappings...)
	if err != nil {
		panic(err)
	}
	return m
}

// Class returns the mapped class.
func (m *Mapper) Class() *entity.Class { return m.class }

// IdentityName returns the storage name of the identity field.
func (m *Mapper) IdentityName() string {
	return m.byField["id"].StorageName
}

// StorageNames returns every storage name in mapping order.
func (m *Mapper) StorageNames() []string {
	out := make([]string, len(m.mappings))
	for i, mp := range m.mappings {
		out[i] = mp.StorageName
	}
	return out
}

func (m *Mapper) mapping(f query.Field) (*Mapping, error) {
	if f.Owner() != m.class.Name() {
		return nil, fmt.Errorf("field %s.%s is not a %s field", f.Owner(), f.Name(), m.class.Name())
	}
	mp, ok := m.byField[f.Name()]
	if !ok {
		return nil, fmt.Errorf("field %s.%s is not mapped", f.Owner(), f.Name())
	}
	return mp, nil
}

// StorageName returns the storage attribute of f.
func (m *Mapper) StorageName(f query.Field) (string, error) {
	mp, err := m.mapping(f)
	if err != nil {
		return "", err
	}
	return mp.StorageName, nil
}

// ToStorage converts a value of f into its storage form.
func (m *Mapper) ToStorage(f query.Field, v any) (any, error) {
	mp, err := m.mapping(f)
	if err != nil {
		return nil, err
	}
	return mp.toStorage(v)
}

// DescriptorFor returns the descriptor stored under name.
func (m *Mapper) DescriptorFor(storageName string) (entity.Descriptor, bool) {
	mp, ok := m.byStorage[storageName]
	if !ok {
		return nil, false
	}
	return mp.Field, true
}

// ToRecord converts every mapped field of e.
func (m *Mapper) ToRecord(e entity.Entity) (Record, error) {
	rec := make(Record, len(m.mappings))
	for _, mp := range m.mappings {
		v, err := mp.toStorage(mp.Field.Value(e))
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", mp.Field.Name(), err)
		}
		rec[mp.StorageName] = v
	}
	return rec, nil
}

// FromRecord hydrates an entity from rec. Unmapped attributes are ignored.
func (m *Mapper) FromRecord(ctx context.Context, rec Record) (entity.Entity, error) {
	values := make(entity.Values, len(rec))
	for name, raw := range rec {
		mp, ok := m.byStorage[name]
		if !ok {
			continue
		}
		v, err := mp.fromStorage(raw)
		if err != nil {
			return nil, fmt.Errorf("load %s.%s: %w", m.class.Name(), mp.Field.Name(), err)
		}
		values[mp.Field.Name()] = v
	}
	return entity.Hydrate(ctx, m.class, values)
}

// Key returns the identity stored in rec.
func (m *Mapper) Key(rec Record) (string, bool) {
	v, ok := rec[m.IdentityName()]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StorageUpdates converts pending events into a partial record. When a field
// was written more than once the last write wins.
func (m *Mapper) StorageUpdates(events []entity.Event) (Record, error) {
	rec := make(Record)
	for _, ev := range entity.Flatten(events) {
		mp, err := m.mapping(ev.Field)
		if err != nil {
			return nil, err
		}
		v, err := mp.toStorage(ev.Value)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", mp.Field.Name(), err)
		}
		rec[mp.StorageName] = v
	}
	return rec, nil
}
