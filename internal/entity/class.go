package entity

import (
	"fmt"

	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
)

// Check is a cross-field rule evaluated at validation. It returns the name of
// the offending field and the reason, or a nil error.
type Check func(e Entity) (field string, err error)

// Class is an entity class: a name, a constructor and the ordered registry of
// its descriptors.
type Class struct {
	name    string
	factory func() Entity
	fields  []Descriptor
	byName  map[string]Descriptor
	checks  []Check
	id      *Field[string]
}

// NewClass declares an entity class. factory returns a zero instance of the
// concrete type, which must embed Base. The identity field "id" is declared
// automatically.
func NewClass(name string, factory func() Entity) *Class {
	c := &Class{
		name:    name,
		factory: factory,
		byName:  make(map[string]Descriptor),
	}
	c.id = &Field[string]{name: "id", class: c, kind: KindIdentity}
	c.register(c.id)
	return c
}

func (c *Class) register(d Descriptor) {
	if _, dup := c.byName[d.Name()]; dup {
		panic(fmt.Sprintf("entity: %s declares field %q twice", c.name, d.Name()))
	}
	c.fields = append(c.fields, d)
	c.byName[d.Name()] = d
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// ID returns the identity descriptor.
func (c *Class) ID() *Field[string] { return c.id }

// Fields returns the descriptors in declaration order, identity first.
func (c *Class) Fields() []Descriptor {
	out := make([]Descriptor, len(c.fields))
	copy(out, c.fields)
	return out
}

// Field looks up a descriptor by attribute name.
func (c *Class) Field(name string) (Descriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// AddCheck registers a cross-field rule.
func (c *Class) AddCheck(check Check) {
	c.checks = append(c.checks, check)
}

// NoCriteria matches every entity of the class.
func (c *Class) NoCriteria() query.Query {
	return query.NoCriteria{Class: c.name}
}

func (c *Class) String() string { return c.name }

func (c *Class) construct(id string) Entity {
	e := c.factory()
	b := e.base()
	b.class = c
	b.id = id
	b.values = make(map[string]any)
	b.events = nil
	return e
}
