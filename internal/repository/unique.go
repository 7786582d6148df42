package repository

import (
	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/mapper"
)

// Index describes a secondary index on one storage attribute.
type Index struct {
	Name   string
	Unique bool
}

// Indexes resolves descriptors to storage attributes for index declarations.
func Indexes(m *mapper.Mapper, unique []entity.Descriptor, plain []entity.Descriptor) ([]Index, error) {
	var out []Index
	for _, set := range []struct {
		fields []entity.Descriptor
		unique bool
	}{{unique, true}, {plain, false}} {
		for _, d := range set.fields {
			name, err := m.StorageName(d)
			if err != nil {
				return nil, err
			}
			out = append(out, Index{Name: name, Unique: set.unique})
		}
	}
	return out, nil
}

// UniqueNames returns the names of the unique indexes.
func UniqueNames(indexes []Index) []string {
	var out []string
	for _, ix := range indexes {
		if ix.Unique {
			out = append(out, ix.Name)
		}
	}
	return out
}
