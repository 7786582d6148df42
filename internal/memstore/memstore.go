// Package memstore is an in-memory Repository. It backs tests and the
// "memory" backend.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/mapper"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
	"github.com/JohnVinyard/annotate-api-sub000/internal/querymem"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
)

// Repository keeps records in insertion order. Each Upsert call is atomic:
// either every update applies or none does.
type Repository struct {
	mu     sync.RWMutex
	mapper *mapper.Mapper
	unique []string
	docs   map[string]mapper.Record
	order  []string
}

var _ repository.Repository = (*Repository)(nil)

// New creates an empty repository enforcing the unique indexes.
func New(m *mapper.Mapper, indexes ...repository.Index) *Repository {
	return &Repository{
		mapper: m,
		unique: repository.UniqueNames(indexes),
		docs:   make(map[string]mapper.Record),
	}
}

func (r *Repository) Mapper() *mapper.Mapper { return r.mapper }

// Upsert merges each update into the record with the update's key, or
// inserts a new record.
func (r *Repository) Upsert(ctx context.Context, updates ...repository.Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := make(map[string]mapper.Record, len(updates))
	var inserted []string
	for _, u := range updates {
		if u.Key == "" {
			return fault.Argument("id", "upsert without an identity")
		}
		doc, ok := staged[u.Key]
		if !ok {
			if existing, found := r.docs[u.Key]; found {
				doc = maps.Clone(existing)
			} else {
				doc = mapper.Record{r.mapper.IdentityName(): u.Key}
				inserted = append(inserted, u.Key)
			}
		}
		maps.Copy(doc, u.Fields)
		staged[u.Key] = doc
	}

	for key, doc := range staged {
		if err := r.checkUnique(key, doc, staged); err != nil {
			return err
		}
	}

	maps.Copy(r.docs, staged)
	r.order = append(r.order, inserted...)
	return nil
}

// checkUnique compares doc against every other record as it will be after
// the batch applies.
func (r *Repository) checkUnique(key string, doc mapper.Record, staged map[string]mapper.Record) error {
	for _, name := range r.unique {
		v, ok := doc[name]
		if !ok || v == nil {
			continue
		}
		clash := func(otherKey string, other mapper.Record) bool {
			return otherKey != key && querymem.Equal(other[name], v)
		}
		for otherKey, other := range staged {
			if clash(otherKey, other) {
				return r.duplicate(name, v)
			}
		}
		for otherKey, other := range r.docs {
			if _, restaged := staged[otherKey]; restaged {
				continue
			}
			if clash(otherKey, other) {
				return r.duplicate(name, v)
			}
		}
	}
	return nil
}

func (r *Repository) duplicate(name string, v any) error {
	return fault.Duplicate(r.mapper.Class().Name(), fmt.Errorf("%s %v already stored", name, v))
}

func (r *Repository) Filter(ctx context.Context, q query.Query, req repository.PageRequest) (repository.Page, error) {
	if err := req.Validate(); err != nil {
		return repository.Page{}, err
	}
	matches, err := r.matching(ctx, q)
	if err != nil {
		return repository.Page{}, err
	}
	if req.Sort != nil {
		name, err := r.mapper.StorageName(req.Sort.Field)
		if err != nil {
			return repository.Page{}, err
		}
		slices.SortStableFunc(matches, func(a, b mapper.Record) int {
			c := querymem.Compare(a[name], b[name])
			if req.Sort.Direction == query.Descending {
				return -c
			}
			return c
		})
	}

	total := len(matches)
	start := min(req.Offset(), total)
	end := min(start+req.Size, total)
	page := make([]mapper.Record, 0, end-start)
	for _, rec := range matches[start:end] {
		page = append(page, maps.Clone(rec))
	}
	return repository.NewPage(page, total, req), nil
}

func (r *Repository) Count(ctx context.Context, q query.Query) (int, error) {
	matches, err := r.matching(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

func (r *Repository) matching(ctx context.Context, q query.Query) ([]mapper.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pred, err := querymem.Compile(q, r.mapper)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []mapper.Record
	for _, key := range r.order {
		if rec := r.docs[key]; pred(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *Repository) Len(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order), nil
}

func (r *Repository) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = make(map[string]mapper.Record)
	r.order = nil
	return nil
}
