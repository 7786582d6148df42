// Package repository defines the storage contract the session commits
// through, together with paging rules shared by every backend.
package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/mapper"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
)

// Page size bounds.
const (
	MinPageSize     = 1
	MaxPageSize     = 500
	DefaultPageSize = 50
)

// Update is one upsert: the identity query selecting the stored document,
// and the attributes to merge into it (or to insert with it).
type Update struct {
	Identity query.Query
	Key      string
	Fields   mapper.Record
}

// Repository stores the documents of one entity class.
//
// Implementations must be safe for concurrent use.
type Repository interface {
	// Mapper returns the class's mapper.
	Mapper() *mapper.Mapper

	// Upsert inserts or merges each update. A unique attribute clash fails
	// with a DUPLICATE_ENTITY error.
	Upsert(ctx context.Context, updates ...Update) error

	// Filter returns one page of matching records.
	Filter(ctx context.Context, q query.Query, req PageRequest) (Page, error)

	// Count returns the number of matching records.
	Count(ctx context.Context, q query.Query) (int, error)

	// Len returns the number of stored records; backends may estimate.
	Len(ctx context.Context) (int, error)

	// DeleteAll removes every record.
	DeleteAll(ctx context.Context) error
}

// PageRequest selects a page of a result.
type PageRequest struct {
	Size   int
	Number int
	Sort   *query.Sort
}

// FirstPage is a page request for the first n results.
func FirstPage(n int) PageRequest {
	return PageRequest{Size: n}
}

// Validate checks page bounds.
func (r PageRequest) Validate() error {
	if r.Size < MinPageSize || r.Size > MaxPageSize {
		return fault.Argument("page_size", fmt.Sprintf("must be between %d and %d", MinPageSize, MaxPageSize))
	}
	if r.Number < 0 {
		return fault.Argument("page_number", "must not be negative")
	}
	return nil
}

// Offset is the number of results skipped before the page.
func (r PageRequest) Offset() int {
	return r.Size * r.Number
}

// Page is one page of a result.
type Page struct {
	Records    []mapper.Record
	TotalCount int
	// NextPage is set iff later results exist.
	NextPage *int
}

// NewPage builds a Page, deriving NextPage from the total.
func NewPage(records []mapper.Record, total int, req PageRequest) Page {
	p := Page{Records: records, TotalCount: total}
	if (req.Number+1)*req.Size < total {
		next := req.Number + 1
		p.NextPage = &next
	}
	return p
}

// Registry maps entity class names to their repositories.
type Registry struct {
	repos map[string]Repository
}

// NewRegistry builds a registry keyed by each repository's class.
func NewRegistry(repos ...Repository) *Registry {
	r := &Registry{repos: make(map[string]Repository, len(repos))}
	for _, repo := range repos {
		r.repos[repo.Mapper().Class().Name()] = repo
	}
	return r
}

// For returns the repository of class.
func (r *Registry) For(class string) (Repository, error) {
	repo, ok := r.repos[class]
	if !ok {
		return nil, fmt.Errorf("no repository for entity class %q", class)
	}
	return repo, nil
}

// All returns every repository ordered by class name.
func (r *Registry) All() []Repository {
	names := make([]string, 0, len(r.repos))
	for name := range r.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Repository, len(names))
	for i, name := range names {
		out[i] = r.repos[name]
	}
	return out
}
