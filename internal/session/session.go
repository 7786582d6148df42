// Package session implements the per-request unit of work.
//
// A Session keeps an identity map of every entity created, hydrated or
// loaded while it is open, so a stored entity is represented by exactly one
// instance per session. Closing the session commits: it validates every
// entity with pending writes, then issues one upsert per entity class.
// Aborting discards everything.
//
// The session travels in the context returned by Open. Entity constructors
// find it there through the entity.Tracker interface.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
)

var (
	// ErrNested is returned when a session is opened inside another open
	// session.
	ErrNested = errors.New("session: nested session")

	// ErrClosed is returned when a closed or aborted session is used.
	ErrClosed = errors.New("session: closed")
)

// Outcome labels how a session ended.
type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeConflict  Outcome = "conflict"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
)

// Observer is notified of commit activity.
type Observer interface {
	Upserted(class string, n int)
	Finished(outcome Outcome)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithObserver sets the commit observer.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

type identityKey struct {
	class string
	id    string
}

// Session is a unit of work.
type Session struct {
	mu       sync.Mutex
	registry *repository.Registry
	log      *slog.Logger
	observer Observer
	identity map[identityKey]entity.Entity
	tracked  []entity.Entity
	closed   bool
}

type sessionKey struct{}

// Open starts a session and returns a context carrying it.
func Open(ctx context.Context, registry *repository.Registry, opts ...Option) (context.Context, *Session, error) {
	if current, ok := From(ctx); ok && !current.isClosed() {
		return ctx, nil, ErrNested
	}
	s := &Session{
		registry: registry,
		log:      slog.Default(),
		identity: make(map[identityKey]entity.Entity),
	}
	for _, opt := range opts {
		opt(s)
	}
	ctx = context.WithValue(ctx, sessionKey{}, s)
	ctx = entity.WithTracker(ctx, s)
	return ctx, s, nil
}

// From returns the session carried by ctx.
func From(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}

// Run opens a session, calls fn and closes the session when fn succeeds or
// aborts it when fn fails or panics.
func Run(ctx context.Context, registry *repository.Registry, fn func(ctx context.Context, s *Session) error, opts ...Option) error {
	ctx, s, err := Open(ctx, registry, opts...)
	if err != nil {
		return err
	}
	defer s.Abort()
	if err := fn(ctx, s); err != nil {
		return err
	}
	return s.Close(ctx)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Track adds e to the identity map unless an entity with the same class and
// identity is already there, and returns the mapped instance.
func (s *Session) Track(e entity.Entity) entity.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track(e)
}

func (s *Session) track(e entity.Entity) entity.Entity {
	k := identityKey{class: e.Class().Name(), id: e.StorageKey()}
	if existing, ok := s.identity[k]; ok {
		return existing
	}
	s.identity[k] = e
	s.tracked = append(s.tracked, e)
	return e
}

func (s *Session) lookup(class, id string) (entity.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.identity[identityKey{class: class, id: id}]
	return e, ok
}

// Page is one page of entities.
type Page struct {
	Items      []entity.Entity
	TotalCount int
	NextPage   *int
}

// Filter returns a page of entities matching q. Entities already in the
// identity map are returned as mapped, including their unsaved writes.
func (s *Session) Filter(ctx context.Context, q query.Query, req repository.PageRequest) (Page, error) {
	if s.isClosed() {
		return Page{}, ErrClosed
	}
	repo, err := s.repositoryFor(q)
	if err != nil {
		return Page{}, err
	}
	result, err := repo.Filter(ctx, q, req)
	if err != nil {
		return Page{}, err
	}

	m := repo.Mapper()
	page := Page{TotalCount: result.TotalCount, NextPage: result.NextPage}
	for _, rec := range result.Records {
		if key, ok := m.Key(rec); ok {
			if e, found := s.lookup(m.Class().Name(), key); found {
				page.Items = append(page.Items, e)
				continue
			}
		}
		e, err := m.FromRecord(ctx, rec)
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, s.Track(e))
	}
	return page, nil
}

// Get returns the first entity matching q, or a NOT_FOUND error.
func (s *Session) Get(ctx context.Context, q query.Query) (entity.Entity, error) {
	page, err := s.Filter(ctx, q, repository.FirstPage(1))
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		class, _ := query.EntityClass(q)
		return nil, fault.NotFound(class)
	}
	return page.Items[0], nil
}

// One is Get with the result asserted to E.
func One[E entity.Entity](ctx context.Context, s *Session, q query.Query) (E, error) {
	var zero E
	e, err := s.Get(ctx, q)
	if err != nil {
		return zero, err
	}
	typed, ok := e.(E)
	if !ok {
		return zero, fmt.Errorf("session: %s is %T, not %T", e.Class().Name(), e, zero)
	}
	return typed, nil
}

// Count returns the number of stored entities matching q.
func (s *Session) Count(ctx context.Context, q query.Query) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	repo, err := s.repositoryFor(q)
	if err != nil {
		return 0, err
	}
	return repo.Count(ctx, q)
}

func (s *Session) repositoryFor(q query.Query) (repository.Repository, error) {
	class, err := query.EntityClass(q)
	if err != nil {
		return nil, err
	}
	return s.registry.For(class)
}

// Close commits the session.
//
// Every tracked entity with pending writes is validated first; the first
// failing entity's ValidationError is returned and nothing is written.
// Writes are then grouped by class and each class is upserted in one call,
// classes in the order their first entity was tracked. A uniqueness
// violation surfaces as DUPLICATE_ENTITY; other storage failures as BACKEND.
// The session is closed afterwards whatever the outcome.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	var dirty []entity.Entity
	for _, e := range s.tracked {
		if entity.HasEvents(e) {
			dirty = append(dirty, e)
		}
	}
	for _, e := range dirty {
		if err := entity.Validate(e); err != nil {
			s.finish(OutcomeInvalid)
			return err
		}
	}

	var classes []string
	groups := make(map[string][]entity.Entity)
	for _, e := range dirty {
		name := e.Class().Name()
		if _, ok := groups[name]; !ok {
			classes = append(classes, name)
		}
		groups[name] = append(groups[name], e)
	}

	for _, name := range classes {
		if err := s.commitClass(ctx, name, groups[name]); err != nil {
			if fault.IsDuplicate(err) {
				s.finish(OutcomeConflict)
				return err
			}
			s.finish(OutcomeFailed)
			if _, coded := fault.CodeOf(err); coded {
				return err
			}
			return fault.Backend("commit "+name, err)
		}
	}

	s.log.Debug("session committed", "entities", len(dirty), "classes", len(classes))
	s.finish(OutcomeCommitted)
	return nil
}

func (s *Session) commitClass(ctx context.Context, class string, entities []entity.Entity) error {
	repo, err := s.registry.For(class)
	if err != nil {
		return err
	}
	m := repo.Mapper()
	updates := make([]repository.Update, 0, len(entities))
	for _, e := range entities {
		fields, err := m.StorageUpdates(entity.Events(e))
		if err != nil {
			return err
		}
		updates = append(updates, repository.Update{
			Identity: entity.IdentityQuery(e),
			Key:      e.StorageKey(),
			Fields:   fields,
		})
	}
	if err := repo.Upsert(ctx, updates...); err != nil {
		return err
	}
	for _, e := range entities {
		entity.ClearEvents(e)
	}
	if s.observer != nil {
		s.observer.Upserted(class, len(updates))
	}
	s.log.Debug("upserted", "class", class, "count", len(updates))
	return nil
}

// Abort discards the session without writing. Aborting a closed session
// does nothing.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.identity = make(map[identityKey]entity.Entity)
	s.tracked = nil
	s.finish(OutcomeAborted)
}

func (s *Session) finish(outcome Outcome) {
	if s.observer != nil {
		s.observer.Finished(outcome)
	}
}
