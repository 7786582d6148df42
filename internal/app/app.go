// Package app assembles the service from its configuration: it opens the
// configured storage backend, builds one repository per collection and
// hands the registry to the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/JohnVinyard/annotate-api-sub000/internal/api"
	"github.com/JohnVinyard/annotate-api-sub000/internal/config"
	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
	"github.com/JohnVinyard/annotate-api-sub000/internal/memstore"
	"github.com/JohnVinyard/annotate-api-sub000/internal/mongostore"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
	"github.com/JohnVinyard/annotate-api-sub000/internal/store"
)

// Backend is an open storage backend.
type Backend struct {
	Name     string
	Registry *repository.Registry

	indexes func(ctx context.Context) ([]string, error)
	close   func(ctx context.Context) error
}

// Open connects the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger) (*Backend, error) {
	switch cfg.Backend {
	case "memory":
		return OpenMemory(), nil
	case "sqlite":
		return openSQLite(ctx, cfg.SQLitePath)
	case "mongo":
		return openMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// OpenMemory returns a fresh in-memory backend.
func OpenMemory() *Backend {
	var repos []repository.Repository
	for _, c := range domain.Collections() {
		repos = append(repos, memstore.New(c.Mapper, c.Indexes...))
	}
	return &Backend{
		Name:     "memory",
		Registry: repository.NewRegistry(repos...),
		indexes:  declaredIndexes,
		close:    func(context.Context) error { return nil },
	}
}

func openSQLite(ctx context.Context, path string) (*Backend, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	var repos []repository.Repository
	for _, c := range domain.Collections() {
		repo, err := store.NewRepository(ctx, st, c.Name, c.Mapper, c.Indexes...)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("collection %s: %w", c.Name, err), st.Close())
		}
		repos = append(repos, repo)
	}
	return &Backend{
		Name:     "sqlite",
		Registry: repository.NewRegistry(repos...),
		indexes:  catalogued(st),
		close:    func(context.Context) error { return st.Close() },
	}, nil
}

// catalogued reports the indexes recorded in the SQLite catalog. Opening a
// repository already created them.
func catalogued(st *store.Store) func(context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		entries, err := st.Indexes(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.String()
		}
		return names, nil
	}
}

func openMongo(ctx context.Context, uri, database string, log *slog.Logger) (*Backend, error) {
	client, err := mongostore.Connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	db := client.Database(database)
	var (
		repos   []repository.Repository
		managed []*mongostore.Repository
	)
	for _, c := range domain.Collections() {
		repo := mongostore.New(db.Collection(c.Name), c.Mapper, c.Indexes...)
		repos = append(repos, repo)
		managed = append(managed, repo)
	}
	b := &Backend{
		Name:     "mongo",
		Registry: repository.NewRegistry(repos...),
		indexes: func(ctx context.Context) ([]string, error) {
			var names []string
			for _, repo := range managed {
				created, err := repo.EnsureIndexes(ctx)
				if err != nil {
					return names, err
				}
				names = append(names, created...)
			}
			return names, nil
		},
		close: disconnect(client),
	}
	// Uniqueness is only enforced once the indexes exist.
	names, err := b.EnsureIndexes(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("declare mongo indexes: %w", err), client.Disconnect(ctx))
	}
	log.Info("connected to mongo", "database", database, "indexes", len(names))
	return b, nil
}

func disconnect(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error { return client.Disconnect(ctx) }
}

// declaredIndexes lists the indexes the memory backend maintains.
func declaredIndexes(context.Context) ([]string, error) {
	var names []string
	for _, c := range domain.Collections() {
		for _, idx := range c.Indexes {
			names = append(names, c.Name+"."+idx.Name)
		}
	}
	return names, nil
}

// EnsureIndexes declares every collection index and returns their names.
func (b *Backend) EnsureIndexes(ctx context.Context) ([]string, error) {
	return b.indexes(ctx)
}

// Close releases the backend.
func (b *Backend) Close(ctx context.Context) error {
	return b.close(ctx)
}

// Handler builds the HTTP server over b.
func Handler(cfg config.Config, b *Backend, log *slog.Logger) http.Handler {
	return api.NewServer(api.Options{
		Registry:   b.Registry,
		Logger:     log,
		Dev:        cfg.Dev,
		AllowEmail: cfg.AllowsEmail,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
	})
}
