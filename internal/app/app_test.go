package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JohnVinyard/annotate-api-sub000/internal/config"
	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/mapper"
	"github.com/JohnVinyard/annotate-api-sub000/internal/mongostore"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
)

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, config.Default(), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "memory", b.Name)

	names, err := b.EnsureIndexes(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "users.user_name")
	assert.Contains(t, names, "sounds.audio_url")
	assert.Contains(t, names, "annotations.sound_id")
	assert.NoError(t, b.Close(ctx))
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Backend = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "annotate.db")

	b, err := Open(ctx, cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(ctx) })
	assert.Equal(t, "sqlite", b.Name)

	repo, err := b.Registry.For("User")
	require.NoError(t, err)
	n, err := repo.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	names, err := b.EnsureIndexes(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "users.user_name (unique)")
	assert.Contains(t, names, "users.user_type")
	assert.Contains(t, names, "annotations.sound_id")
}

// TestOpen_MongoEnforcesUniqueness runs against a live server when
// ANNOTATE_TEST_MONGO_URI is set.
func TestOpen_MongoEnforcesUniqueness(t *testing.T) {
	uri := os.Getenv("ANNOTATE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("ANNOTATE_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	cfg := config.Default()
	cfg.Backend = "mongo"
	cfg.MongoURI = uri
	cfg.MongoDatabase = "annotate_test_" + uuid.NewString()[:8]

	b, err := Open(ctx, cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() {
		client, err := mongostore.Connect(ctx, uri)
		if err == nil {
			_ = client.Database(cfg.MongoDatabase).Drop(ctx)
			_ = client.Disconnect(ctx)
		}
		_ = b.Close(ctx)
	})

	users, err := b.Registry.For(domain.Users.Name())
	require.NoError(t, err)
	doc := func(id, email string) repository.Update {
		return repository.Update{
			Identity: domain.Users.ID().Eq(id),
			Key:      id,
			Fields:   mapper.Record{"user_name": "hal", "email": email},
		}
	}
	require.NoError(t, users.Upsert(ctx, doc("u-1", "hal@example.com")))
	err = users.Upsert(ctx, doc("u-2", "other@example.com"))
	assert.True(t, fault.IsDuplicate(err), "%v", err)
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "redis"
	_, err := Open(context.Background(), cfg, slog.Default())
	assert.ErrorContains(t, err, `unknown backend "redis"`)
}

func TestHandler(t *testing.T) {
	cfg := config.Default()
	cfg.EmailWhitelist = []string{"hal@example.com"}
	h := Handler(cfg, OpenMemory(), slog.Default())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"totalSounds":0,"totalAnnotations":0,"totalUsers":0}`, rec.Body.String())

	body := `{"user_name":"eve","password":"p","user_type":"human","email":"eve@example.com"}`
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
