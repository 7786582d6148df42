// Package testutil provides deterministic clocks, in-memory registries and
// entity fixtures for tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/memstore"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
	"github.com/JohnVinyard/annotate-api-sub000/internal/session"
)

// Registry returns empty in-memory repositories for every collection.
func Registry() *repository.Registry {
	var repos []repository.Repository
	for _, c := range domain.Collections() {
		repos = append(repos, memstore.New(c.Mapper, c.Indexes...))
	}
	return repository.NewRegistry(repos...)
}

// FreezeClock makes entity.Clock deterministic for the rest of the test.
func FreezeClock(t testing.TB) *Clock {
	t.Helper()
	clock := NewClock(Epoch, time.Second)
	previous := entity.Clock
	entity.Clock = clock.Now
	t.Cleanup(func() { entity.Clock = previous })
	return clock
}

// Session opens a session over reg with sequential identities prefixed by
// prefix. The session is aborted at cleanup if still open.
func Session(t testing.TB, reg *repository.Registry, prefix string) (context.Context, *session.Session) {
	t.Helper()
	ctx := entity.WithIDGenerator(context.Background(), entity.NewSequenceGenerator(prefix))
	ctx, s, err := session.Open(ctx, reg)
	require.NoError(t, err)
	t.Cleanup(s.Abort)
	return ctx, s
}

// Commit runs fn in its own session and commits it.
func Commit(t testing.TB, reg *repository.Registry, fn func(ctx context.Context) error) {
	t.Helper()
	require.NoError(t, session.Run(context.Background(), reg, func(ctx context.Context, _ *session.Session) error {
		return fn(ctx)
	}))
}

// UserValues are valid creation values for a human user called name.
func UserValues(name string) entity.Values {
	return entity.Values{
		"user_name": name,
		"password":  name + "-password",
		"user_type": string(domain.Human),
		"email":     name + "@example.com",
	}
}

// SoundValues are valid creation values for a ten second sound.
func SoundValues(title string) entity.Values {
	return entity.Values{
		"audio_url":        fmt.Sprintf("https://audio.example.com/%s.wav", title),
		"license_type":     string(domain.LicenseTypes[0]),
		"title":            title,
		"duration_seconds": 10.0,
	}
}

// AnnotationValues are creation values for a span of a sound.
func AnnotationValues(start, duration float64, tags ...string) entity.Values {
	v := entity.Values{
		"start_seconds":    start,
		"duration_seconds": duration,
	}
	if len(tags) > 0 {
		v["tags"] = tags
	}
	return v
}

// MustUser creates a user in the session carried by ctx.
func MustUser(t testing.TB, ctx context.Context, name string) *domain.User {
	t.Helper()
	u, err := domain.CreateUser(ctx, UserValues(name))
	require.NoError(t, err)
	return u
}

// MustSound creates a sound owned by creator.
func MustSound(t testing.TB, ctx context.Context, creator *domain.User, title string) *domain.Sound {
	t.Helper()
	s, err := domain.CreateSound(ctx, creator, SoundValues(title))
	require.NoError(t, err)
	return s
}
