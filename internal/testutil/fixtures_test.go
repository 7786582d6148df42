package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
)

func TestFixturesCommit(t *testing.T) {
	FreezeClock(t)
	reg := Registry()

	Commit(t, reg, func(ctx context.Context) error {
		u := MustUser(t, ctx, "alice")
		MustSound(t, ctx, u, "birdsong")
		return nil
	})

	for class, want := range map[string]int{"User": 1, "Sound": 1, "Annotation": 0} {
		repo, err := reg.For(class)
		require.NoError(t, err)
		n, err := repo.Len(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, n, class)
	}
}

func TestFreezeClockStampsCreation(t *testing.T) {
	FreezeClock(t)
	ctx, _ := Session(t, Registry(), "u")

	u := MustUser(t, ctx, "bob")
	assert.Equal(t, "u-000001", u.ID())
	assert.Equal(t, Epoch.Add(time.Second), u.DateCreated())
	assert.Equal(t, domain.Human, u.Type())
}
