package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/mapper"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
)

// RunRepositoryContract checks the behaviour every backend shares. open
// returns a registry of empty repositories for every collection.
func RunRepositoryContract(t *testing.T, open func(t *testing.T) *repository.Registry) {
	t.Run("upsert inserts and merges", func(t *testing.T) {
		users := repo(t, open(t), domain.Users.Name())
		ctx := context.Background()

		require.NoError(t, users.Upsert(ctx, userDoc("u-1", "hal")))
		require.NoError(t, users.Upsert(ctx, repository.Update{
			Identity: domain.Users.ID().Eq("u-1"),
			Key:      "u-1",
			Fields:   mapper.Record{"about_me": "merged"},
		}))

		page, err := users.Filter(ctx, domain.Users.ID().Eq("u-1"), repository.FirstPage(10))
		require.NoError(t, err)
		require.Len(t, page.Records, 1)
		rec := page.Records[0]
		assert.Equal(t, "u-1", rec[mapper.IdentityName])
		assert.Equal(t, "hal", rec["user_name"])
		assert.Equal(t, "merged", rec["about_me"])

		n, err := users.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("unique violation rejects the whole batch", func(t *testing.T) {
		users := repo(t, open(t), domain.Users.Name())
		ctx := context.Background()
		require.NoError(t, users.Upsert(ctx, userDoc("u-1", "hal")))

		err := users.Upsert(ctx, userDoc("u-2", "sal"), userDoc("u-3", "hal"))
		require.Error(t, err)
		assert.True(t, fault.IsDuplicate(err), "got %v", err)

		n, err := users.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("transformed literal matches stored value", func(t *testing.T) {
		users := repo(t, open(t), domain.Users.Name())
		ctx := context.Background()
		require.NoError(t, users.Upsert(ctx, userDoc("u-1", "hal"), userDoc("u-2", "sal")))

		q := query.AllOf(domain.Users.ID().Eq("u-2"), domain.UserPassword.Eq("sal-password"))
		page, err := users.Filter(ctx, q, repository.FirstPage(10))
		require.NoError(t, err)
		require.Len(t, page.Records, 1)
		assert.Equal(t, "u-2", page.Records[0][mapper.IdentityName])

		n, err := users.Count(ctx, domain.UserPassword.Eq("u-2"))
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("pages cover the result once", func(t *testing.T) {
		sounds := repo(t, open(t), domain.Sounds.Name())
		ctx := context.Background()
		require.NoError(t, sounds.Upsert(ctx,
			soundDoc("s-1", "c", 1),
			soundDoc("s-2", "a", 2),
			soundDoc("s-3", "b", 3),
		))

		req := repository.PageRequest{Size: 2, Sort: domain.SoundTitle.Ascending()}
		first, err := sounds.Filter(ctx, domain.Sounds.NoCriteria(), req)
		require.NoError(t, err)
		assert.Equal(t, 3, first.TotalCount)
		assert.Equal(t, []any{"s-2", "s-3"}, keys(first.Records))
		require.NotNil(t, first.NextPage)
		assert.Equal(t, 1, *first.NextPage)

		req.Number = *first.NextPage
		second, err := sounds.Filter(ctx, domain.Sounds.NoCriteria(), req)
		require.NoError(t, err)
		assert.Equal(t, []any{"s-1"}, keys(second.Records))
		assert.Nil(t, second.NextPage)

		newest, err := sounds.Filter(ctx, domain.Sounds.NoCriteria(), repository.PageRequest{
			Size: 1,
			Sort: domain.SoundDateCreated.Descending(),
		})
		require.NoError(t, err)
		assert.Equal(t, []any{"s-3"}, keys(newest.Records))

		unsorted, err := sounds.Filter(ctx, domain.Sounds.NoCriteria(), repository.FirstPage(10))
		require.NoError(t, err)
		assert.Equal(t, []any{"s-1", "s-2", "s-3"}, keys(unsorted.Records))
	})

	t.Run("missing attributes differ from every value", func(t *testing.T) {
		sounds := repo(t, open(t), domain.Sounds.Name())
		ctx := context.Background()
		require.NoError(t, sounds.Upsert(ctx, soundDoc("s-1", "a", 1), soundDoc("s-2", "b", 2)))

		n, err := sounds.Count(ctx, domain.SoundInfoURL.Neq("https://info.example.com"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = sounds.Count(ctx, domain.SoundInfoURL.Eq("https://info.example.com"))
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("invalid page request", func(t *testing.T) {
		sounds := repo(t, open(t), domain.Sounds.Name())
		_, err := sounds.Filter(context.Background(), domain.Sounds.NoCriteria(), repository.PageRequest{Size: 0})
		assert.True(t, fault.IsArgument(err))
	})

	t.Run("delete all", func(t *testing.T) {
		users := repo(t, open(t), domain.Users.Name())
		ctx := context.Background()
		require.NoError(t, users.Upsert(ctx, userDoc("u-1", "hal"), userDoc("u-2", "sal")))
		require.NoError(t, users.DeleteAll(ctx))

		n, err := users.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func repo(t *testing.T, reg *repository.Registry, class string) repository.Repository {
	t.Helper()
	r, err := reg.For(class)
	require.NoError(t, err)
	return r
}

func userDoc(id, name string) repository.Update {
	hash, _ := domain.HashPassword(name + "-password")
	return repository.Update{
		Identity: domain.Users.ID().Eq(id),
		Key:      id,
		Fields: mapper.Record{
			"user_name": name,
			"password":  hash,
			"user_type": string(domain.Human),
			"email":     name + "@example.com",
			"deleted":   false,
		},
	}
}

func soundDoc(id, title string, second int) repository.Update {
	return repository.Update{
		Identity: domain.Sounds.ID().Eq(id),
		Key:      id,
		Fields: mapper.Record{
			"created_by":   "u-1",
			"date_created": Epoch.Add(time.Duration(second) * time.Second),
			"audio_url":    "https://audio.example.com/" + id + ".wav",
			"license_type": string(domain.LicenseCC0),
			"title":        title,
		},
	}
}

func keys(records []mapper.Record) []any {
	out := make([]any, len(records))
	for i, rec := range records {
		out[i] = rec[mapper.IdentityName]
	}
	return out
}
