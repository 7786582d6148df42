package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
	"github.com/JohnVinyard/annotate-api-sub000/internal/testutil"
)

func pairs(t *testing.T, err error) [][2]string {
	t.Helper()
	var v *fault.ValidationError
	require.ErrorAs(t, err, &v)
	return v.Pairs()
}

func TestHashPassword(t *testing.T) {
	h, err := domain.HashPassword("p")
	require.NoError(t, err)
	assert.Equal(t, "14c68e20d8ddb4dbd248ed14bdb2012cfcee23530af0f71328009d1e90bb36ac", h)

	h, err = domain.HashPassword("")
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestNormalize(t *testing.T) {
	name, _ := domain.NormalizeName("  hal ")
	assert.Equal(t, "hal", name)
	name, _ = domain.NormalizeName("e\u0301")
	assert.Equal(t, "\u00e9", name)

	email, _ := domain.NormalizeEmail(" HAL@Example.com ")
	assert.Equal(t, "hal@example.com", email)
}

func TestCreateUser(t *testing.T) {
	testutil.FreezeClock(t)
	ctx := context.Background()

	u, err := domain.CreateUser(ctx, entity.Values{
		"user_name": "  Hal ",
		"password":  "p",
		"user_type": "human",
		"email":     "HAL@Example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hal", u.UserName())
	assert.Equal(t, "hal@example.com", u.Email())
	assert.Equal(t, "14c68e20d8ddb4dbd248ed14bdb2012cfcee23530af0f71328009d1e90bb36ac", domain.UserPassword.Get(u))
	assert.Equal(t, domain.Human, u.Type())
	assert.False(t, u.Deleted())
	assert.True(t, testutil.Epoch.Add(time.Second).Equal(u.DateCreated()))
	require.NoError(t, entity.Validate(u))

	self := entity.View(u, u)
	assert.Equal(t, "hal@example.com", self["email"])
	assert.NotContains(t, self, "password")

	other := testutil.MustUser(t, ctx, "other")
	assert.NotContains(t, entity.View(u, other), "email")
	assert.NotContains(t, entity.View(u, nil), "email")
}

func TestCreateUser_CollectsRejections(t *testing.T) {
	_, err := domain.CreateUser(context.Background(), entity.Values{
		"user_name": "hal",
		"password":  "p",
		"user_type": "robot",
		"email":     "nope",
		"info_url":  "ftp://example.com",
	})
	assert.Equal(t, [][2]string{
		{"user_type", "robot is not an allowed value"},
		{"email", "must be a valid e-mail address"},
		{"info_url", "must be an absolute http(s) URL"},
	}, pairs(t, err))
}

func TestUser_AboutMeUnlessHuman(t *testing.T) {
	ctx := context.Background()
	values := testutil.UserValues("bot")
	values["user_type"] = string(domain.Dataset)
	u, err := domain.CreateUser(ctx, values)
	require.NoError(t, err)

	assert.Equal(t, [][2]string{{"about_me", "required unless user_type is human"}}, pairs(t, entity.Validate(u)))

	require.NoError(t, entity.Update(u, u, entity.Values{"about_me": "a corpus"}))
	assert.NoError(t, entity.Validate(u))
}

func TestUser_Delete(t *testing.T) {
	ctx := context.Background()
	hal := testutil.MustUser(t, ctx, "hal")
	other := testutil.MustUser(t, ctx, "other")

	assert.True(t, fault.IsPermission(hal.Delete(other)))
	assert.False(t, hal.Deleted())

	require.NoError(t, hal.Delete(hal))
	assert.True(t, hal.Deleted())
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	hal := testutil.MustUser(t, ctx, "hal")

	err := domain.UpdateUser(hal, hal, entity.Values{
		"about_me":  "hello",
		"user_name": "dave",
		"user_type": "dataset",
		"deleted":   true,
	})
	assert.True(t, fault.IsImmutable(err))
	assert.Equal(t, [][2]string{
		{"deleted", "field is immutable"},
		{"user_name", "field is immutable"},
		{"user_type", "field is immutable"},
	}, pairs(t, err))
	assert.Equal(t, "hal", hal.UserName())
	assert.Equal(t, domain.Human, hal.Type())
	assert.False(t, hal.Deleted())
	assert.Empty(t, hal.AboutMe())

	require.NoError(t, domain.UpdateUser(hal, hal, entity.Values{
		"about_me": "hello",
		"password": "new",
		"info_url": "https://example.com/hal",
	}))
	assert.Equal(t, "hello", hal.AboutMe())
	assert.Equal(t, "https://example.com/hal", hal.InfoURL())
}

func TestCreate_RefusesServerFields(t *testing.T) {
	ctx := context.Background()

	values := testutil.UserValues("hal")
	values["deleted"] = true
	values["date_created"] = "2020-01-01T00:00:00Z"
	_, err := domain.CreateUser(ctx, values)
	assert.Equal(t, [][2]string{
		{"date_created", "set by the server"},
		{"deleted", "set by the server"},
	}, pairs(t, err))

	hal := testutil.MustUser(t, ctx, "hal")
	values = testutil.SoundValues("hum")
	values["date_created"] = "2020-01-01T00:00:00Z"
	_, err = domain.CreateSound(ctx, hal, values)
	assert.Equal(t, [][2]string{{"date_created", "set by the server"}}, pairs(t, err))
}

func TestDateCreated_MillisecondPrecision(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 123456789, time.FixedZone("X", 3600))
	want := time.Date(2024, 1, 1, 11, 0, 0, 123000000, time.UTC)

	for _, d := range []entity.Descriptor{domain.UserDateCreated, domain.SoundDateCreated, domain.AnnotationDateCreated} {
		got, err := d.Project(at)
		require.NoError(t, err, d.Name())
		assert.Equal(t, want, got, d.Class().Name())
	}
}

func TestSound_OwnerOnlyWrites(t *testing.T) {
	ctx := context.Background()
	hal := testutil.MustUser(t, ctx, "hal")
	other := testutil.MustUser(t, ctx, "other")
	s := testutil.MustSound(t, ctx, hal, "hum")
	assert.Equal(t, hal.ID(), s.CreatedBy())
	assert.Equal(t, domain.LicenseCC0, s.License())

	assert.True(t, fault.IsPermission(entity.Update(s, other, entity.Values{"title": "mine"})))
	require.NoError(t, entity.Update(s, hal, entity.Values{"title": "drone"}))
	assert.Equal(t, "drone", s.Title())
}

func TestCreateSound_Rejections(t *testing.T) {
	ctx := context.Background()
	hal := testutil.MustUser(t, ctx, "hal")

	_, err := domain.CreateSound(ctx, hal, entity.Values{
		"audio_url":        "not a url",
		"license_type":     "by",
		"title":            "hum",
		"duration_seconds": 0,
		"tags":             []string{"ok", " "},
	})
	assert.Equal(t, [][2]string{
		{"audio_url", "must be an absolute http(s) URL"},
		{"duration_seconds", "must be positive"},
		{"tags", "tag 1 must not be empty"},
	}, pairs(t, err))
}

func TestCreateAnnotation(t *testing.T) {
	ctx := context.Background()
	hal := testutil.MustUser(t, ctx, "hal")
	s := testutil.MustSound(t, ctx, hal, "hum")

	a, err := domain.CreateAnnotation(ctx, hal, s, entity.Values{
		"start_seconds":    2,
		"duration_seconds": 3.5,
		"end_seconds":      100,
		"tags":             []string{"bird"},
	})
	require.NoError(t, err)
	assert.Equal(t, s.ID(), a.SoundID())
	assert.Equal(t, hal.ID(), a.CreatedBy())
	assert.Equal(t, 5.5, a.EndSeconds())
	assert.Equal(t, []string{"bird"}, a.Tags())
	require.NoError(t, entity.Validate(a))

	require.NoError(t, entity.Update(a, hal, entity.Values{"end_seconds": 9}))
	assert.Equal(t, [][2]string{
		{"end_seconds", "must equal start_seconds + duration_seconds (5.5)"},
	}, pairs(t, entity.Validate(a)))
}

func TestCreateAnnotation_Rejections(t *testing.T) {
	ctx := context.Background()
	hal := testutil.MustUser(t, ctx, "hal")
	s := testutil.MustSound(t, ctx, hal, "hum")

	_, err := domain.CreateAnnotation(ctx, hal, s, testutil.AnnotationValues(8, 3))
	assert.Equal(t, [][2]string{
		{"duration_seconds", "annotation ends after the sound (10s)"},
	}, pairs(t, err))

	_, err = domain.CreateAnnotation(ctx, hal, s, testutil.AnnotationValues(-1, 1))
	assert.Equal(t, [][2]string{
		{"start_seconds", "must not be negative"},
	}, pairs(t, err))
}

func TestCollections(t *testing.T) {
	cs := domain.Collections()
	require.Len(t, cs, 3)

	var names []string
	for _, c := range cs {
		names = append(names, c.Name)
		assert.NotNil(t, c.Filter)
	}
	assert.Equal(t, []string{"users", "sounds", "annotations"}, names)

	assert.Equal(t, []repository.Index{
		{Name: "user_name", Unique: true},
		{Name: "email", Unique: true},
		{Name: "user_type"},
		{Name: "date_created"},
	}, cs[0].Indexes)
	assert.Same(t, domain.AnnotationMapper, cs[2].Mapper)
}
