package querymem_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
	"github.com/JohnVinyard/annotate-api-sub000/internal/querymem"
)

func TestCompile(t *testing.T) {
	hash, err := domain.HashPassword("secret")
	require.NoError(t, err)
	rec := map[string]any{
		"_id":       "u-1",
		"user_name": "hal",
		"password":  hash,
		"user_type": "human",
		"email":     "hal@example.com",
		"about_me":  "hal@example.com",
		"deleted":   false,
	}

	tests := []struct {
		name string
		q    query.Query
		want bool
	}{
		{name: "no criteria", q: domain.Users.NoCriteria(), want: true},
		{name: "identity", q: domain.Users.ID().Eq("u-1"), want: true},
		{name: "plain password matches stored hash", q: domain.UserPassword.Eq("secret"), want: true},
		{name: "wrong password", q: domain.UserPassword.Eq("Secret"), want: false},
		{name: "name is normalized", q: domain.UserName.Eq("  hal "), want: true},
		{name: "enum", q: domain.UserKind.Eq(domain.Human), want: true},
		{name: "not equal", q: domain.UserKind.Neq(domain.Dataset), want: true},
		{name: "and", q: query.AllOf(domain.UserName.Eq("hal"), domain.UserDeleted.Eq(true)), want: false},
		{name: "or", q: query.AnyOf(domain.UserName.Eq("sal"), domain.UserDeleted.Eq(false)), want: true},
		{name: "field reference", q: query.SameAs(domain.UserEmail, domain.UserAboutMe), want: true},
		{name: "missing attribute", q: domain.UserInfoURL.Eq("https://x.example"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := querymem.Compile(tt.q, domain.UserMapper)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pred(rec))
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	_, err := querymem.Compile(nil, domain.UserMapper)
	assert.Error(t, err)

	_, err = querymem.Compile(domain.SoundTitle.Eq("rain"), domain.UserMapper)
	assert.Error(t, err)

	_, err = querymem.Compile(query.Equal(domain.UserKind, "robot"), domain.UserMapper)
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, querymem.Equal(t0, t0.In(time.FixedZone("x", 3600))))
	assert.True(t, querymem.Equal(int64(3), 3.0))
	assert.False(t, querymem.Equal("3", 3))
	assert.True(t, querymem.Equal([]string{"a"}, []string{"a"}))
	assert.False(t, querymem.Equal(nil, ""))
}

func TestCompare(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, -1, querymem.Compare(nil, "a"))
	assert.Equal(t, 1, querymem.Compare("b", nil))
	assert.Equal(t, 0, querymem.Compare(nil, nil))
	assert.Equal(t, -1, querymem.Compare(1, 2.5))
	assert.Equal(t, 1, querymem.Compare("b", "a"))
	assert.Equal(t, -1, querymem.Compare(false, true))
	assert.Equal(t, 1, querymem.Compare(t0.Add(time.Second), t0))
	assert.Equal(t, querymem.Compare("a", 1), -querymem.Compare(1, "a"))
}
