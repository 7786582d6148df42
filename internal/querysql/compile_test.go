package querysql_test

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
	"github.com/JohnVinyard/annotate-api-sub000/internal/mapper"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
	"github.com/JohnVinyard/annotate-api-sub000/internal/querysql"
)

// TestCompile_Golden pins the SQL each query compiles to. Regenerate with:
//
//	go test ./internal/querysql -update
func TestCompile_Golden(t *testing.T) {
	tests := []struct {
		name   string
		table  string
		schema *mapper.Mapper
		q      query.Query
		sort   *query.Sort
		limit  int
		offset int
	}{
		{
			name:   "user_credentials",
			table:  "users",
			schema: domain.UserMapper,
			q:      query.AllOf(domain.UserName.Eq(" Hal "), domain.UserPassword.Eq("p")),
			limit:  50,
		},
		{
			name:   "sounds_by_license",
			table:  "sounds",
			schema: domain.SoundMapper,
			q:      query.AllOf(domain.SoundLicense.Eq(domain.LicenseBY), domain.SoundTitle.Neq("x")),
			sort:   domain.SoundDuration.Descending(),
			limit:  10,
			offset: 20,
		},
		{
			name:   "annotation_by_time_or_id",
			table:  "annotations",
			schema: domain.AnnotationMapper,
			q: query.AnyOf(
				domain.AnnotationDateCreated.Eq(time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)),
				domain.Annotations.ID().Eq("id-000003"),
			),
			sort:  domain.Annotations.ID().Descending(),
			limit: 5,
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := querysql.NewSQLCompiler(tt.table, tt.schema.IdentityName())
			sql, params, err := c.Compile(tt.q, tt.schema, tt.sort, tt.limit, tt.offset)
			require.NoError(t, err)
			g.Assert(t, tt.name, []byte(querysql.Describe(sql, params)))
		})
	}
}

func TestCount(t *testing.T) {
	c := querysql.NewSQLCompiler("sounds", mapper.IdentityName)

	sql, params, err := c.Count(domain.Sounds.NoCriteria(), domain.SoundMapper)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM sounds WHERE 1 = 1", sql)
	assert.Empty(t, params)

	sql, params, err = c.Count(domain.SoundTags.Eq([]string{"a", "b"}), domain.SoundMapper)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM sounds WHERE json_extract(doc, '$.tags') IS ?", sql)
	assert.Equal(t, []any{`["a","b"]`}, params)
}

func TestWhere_FieldReference(t *testing.T) {
	c := querysql.NewSQLCompiler("sounds", mapper.IdentityName)

	sql, params, err := c.Where(query.SameAs(domain.SoundAudioURL, domain.SoundLowQualityAudioURL), domain.SoundMapper)
	require.NoError(t, err)
	assert.Equal(t, "json_extract(doc, '$.audio_url') IS json_extract(doc, '$.low_quality_audio_url')", sql)
	assert.Empty(t, params)
}

func TestWhere_Errors(t *testing.T) {
	c := querysql.NewSQLCompiler("users", mapper.IdentityName)

	_, _, err := c.Where(nil, domain.UserMapper)
	assert.Error(t, err)

	_, _, err = c.Where(domain.SoundTitle.Eq("rain"), domain.UserMapper)
	assert.Error(t, err)
}

func TestExtract(t *testing.T) {
	expr, err := querysql.Extract("user_name")
	require.NoError(t, err)
	assert.Equal(t, "json_extract(doc, '$.user_name')", expr)

	_, err = querysql.Extract("name'); DROP TABLE users; --")
	assert.Error(t, err)
}

func TestParam(t *testing.T) {
	v, err := querysql.Param(time.Date(2024, 1, 1, 1, 0, 0, 5, time.FixedZone("x", 3600)))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00.000000005Z", v)

	v, err = querysql.Param(true)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = querysql.Param(struct{}{})
	assert.Error(t, err)
}
