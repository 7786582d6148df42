package query

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
)

type testField struct {
	name, owner string
}

func (f testField) Name() string  { return f.name }
func (f testField) Owner() string { return f.owner }

func (f testField) Project(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, errors.New("not a string")
	}
	return strings.ToLower(s), nil
}

type prefixSchema struct{}

func (prefixSchema) StorageName(f Field) (string, error) { return "s_" + f.Name(), nil }
func (prefixSchema) ToStorage(_ Field, v any) (any, error) {
	return "stored:" + v.(string), nil
}

var (
	userName  = testField{name: "user_name", owner: "User"}
	userEmail = testField{name: "email", owner: "User"}
	soundName = testField{name: "title", owner: "Sound"}
)

func TestAllOf_AbsorbsNoCriteria(t *testing.T) {
	q := Equal(userName, "hal")

	assert.Equal(t, q, AllOf(NoCriteria{Class: "User"}, q))
	assert.Equal(t, q, AllOf(q, NoCriteria{Class: "User"}))
	assert.Equal(t, NoCriteria{Class: "User"}, AllOf(NoCriteria{Class: "User"}))
}

func TestAllOf_KeepsForeignNoCriteria(t *testing.T) {
	q := AllOf(NoCriteria{Class: "Sound"}, Equal(userName, "hal"))

	_, ok := q.(And)
	require.True(t, ok, "mixed classes must stay visible, got %T", q)
	_, err := EntityClass(q)
	assert.True(t, fault.IsQuery(err))
}

func TestAllOf_SkipsNil(t *testing.T) {
	assert.Nil(t, AllOf())
	assert.Equal(t, Equal(userName, "hal"), AllOf(nil, Equal(userName, "hal"), nil))
}

func TestAnyOf_FoldsLeft(t *testing.T) {
	a, b, c := Equal(userName, "a"), Equal(userName, "b"), Equal(userName, "c")

	assert.Equal(t, Or{Left: Or{Left: a, Right: b}, Right: c}, AnyOf(a, b, c))
	assert.Equal(t, a, AnyOf(nil, a))
}

func TestEntityClass(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want string
		code fault.Code
	}{
		{name: "single leaf", q: Equal(userName, "hal"), want: "User"},
		{name: "conjunction", q: AllOf(Equal(userName, "hal"), NotEqual(userEmail, "x")), want: "User"},
		{name: "field reference", q: SameAs(userName, userEmail), want: "User"},
		{name: "no criteria", q: NoCriteria{Class: "Sound"}, want: "Sound"},
		{name: "mixed", q: AnyOf(Equal(userName, "hal"), Equal(soundName, "rain")), code: fault.CodeAmbiguousQuery},
		{name: "mixed reference", q: SameAs(userName, soundName), code: fault.CodeAmbiguousQuery},
		{name: "untargeted", q: NoCriteria{}, code: fault.CodeUntargetedQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EntityClass(tt.q)
			if tt.code != "" {
				require.Error(t, err)
				code, ok := fault.CodeOf(err)
				require.True(t, ok)
				assert.Equal(t, tt.code, code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntityClass_FieldlessLeaf(t *testing.T) {
	_, err := EntityClass(Eq{Operand: Literal{Value: 1}})
	assert.True(t, fault.IsArgument(err))
}

func TestStorageLiteral(t *testing.T) {
	v, err := StorageLiteral(prefixSchema{}, userName, "HAL")
	require.NoError(t, err)
	assert.Equal(t, "stored:hal", v)

	_, err = StorageLiteral(prefixSchema{}, userName, 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project User.user_name")
}

func TestDirection_String(t *testing.T) {
	assert.Equal(t, "asc", Ascending.String())
	assert.Equal(t, "desc", Descending.String())
}
