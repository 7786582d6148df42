package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/testutil"
)

type credentials struct{ user, password string }

var hal = credentials{"hal", "hal-password"}

type client struct {
	t   *testing.T
	srv http.Handler
}

func newClient(t *testing.T, opts Options) *client {
	t.Helper()
	testutil.FreezeClock(t)
	if opts.Registry == nil {
		opts.Registry = testutil.Registry()
	}
	if opts.IDs == nil {
		opts.IDs = entity.NewSequenceGenerator("id")
	}
	return &client{t: t, srv: NewServer(opts)}
}

func (c *client) do(method, path string, body any, auth *credentials) *httptest.ResponseRecorder {
	c.t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(c.t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if auth != nil {
		req.SetBasicAuth(auth.user, auth.password)
	}
	rec := httptest.NewRecorder()
	c.srv.ServeHTTP(rec, req)
	return rec
}

func (c *client) register(name string) string {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/users", testutil.UserValues(name), nil)
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
	return rec.Header().Get("Location")
}

func (c *client) publish(auth credentials, title string) string {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/sounds", testutil.SoundValues(title), &auth)
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
	return rec.Header().Get("Location")
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func pairsOf(pairs ...string) []any {
	var out []any
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, []any{pairs[i], pairs[i+1]})
	}
	return out
}

func TestCreateUser(t *testing.T) {
	c := newClient(t, Options{})

	assert.Equal(t, "/users/id-000001", c.register("hal"))

	rec := c.do(http.MethodGet, "/users/id-000001", nil, &hal)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec).(map[string]any)
	assert.Equal(t, "hal", body["user_name"])
	assert.Equal(t, "hal@example.com", body["email"])
	assert.NotContains(t, body, "password")
}

func TestCreateUser_Duplicate(t *testing.T) {
	c := newClient(t, Options{})
	c.register("hal")

	values := testutil.UserValues("other")
	values["email"] = "HAL@example.com"
	rec := c.do(http.MethodPost, "/users", values, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "/users/id-000001", rec.Header().Get("Location"))
	assert.Equal(t, pairsOf("", "entity already exists"), decodeBody(t, rec))
}

func TestCreateUser_EmailNotAllowed(t *testing.T) {
	c := newClient(t, Options{AllowEmail: func(addr string) bool { return strings.HasSuffix(addr, "@corp.example") }})

	rec := c.do(http.MethodPost, "/users", testutil.UserValues("hal"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, pairsOf("email", "email address is not allowed to register"), decodeBody(t, rec))
}

func TestCreateUser_MalformedBody(t *testing.T) {
	c := newClient(t, Options{})

	rec := c.do(http.MethodPost, "/users", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, pairsOf("body", "request body is empty"), decodeBody(t, rec))

	rec = c.do(http.MethodPost, "/users", "{", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthentication(t *testing.T) {
	c := newClient(t, Options{})
	c.register("hal")

	rec := c.do(http.MethodGet, "/users", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="annotate"`, rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, pairsOf("", "credentials required"), decodeBody(t, rec))

	wrong := credentials{"hal", "nope"}
	rec = c.do(http.MethodGet, "/users", nil, &wrong)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, pairsOf("", "invalid credentials"), decodeBody(t, rec))

	rec = c.do(http.MethodGet, "/", nil, &wrong)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.do(http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteUser(t *testing.T) {
	c := newClient(t, Options{})
	c.register("hal")
	c.register("other")
	other := credentials{"other", "other-password"}

	rec := c.do(http.MethodDelete, "/users/id-000001", nil, &other)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, pairsOf("deleted", "permission denied"), decodeBody(t, rec))

	rec = c.do(http.MethodDelete, "/users/id-000001", nil, &hal)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = c.do(http.MethodGet, "/users/id-000001", nil, &other)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, pairsOf("", "not found"), decodeBody(t, rec))

	rec = c.do(http.MethodGet, "/users", nil, &hal)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateUser(t *testing.T) {
	c := newClient(t, Options{})
	c.register("hal")

	rec := c.do(http.MethodPatch, "/users/id-000001", map[string]any{"about_me": "hello"}, &hal)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = c.do(http.MethodPatch, "/users/id-000001", map[string]any{"email": "new@example.com"}, &hal)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, pairsOf("email", "field is immutable"), decodeBody(t, rec))

	rec = c.do(http.MethodGet, "/users/id-000001", nil, &hal)
	assert.Equal(t, "hello", decodeBody(t, rec).(map[string]any)["about_me"])
}

func TestUpdateUser_OnlyProfileFields(t *testing.T) {
	c := newClient(t, Options{})
	c.register("hal")

	for name, body := range map[string]map[string]any{
		"rename":    {"user_name": "dave"},
		"retype":    {"user_type": "dataset", "about_me": "bot"},
		"self-hide": {"deleted": true},
	} {
		t.Run(name, func(t *testing.T) {
			rec := c.do(http.MethodPatch, "/users/id-000001", body, &hal)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			for _, pair := range decodeBody(t, rec).([]any) {
				assert.Equal(t, "field is immutable", pair.([]any)[1])
				assert.NotEqual(t, "about_me", pair.([]any)[0])
			}
		})
	}

	rec := c.do(http.MethodGet, "/users/id-000001", nil, &hal)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decodeBody(t, rec).(map[string]any)
	assert.Equal(t, "hal", stored["user_name"])
	assert.Equal(t, "human", stored["user_type"])
	assert.Equal(t, false, stored["deleted"])
	assert.Equal(t, "", stored["about_me"])
}

func TestCreateUser_RefusesServerFields(t *testing.T) {
	c := newClient(t, Options{})

	values := testutil.UserValues("hal")
	values["deleted"] = true
	rec := c.do(http.MethodPost, "/users", values, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, pairsOf("deleted", "set by the server"), decodeBody(t, rec))

	values = testutil.UserValues("hal")
	values["date_created"] = "2020-01-01T00:00:00Z"
	rec = c.do(http.MethodPost, "/users", values, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, pairsOf("date_created", "set by the server"), decodeBody(t, rec))
}

func TestCreateUser_NameHeldByDeletedUser(t *testing.T) {
	c := newClient(t, Options{})
	c.register("hal")
	require.Equal(t, http.StatusNoContent, c.do(http.MethodDelete, "/users/id-000001", nil, &hal).Code)

	rec := c.do(http.MethodPost, "/users", testutil.UserValues("hal"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	assert.Equal(t, pairsOf("", "entity already exists"), decodeBody(t, rec))
}

func TestListSounds_Paging(t *testing.T) {
	c := newClient(t, Options{})
	c.register("hal")
	for _, title := range []string{"c", "a", "b"} {
		c.publish(hal, title)
	}

	rec := c.do(http.MethodGet, "/sounds?page_size=2&order_by=title", nil, &hal)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec).(map[string]any)
	assert.Equal(t, 3.0, body["total_count"])
	assert.Equal(t, "/sounds?order_by=title&page_number=1&page_size=2", body["next"])
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].(map[string]any)["title"])
	assert.Equal(t, "b", items[1].(map[string]any)["title"])

	rec = c.do(http.MethodGet, "/sounds?page_size=2&page_number=1&order_by=title", nil, &hal)
	body = decodeBody(t, rec).(map[string]any)
	assert.NotContains(t, body, "next")
	assert.Len(t, body["items"], 1)

	rec = c.do(http.MethodGet, "/sounds?page_number=5", nil, &hal)
	body = decodeBody(t, rec).(map[string]any)
	assert.Equal(t, []any{}, body["items"])
}

func TestListSounds_BadArguments(t *testing.T) {
	c := newClient(t, Options{})
	c.register("hal")

	tests := []struct {
		query string
		want  []any
	}{
		{"page_size=0", pairsOf("page_size", "must be between 1 and 500")},
		{"page_size=501", pairsOf("page_size", "must be between 1 and 500")},
		{"page_size=x", pairsOf("page_size", "page_size must be an integer")},
		{"page_number=-1", pairsOf("page_number", "must not be negative")},
		{"order_by=audio_url", pairsOf("order_by", `cannot order by "audio_url"`)},
		{"order_by=title+sideways", pairsOf("order_by", `unknown direction "sideways"`)},
		{"license_type=gpl", pairsOf("license_type", "gpl is not an allowed value")},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := c.do(http.MethodGet, "/sounds?"+tt.query, nil, &hal)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decodeBody(t, rec))
		})
	}

	rec := c.do(http.MethodGet, "/sounds?filter=title+%3E", nil, &hal)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "filter", decodeBody(t, rec).([]any)[0].([]any)[0])
}

func TestCreateAnnotations(t *testing.T) {
	c := newClient(t, Options{})
	c.register("hal")
	sound := c.publish(hal, "hum")

	rec := c.do(http.MethodPost, sound+"/annotations", map[string]any{"annotations": []any{}}, &hal)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, pairsOf("annotations", "at least one annotation is required"), decodeBody(t, rec))

	rec = c.do(http.MethodPost, "/sounds/missing/annotations",
		map[string]any{"annotations": []any{testutil.AnnotationValues(0, 1)}}, &hal)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = c.do(http.MethodPost, sound+"/annotations", map[string]any{"annotations": []any{
		testutil.AnnotationValues(0, 1, "bird"),
		testutil.AnnotationValues(2, 1),
	}}, &hal)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = c.do(http.MethodGet, sound+"/annotations?order_by=start_seconds+desc", nil, &hal)
	body := decodeBody(t, rec).(map[string]any)
	assert.Equal(t, 2.0, body["total_count"])
	assert.Equal(t, 2.0, body["items"].([]any)[0].(map[string]any)["start_seconds"])

	rec = c.do(http.MethodGet, "/users/id-000001/annotations", nil, &hal)
	assert.Equal(t, 2.0, decodeBody(t, rec).(map[string]any)["total_count"])
}

func TestStatsAndReset(t *testing.T) {
	c := newClient(t, Options{})
	c.register("hal")
	c.publish(hal, "hum")

	rec := c.do(http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"totalSounds": 1.0, "totalAnnotations": 0.0, "totalUsers": 1.0}, decodeBody(t, rec))

	rec = c.do(http.MethodDelete, "/", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	dev := newClient(t, Options{Dev: true})
	dev.register("hal")
	rec = dev.do(http.MethodDelete, "/", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = dev.do(http.MethodGet, "/", nil, nil)
	assert.Equal(t, map[string]any{"totalSounds": 0.0, "totalAnnotations": 0.0, "totalUsers": 0.0}, decodeBody(t, rec))
}

func TestRateLimit(t *testing.T) {
	c := newClient(t, Options{RateLimit: 0.001, RateBurst: 1})

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/", nil, nil).Code)
	rec := c.do(http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, pairsOf("", "rate limit exceeded"), decodeBody(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	other := httptest.NewRecorder()
	c.srv.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	c := newClient(t, Options{})
	c.do(http.MethodGet, "/", nil, nil)

	rec := c.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `annotate_http_requests_total{method="GET",route="/",status="200"}`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fault.Unauthenticated("x"), http.StatusUnauthorized},
		{fault.Validation("User", []fault.FieldError{
			{Field: "user_name", Err: fault.Invalid("User", "user_name", "required")},
			{Field: "deleted", Err: fault.Permission("User", "deleted")},
		}), http.StatusForbidden},
		{fault.NotFound("User"), http.StatusNotFound},
		{fault.Duplicate("User", nil), http.StatusConflict},
		{fault.Backend("upsert", errors.New("disk")), http.StatusInternalServerError},
		{fault.Argument("page_size", "bad"), http.StatusBadRequest},
		{fault.Immutable("User", "email"), http.StatusBadRequest},
		{&fault.Error{Code: fault.CodeAmbiguousQuery}, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestWriteError_HidesServerFailures(t *testing.T) {
	s := NewServer(Options{Registry: testutil.Registry()})
	rec := httptest.NewRecorder()
	s.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec).(map[string]any)
	assert.NotEmpty(t, body["correlation_id"])
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}
