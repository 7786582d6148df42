package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	"github.com/JohnVinyard/annotate-api-sub000/internal/api"
	"github.com/JohnVinyard/annotate-api-sub000/internal/config"
	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
	"github.com/JohnVinyard/annotate-api-sub000/internal/store"
	"github.com/JohnVinyard/annotate-api-sub000/internal/testutil"
)

// Harness holds the per-run fixtures.
type Harness struct {
	registry *repository.Registry
	server   http.Handler
	closers  []func() error

	// lastHeaders are the headers of the latest response.
	lastHeaders http.Header
}

// Run executes a scenario against a fresh backend and returns the result.
// Failed expectations are reported in the result; the error is reserved
// for fixture failures.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	clock := testutil.NewClock(testutil.Epoch, time.Second)
	previous := entity.Clock
	entity.Clock = clock.Now
	defer func() { entity.Clock = previous }()

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.send(step.Request)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Name, err)
		}
		ev.Step = step.Name
		result.AddTrace(ev)
		if step.Expect != nil {
			for _, msg := range checkExpect(ev, h.lastHeaders, *step.Expect) {
				result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Name, msg))
			}
		}
	}

	ctx := context.Background()
	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

func newHarness(s *Scenario) (*Harness, error) {
	h := &Harness{}
	switch s.Backend {
	case "sqlite":
		st, err := store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		h.closers = append(h.closers, st.Close)
		var repos []repository.Repository
		for _, c := range domain.Collections() {
			repo, err := store.NewRepository(context.Background(), st, c.Name, c.Mapper, c.Indexes...)
			if err != nil {
				h.close()
				return nil, err
			}
			repos = append(repos, repo)
		}
		h.registry = repository.NewRegistry(repos...)
	default:
		h.registry = testutil.Registry()
	}

	cfg := config.Config{EmailWhitelist: s.EmailWhitelist}
	h.server = api.NewServer(api.Options{
		Registry:   h.registry,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Dev:        s.Dev,
		AllowEmail: cfg.AllowsEmail,
		IDs:        entity.NewSequenceGenerator("id"),
	})
	return h, nil
}

func (h *Harness) close() {
	for _, c := range h.closers {
		_ = c()
	}
}

// send performs one request and decodes the JSON response, if any.
func (h *Harness) send(req Request) (TraceEvent, error) {
	target := req.Path
	if len(req.Query) > 0 {
		values := url.Values{}
		for k, v := range req.Query {
			values.Set(k, v)
		}
		target += "?" + values.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return TraceEvent{}, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(req.Method, target, body)
	if req.Body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.Auth != nil {
		r.SetBasicAuth(req.Auth.User, req.Auth.Password)
	}

	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, r)

	ev := TraceEvent{
		Method:   req.Method,
		Path:     target,
		Status:   rec.Code,
		Location: rec.Header().Get("Location"),
	}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &ev.Body); err != nil {
			return TraceEvent{}, fmt.Errorf("decode response %q: %w", rec.Body.String(), err)
		}
	}
	h.lastHeaders = rec.Header()
	return ev, nil
}
