package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/metrics"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
	"github.com/JohnVinyard/annotate-api-sub000/internal/session"
)

const maxBodyBytes = 8 << 20

type access int

const (
	anonymous access = iota
	authenticated
)

// request is what an endpoint sees: the HTTP request, the open session and
// the authenticated caller, if any.
type request struct {
	*http.Request
	session *session.Session
	actor   *domain.User
}

// viewer returns the actor as an entity, or a nil interface when the caller
// is anonymous.
func (r *request) viewer() entity.Entity {
	if r.actor == nil {
		return nil
	}
	return r.actor
}

func (r *request) param(name string) string {
	return mux.Vars(r.Request)[name]
}

// decode reads a JSON body into v.
func (r *request) decode(v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fault.Argument("body", "request body is empty")
		}
		return fault.Argument("body", "malformed JSON: "+err.Error())
	}
	return nil
}

// reply is a successful response.
type reply struct {
	status   int
	location string
	body     any
}

type endpoint func(ctx context.Context, r *request) (*reply, error)

// handle runs fn inside a session. The session commits only when fn
// succeeds; the reply is written after the commit so a conflicting write
// still turns into an error response.
func (s *Server) handle(level access, fn endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.ids != nil {
			ctx = entity.WithIDGenerator(ctx, s.ids)
		}
		ctx, sess, err := session.Open(ctx, s.registry,
			session.WithLogger(s.log),
			session.WithObserver(metrics.SessionObserver{}))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		defer sess.Abort()

		req := &request{Request: r.WithContext(ctx), session: sess}
		req.actor, err = s.authenticate(ctx, req, level)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		out, err := fn(ctx, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := sess.Close(ctx); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeReply(w, out)
	}
}

// authenticate resolves Basic credentials to a live user. Anonymous routes
// still resolve credentials when they are sent.
func (s *Server) authenticate(ctx context.Context, r *request, level access) (*domain.User, error) {
	name, password, ok := r.BasicAuth()
	if !ok {
		if level == authenticated {
			return nil, fault.Unauthenticated("credentials required")
		}
		return nil, nil
	}
	q := query.AllOf(
		domain.UserName.Eq(name),
		domain.UserPassword.Eq(password),
		domain.UserDeleted.Eq(false),
	)
	u, err := session.One[*domain.User](ctx, r.session, q)
	switch {
	case fault.IsNotFound(err):
		return nil, fault.Unauthenticated("invalid credentials")
	case err != nil:
		return nil, err
	}
	return u, nil
}

func (s *Server) writeReply(w http.ResponseWriter, out *reply) {
	if out.location != "" {
		w.Header().Set("Location", out.location)
	}
	if out.body == nil {
		w.WriteHeader(out.status)
		return
	}
	writeJSON(w, out.status, out.body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
