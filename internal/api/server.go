// Package api serves the annotation service over HTTP.
//
// Every route runs inside one session: the handler opens it, authenticates
// the caller against the user store, runs the endpoint and commits. Any
// error aborts the session, so a request either persists all of its writes
// or none of them.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/metrics"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
)

// Options configures a Server.
type Options struct {
	Registry *repository.Registry
	Logger   *slog.Logger

	// Dev enables DELETE / for wiping every collection.
	Dev bool

	// AllowEmail gates user registration. Nil allows every address.
	AllowEmail func(addr string) bool

	// RateLimit is the sustained requests per second allowed per client;
	// zero disables limiting.
	RateLimit float64
	RateBurst int

	// IDs overrides identity generation, for reproducible tests.
	IDs entity.IDGenerator
}

// Server is the HTTP front of the service.
type Server struct {
	registry   *repository.Registry
	log        *slog.Logger
	dev        bool
	allowEmail func(string) bool
	ids        entity.IDGenerator
	router     *mux.Router
}

// NewServer wires the routes.
func NewServer(opts Options) *Server {
	s := &Server{
		registry:   opts.Registry,
		log:        opts.Logger,
		dev:        opts.Dev,
		allowEmail: opts.AllowEmail,
		ids:        opts.IDs,
		router:     mux.NewRouter(),
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.allowEmail == nil {
		s.allowEmail = func(string) bool { return true }
	}

	r := s.router
	r.Use(metrics.Middleware)
	if opts.RateLimit > 0 {
		r.Use(newRateLimiter(opts.RateLimit, opts.RateBurst, s.log).Handler)
	}

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/", s.handle(anonymous, s.stats)).Methods(http.MethodGet)
	r.HandleFunc("/", s.handle(anonymous, s.reset)).Methods(http.MethodDelete)

	r.HandleFunc("/users", s.handle(anonymous, s.createUser)).Methods(http.MethodPost)
	r.HandleFunc("/users", s.handle(authenticated, s.listUsers)).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", s.handle(authenticated, s.getUser)).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", s.handle(authenticated, s.updateUser)).Methods(http.MethodPatch)
	r.HandleFunc("/users/{id}", s.handle(authenticated, s.deleteUser)).Methods(http.MethodDelete)
	r.HandleFunc("/users/{id}/sounds", s.handle(authenticated, s.listUserSounds)).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/annotations", s.handle(authenticated, s.listUserAnnotations)).Methods(http.MethodGet)

	r.HandleFunc("/sounds", s.handle(authenticated, s.createSound)).Methods(http.MethodPost)
	r.HandleFunc("/sounds", s.handle(authenticated, s.listSounds)).Methods(http.MethodGet)
	r.HandleFunc("/sounds/{id}", s.handle(authenticated, s.getSound)).Methods(http.MethodGet)
	r.HandleFunc("/sounds/{id}/annotations", s.handle(authenticated, s.createAnnotations)).Methods(http.MethodPost)
	r.HandleFunc("/sounds/{id}/annotations", s.handle(authenticated, s.listSoundAnnotations)).Methods(http.MethodGet)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
