package api

import (
	"context"
	"net/http"

	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
	"github.com/JohnVinyard/annotate-api-sub000/internal/session"
)

var users = collection{
	params:  []entity.Descriptor{domain.UserName, domain.UserKind},
	filter:  domain.UserFilter,
	orderBy: []entity.Descriptor{domain.UserDateCreated, domain.UserName},
}

func userLocation(id string) string { return "/users/" + id }

func (s *Server) createUser(ctx context.Context, r *request) (*reply, error) {
	var values entity.Values
	if err := r.decode(&values); err != nil {
		return nil, err
	}
	if email, ok := values[domain.UserEmail.Name()].(string); ok && !s.allowEmail(email) {
		return nil, fault.Validation(domain.Users.Name(), []fault.FieldError{{
			Field: domain.UserEmail.Name(),
			Err:   fault.Invalid(domain.Users.Name(), domain.UserEmail.Name(), "email address is not allowed to register"),
		}})
	}
	if err := s.ensureUnique(ctx, r, domain.Users.Name(), userLocation, values, domain.UserName, domain.UserEmail); err != nil {
		return nil, err
	}

	u, err := domain.CreateUser(ctx, values)
	if err != nil {
		return nil, err
	}
	return &reply{status: http.StatusCreated, location: userLocation(u.ID())}, nil
}

// ensureUnique looks for a stored entity already holding one of the unique
// values, and reports it as a duplicate located at locate(id). Values that
// do not project cleanly are left for the create to reject. Deleted users
// keep their names and addresses but have no location to point at.
func (s *Server) ensureUnique(ctx context.Context, r *request, class string, locate func(string) string, values entity.Values, unique ...entity.Descriptor) error {
	var alternatives []query.Query
	for _, d := range unique {
		raw, ok := values[d.Name()]
		if !ok {
			continue
		}
		if _, err := d.Project(raw); err != nil {
			continue
		}
		alternatives = append(alternatives, query.Equal(d, raw))
	}
	if len(alternatives) == 0 {
		return nil
	}
	existing, err := r.session.Get(ctx, query.AnyOf(alternatives...))
	switch {
	case fault.IsNotFound(err):
		return nil
	case err != nil:
		return err
	}
	if u, ok := existing.(*domain.User); ok && u.Deleted() {
		return fault.Duplicate(class, nil)
	}
	return fault.DuplicateAt(class, locate(existing.StorageKey()))
}

func (s *Server) listUsers(ctx context.Context, r *request) (*reply, error) {
	return users.list(ctx, r, domain.UserDeleted.Eq(false))
}

// liveUser fetches a user that has not been deleted.
func liveUser(ctx context.Context, r *request, id string) (*domain.User, error) {
	return session.One[*domain.User](ctx, r.session, query.AllOf(
		domain.Users.ID().Eq(id),
		domain.UserDeleted.Eq(false),
	))
}

func (s *Server) getUser(ctx context.Context, r *request) (*reply, error) {
	u, err := liveUser(ctx, r, r.param("id"))
	if err != nil {
		return nil, err
	}
	return &reply{status: http.StatusOK, body: entity.View(u, r.viewer())}, nil
}

func (s *Server) updateUser(ctx context.Context, r *request) (*reply, error) {
	u, err := liveUser(ctx, r, r.param("id"))
	if err != nil {
		return nil, err
	}
	var values entity.Values
	if err := r.decode(&values); err != nil {
		return nil, err
	}
	if err := domain.UpdateUser(u, r.viewer(), values); err != nil {
		return nil, err
	}
	return &reply{status: http.StatusNoContent}, nil
}

func (s *Server) deleteUser(ctx context.Context, r *request) (*reply, error) {
	u, err := liveUser(ctx, r, r.param("id"))
	if err != nil {
		return nil, err
	}
	if err := u.Delete(r.viewer()); err != nil {
		return nil, err
	}
	return &reply{status: http.StatusNoContent}, nil
}
