package api

import (
	"context"
	"net/http"

	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
)

type totals struct {
	TotalSounds      int `json:"totalSounds"`
	TotalAnnotations int `json:"totalAnnotations"`
	TotalUsers       int `json:"totalUsers"`
}

func (s *Server) stats(ctx context.Context, _ *request) (*reply, error) {
	var out totals
	for class, n := range map[string]*int{
		domain.Sounds.Name():      &out.TotalSounds,
		domain.Annotations.Name(): &out.TotalAnnotations,
		domain.Users.Name():       &out.TotalUsers,
	} {
		repo, err := s.registry.For(class)
		if err != nil {
			return nil, err
		}
		if *n, err = repo.Len(ctx); err != nil {
			return nil, err
		}
	}
	return &reply{status: http.StatusOK, body: out}, nil
}

// reset wipes every collection. Outside dev mode the route does not exist.
func (s *Server) reset(ctx context.Context, _ *request) (*reply, error) {
	if !s.dev {
		return nil, fault.NotFound("")
	}
	for _, repo := range s.registry.All() {
		if err := repo.DeleteAll(ctx); err != nil {
			return nil, err
		}
	}
	s.log.Warn("all collections deleted")
	return &reply{status: http.StatusNoContent}, nil
}
