package api

import (
	"context"
	"net/http"

	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/session"
)

var sounds = collection{
	params:  []entity.Descriptor{domain.SoundCreatedBy, domain.SoundLicense},
	filter:  domain.SoundFilter,
	orderBy: []entity.Descriptor{domain.SoundDateCreated, domain.SoundTitle, domain.SoundDuration},
}

func soundLocation(id string) string { return "/sounds/" + id }

func (s *Server) createSound(ctx context.Context, r *request) (*reply, error) {
	var values entity.Values
	if err := r.decode(&values); err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, r, domain.Sounds.Name(), soundLocation, values, domain.SoundAudioURL); err != nil {
		return nil, err
	}
	snd, err := domain.CreateSound(ctx, r.actor, values)
	if err != nil {
		return nil, err
	}
	return &reply{status: http.StatusCreated, location: soundLocation(snd.ID())}, nil
}

func (s *Server) listSounds(ctx context.Context, r *request) (*reply, error) {
	return sounds.list(ctx, r, domain.Sounds.NoCriteria())
}

func (s *Server) listUserSounds(ctx context.Context, r *request) (*reply, error) {
	u, err := liveUser(ctx, r, r.param("id"))
	if err != nil {
		return nil, err
	}
	return sounds.list(ctx, r, domain.SoundCreatedBy.Eq(u.ID()))
}

func soundByID(ctx context.Context, r *request, id string) (*domain.Sound, error) {
	return session.One[*domain.Sound](ctx, r.session, domain.Sounds.ID().Eq(id))
}

func (s *Server) getSound(ctx context.Context, r *request) (*reply, error) {
	snd, err := soundByID(ctx, r, r.param("id"))
	if err != nil {
		return nil, err
	}
	return &reply{status: http.StatusOK, body: entity.View(snd, r.viewer())}, nil
}
