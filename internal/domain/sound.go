package domain

import (
	"context"
	"time"

	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
)

// LicenseType identifies the Creative Commons licence of a sound.
type LicenseType string

const (
	LicenseCC0    LicenseType = "cc0"
	LicenseBY     LicenseType = "by"
	LicenseBYSA   LicenseType = "by-sa"
	LicenseBYNC   LicenseType = "by-nc"
	LicenseBYND   LicenseType = "by-nd"
	LicenseBYNCSA LicenseType = "by-nc-sa"
	LicenseBYNCND LicenseType = "by-nc-nd"
)

// LicenseTypes lists every LicenseType.
var LicenseTypes = []LicenseType{
	LicenseCC0, LicenseBY, LicenseBYSA, LicenseBYNC, LicenseBYND, LicenseBYNCSA, LicenseBYNCND,
}

// Sounds is the sound entity class.
var Sounds = entity.NewClass("Sound", func() entity.Entity { return new(Sound) })

// SoundCreatedBy holds the identity of the publishing user. It is declared
// before the fields it guards so creation assigns it first.
var SoundCreatedBy = entity.NewField(Sounds, "created_by", entity.Options[string]{
	Required:  true,
	Immutable: true,
})

var soundOwner = entity.OwnedBy(SoundCreatedBy)

var (
	SoundDateCreated = entity.NewField(Sounds, "date_created", entity.Options[time.Time]{
		Default:   now,
		Immutable: true,
		Transform: storedTime,
	})
	SoundAudioURL = entity.NewField(Sounds, "audio_url", entity.Options[string]{
		Required: true,
		Validate: absoluteURL,
		Mutable:  soundOwner,
	})
	SoundLowQualityAudioURL = entity.NewField(Sounds, "low_quality_audio_url", entity.Options[string]{
		Validate: optionalURL,
		Mutable:  soundOwner,
	})
	SoundInfoURL = entity.NewField(Sounds, "info_url", entity.Options[string]{
		Validate: optionalURL,
		Mutable:  soundOwner,
	})
	SoundLicense = entity.NewEnum(Sounds, "license_type", entity.Options[LicenseType]{
		Required: true,
		Mutable:  soundOwner,
	}, LicenseTypes...)
	SoundTitle = entity.NewField(Sounds, "title", entity.Options[string]{
		Required: true,
		Validate: nonEmpty,
		Mutable:  soundOwner,
	})
	SoundDuration = entity.NewField(Sounds, "duration_seconds", entity.Options[float64]{
		Required: true,
		Validate: positive,
		Mutable:  soundOwner,
	})
	SoundTags = entity.NewField(Sounds, "tags", entity.Options[[]string]{
		Validate: tagList,
		Mutable:  soundOwner,
	})
)

// Sound is a published audio file.
type Sound struct {
	entity.Base
}

func (s *Sound) CreatedBy() string          { return SoundCreatedBy.Get(s) }
func (s *Sound) DateCreated() time.Time     { return SoundDateCreated.Get(s) }
func (s *Sound) AudioURL() string           { return SoundAudioURL.Get(s) }
func (s *Sound) LowQualityAudioURL() string { return SoundLowQualityAudioURL.Get(s) }
func (s *Sound) InfoURL() string            { return SoundInfoURL.Get(s) }
func (s *Sound) License() LicenseType       { return SoundLicense.Get(s) }
func (s *Sound) Title() string              { return SoundTitle.Get(s) }
func (s *Sound) DurationSeconds() float64   { return SoundDuration.Get(s) }
func (s *Sound) Tags() []string             { return SoundTags.Get(s) }

// CreateSound publishes a sound owned by creator.
func CreateSound(ctx context.Context, creator *User, values entity.Values) (*Sound, error) {
	if err := refuse(Sounds, values, SoundDateCreated); err != nil {
		return nil, err
	}
	values = withOwner(values, creator)
	e, err := entity.Create(ctx, Sounds, creator, values)
	if err != nil {
		return nil, err
	}
	return e.(*Sound), nil
}

func withOwner(values entity.Values, owner *User) entity.Values {
	out := make(entity.Values, len(values)+1)
	for k, v := range values {
		out[k] = v
	}
	out["created_by"] = owner.ID()
	return out
}
