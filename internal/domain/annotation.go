package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
)

// Annotations is the annotation entity class.
var Annotations = entity.NewClass("Annotation", func() entity.Entity { return new(Annotation) })

var AnnotationCreatedBy = entity.NewField(Annotations, "created_by", entity.Options[string]{
	Required:  true,
	Immutable: true,
})

var annotationOwner = entity.OwnedBy(AnnotationCreatedBy)

var (
	AnnotationDateCreated = entity.NewField(Annotations, "date_created", entity.Options[time.Time]{
		Default:   now,
		Immutable: true,
		Transform: storedTime,
	})
	AnnotationSoundID = entity.NewField(Annotations, "sound_id", entity.Options[string]{
		Required:  true,
		Immutable: true,
	})
	AnnotationStart = entity.NewField(Annotations, "start_seconds", entity.Options[float64]{
		Required: true,
		Validate: nonNegative,
		Mutable:  annotationOwner,
	})
	AnnotationDuration = entity.NewField(Annotations, "duration_seconds", entity.Options[float64]{
		Required: true,
		Validate: nonNegative,
		Mutable:  annotationOwner,
	})
	AnnotationEnd = entity.NewField(Annotations, "end_seconds", entity.Options[float64]{
		Mutable: annotationOwner,
	})
	AnnotationTags = entity.NewField(Annotations, "tags", entity.Options[[]string]{
		Validate: tagList,
		Mutable:  annotationOwner,
	})
	AnnotationDataURL = entity.NewField(Annotations, "data_url", entity.Options[string]{
		Validate: optionalURL,
		Mutable:  annotationOwner,
	})
)

func init() {
	Annotations.AddCheck(endMatchesSpan)
}

func endMatchesSpan(e entity.Entity) (string, error) {
	want := AnnotationStart.Get(e) + AnnotationDuration.Get(e)
	if AnnotationEnd.IsSet(e) && AnnotationEnd.Get(e) != want {
		return AnnotationEnd.Name(), fmt.Errorf("must equal start_seconds + duration_seconds (%g)", want)
	}
	return "", nil
}

// Annotation describes a time span of a sound.
type Annotation struct {
	entity.Base
}

func (a *Annotation) CreatedBy() string        { return AnnotationCreatedBy.Get(a) }
func (a *Annotation) DateCreated() time.Time   { return AnnotationDateCreated.Get(a) }
func (a *Annotation) SoundID() string          { return AnnotationSoundID.Get(a) }
func (a *Annotation) StartSeconds() float64    { return AnnotationStart.Get(a) }
func (a *Annotation) DurationSeconds() float64 { return AnnotationDuration.Get(a) }
func (a *Annotation) EndSeconds() float64      { return AnnotationEnd.Get(a) }
func (a *Annotation) Tags() []string           { return AnnotationTags.Get(a) }
func (a *Annotation) DataURL() string          { return AnnotationDataURL.Get(a) }

// CreateAnnotation attaches an annotation by creator to sound. The end of the
// span is derived, and a span running past the end of the sound is rejected.
func CreateAnnotation(ctx context.Context, creator *User, sound *Sound, values entity.Values) (*Annotation, error) {
	if err := refuse(Annotations, values, AnnotationDateCreated); err != nil {
		return nil, err
	}
	values = withOwner(values, creator)
	values["sound_id"] = sound.ID()
	delete(values, "end_seconds")

	start, startErr := entity.Coerce[float64](values["start_seconds"])
	duration, durationErr := entity.Coerce[float64](values["duration_seconds"])
	if startErr == nil && durationErr == nil {
		values["end_seconds"] = start + duration
		if start+duration > sound.DurationSeconds() {
			return nil, fault.Validation(Annotations.Name(), []fault.FieldError{{
				Field: AnnotationDuration.Name(),
				Err: fault.Invalid(Annotations.Name(), AnnotationDuration.Name(),
					fmt.Sprintf("annotation ends after the sound (%gs)", sound.DurationSeconds())),
			}})
		}
	}

	e, err := entity.Create(ctx, Annotations, creator, values)
	if err != nil {
		return nil, err
	}
	return e.(*Annotation), nil
}
