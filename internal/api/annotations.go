package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
)

// maxAnnotationBatch bounds a single POST.
const maxAnnotationBatch = 500

var annotations = collection{
	params:  []entity.Descriptor{domain.AnnotationCreatedBy},
	filter:  domain.AnnotationFilter,
	orderBy: []entity.Descriptor{domain.AnnotationStart, domain.AnnotationDateCreated},
}

type annotationBatch struct {
	Annotations []entity.Values `json:"annotations"`
}

// createAnnotations attaches a batch to a sound. One bad annotation rejects
// the whole batch; its field errors are prefixed with the annotation's
// position.
func (s *Server) createAnnotations(ctx context.Context, r *request) (*reply, error) {
	snd, err := soundByID(ctx, r, r.param("id"))
	if err != nil {
		return nil, err
	}
	var batch annotationBatch
	if err := r.decode(&batch); err != nil {
		return nil, err
	}
	switch n := len(batch.Annotations); {
	case n == 0:
		return nil, fault.Argument("annotations", "at least one annotation is required")
	case n > maxAnnotationBatch:
		return nil, fault.Argument("annotations", fmt.Sprintf("at most %d annotations per request", maxAnnotationBatch))
	}

	var errs []fault.FieldError
	for i, values := range batch.Annotations {
		_, err := domain.CreateAnnotation(ctx, r.actor, snd, values)
		if err == nil {
			continue
		}
		var v *fault.ValidationError
		if !errors.As(err, &v) {
			return nil, err
		}
		for _, fe := range v.Fields {
			errs = append(errs, fault.FieldError{
				Field: fmt.Sprintf("annotations[%d].%s", i, fe.Field),
				Err:   fe.Err,
			})
		}
	}
	if err := fault.Validation(domain.Annotations.Name(), errs); err != nil {
		return nil, err
	}
	return &reply{status: http.StatusCreated}, nil
}

func (s *Server) listSoundAnnotations(ctx context.Context, r *request) (*reply, error) {
	snd, err := soundByID(ctx, r, r.param("id"))
	if err != nil {
		return nil, err
	}
	return annotations.list(ctx, r, domain.AnnotationSoundID.Eq(snd.ID()))
}

func (s *Server) listUserAnnotations(ctx context.Context, r *request) (*reply, error) {
	u, err := liveUser(ctx, r, r.param("id"))
	if err != nil {
		return nil, err
	}
	return annotations.list(ctx, r, domain.AnnotationCreatedBy.Eq(u.ID()))
}
