package domain

import (
	"slices"
	"time"

	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
)

// restrict refuses every declared field of class present in values but not
// in allowed. Nothing is written when it fails.
func restrict(class *entity.Class, values entity.Values, allowed ...entity.Descriptor) error {
	var errs []fault.FieldError
	for _, d := range class.Fields() {
		if _, ok := values[d.Name()]; !ok || slices.Contains(allowed, d) {
			continue
		}
		errs = append(errs, fault.FieldError{Field: d.Name(), Err: fault.Immutable(class.Name(), d.Name())})
	}
	return fault.Validation(class.Name(), errs)
}

// refuse rejects client-supplied values for fields the service sets itself.
func refuse(class *entity.Class, values entity.Values, managed ...entity.Descriptor) error {
	var errs []fault.FieldError
	for _, d := range managed {
		if _, ok := values[d.Name()]; ok {
			errs = append(errs, fault.FieldError{
				Field: d.Name(),
				Err:   fault.Invalid(class.Name(), d.Name(), "set by the server"),
			})
		}
	}
	return fault.Validation(class.Name(), errs)
}

// storedTime keeps millisecond precision, the finest every backend stores.
func storedTime(t time.Time) (time.Time, error) {
	return t.UTC().Truncate(time.Millisecond), nil
}
