package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
)

// statusFor maps an error to its HTTP status. A permission failure anywhere
// in an aggregate wins over the plain validation failures beside it.
func statusFor(err error) int {
	switch {
	case fault.IsUnauthenticated(err):
		return http.StatusUnauthorized
	case fault.IsPermission(err):
		return http.StatusForbidden
	case fault.IsNotFound(err):
		return http.StatusNotFound
	case fault.IsDuplicate(err):
		return http.StatusConflict
	case fault.IsBackend(err):
		return http.StatusInternalServerError
	case fault.IsValidation(err), fault.IsArgument(err), fault.IsImmutable(err), fault.IsQuery(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// causes renders a client error as [field, message] pairs.
func causes(err error) [][2]string {
	var v *fault.ValidationError
	if errors.As(err, &v) {
		return v.Pairs()
	}
	var e *fault.Error
	if errors.As(err, &e) {
		return [][2]string{{e.Field, e.Message}}
	}
	return [][2]string{{"", err.Error()}}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		id := uuid.NewString()
		s.log.Error("request failed",
			"correlation_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		writeJSON(w, status, map[string]string{"correlation_id": id})
		return
	}

	switch status {
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Basic realm="annotate"`)
	case http.StatusConflict:
		if dup, ok := fault.Find(err, fault.CodeDuplicate); ok && dup.Location != "" {
			w.Header().Set("Location", dup.Location)
		}
	}
	s.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	writeJSON(w, status, causes(err))
}
