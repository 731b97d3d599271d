package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aretw0/parley/pkg/domain"
)

var errBadRequest = errors.New("invalid request body")

// statusFor maps the engine's sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrContactNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicatePhone):
		return http.StatusConflict
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSendFailed):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrAuthExpired), errors.Is(err, domain.ErrTransportUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "Request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"err", err,
	)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
