package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/recebi/internal/errs"
)

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageBody{Message: msg})
}

// statusOf maps sentinel errors to HTTP codes. Zero means unexpected.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrConflict), errors.Is(err, errs.ErrBadState):
		return http.StatusConflict
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return 0
}

// writeError answers with the client-facing failure. Unexpected errors are logged and masked.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code == 0 {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	msg := err.Error()
	switch code {
	case http.StatusUnauthorized:
		msg = "unauthorized"
	case http.StatusTooManyRequests:
		msg = "too many failed attempts, try again later"
	}
	writeMessage(w, code, msg)
}
