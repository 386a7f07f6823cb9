package api

import (
	"errors"
	"net/http"

	"github.com/xraph/herald"
)

// writeServiceError maps a core error to a status code and writes it.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, herald.ErrValidation),
		errors.Is(err, herald.ErrUnknownEventType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, herald.ErrEndpointNotFound):
		writeError(w, http.StatusNotFound, "endpoint not found")
	case errors.Is(err, herald.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		h.logger.ErrorContext(r.Context(), "api request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
