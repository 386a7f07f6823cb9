// Package api provides the management HTTP API for Herald.
//
// Every route except /healthz runs behind an Authenticator, which resolves
// the request to an endpoint.Caller before any registry call is made.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/endpoint"
)

// Authenticator resolves the caller of a request. Implementations return an
// error wrapping herald.ErrUnauthorized when no identity can be verified.
type Authenticator interface {
	Authenticate(r *http.Request) (endpoint.Caller, error)
}

// Handler is the root HTTP handler for the management API.
type Handler struct {
	herald *herald.Herald
	auth   Authenticator
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler creates the management API handler.
func NewHandler(h *herald.Herald, auth Authenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	handler := &Handler{
		herald: h,
		auth:   auth,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	handler.registerRoutes()
	return handler
}

// callerHandlerFunc is a handler for an authenticated request.
type callerHandlerFunc func(w http.ResponseWriter, r *http.Request, caller endpoint.Caller)

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /healthz", h.healthz)

	// Endpoints
	h.mux.HandleFunc("POST /endpoints", h.authed(h.createEndpoint))
	h.mux.HandleFunc("GET /endpoints", h.authed(h.listEndpoints))
	h.mux.HandleFunc("GET /endpoints/{id}", h.authed(h.getEndpoint))
	h.mux.HandleFunc("PATCH /endpoints/{id}", h.authed(h.updateEndpoint))
	h.mux.HandleFunc("DELETE /endpoints/{id}", h.authed(h.deleteEndpoint))
	h.mux.HandleFunc("POST /endpoints/{id}/rotate-secret", h.authed(h.rotateSecret))

	// Attempt log
	h.mux.HandleFunc("GET /endpoints/{id}/deliveries", h.authed(h.listDeliveries))

	// Catalog
	h.mux.HandleFunc("GET /event-types", h.authed(h.listEventTypes))
	h.mux.HandleFunc("GET /event-types/{name}", h.authed(h.getEventType))

	// Events
	h.mux.HandleFunc("POST /events", h.authed(h.createEvent))

	// Stats
	h.mux.HandleFunc("GET /stats", h.authed(h.getStats))
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(next))
}

func (h *Handler) authed(next callerHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := h.auth.Authenticate(r)
		if err != nil {
			h.logger.DebugContext(r.Context(), "request rejected",
				"path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, caller)
	}
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.herald.Store().Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.InfoContext(r.Context(), "api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.ErrorContext(r.Context(), "panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a non-negative integer query parameter, or defaultVal
// when it is absent or malformed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, key string) *bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(key))
	if err != nil {
		return nil
	}
	return &b
}
