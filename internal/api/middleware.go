package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/formbase/formbase/internal/apperr"
	"github.com/formbase/formbase/internal/query"
)

// envelope is the uniform response shape: success plus data, or
// failure plus a message and optional per-rule details.
type envelope struct {
	Success    bool              `json:"success"`
	Data       any               `json:"data,omitempty"`
	Pagination *query.Pagination `json:"pagination,omitempty"`
	Message    string            `json:"message,omitempty"`
	Details    []string          `json:"details,omitempty"`
}

func jsonResponse(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("writing json response", "error", err)
	}
}

func respond(w http.ResponseWriter, status int, data any) {
	jsonResponse(w, status, envelope{Success: true, Data: data})
}

func respondPage(w http.ResponseWriter, data any, pagination query.Pagination) {
	jsonResponse(w, http.StatusOK, envelope{Success: true, Data: data, Pagination: &pagination})
}

// renderError maps the error taxonomy onto HTTP statuses. Storage
// details are logged, never leaked to the client.
func (s *Server) renderError(w http.ResponseWriter, err error) {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		jsonResponse(w, http.StatusBadRequest, envelope{
			Message: "validation failed",
			Details: ve.Details,
		})
		return
	}

	var se *apperr.InvalidSchemaError
	if errors.As(err, &se) {
		jsonResponse(w, http.StatusBadRequest, envelope{Message: se.Error()})
		return
	}

	switch {
	case errors.Is(err, apperr.ErrNotFound):
		jsonResponse(w, http.StatusNotFound, envelope{Message: err.Error()})
	case errors.Is(err, apperr.ErrInvalidRequest):
		jsonResponse(w, http.StatusBadRequest, envelope{Message: err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		jsonResponse(w, http.StatusInternalServerError, envelope{Message: "internal server error"})
	}
}

// decodeJSON parses a request body, treating malformed JSON as a
// client error.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.InvalidRequest("malformed JSON body")
	}
	return nil
}

// queryParams flattens the URL query into the single-value map the
// engine's filter builder consumes.
func queryParams(r *http.Request) map[string]string {
	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}

// requestLogger is middleware that logs HTTP requests.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
