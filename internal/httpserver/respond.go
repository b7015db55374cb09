package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/validator"
)

const maxJSONBody = 1 << 20

// notification is the error body every failed request gets.
type notification struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func newNotification(err error) notification {
	n := notification{Kind: apperrors.Kind(err), Message: apperrors.Notification(err)}
	if fields := validator.Fields(err); len(fields) > 0 {
		n.Fields = fields
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// fail converts err into a notification response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	s.logFailure(r, status, err)
	writeJSON(w, status, map[string]any{"error": newNotification(err)})
}

// partial answers with the result of an operation that completed its main
// step but then failed, so the client gets both.
func (s *Server) partial(w http.ResponseWriter, r *http.Request, result any, err error) {
	status := apperrors.HTTPStatus(err)
	s.logFailure(r, status, err)
	writeJSON(w, status, map[string]any{"result": result, "error": newNotification(err)})
}

func (s *Server) logFailure(r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
		if s.metrics != nil {
			s.metrics.Errors.WithLabelValues("http").Inc()
		}
		return
	}
	s.logger.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
}

func decodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", apperrors.ErrValidation)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", apperrors.ErrValidation, err)
	}
	return nil
}

func notFound(err error) error {
	return fmt.Errorf("%w: %v", apperrors.ErrNotFound, err)
}
