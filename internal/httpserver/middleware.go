package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/auth"
)

// IdempotencyTTL is how long a mutation key stays claimed.
const IdempotencyTTL = 10 * time.Minute

// Claimer records one-shot keys.
type Claimer interface {
	ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the Flusher.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", v, "stack", string(debug.Stack()))
				if s.metrics != nil {
					s.metrics.Errors.WithLabelValues("http_panic").Inc()
				}
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"error": notification{Kind: "internal", Message: "unexpected error, please try again"},
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authed requires a valid session.
func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return s.svc.Auth.Middleware(s.fail)(h)
}

// idempotent rejects a repeated Idempotency-Key of the same operator. A
// request that ends with an error status gives the key back so the corrected
// form can be resubmitted under it.
func (s *Server) idempotent(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" || s.svc.Idempotency == nil {
			h(w, r)
			return
		}
		claimKey := "idem:" + auth.OperatorID(r.Context()) + ":" + key
		first, err := s.svc.Idempotency.ClaimOnce(r.Context(), claimKey, IdempotencyTTL)
		if err != nil {
			s.logger.Warn("idempotency check failed", "error", err)
			h(w, r)
			return
		}
		if !first {
			s.fail(w, r, fmt.Errorf("request %q already submitted: %w", key, apperrors.ErrConflict))
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		if rec.status >= http.StatusBadRequest {
			if err := s.svc.Idempotency.Release(context.WithoutCancel(r.Context()), claimKey); err != nil {
				s.logger.Warn("idempotency release failed", "error", err)
			}
		}
	}
}
