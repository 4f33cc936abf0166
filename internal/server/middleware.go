package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/querygate/querygate/internal/model"
)

type contextKey int

const callerKey contextKey = iota

// callerFrom returns the authenticated caller stored by the auth
// middleware. Panics if called outside an authenticated route.
func callerFrom(ctx context.Context) model.Caller {
	return ctx.Value(callerKey).(model.Caller)
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := uuid.NewString()
		w.Header().Set("X-Request-Id", reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.Info().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// authenticated validates the bearer token and stores the caller in the
// request context.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody("missing bearer token"))
			return
		}
		caller, err := s.issuer.Authenticate(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody("invalid or expired token"))
			return
		}
		ctx := context.WithValue(r.Context(), callerKey, caller)
		next(w, r.WithContext(ctx))
	}
}
