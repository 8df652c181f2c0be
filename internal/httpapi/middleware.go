package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chorusdev/chorus/internal/metrics"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// requestIDMiddleware ensures every request carries an X-Request-ID,
// echoing the caller's header if present and generating a v4 UUID
// otherwise, and stores it in the request context for downstream use
// (the error envelope, the access log).
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// corsMiddleware allows origin with credentials, all methods, all headers,
// a static allow-list per spec.md §6 rather than a reflected-origin
// policy.
func corsMiddleware(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "http://localhost:3000"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			allowHeaders := "Content-Type, Idempotency-Key, X-Request-ID"
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				allowHeaders = reqHeaders
			}
			w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs one line per request and records the route's
// request count and latency histogram.
func loggingMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			route := r.Pattern
			if route == "" {
				route = r.URL.Path
			}
			metrics.HTTPRequestsTotal.WithLabelValues(route, http.StatusText(rec.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

			log.Info().
				Str("request_id", requestIDFromContext(r.Context())).
				Str("method", r.Method).
				Str("route", route).
				Int("status", rec.status).
				Dur("elapsed", elapsed).
				Msg("http request")
		})
	}
}
