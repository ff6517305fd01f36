package api

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	"transit-lookup/internal/logging"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	routeKey     contextKey = "route"
)

var validRequestID = regexp.MustCompile(`^[a-zA-Z0-9-._:]+$`)

// RequestIDMiddleware keeps a well-formed X-Request-ID from the client or
// assigns a new one, and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 || !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// routeHolder carries the matched route pattern back out of the router.
type routeHolder struct {
	pattern string
}

func routePattern(ctx context.Context) string {
	if h, ok := ctx.Value(routeKey).(*routeHolder); ok && h.pattern != "" {
		return h.pattern
	}
	return "unmatched"
}

func setRoutePattern(ctx context.Context, pattern string) {
	if h, ok := ctx.Value(routeKey).(*routeHolder); ok {
		h.pattern = pattern
	}
}

// LoggingMiddleware attaches a request-scoped logger and logs each request
// once it completes.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With(slog.String("request_id", RequestID(r.Context())))
			rec := &statusRecorder{ResponseWriter: w}
			holder := &routeHolder{}
			ctx := context.WithValue(logging.WithLogger(r.Context(), reqLogger), routeKey, holder)

			next.ServeHTTP(rec, r.WithContext(ctx))

			logging.LogHTTPRequest(reqLogger, r.Method, r.URL.Path, rec.code(),
				float64(time.Since(start).Microseconds())/1000,
				slog.String("route", routePattern(ctx)),
				slog.String("remote", clientIP(r)))
		})
	}
}

// MetricsMiddleware records request counts and latency by route pattern.
// It must run inside LoggingMiddleware, which sets up the route holder.
func MetricsMiddleware(m Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			m.RequestServed(r.Method, routePattern(r.Context()), rec.code(), time.Since(start))
		})
	}
}

func GzipMiddleware(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
