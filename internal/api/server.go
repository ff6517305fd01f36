// Package api serves the route lookup and bookmark endpoints over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"transit-lookup/internal/bookmarks"
	"transit-lookup/internal/catalog"
	"transit-lookup/internal/clock"
	"transit-lookup/internal/schedule"
	"transit-lookup/internal/search"
)

type Catalog interface {
	Search(ctx context.Context, q string) ([]search.Result, error)
	RouteDetails(ctx context.Context, tripID, from, to string) (catalog.RouteDetails, error)
	PlanJourney(ctx context.Context, from, to string) ([]catalog.JourneyOption, error)
	NextBus(ctx context.Context, routeNumber string, now time.Time) (catalog.NextBusInfo, error)
	SaveScheduleMeta(ctx context.Context, routeNumber string, m schedule.Meta) error
}

type Bookmarks interface {
	Favorites(ctx context.Context, device string) ([]bookmarks.Entry, error)
	AddFavorite(ctx context.Context, device string, e bookmarks.Entry) ([]bookmarks.Entry, error)
	RemoveFavorite(ctx context.Context, device, routeNumber string) ([]bookmarks.Entry, error)
	Recent(ctx context.Context, device string) ([]bookmarks.Entry, error)
	RecordRecent(ctx context.Context, device string, e bookmarks.Entry) ([]bookmarks.Entry, error)
	ClearRecent(ctx context.Context, device string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Metrics interface {
	RequestServed(method, path string, status int, d time.Duration)
	RequestRateLimited()
}

type Options struct {
	// RateLimitRPS is the per-client request rate; 0 disables limiting.
	RateLimitRPS int
	Clock        clock.Clock
}

type Server struct {
	catalog   Catalog
	bookmarks Bookmarks
	db        Pinger
	metrics   Metrics
	logger    *slog.Logger
	clock     clock.Clock
	limiter   *RateLimiter
}

func NewServer(c Catalog, b Bookmarks, db Pinger, m Metrics, logger *slog.Logger, opts Options) *Server {
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	s := &Server{
		catalog:   c,
		bookmarks: b,
		db:        db,
		metrics:   m,
		logger:    logger.With(slog.String("component", "http")),
		clock:     clk,
	}
	if opts.RateLimitRPS > 0 {
		var onReject func()
		if m != nil {
			onReject = m.RequestRateLimited
		}
		s.limiter = NewRateLimiter(opts.RateLimitRPS, clk, onReject)
	}
	return s
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// handle registers h and records pattern as the request's route.
func (s *Server) handle(router *httprouter.Router, method, pattern string, h http.HandlerFunc) {
	router.Handler(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setRoutePattern(r.Context(), pattern)
		h(w, r)
	}))
}

func (s *Server) routes() http.Handler {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		s.logger.Error("panic serving request", slog.Any("panic", v), slog.String("path", r.URL.Path))
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}

	s.handle(router, http.MethodGet, "/healthz", s.health)
	s.handle(router, http.MethodGet, "/routes/search", s.searchRoutes)
	s.handle(router, http.MethodGet, "/route/details", s.routeDetails)
	s.handle(router, http.MethodGet, "/journey", s.journey)
	s.handle(router, http.MethodGet, "/schedule/:route_number", s.nextBus)
	s.handle(router, http.MethodPut, "/schedule/:route_number", s.putSchedule)

	s.handle(router, http.MethodGet, "/devices/:device/favorites", s.listFavorites)
	s.handle(router, http.MethodPut, "/devices/:device/favorites/:route_number", s.addFavorite)
	s.handle(router, http.MethodDelete, "/devices/:device/favorites/:route_number", s.removeFavorite)
	s.handle(router, http.MethodGet, "/devices/:device/recent", s.listRecent)
	s.handle(router, http.MethodPost, "/devices/:device/recent", s.recordRecent)
	s.handle(router, http.MethodDelete, "/devices/:device/recent", s.clearRecent)
	return router
}

// Handler returns the full middleware chain around the router.
func (s *Server) Handler() http.Handler {
	var h http.Handler = GzipMiddleware(s.routes())
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	if s.metrics != nil {
		h = MetricsMiddleware(s.metrics)(h)
	}
	h = LoggingMiddleware(s.logger)(h)
	return RequestIDMiddleware(h)
}

// HTTPServer wraps Handler in a server with the timeouts used in production.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}
}
