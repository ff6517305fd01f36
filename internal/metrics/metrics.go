package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec   // method, path, status
	HTTPRequestDuration *prometheus.HistogramVec // method, path
	RateLimited         prometheus.Counter

	SearchResults  prometheus.Histogram
	BlankSearches  prometheus.Counter
	SharedSearches prometheus.Counter
	QueryDuration  *prometheus.HistogramVec // query label

	StoreOps      *prometheus.CounterVec // op, result
	NATSConnected prometheus.Gauge

	DBSwitches *prometheus.CounterVec // reason label: update|ping_failure
	DBUp       prometheus.Gauge

	SearchLimit prometheus.Gauge
	RecentLimit prometheus.Gauge
}

func NewCollector(searchLimit, recentLimit int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_http_requests_total",
			Help: "Total HTTP requests served.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transit_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
		SearchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transit_search_results",
			Help:    "Number of route results returned per search.",
			Buckets: prometheus.LinearBuckets(0, 5, 11),
		}),
		BlankSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_search_blank_total",
			Help: "Searches short-circuited because the query was blank.",
		}),
		SharedSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_search_shared_total",
			Help: "Searches answered by an identical in-flight search.",
		}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transit_db_query_duration_seconds",
			Help:    "Duration of catalog database queries.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"query"}),
		StoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_bookmark_store_ops_total",
			Help: "Bookmark key-value store operations.",
		}, []string{"op", "result"}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		DBSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_db_switches_total",
			Help: "Number of database switches.",
		}, []string{"reason"}),
		DBUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_db_up",
			Help: "1 if the last database ping succeeded, 0 otherwise.",
		}),
		SearchLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_search_limit",
			Help: "Row limit applied to each search query.",
		}),
		RecentLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_recent_limit",
			Help: "Maximum recent routes kept per device.",
		}),
	}

	// Register
	reg.MustRegister(
		c.HTTPRequests, c.HTTPRequestDuration, c.RateLimited,
		c.SearchResults, c.BlankSearches, c.SharedSearches, c.QueryDuration,
		c.StoreOps, c.NATSConnected,
		c.DBSwitches, c.DBUp,
		c.SearchLimit, c.RecentLimit,
	)

	// Set static gauges
	c.SearchLimit.Set(float64(searchLimit))
	c.RecentLimit.Set(float64(recentLimit))

	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// ObserveQuery records how long a named catalog query took.
func (c *Collector) ObserveQuery(name string, d time.Duration) {
	if c == nil {
		return
	}
	c.QueryDuration.WithLabelValues(name).Observe(d.Seconds())
}

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}

// DBSwitched counts a database switch by the watcher.
func (c *Collector) DBSwitched(reason string) { c.DBSwitches.WithLabelValues(reason).Inc() }

func (c *Collector) DBReachable(up bool) { c.DBUp.Set(boolToFloat(up)) }

func (c *Collector) NATSSetConnected(connected bool) { c.NATSConnected.Set(boolToFloat(connected)) }

// StoreOp counts a bookmark store operation as ok or error.
func (c *Collector) StoreOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.StoreOps.WithLabelValues(op, result).Inc()
}

func (c *Collector) SearchServed(results int) { c.SearchResults.Observe(float64(results)) }

func (c *Collector) BlankSearch() { c.BlankSearches.Inc() }

func (c *Collector) SharedSearch() { c.SharedSearches.Inc() }

// RequestServed records one HTTP request. path is the route pattern, not
// the raw URL, to keep label cardinality bounded.
func (c *Collector) RequestServed(method, path string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (c *Collector) RequestRateLimited() { c.RateLimited.Inc() }

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
