// Package metrics provides Prometheus instrumentation for the ocean engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PriceChanges counts applied price moves, partitioned by signal source.
	PriceChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocean_price_changes_total",
		Help: "Total number of region price changes",
	}, []string{"source"})

	// PriceClamps counts price moves that were clamped to the floor.
	PriceClamps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocean_price_floor_clamps_total",
		Help: "Price moves clamped to the floor",
	})

	BidsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocean_bids_total",
		Help: "Bids received, partitioned by outcome",
	}, []string{"outcome"})

	// AuctionsSettled counts auctions reaching a terminal state.
	AuctionsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocean_auctions_settled_total",
		Help: "Auctions settled, partitioned by outcome",
	}, []string{"outcome"})

	SalesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocean_sales_completed_total",
		Help: "Fixed-price sales purchased",
	})

	// IncomePaid tracks cumulative credits paid out by building income.
	IncomePaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocean_income_paid_credits_total",
		Help: "Credits paid out as building income",
	})

	CollectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocean_collections_total",
		Help: "Litter collection submissions, partitioned by verdict",
	}, []string{"verdict"})

	MissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocean_mission_completions_total",
		Help: "Mission completion submissions, partitioned by verdict",
	}, []string{"verdict"})

	ExternalCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocean_external_calls_total",
		Help: "Calls to external services, partitioned by service and result",
	}, []string{"service", "result"})

	// SweepDuration tracks how long each scheduled job takes.
	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ocean_sweep_duration_seconds",
		Help:    "Scheduled sweep duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"job"})

	SweepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocean_sweep_failures_total",
		Help: "Scheduled sweeps that returned an error",
	}, []string{"job"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocean_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocean_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ocean_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
