package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: upstream attempts by outcome (ok | status | transport).
	UpstreamAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tlab_upstream_attempts_total",
			Help: "Requests sent to the Transformer Lab API, by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	// Counter: how many times the fallback host was tried.
	FallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tlab_fallbacks_total",
			Help: "Total number of retries against the fallback host.",
		},
	)

	// Counter: stream frames by kind (delta | terminal | sentinel | malformed).
	StreamFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tlab_stream_frames_total",
			Help: "Chat stream frames seen by the decoder, by kind.",
		},
		[]string{"kind"},
	)

	// Counter: how many times we served from the response cache.
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tlab_cache_hits_total",
			Help: "Total number of response cache hits.",
		},
	)

	// Histogram: bridge HTTP latency in seconds.
	BridgeLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tlab_bridge_latency_seconds",
			Help:    "HTTP request latency for the bridge in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"route", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		UpstreamAttemptsTotal,
		FallbacksTotal,
		StreamFramesTotal,
		CacheHitsTotal,
		BridgeLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures bridge latency for each HTTP request. The route
// pattern is used as label so dataset IDs do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}

		BridgeLatencySeconds.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers flush through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
