package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the service collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "menu360",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "menu360",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "menu360",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	realtimeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "menu360",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Change notifications applied to the query cache.",
		},
		[]string{"table", "op", "result"},
	)

	subscriptionStates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "menu360",
			Subsystem: "realtime",
			Name:      "subscription_transitions_total",
			Help:      "Realtime subscription state transitions.",
		},
		[]string{"table", "state"},
	)

	fixtureFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "menu360",
			Subsystem: "catalog",
			Name:      "fixture_fallbacks_total",
			Help:      "Fetches answered with demo data.",
		},
		[]string{"kind", "reason"},
	)

	cartSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "menu360",
			Subsystem: "cart",
			Name:      "submissions_total",
			Help:      "Cart submissions by result.",
		},
		[]string{"result"},
	)

	cartSubmitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "menu360",
			Subsystem: "cart",
			Name:      "submit_duration_seconds",
			Help:      "Duration of cart submissions.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8),
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		realtimeEvents,
		subscriptionStates,
		fixtureFallbacks,
		cartSubmissions,
		cartSubmitDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// CacheSource is implemented by the query cache.
type CacheSource interface {
	Stats() (hits, misses uint64)
	Entries() int
}

// RegisterCache exposes hit/miss counters and the entry count of a cache.
func RegisterCache(src CacheSource) error {
	hits := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "menu360",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Query cache hits.",
	}, func() float64 {
		h, _ := src.Stats()
		return float64(h)
	})
	misses := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "menu360",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Query cache misses.",
	}, func() float64 {
		_, m := src.Stats()
		return float64(m)
	})
	entries := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "menu360",
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Populated query keys.",
	}, func() float64 {
		return float64(src.Entries())
	})
	for _, c := range []prometheus.Collector{hits, misses, entries} {
		if err := Registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

func RecordRealtimeEvent(table, op, result string) {
	realtimeEvents.WithLabelValues(table, op, result).Inc()
}

func RecordSubscriptionState(table, state string) {
	subscriptionStates.WithLabelValues(table, state).Inc()
}

func RecordFixtureFallback(kind, reason string) {
	fixtureFallbacks.WithLabelValues(kind, reason).Inc()
}

func RecordCartSubmission(duration time.Duration, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	cartSubmissions.WithLabelValues(result).Inc()
	cartSubmitDuration.Observe(duration.Seconds())
}

// Recorder adapts the package-level collectors to the small recorder
// interfaces declared by core packages.
type Recorder struct{}

func (Recorder) RealtimeEvent(table, op, result string) { RecordRealtimeEvent(table, op, result) }
func (Recorder) SubscriptionState(table, state string)  { RecordSubscriptionState(table, state) }
func (Recorder) FixtureFallback(kind, reason string)    { RecordFixtureFallback(kind, reason) }
func (Recorder) CartSubmission(d time.Duration, ok bool) {
	RecordCartSubmission(d, ok)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Flush keeps SSE responses streaming through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// canonicalPath keeps label cardinality bounded: ids are collapsed.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "api":
		if len(parts) >= 3 && parts[1] == "restaurants" {
			if len(parts) == 3 {
				return "/api/restaurants/:rid"
			}
			return "/api/restaurants/:rid/" + parts[3]
		}
		if len(parts) >= 2 {
			return "/api/" + parts[1]
		}
		return "/api"
	case "r":
		return "/r/:rid"
	}
	return "/" + parts[0]
}
