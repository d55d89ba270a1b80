package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/launch-dashboard/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream simulation service call rate by endpoint (status, montecarlo) and outcome.
	StatusAPICallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 creeping toward status_api.timeout.
	StatusAPIDuration *prometheus.HistogramVec

	// Retry attempts against the upstream. Non-zero only when retry_max_attempts > 1.
	StatusAPIRetriesTotal prometheus.Counter

	// Upstream failures by category (timeout, network, upstream_5xx, parsing, ...).
	StatusAPIErrorsTotal *prometheus.CounterVec

	// Status payloads by detected shape (days, pair, unknown). Watch for: unknown = schema drift.
	StatusPayloadShapesTotal *prometheus.CounterVec

	// Login form submissions by result (success, incorrect).
	LoginAttemptsTotal *prometheus.CounterVec

	// Requests to the protected prefix redirected to /login.
	GateDenialsTotal prometheus.Counter

	// Status cache lookups by result (hit, miss, error). Only moves when a cache backend is set.
	CacheLookupsTotal *prometheus.CounterVec

	// Rate limit denials on /api. Watch for: clients polling too fast.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions per component.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	trafficGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	StatusAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusApiCallsTotal",
			Help: "Total number of calls to the upstream simulation service",
		},
		[]string{"endpoint", "status"},
	)
	StatusAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statusApiDurationSeconds",
			Help:    "Upstream simulation service latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status"},
	)
	StatusAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statusApiRetriesTotal",
			Help: "Total number of retry attempts against the upstream simulation service",
		},
	)
	StatusAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusApiErrorsTotal",
			Help: "Upstream failures by error category",
		},
		[]string{"category"},
	)
	StatusPayloadShapesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusPayloadShapesTotal",
			Help: "Relayed status payloads by detected shape",
		},
		[]string{"shape"},
	)
	LoginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loginAttemptsTotal",
			Help: "Login form submissions by result",
		},
		[]string{"result"},
	)
	GateDenialsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateDenialsTotal",
			Help: "Unauthenticated requests to the protected prefix redirected to login",
		},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLookupsTotal",
			Help: "Status cache lookups by result",
		},
		[]string{"result"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		StatusAPICallsTotal, StatusAPIDuration, StatusAPIRetriesTotal, StatusAPIErrorsTotal,
		StatusPayloadShapesTotal,
		LoginAttemptsTotal, GateDenialsTotal,
		CacheLookupsTotal,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
	)
}

// RegisterTrafficGauges exposes upstream outcome counts over the degraded window.
// Call from main after config load. Safe to call more than once.
func RegisterTrafficGauges(window time.Duration) {
	trafficGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "upstreamErrorsInWindow",
					Help: "Failed upstream relays in the sliding window used by /health",
				},
				func() float64 {
					errs, _ := traffic.ErrorRate(window)
					return float64(errs)
				},
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "upstreamRequestsInWindow",
					Help: "Upstream relays (success + error) in the sliding window used by /health",
				},
				func() float64 {
					_, total := traffic.ErrorRate(window)
					return float64(total)
				},
			),
		)
	})
}

// RecordCircuitBreakerTransition counts a breaker transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
