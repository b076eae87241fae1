package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_server_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_server_requests_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status_code"},
	)

	// Store action metrics
	storeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total number of store actions",
		},
		[]string{"store", "operation", "status"}, // session/competition, login/register/..., success/failure
	)

	// Competition registration metrics
	registrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "competition_registrations_total",
			Help: "Total number of competition registration attempts",
		},
		[]string{"outcome"}, // accepted/closed/full/duplicate/not_found
	)

	// Route guard metrics
	guardDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_guard_decisions_total",
			Help: "Total number of route guard decisions",
		},
		[]string{"decision"}, // allow/redirect
	)

	// Rate limiting metrics
	rateLimitDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_dropped_total",
			Help: "Total number of requests dropped due to rate limiting",
		},
		[]string{"key_type"}, // user or ip
	)

	// Idempotency metrics
	idempotencyHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_hits_total",
			Help: "Total number of idempotency hits",
		},
		[]string{"type"}, // hit or miss
	)

	// Persistence metrics
	kvOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kv_operations_total",
			Help: "Total number of key-value store operations",
		},
		[]string{"operation", "status"}, // get/set/del, success/failure
	)

	kvOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kv_operation_duration_seconds",
			Help:    "Key-value store operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"operation"},
	)

	quotaCleanupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storage_quota_cleanups_total",
			Help: "Total number of quota-exceeded cleanup retries",
		},
	)
)

// Init initializes the metrics
func Init() error {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		storeOperationsTotal,
		registrationsTotal,
		guardDecisionsTotal,
		rateLimitDroppedTotal,
		idempotencyHitsTotal,
		kvOperationsTotal,
		kvOperationDuration,
		quotaCleanupsTotal,
	)

	return nil
}

// HTTPMetricsMiddleware records HTTP metrics
func HTTPMetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		// Record metrics
		duration := time.Since(start).Seconds()
		method := c.Method()
		route := c.Route().Path
		if route == "" {
			route = c.Path()
		}
		statusCode := strconv.Itoa(c.Response().StatusCode())

		httpRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
		httpRequestDuration.WithLabelValues(method, route, statusCode).Observe(duration)

		return err
	}
}

// RecordStoreOperation records the outcome of a store action
func RecordStoreOperation(store, operation string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	storeOperationsTotal.WithLabelValues(store, operation, status).Inc()
}

// RecordRegistration records a registration attempt outcome
func RecordRegistration(outcome string) {
	registrationsTotal.WithLabelValues(outcome).Inc()
}

// RecordGuardDecision records a route guard decision
func RecordGuardDecision(decision string) {
	guardDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordRateLimitDrop records a dropped request
func RecordRateLimitDrop(keyType string) {
	rateLimitDroppedTotal.WithLabelValues(keyType).Inc()
}

// RecordIdempotencyHit records an idempotency cache hit or miss
func RecordIdempotencyHit(hitType string) {
	idempotencyHitsTotal.WithLabelValues(hitType).Inc()
}

// RecordKVOperation records a key-value store operation
func RecordKVOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	kvOperationsTotal.WithLabelValues(operation, status).Inc()
	kvOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordQuotaCleanup records a quota-exceeded cleanup retry
func RecordQuotaCleanup() {
	quotaCleanupsTotal.Inc()
}

// PrometheusHandler returns a Fiber handler for the metrics endpoint
func PrometheusHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
