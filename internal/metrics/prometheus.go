package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "endpoint", "status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "endpoint"},
	)

	// TransitionsTotal counts applied order status transitions
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order status transitions applied by the reconciliation engine",
		},
		[]string{"path", "from", "to"},
	)

	// ConfidenceScore observes manual-path confidence scores
	ConfidenceScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_confidence_score",
			Help:    "Confidence scores computed for manually reported payments",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// DuplicateReferences counts rejected reference reuse
	DuplicateReferences = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_duplicate_references_total",
			Help: "Manual payment reports rejected because the bank reference was already recorded",
		},
	)

	// SignatureFailures counts gateway checksum mismatches
	SignatureFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_signature_failures_total",
			Help: "Gateway callbacks rejected on checksum mismatch",
		},
		[]string{"provider"},
	)

	// GatewayRequests counts outbound gateway calls by result
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Outbound gateway API calls",
		},
		[]string{"provider", "operation", "result"},
	)

	// CircuitBreakerState tracks circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"provider"},
	)

	// PaymentAmount tracks order unique amounts
	PaymentAmount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "order_unique_amount",
			Help:    "Unique payment amounts assigned at order creation",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000},
		},
	)
)

// PrometheusMiddleware creates a Gin middleware for automatic metrics collection
func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		RequestsTotal.WithLabelValues(
			serviceName,
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()

		RequestDuration.WithLabelValues(
			serviceName,
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}
