package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// WebhookEventsTotal counts webhook deliveries by outcome (processed, duplicate, ignored, rejected, failed)
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Total number of webhook deliveries",
		},
		[]string{"gateway", "kind", "outcome"},
	)

	// SettlementsTotal counts order and top-up settlements
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_settlements_total",
			Help: "Total number of settlements",
		},
		[]string{"type", "outcome"},
	)

	// LedgerEntriesTotal counts wallet mutations; applied=false means an idempotent replay
	LedgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_ledger_entries_total",
			Help: "Total number of wallet ledger entries",
		},
		[]string{"direction", "applied"},
	)

	// CheckoutLockRejections counts checkouts refused because one was in flight
	CheckoutLockRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_checkout_lock_rejections_total",
			Help: "Total number of checkouts rejected by the checkout lock",
		},
	)

	// CheckoutLocksActive tracks held checkout locks (in-memory backend only)
	CheckoutLocksActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payment_checkout_locks_active",
			Help: "Number of checkout locks currently held",
		},
	)

	// CircuitBreakerState tracks circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payment_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"circuit_name"},
	)

	// CircuitBreakerFailures tracks circuit breaker failures
	CircuitBreakerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_circuit_breaker_failures_total",
			Help: "Total number of circuit breaker failures",
		},
		[]string{"circuit_name"},
	)

	// PaymentAmount tracks settled amounts
	PaymentAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_amount",
			Help:    "Settled payment amounts in major currency units",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000},
		},
		[]string{"type"},
	)
)

// EchoMiddleware records request count and latency per route.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			RequestsTotal.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).Inc()
			RequestDuration.WithLabelValues(c.Request().Method, c.Path()).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
