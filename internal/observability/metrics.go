// Package observability wires Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodshare_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "foodshare_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	reservationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodshare_reservation_operations_total",
		Help: "Reservation engine operations by operation and outcome",
	}, []string{"operation", "outcome"})

	documentReviews = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodshare_document_reviews_total",
		Help: "Document review decisions by kind and decision",
	}, []string{"kind", "decision"})

	eventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foodshare_event_publish_failures_total",
		Help: "Domain events that could not be handed to the broker",
	})
)

// ObserveHTTPRequest records one request.  route is the registered path
// pattern, not the raw URL, to keep label cardinality bounded.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	s := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, s).Inc()
	httpRequestDuration.WithLabelValues(method, route, s).Observe(d.Seconds())
}

// ObserveReservation counts one reservation engine call.  outcome is "ok"
// or the error kind.
func ObserveReservation(operation, outcome string) {
	reservationOutcomes.WithLabelValues(operation, outcome).Inc()
}

// ObserveDocumentReview counts one admin decision.
func ObserveDocumentReview(kind, decision string) {
	documentReviews.WithLabelValues(kind, decision).Inc()
}

// ObservePublishFailure counts an event dropped on the floor.
func ObservePublishFailure() { eventPublishFailures.Inc() }

// Middleware instruments every request handled by echo.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			ObserveHTTPRequest(c.Request().Method, route, status, time.Since(start))
			return err
		}
	}
}
