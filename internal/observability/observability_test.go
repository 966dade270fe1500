package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iliyamo/foodshare/internal/logger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestMiddlewareCountsByRoute(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/v1/listings/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	before := counterValue(t, httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/listings/:id", "204"))
	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/listings/"+id, nil))
	}
	after := counterValue(t, httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/listings/:id", "204"))
	if after-before != 2 {
		t.Fatalf("counter moved by %v, want 2", after-before)
	}
}

func TestReservationOutcomeCounter(t *testing.T) {
	c := reservationOutcomes.WithLabelValues("create", "conflict")
	before := counterValue(t, c)
	ObserveReservation("create", "conflict")
	if counterValue(t, c)-before != 1 {
		t.Fatal("counter not incremented")
	}
}

func TestInitTracingDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), logger.Discard(), "", "foodshare", "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}
