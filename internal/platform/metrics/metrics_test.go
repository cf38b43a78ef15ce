package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveReservation("reserved")
	m.ObserveRelease("released")
	m.ObserveHTTP("GET", "/health", 200, time.Millisecond)
	m.ObserveInventoryDrift("row_full")
	m.ObserveLabOrder("created")
	if m.Registry() != nil {
		t.Error("expected nil registry on nil metrics")
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveReservation("reserved")
	m.ObserveReservation("reserved")
	m.ObserveReservation("no_capacity")
	m.ObserveInventoryDrift("row_missing")
	m.ObserveLabOrder("created")

	if got := testutil.ToFloat64(m.reservations.WithLabelValues("reserved")); got != 2 {
		t.Errorf("expected 2 reserved, got %v", got)
	}
	if got := testutil.ToFloat64(m.reservations.WithLabelValues("no_capacity")); got != 1 {
		t.Errorf("expected 1 no_capacity, got %v", got)
	}
	if got := testutil.ToFloat64(m.inventoryDrift.WithLabelValues("row_missing")); got != 1 {
		t.Errorf("expected 1 drift, got %v", got)
	}
	if got := testutil.ToFloat64(m.labOrders.WithLabelValues("created")); got != 1 {
		t.Errorf("expected 1 lab order, got %v", got)
	}
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.ObserveReservation("reserved")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `hospitrack_bed_reservations_total{outcome="reserved"} 1`) {
		t.Errorf("expected reservation counter in exposition, got:\n%s", rec.Body.String())
	}
}
