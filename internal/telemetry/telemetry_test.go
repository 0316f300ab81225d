package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kartoza/decision-forecast/internal/apperr"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveRun(KindForecast, time.Now())
	m.ObserveRun(KindForecast, time.Now())
	m.ObserveSkipped("forecast", []apperr.Skip{{Name: "arima"}, {Name: "arima"}, {Name: "log_linear"}})
	m.ObserveDiverged([]apperr.Skip{{Name: "collapse"}})

	if got := testutil.ToFloat64(m.runs.WithLabelValues(KindForecast)); got != 2 {
		t.Errorf("expected 2 forecast runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.skipped.WithLabelValues("forecast", "arima")); got != 2 {
		t.Errorf("expected 2 arima skips, got %v", got)
	}
	if got := testutil.ToFloat64(m.diverged.WithLabelValues("collapse")); got != 1 {
		t.Errorf("expected 1 divergence, got %v", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Errorf("expected one duration series, got %d", n)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRun(KindProjection, time.Now())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `forecast_runs_total{kind="projection"} 1`) {
		t.Errorf("expected run counter in output, got:\n%s", rec.Body.String())
	}
}
