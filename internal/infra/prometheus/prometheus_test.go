package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sifan077/MiniLink/config"
)

func TestNewServer_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "minilink_test_total",
		Help: "test counter",
	})
	reg.MustRegister(counter)
	counter.Inc()

	srv := NewServer(config.PrometheusConfig{}, reg)
	if srv.Addr != ":9090" {
		t.Fatalf("expected default port, got %s", srv.Addr)
	}

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "minilink_test_total 1") {
		t.Fatalf("metrics output missing counter:\n%s", rec.Body.String())
	}
}

func TestNewServer_CustomPort(t *testing.T) {
	srv := NewServer(config.PrometheusConfig{Port: 9191}, nil)
	if srv.Addr != ":9191" {
		t.Fatalf("expected :9191, got %s", srv.Addr)
	}

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 outside %s, got %d", metricsPath, rec.Code)
	}
}
