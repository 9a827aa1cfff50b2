package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterAndCount(t *testing.T) {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// double registration is tolerated
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("second Register: %v", err)
	}

	IncLaunch("engine")
	IncStop("engine")
	IncReclaim("50051")
	ObserveStartDuration("engine", 0.5)
	RecordPhaseTransition("idle", "building")

	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	body := string(b)
	for _, metric := range []string{
		"stackup_service_launches_total",
		"stackup_service_stops_total",
		"stackup_port_reclaims_total",
		"stackup_service_start_duration_seconds",
		"stackup_lifecycle_phase_transitions_total",
		"stackup_lifecycle_current_phase",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("metric %s missing from exposition", metric)
		}
	}
}
