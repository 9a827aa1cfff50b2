package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loykin/stackup/internal/process"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Phase: func() string { return "running" },
		Services: func() []process.Status {
			return []process.Status{
				{Name: "engine", Port: 50051, State: process.StateAlive, PID: 101, StartedAt: time.Now()},
				{Name: "gateway", Port: 50050, State: process.StateStarting, PID: 102},
			}
		},
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewRouter(testSnapshot(), "").Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Phase    string `json:"phase"`
		Services []struct {
			Name      string `json:"name"`
			Port      int    `json:"port"`
			State     string `json:"state"`
			PID       int    `json:"pid"`
			StartedAt string `json:"started_at"`
		} `json:"services"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Phase != "running" {
		t.Fatalf("phase = %q", body.Phase)
	}
	if len(body.Services) != 2 || body.Services[0].Name != "engine" || body.Services[0].Port != 50051 {
		t.Fatalf("services = %+v", body.Services)
	}
	if body.Services[0].StartedAt == "" {
		t.Fatalf("started_at missing for running service")
	}
	if body.Services[1].StartedAt != "" {
		t.Fatalf("started_at set for never-started service")
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewRouter(testSnapshot(), "").Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestBasePathMount(t *testing.T) {
	srv := httptest.NewServer(NewRouter(testSnapshot(), "/stack/").Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stack/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status under base path = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("root route should not exist when base path is set")
	}
}

func TestEmptySnapshotFuncs(t *testing.T) {
	srv := httptest.NewServer(NewRouter(Snapshot{}, "").Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":        "",
		"/":       "",
		"stack":   "/stack",
		"/stack/": "/stack",
		"/a/b//":  "/a/b",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}
