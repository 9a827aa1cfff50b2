// Package server exposes a small read-only status endpoint while the stack is
// running. It reports the supervisor's phase and per-service status, and
// serves the Prometheus metrics for the run.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/stackup/internal/metrics"
	"github.com/loykin/stackup/internal/process"
)

// Snapshot supplies the current view of the stack. Both functions must be
// safe for concurrent use.
type Snapshot struct {
	Phase    func() string
	Services func() []process.Status
}

// Router provides embeddable HTTP handlers for observing a running stack.
// Endpoints:
//
//	GET {basePath}/status   phase plus per-service status
//	GET {basePath}/healthz  200 while the handler is mounted
//	GET {basePath}/metrics  Prometheus metrics
type Router struct {
	snap     Snapshot
	basePath string
}

// NewRouter constructs a Router with a configurable basePath ("" for root).
func NewRouter(snap Snapshot, basePath string) *Router {
	return &Router{snap: snap, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone status server on addr. The returned shutdown
// function stops it with a bounded grace period.
func NewServer(addr, basePath string, snap Snapshot) (*http.Server, func()) {
	r := NewRouter(snap, basePath)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return srv, stop
}

type statusResp struct {
	Phase    string          `json:"phase"`
	Services []serviceStatus `json:"services"`
}

type serviceStatus struct {
	Name      string `json:"name"`
	Port      int    `json:"port"`
	State     string `json:"state"`
	PID       int    `json:"pid"`
	StartedAt string `json:"started_at,omitempty"`
	ExitErr   string `json:"exit_error,omitempty"`
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := statusResp{Services: []serviceStatus{}}
	if r.snap.Phase != nil {
		resp.Phase = r.snap.Phase()
	}
	if r.snap.Services != nil {
		for _, st := range r.snap.Services() {
			s := serviceStatus{
				Name:  st.Name,
				Port:  st.Port,
				State: string(st.State),
				PID:   st.PID,
			}
			if !st.StartedAt.IsZero() {
				s.StartedAt = st.StartedAt.Format(time.RFC3339)
			}
			if st.ExitErr != nil {
				s.ExitErr = st.ExitErr.Error()
			}
			resp.Services = append(resp.Services, s)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func sanitizeBase(basePath string) string {
	if basePath == "" || basePath == "/" {
		return ""
	}
	if basePath[0] != '/' {
		basePath = "/" + basePath
	}
	for len(basePath) > 1 && basePath[len(basePath)-1] == '/' {
		basePath = basePath[:len(basePath)-1]
	}
	return basePath
}
