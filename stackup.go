package stackup

import (
	"net/http"
	"strings"

	"github.com/loykin/stackup/internal/build"
	cfg "github.com/loykin/stackup/internal/config"
	"github.com/loykin/stackup/internal/env"
	"github.com/loykin/stackup/internal/journal"
	jfactory "github.com/loykin/stackup/internal/journal/factory"
	"github.com/loykin/stackup/internal/metrics"
	"github.com/loykin/stackup/internal/process"
	"github.com/loykin/stackup/internal/reclaim"
	iapi "github.com/loykin/stackup/internal/server"
	"github.com/loykin/stackup/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for embedding consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type Status = process.Status

type Phase = supervisor.Phase

type Options = supervisor.Options

type BuildStep = supervisor.BuildStep

type Supervisor = supervisor.Supervisor

type Builder = build.Builder

type Codegen = build.Codegen

type Client = build.Client

type Reclaimer = reclaim.Reclaimer

type FileConfig = cfg.FileConfig

type JournalStore = journal.Store

// New constructs a supervisor from explicit options.
func New(opts Options) *Supervisor { return supervisor.New(opts) }

// NewLauncher returns the real process launcher using the given global env
// entries ("K=V") layered over the OS environment.
func NewLauncher(globalEnv []string) supervisor.Launcher {
	e := env.New()
	e.FromOS()
	for _, kv := range globalEnv {
		if k, v, ok := strings.Cut(kv, "="); ok {
			e.Set(k, v)
		}
	}
	return supervisor.ProcLauncher{Env: e}
}

// LoadConfig parses and validates a stackup TOML config file.
func LoadConfig(path string) (*FileConfig, error) { return cfg.Load(path) }

// OpenJournal opens a run journal store from a DSN (sqlite path or postgres URL).
func OpenJournal(dsn string) (JournalStore, error) { return jfactory.NewFromDSN(dsn) }

// RegisterMetrics registers the launcher's Prometheus collectors.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// MetricsHandler serves the default Prometheus gatherer.
func MetricsHandler() http.Handler { return metrics.Handler() }

// StatusSnapshot feeds the embeddable status handler.
type StatusSnapshot = iapi.Snapshot

// NewStatusHandler returns an http.Handler exposing /status, /healthz, and
// /metrics under basePath, mountable in any mux.
func NewStatusHandler(snap StatusSnapshot, basePath string) http.Handler {
	return iapi.NewRouter(snap, basePath).Handler()
}
