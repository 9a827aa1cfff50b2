// Package supervisor drives the launch sequence: build every service, run
// codegen once, reclaim the fixed ports, launch services in startup order with
// a liveness probe each, run the foreground client to completion, and tear the
// whole stack down on exit or interruption. The supervisor itself is
// single-threaded; concurrency exists only between the launched OS processes.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/loykin/stackup/internal/journal"
	"github.com/loykin/stackup/internal/metrics"
	"github.com/loykin/stackup/internal/process"
	"github.com/loykin/stackup/internal/reclaim"
)

// Runner is a blocking external collaborator: a build step, the codegen step,
// or the foreground client. Exit without error means success.
type Runner interface {
	Run(ctx context.Context) error
}

// Reclaimer frees a fixed TCP port before launch. Failures are non-fatal.
type Reclaimer interface {
	Reclaim(port int) error
}

// BuildStep pairs a service name with its build collaborator.
type BuildStep struct {
	Name string
	Step Runner
}

// DefaultStopWait is the grace period a service gets on teardown before the
// stop escalates to a forced kill.
const DefaultStopWait = 3 * time.Second

// DefaultReadyTimeout bounds how long the launcher waits for a just-launched
// service's port to accept connections before starting its dependent.
const DefaultReadyTimeout = 5 * time.Second

// Options wires the supervisor's collaborators. Specs must be sorted in
// startup order. Codegen, Client, Journal, Reclaimer, and OnRunning are
// optional.
type Options struct {
	Logger    *slog.Logger
	Specs     []process.Spec
	Builds    []BuildStep
	Codegen   Runner
	Reclaimer Reclaimer
	Launcher  Launcher
	Client    Runner
	Journal   journal.Store

	// WaitReady polls a launched service's port before its dependent starts.
	// Defaults to reclaim.WaitListening. A timeout is logged, not fatal: the
	// fixed ordering is a head start, not a synchronized handshake.
	WaitReady    func(ctx context.Context, port int, timeout time.Duration) error
	ReadyTimeout time.Duration

	// OnRunning is invoked when the stack is up, with a snapshot function for
	// the status endpoint. The returned stop function runs at shutdown.
	OnRunning func(snapshot func() []process.Status) (stop func())
}

// Supervisor owns the running set for the lifetime of one run.
type Supervisor struct {
	opts  Options
	log   *slog.Logger
	runID string

	mu      sync.Mutex
	phase   Phase
	running []Handle // in launch order
}

func New(opts Options) *Supervisor {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.WaitReady == nil {
		opts.WaitReady = reclaim.WaitListening
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	return &Supervisor{opts: opts, log: log, phase: PhaseIdle, runID: journal.NewRunID()}
}

// Phase returns the current lifecycle phase.
func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Statuses snapshots every launched service, in launch order.
func (s *Supervisor) Statuses() []process.Status {
	s.mu.Lock()
	handles := append([]Handle(nil), s.running...)
	s.mu.Unlock()
	out := make([]process.Status, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.Snapshot())
	}
	return out
}

// Run drives the full sequence. Cancelling ctx at any point triggers teardown
// of whatever subset launched; no partial stack is ever left running.
func (s *Supervisor) Run(ctx context.Context) error {
	s.transition(PhaseBuilding)
	for _, b := range s.opts.Builds {
		if err := ctx.Err(); err != nil {
			return s.interrupted(err)
		}
		s.log.Info("building service", "name", b.Name)
		if err := b.Step.Run(ctx); err != nil {
			// A cancelled build is an interrupt, not a build failure.
			if ctx.Err() != nil {
				return s.interrupted(ctx.Err())
			}
			return s.fail(fmt.Errorf("%w: %s: %v", ErrBuildFailed, b.Name, err))
		}
	}

	s.transition(PhaseGeneratingCode)
	if s.opts.Codegen != nil {
		if err := ctx.Err(); err != nil {
			return s.interrupted(err)
		}
		s.log.Info("generating client stubs")
		if err := s.opts.Codegen.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return s.interrupted(ctx.Err())
			}
			return s.fail(fmt.Errorf("%w: %v", ErrCodegenFailed, err))
		}
	}

	s.transition(PhaseReclaimingPorts)
	if s.opts.Reclaimer != nil {
		for _, spec := range s.opts.Specs {
			if err := ctx.Err(); err != nil {
				return s.interrupted(err)
			}
			metrics.IncReclaim(strconv.Itoa(spec.Port))
			if err := s.opts.Reclaimer.Reclaim(spec.Port); err != nil {
				// Best-effort: a truly unavailable port fails at launch.
				s.log.Warn("port reclaim failed", "port", spec.Port, "error", err)
			}
		}
	}

	s.transition(PhaseLaunching)
	for i, spec := range s.opts.Specs {
		if err := ctx.Err(); err != nil {
			return s.interrupted(err)
		}
		if prev := specBefore(s.opts.Specs, i); prev != nil && prev.Port > 0 {
			// Give the previous service a bounded head start on its port.
			if err := s.opts.WaitReady(ctx, prev.Port, s.opts.ReadyTimeout); err != nil {
				if ctx.Err() != nil {
					return s.interrupted(ctx.Err())
				}
				s.log.Warn("dependency not accepting connections yet", "name", prev.Name, "port", prev.Port, "error", err)
			}
		}
		if spec.StartDelay > 0 {
			select {
			case <-ctx.Done():
				return s.interrupted(ctx.Err())
			case <-time.After(spec.StartDelay):
			}
		}
		s.log.Info("launching service", "name", spec.Name, "port", spec.Port, "order", spec.Order)
		started := time.Now()
		h, err := s.opts.Launcher.Launch(ctx, spec)
		if err != nil {
			if ctx.Err() != nil {
				return s.interrupted(ctx.Err())
			}
			return s.fail(err)
		}
		s.mu.Lock()
		s.running = append(s.running, h)
		s.mu.Unlock()
		st := h.Snapshot()
		metrics.IncLaunch(spec.Name)
		metrics.ObserveStartDuration(spec.Name, time.Since(started).Seconds())
		s.journalService(journal.EventServiceStart, spec.Name, st.PID, "")
		s.log.Info("service is up", "name", spec.Name, "pid", st.PID)
	}

	s.transition(PhaseRunning)
	var stopHook func()
	if s.opts.OnRunning != nil {
		stopHook = s.opts.OnRunning(s.Statuses)
	}
	if s.opts.Client != nil {
		s.log.Info("starting foreground client")
		if err := s.opts.Client.Run(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("foreground client exited with error", "error", err)
		}
	} else {
		<-ctx.Done()
	}
	if stopHook != nil {
		stopHook()
	}

	s.transition(PhaseShuttingDown)
	s.teardown()
	s.transition(PhaseStopped)
	// nil on a normal client exit, the cancellation cause on an interrupt
	return ctx.Err()
}

// interrupted handles an external cancellation: tear down whatever launched,
// pass through ShuttingDown, and surface the cancellation cause.
func (s *Supervisor) interrupted(cause error) error {
	s.log.Info("interrupt received, shutting down")
	s.transition(PhaseShuttingDown)
	s.teardown()
	s.transition(PhaseStopped)
	return cause
}

// fail handles a fatal phase error: tear down the launched subset and land in
// Failed. Teardown is always attempted regardless of which phase failed.
func (s *Supervisor) fail(err error) error {
	s.log.Error("launch sequence failed", "phase", string(s.Phase()), "error", err)
	s.teardown()
	s.transition(PhaseFailed)
	s.journalService(journal.EventPhase, string(PhaseFailed), 0, err.Error())
	return err
}

// teardown stops every launched service in reverse launch order, escalating
// from a graceful stop to a forced kill. It never blocks indefinitely.
func (s *Supervisor) teardown() {
	s.mu.Lock()
	handles := append([]Handle(nil), s.running...)
	s.running = nil
	s.mu.Unlock()
	for i := len(handles) - 1; i >= 0; i-- {
		h := handles[i]
		spec := h.Spec()
		wait := spec.StopWait
		if wait <= 0 {
			wait = DefaultStopWait
		}
		s.log.Info("stopping service", "name", spec.Name)
		if err := h.Stop(wait); err != nil {
			s.log.Warn("graceful stop failed", "name", spec.Name, "error", err)
		}
		if h.DetectAlive() {
			s.log.Warn("escalating to kill", "name", spec.Name)
			_ = h.Kill()
			if h.DetectAlive() {
				s.log.Error("service survived kill", "name", spec.Name, "error", ErrShutdownTimeout)
			}
		}
		st := h.Snapshot()
		detail := ""
		if st.ExitErr != nil {
			detail = st.ExitErr.Error()
		}
		metrics.IncStop(spec.Name)
		s.journalService(journal.EventServiceStop, spec.Name, st.PID, detail)
	}
}

func specBefore(specs []process.Spec, i int) *process.Spec {
	if i == 0 {
		return nil
	}
	return &specs[i-1]
}

func (s *Supervisor) transition(to Phase) {
	s.mu.Lock()
	from := s.phase
	if from == to || from.Terminal() {
		s.mu.Unlock()
		return
	}
	s.phase = to
	s.mu.Unlock()
	s.log.Info("phase", "from", string(from), "to", string(to))
	metrics.RecordPhaseTransition(string(from), string(to))
	if to != PhaseFailed { // failure detail is journaled by fail()
		s.journalService(journal.EventPhase, string(to), 0, "")
	}
}

func (s *Supervisor) journalService(event, name string, pid int, detail string) {
	if s.opts.Journal == nil {
		return
	}
	rec := journal.Record{
		RunID:      s.runID,
		Event:      event,
		Name:       name,
		PID:        pid,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.opts.Journal.Append(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("journal append failed", "error", err)
	}
}
