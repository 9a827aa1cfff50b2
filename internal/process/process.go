package process

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ErrEarlyExit reports that a launched service exited before its start
// duration elapsed, i.e. it crashed immediately after launch.
var ErrEarlyExit = errors.New("process exited before start duration elapsed")

// Process owns one launched service: the exec handle, its captured output
// writers, and the last-known status. The supervisor exclusively owns the set
// of Process records for the lifetime of a run.
type Process struct {
	spec      Spec
	cmd       *exec.Cmd
	status    Status
	mu        sync.Mutex
	stopping  bool          // true once Stop was requested
	waitDone  chan struct{} // closed by the monitor goroutine when cmd.Wait returns
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	reaped    atomic.Bool
}

func New(spec Spec) *Process {
	return &Process{spec: spec, status: Status{Name: spec.Name, Port: spec.Port, State: StateUnknown}}
}

func (p *Process) Spec() Spec { return p.spec }

// Start launches the service binary as a detached child in its own process
// group with mergedEnv applied, then spawns a monitor goroutine that reaps the
// child when it exits. It returns as soon as the child is forked; liveness is
// verified separately via EnforceStartDuration.
func (p *Process) Start(mergedEnv []string) error {
	cmd := p.spec.BuildCommand()
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	}
	configureSysProcAttr(cmd)

	if p.spec.Log.Dir != "" || p.spec.Log.StdoutPath != "" || p.spec.Log.StderrPath != "" {
		if p.spec.Log.Dir != "" {
			_ = os.MkdirAll(p.spec.Log.Dir, 0o750)
		}
		outW, errW, _ := p.spec.Log.Writers(p.spec.Name)
		p.mu.Lock()
		p.outCloser, p.errCloser = outW, errW
		p.mu.Unlock()
		if outW != nil {
			cmd.Stdout = outW
		}
		if errW != nil {
			cmd.Stderr = errW
		}
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if null != nil {
			cmd.Stdout = null
			cmd.Stderr = null
			// closed by the monitor (or the start-failure path) like any
			// other captured-output writer
			p.mu.Lock()
			p.outCloser = null
			p.mu.Unlock()
		}
	}

	if err := cmd.Start(); err != nil {
		p.mu.Lock()
		p.status.State = StateUnknown
		p.status.ExitErr = err
		p.mu.Unlock()
		p.closeWriters()
		return err
	}

	p.mu.Lock()
	p.cmd = cmd
	p.waitDone = make(chan struct{})
	p.status.State = StateStarting
	p.status.PID = cmd.Process.Pid
	p.status.StartedAt = time.Now()
	p.status.ExitErr = nil
	p.stopping = false
	wd := p.waitDone
	p.mu.Unlock()

	go p.monitor(cmd, wd)
	return nil
}

// monitor is the single waiter on the child. It reaps the process, records the
// exit, and releases the captured output writers.
func (p *Process) monitor(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	p.mu.Lock()
	p.status.State = StateExited
	p.status.StoppedAt = time.Now()
	p.status.ExitErr = err
	p.mu.Unlock()
	p.reaped.Store(true)
	p.closeWriters()
	close(done)
}

func (p *Process) closeWriters() {
	p.mu.Lock()
	if p.outCloser != nil {
		_ = p.outCloser.Close()
		p.outCloser = nil
	}
	if p.errCloser != nil {
		_ = p.errCloser.Close()
		p.errCloser = nil
	}
	p.mu.Unlock()
}

func (p *Process) pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *Process) waitDoneChan() chan struct{} {
	p.mu.Lock()
	wd := p.waitDone
	p.mu.Unlock()
	return wd
}

// DetectAlive probes whether the child is still a live process. It is a
// liveness check only: it confirms the process has not exited, not that the
// service accepts connections on its port.
func (p *Process) DetectAlive() bool {
	if p.reaped.Load() {
		return false
	}
	pid := p.pid()
	if pid <= 0 {
		return false
	}
	// A quickly-exiting child shows up as a zombie until reaped; not alive.
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		return false
	}
	return processExists(pid)
}

// isZombieLinux returns true if /proc/<pid>/status reports a zombie state (Z).
func isZombieLinux(pid int) bool {
	path := "/proc/" + strconv.Itoa(pid) + "/status"
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

// EnforceStartDuration waits up to d ensuring the process stays up, returning
// ErrEarlyExit if it dies first. A zero duration skips the probe.
func (p *Process) EnforceStartDuration(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if p.pid() <= 0 {
		return ErrEarlyExit
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !p.DetectAlive() {
			return ErrEarlyExit
		}
		time.Sleep(10 * time.Millisecond)
	}
	p.mu.Lock()
	if p.status.State == StateStarting {
		p.status.State = StateAlive
	}
	p.mu.Unlock()
	return nil
}

// Stop sends SIGTERM to the child's process group and waits up to wait for the
// monitor to reap it, escalating to SIGKILL when the grace period expires.
// Stopping an already-dead process is a no-op.
func (p *Process) Stop(wait time.Duration) error {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()

	if !p.DetectAlive() {
		return nil
	}
	pid := p.pid()
	if pid <= 0 {
		return nil
	}
	_ = killProcess(-pid, syscall.SIGTERM)
	wd := p.waitDoneChan()
	if wd == nil {
		time.Sleep(wait)
		return nil
	}
	select {
	case <-wd:
		return nil // exited and reaped by monitor
	case <-time.After(wait):
		_ = killProcess(-pid, syscall.SIGKILL)
		select {
		case <-wd:
			return nil // reaped after kill
		case <-time.After(200 * time.Millisecond):
			return errors.New("process not reaped after kill")
		}
	}
}

// Kill sends SIGKILL to the process group and waits briefly for the reap.
func (p *Process) Kill() error {
	pid := p.pid()
	if pid <= 0 {
		return nil
	}
	_ = killProcess(-pid, syscall.SIGKILL)
	wd := p.waitDoneChan()
	if wd != nil {
		select {
		case <-wd:
		case <-time.After(200 * time.Millisecond):
			// best-effort
		}
	}
	return nil
}

// StopRequested reports whether Stop has been called for this process.
func (p *Process) StopRequested() bool {
	p.mu.Lock()
	v := p.stopping
	p.mu.Unlock()
	return v
}

// Snapshot returns a copy of the current status.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	s := p.status
	p.mu.Unlock()
	return s
}
