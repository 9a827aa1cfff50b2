// Package reclaim frees the fixed TCP ports managed services bind, and polls
// for a port becoming reachable after launch. Reclamation is best-effort: a
// listener gets a termination signal and a grace period, and a later bind
// failure during launch is the backstop when it does not exit in time.
package reclaim

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	gnet "github.com/shirou/gopsutil/v4/net"
	gproc "github.com/shirou/gopsutil/v4/process"
)

// DefaultGrace is how long a signaled listener gets to exit before the
// reclaimer gives up waiting.
const DefaultGrace = time.Second

// Occupancy reports what currently holds a port. Transient, computed on
// demand, never persisted.
type Occupancy struct {
	Port int    `json:"port"`
	PID  int32  `json:"pid,omitempty"`
	Name string `json:"name,omitempty"`
}

// Occupied reports whether a listener was found.
func (o Occupancy) Occupied() bool { return o.PID > 0 }

// Reclaimer frees fixed TCP ports before the launch phase.
type Reclaimer struct {
	Grace  time.Duration
	Logger *slog.Logger
}

// Probe looks up the process listening on port, if any.
func (r Reclaimer) Probe(port int) (Occupancy, error) {
	conns, err := gnet.Connections("tcp")
	if err != nil {
		return Occupancy{Port: port}, fmt.Errorf("list tcp sockets: %w", err)
	}
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.Port != uint32(port) {
			continue
		}
		occ := Occupancy{Port: port, PID: c.Pid}
		if p, perr := gproc.NewProcess(c.Pid); perr == nil {
			if name, nerr := p.Name(); nerr == nil {
				occ.Name = name
			}
		}
		return occ, nil
	}
	return Occupancy{Port: port}, nil
}

// Reclaim terminates whatever process listens on port and waits up to the
// grace period for it to exit. A free port is a no-op and never an error.
// Foreign listeners only ever get SIGTERM, never a forced kill; exit is not
// verified before returning.
func (r Reclaimer) Reclaim(port int) error {
	occ, err := r.Probe(port)
	if err != nil {
		return err
	}
	if !occ.Occupied() {
		return nil
	}
	if int(occ.PID) == os.Getpid() {
		return fmt.Errorf("port %d is held by the launcher itself", port)
	}
	r.log().Warn("reclaiming port", "port", port, "pid", occ.PID, "process", occ.Name)
	p, err := gproc.NewProcess(occ.PID)
	if err != nil {
		// Listener vanished between probe and signal; the port is free.
		return nil
	}
	if err := p.Terminate(); err != nil {
		return fmt.Errorf("terminate pid %d on port %d: %w", occ.PID, port, err)
	}
	grace := r.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if running, _ := p.IsRunning(); !running {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	// Still up after the grace period; the launch-time bind is the backstop.
	return nil
}

func (r Reclaimer) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// WaitListening polls until a TCP connection to localhost:port succeeds or
// the timeout elapses. It replaces blind startup sleeps with a bounded
// readiness check for services that bind their declared port. Dialing
// localhost covers services bound to either loopback family.
func WaitListening(ctx context.Context, port int, timeout time.Duration) error {
	addr := net.JoinHostPort("localhost", strconv.Itoa(port))
	deadline := time.Now().Add(timeout)
	d := net.Dialer{Timeout: 250 * time.Millisecond}
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("port %d not accepting connections after %s", port, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
