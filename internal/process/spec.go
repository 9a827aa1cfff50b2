package process

import (
	"os/exec"
	"path/filepath"
	"time"

	"github.com/loykin/stackup/internal/logger"
)

// Spec describes one managed service: an independently built executable bound
// to a fixed TCP port. Specs are immutable after config load; one instance
// exists per managed service.
type Spec struct {
	Name          string        `json:"name"`
	WorkDir       string        `json:"workdir"`        // build working directory; Binary resolves against it when relative
	Binary        string        `json:"binary"`         // path to the built executable
	Args          []string      `json:"args"`           // optional arguments
	Port          int           `json:"port"`           // fixed TCP port the service binds
	Order         int           `json:"order"`          // startup order (lower launches first)
	Env           []string      `json:"env"`            // optional extra env ("K=V")
	StartDelay    time.Duration `json:"start_delay"`    // pause before launching this service
	StartDuration time.Duration `json:"start_duration"` // minimum time the process must stay up to count as started
	StopWait      time.Duration `json:"stop_wait"`      // grace period before SIGKILL escalation on stop
	Log           logger.Config `json:"log"`
}

// BinaryPath returns the executable path, resolved against WorkDir when relative.
func (s *Spec) BinaryPath() string {
	if s.Binary == "" {
		return ""
	}
	if filepath.IsAbs(s.Binary) || s.WorkDir == "" {
		return s.Binary
	}
	return filepath.Join(s.WorkDir, s.Binary)
}

// BuildCommand constructs an *exec.Cmd for launching the service binary.
// Services are invoked directly, never through a shell; arguments are fixed
// at config load.
func (s *Spec) BuildCommand() *exec.Cmd {
	// #nosec G204
	return exec.Command(s.BinaryPath(), s.Args...)
}
