package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/stackup/internal/env"
	"github.com/loykin/stackup/internal/process"
)

// DefaultStartDuration is the liveness window a freshly launched service must
// survive before the supervisor moves on.
const DefaultStartDuration = time.Second

// Handle is a launched service as the supervisor sees it.
type Handle interface {
	Spec() process.Spec
	DetectAlive() bool
	Stop(wait time.Duration) error
	Kill() error
	Snapshot() process.Status
}

// Launcher forks one service and verifies it survived its liveness window.
type Launcher interface {
	Launch(ctx context.Context, spec process.Spec) (Handle, error)
}

// ProcLauncher is the real Launcher: it starts the service binary through
// internal/process with the run's merged environment applied.
type ProcLauncher struct {
	Env *env.Env
}

func (l ProcLauncher) Launch(ctx context.Context, spec process.Spec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := process.New(spec)
	var merged []string
	if l.Env != nil {
		merged = l.Env.Merge(spec.Env)
	} else {
		merged = spec.Env
	}
	if err := p.Start(merged); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLaunchFailed, spec.Name, err)
	}
	d := spec.StartDuration
	if d <= 0 {
		d = DefaultStartDuration
	}
	if err := p.EnforceStartDuration(d); err != nil {
		st := p.Snapshot()
		if st.ExitErr != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCrashedImmediately, spec.Name, st.ExitErr)
		}
		return nil, fmt.Errorf("%w: %s", ErrCrashedImmediately, spec.Name)
	}
	return p, nil
}
