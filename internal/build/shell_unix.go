//go:build !windows

package build

import (
	"context"
	"os/exec"
)

// shellCommandContext returns a shell command for Unix systems
func shellCommandContext(ctx context.Context, script string) *exec.Cmd {
	// #nosec G204
	return exec.CommandContext(ctx, "/bin/sh", "-c", script)
}
