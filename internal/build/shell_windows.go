//go:build windows

package build

import (
	"context"
	"os/exec"
)

// shellCommandContext returns a shell command for Windows systems
func shellCommandContext(ctx context.Context, script string) *exec.Cmd {
	// #nosec G204
	return exec.CommandContext(ctx, "cmd", "/c", script)
}
