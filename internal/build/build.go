// Package build runs the external collaborators of the launch sequence: the
// per-service build step and the one-shot client stub generation. Both are
// synchronous, blocking calls whose only contract is "exit code zero means
// success", with captured output forwarded for diagnostics.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrToolMissing reports that the external build or codegen tool is not
// installed on the host. It is fatal and never retried.
var ErrToolMissing = errors.New("required tool not found")

// outputTail limits how much collaborator output is carried in an error.
const outputTail = 2048

// Builder compiles one named service inside its working directory.
type Builder struct {
	Name    string // service name, for diagnostics
	Command string // build command line, shell-aware
	WorkDir string // directory the build runs in
	Env     []string
}

// Run executes the build to completion. A non-zero exit is returned as an
// error carrying the tail of the combined output.
func (b Builder) Run(ctx context.Context) error {
	if strings.TrimSpace(b.Command) == "" {
		return fmt.Errorf("build %s: empty command", b.Name)
	}
	cmd := commandContext(ctx, b.Command)
	cmd.Dir = b.WorkDir
	if len(b.Env) > 0 {
		cmd.Env = b.Env
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("build %s: %w", b.Name, wrapRunErr(err, out))
	}
	return nil
}

// Codegen regenerates client stub code from interface definitions. It is
// idempotent: regenerated artifacts fully overwrite prior ones, so re-running
// needs no manual cleanup.
type Codegen struct {
	Command  string // codegen command line, shell-aware
	ProtoDir string // input interface-definition directory
	OutDir   string // output directory for generated sources
	WorkDir  string
	Env      []string
}

// Run regenerates stubs to completion, creating OutDir when missing. The
// directories are exported as PROTO_DIR and OUT_DIR in the command's
// environment.
func (g Codegen) Run(ctx context.Context) error {
	if strings.TrimSpace(g.Command) == "" {
		return errors.New("codegen: empty command")
	}
	if g.OutDir != "" {
		if err := ensureDir(g.OutDir); err != nil {
			return fmt.Errorf("codegen: create output dir: %w", err)
		}
	}
	cmd := commandContext(ctx, g.Command)
	cmd.Dir = g.WorkDir
	env := g.Env
	if g.ProtoDir != "" {
		env = append(env, "PROTO_DIR="+g.ProtoDir)
	}
	if g.OutDir != "" {
		env = append(env, "OUT_DIR="+g.OutDir)
	}
	if len(env) > 0 {
		cmd.Env = env
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("codegen: %w", wrapRunErr(err, out))
	}
	return nil
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o750)
}

// commandContext constructs an *exec.Cmd for a collaborator command line.
// It avoids invoking a shell unless metacharacters require one.
func commandContext(ctx context.Context, cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return shellCommandContext(ctx, cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.CommandContext(ctx, name, args...)
}

// wrapRunErr classifies a collaborator failure, attaching the output tail.
func wrapRunErr(err error, out []byte) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrToolMissing, err)
	}
	tail := strings.TrimSpace(string(out))
	if len(tail) > outputTail {
		tail = "..." + tail[len(tail)-outputTail:]
	}
	if tail == "" {
		return err
	}
	return fmt.Errorf("%w\n%s", err, tail)
}
