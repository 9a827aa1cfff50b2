package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Client is the foreground client process the supervisor blocks on. It runs
// with the launcher's terminal attached; its exit is the cue to tear down the
// managed services.
type Client struct {
	Command string
	WorkDir string
	Env     []string
}

// Run executes the client until it exits or ctx is cancelled. Cancellation
// kills the client process.
func (c Client) Run(ctx context.Context) error {
	if strings.TrimSpace(c.Command) == "" {
		return errors.New("client: empty command")
	}
	cmd := commandContext(ctx, c.Command)
	cmd.Dir = c.WorkDir
	if len(c.Env) > 0 {
		cmd.Env = c.Env
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("client: %w", wrapRunErr(err, nil))
	}
	return nil
}
