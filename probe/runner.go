package probe

import (
	"context"
	"os/exec"
	"time"
)

// waitDelay bounds how long a killed ping may hold on to its output pipes.
const waitDelay = 100 * time.Millisecond

// ExecRunner runs commands with os/exec; the process is killed when the
// context is done.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	hideWindow(cmd)
	return cmd.Output()
}
