//go:build !windows

package compiler

import (
	"context"
	"os/exec"

	"golang.org/x/sys/unix"
)

// createCommand starts the compiler in its own process group so that a
// cancelled build also stops the workers it forks (npx spawns node).
func (c *Compiler) createCommand(ctx context.Context, name string, arg ...string) *exec.Cmd {
	cmd := c.commandContext(ctx, name, arg...)
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	return cmd
}
