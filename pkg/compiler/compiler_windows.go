//go:build windows

package compiler

import (
	"context"
	"os/exec"

	"golang.org/x/sys/windows"
)

func (c *Compiler) createCommand(ctx context.Context, name string, arg ...string) *exec.Cmd {
	cmd := c.commandContext(ctx, name, arg...)
	cmd.SysProcAttr = &windows.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
	return cmd
}
