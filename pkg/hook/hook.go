// Package hook runs the user's pre- and post-build shell commands.
//
// Commands run one after another in the project root through the platform
// shell, with their output forwarded to the console. A failing pre-build
// command aborts the build. Post-build commands only run after a successful
// build, so their failures are reported but never turn it into a failure.
package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/paulschiretz/pgl-stage/pkg/hints"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
)

var ErrNothingToExecute = hints.New("nothing to execute")
var ErrDisabled = hints.New("hook execution is disabled")

type HookExecutor struct {
	// commandContext allows mocking os/exec for testing hooks.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewHookExecutor creates a new HookExecutor.
func NewHookExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *HookExecutor {
	return &HookExecutor{
		commandContext: commandContext,
	}
}

// RunPreBuild runs the pre-build commands and stops at the first failure.
func (e *HookExecutor) RunPreBuild(ctx context.Context, absRoot string, p *Plan) error {
	if !p.Enabled {
		return ErrDisabled
	}
	if len(p.PreBuildCommands) == 0 {
		return ErrNothingToExecute
	}

	plog.Info("Running pre-build hook commands")
	for _, hookCommand := range p.PreBuildCommands {
		if err := e.run(ctx, absRoot, hookCommand, p.DryRun); err != nil {
			return err
		}
	}
	return nil
}

// RunPostBuild runs every post-build command. Failed commands are logged and
// skipped; only cancellation is returned as an error.
func (e *HookExecutor) RunPostBuild(ctx context.Context, absRoot string, p *Plan) error {
	if !p.Enabled {
		return ErrDisabled
	}
	if len(p.PostBuildCommands) == 0 {
		return ErrNothingToExecute
	}

	plog.Info("Running post-build hook commands")
	for _, hookCommand := range p.PostBuildCommands {
		err := e.run(ctx, absRoot, hookCommand, p.DryRun)
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		plog.Warn("Post-build hook command failed", "command", hookCommand, "error", err)
	}
	return nil
}

func (e *HookExecutor) run(ctx context.Context, absRoot, hookCommand string, dryRun bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if dryRun {
		plog.Info("[DRY RUN] Executing command", "command", hookCommand)
		return nil
	}
	plog.Info("Executing command", "command", hookCommand)

	cmd := e.createCommand(ctx, hookCommand)
	cmd.Dir = absRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		// A killed process reports its signal, not the cancellation.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("command '%s' failed: %w", hookCommand, err)
	}
	return nil
}
