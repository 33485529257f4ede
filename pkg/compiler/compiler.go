// Package compiler invokes the external stylesheet compiler.
//
// The compiler is treated as an opaque program: it receives an input path, an
// output path and optionally a minify flag, runs in the project root and
// writes its own progress straight to the console. Exit status 0 means
// success; anything else is reported as an *ExitError.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/paulschiretz/pgl-stage/pkg/hints"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
)

var ErrDisabled = hints.New("stylesheet compilation is disabled")

// ErrNoCommand is returned when the plan names no compiler executable.
var ErrNoCommand = errors.New("no compiler command configured")

// ErrNoOutput is returned when the compiler exits 0 without producing its
// output file.
var ErrNoOutput = errors.New("compiler reported success but produced no output")

// ExitError reports a compiler run that did not succeed. ExitCode is -1 when
// the process could not be started or was killed by a signal.
type ExitError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *ExitError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("compiler '%s' failed: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("compiler '%s' exited with code %d", e.Command, e.ExitCode)
}

func (e *ExitError) Unwrap() error { return e.Err }

type Compiler struct {
	// commandContext allows mocking os/exec in tests.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewCompiler creates a Compiler that starts processes with commandContext,
// normally exec.CommandContext.
func NewCompiler(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *Compiler {
	return &Compiler{commandContext: commandContext}
}

// Args returns the full argument vector for compiling absInput into absOutput.
func Args(p *Plan, absInput, absOutput string) []string {
	args := make([]string, 0, len(p.Command)+5)
	args = append(args, p.Command...)
	if p.InputFlag != "" {
		args = append(args, p.InputFlag)
	}
	args = append(args, absInput, p.OutputFlag, absOutput)
	if p.Minify && p.MinifyFlag != "" {
		args = append(args, p.MinifyFlag)
	}
	return args
}

// Compile runs the compiler with absRoot as its working directory and blocks
// until it exits. Its stdout and stderr are forwarded unbuffered.
func (c *Compiler) Compile(ctx context.Context, absRoot, absInput, absOutput string, p *Plan) error {
	if !p.Enabled {
		return ErrDisabled
	}
	if len(p.Command) == 0 || p.Command[0] == "" {
		return ErrNoCommand
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	args := Args(p, absInput, absOutput)
	cmdLine := strings.Join(args, " ")

	if p.DryRun {
		plog.Info("[DRY RUN] Compiling stylesheet", "command", cmdLine, "dir", absRoot)
		return nil
	}
	plog.Info("Compiling stylesheet", "command", cmdLine)

	runCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	cmd := c.createCommand(runCtx, args[0], args[1:]...)
	cmd.Dir = absRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if runCtx.Err() != nil {
			return &ExitError{Command: cmdLine, ExitCode: -1, Err: fmt.Errorf("timed out after %s: %w", p.Timeout, runCtx.Err())}
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &ExitError{Command: cmdLine, ExitCode: exitCode, Err: err}
	}

	info, err := os.Stat(absOutput)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%s: %w", absOutput, ErrNoOutput)
	}
	return nil
}
