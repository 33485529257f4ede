package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/paulschiretz/pgl-stage/cmd"
	"github.com/paulschiretz/pgl-stage/pkg/buildinfo"
	"github.com/paulschiretz/pgl-stage/pkg/flagparse"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
)

func run(ctx context.Context, args []string) error {
	command, flagMap, err := flagparse.Parse(args)
	if err != nil {
		return err
	}

	if level, ok := flagMap["log-level"].(string); ok {
		plog.SetLevel(plog.LevelFromString(level))
	}

	switch command {
	case flagparse.None:
		return nil // usage was printed
	case flagparse.Version:
		return cmd.RunVersion()
	case flagparse.Init:
		plog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "pid", os.Getpid())
		return cmd.RunInit(ctx, flagMap)
	case flagparse.Build:
		plog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "pid", os.Getpid())
		return cmd.RunBuild(ctx, flagMap)
	default:
		return fmt.Errorf("internal error: unknown command %d", command)
	}
}

func main() {
	// Match GOMAXPROCS to the container CPU quota before any worker pool starts.
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		plog.Debug(fmt.Sprintf(format, args...))
	}))

	// Set up a context that is canceled when an interrupt signal is received.
	ctx, stop := notifyContext(context.Background())
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		plog.Error(buildinfo.Name+" exited with error", "error", err)
		stop()
		os.Exit(1)
	}
}
