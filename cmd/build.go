package cmd

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/paulschiretz/pgl-stage/pkg/assetaudit"
	"github.com/paulschiretz/pgl-stage/pkg/buildinfo"
	"github.com/paulschiretz/pgl-stage/pkg/bundle"
	"github.com/paulschiretz/pgl-stage/pkg/compiler"
	"github.com/paulschiretz/pgl-stage/pkg/config"
	"github.com/paulschiretz/pgl-stage/pkg/engine"
	"github.com/paulschiretz/pgl-stage/pkg/flagparse"
	"github.com/paulschiretz/pgl-stage/pkg/hook"
	"github.com/paulschiretz/pgl-stage/pkg/outputdir"
	"github.com/paulschiretz/pgl-stage/pkg/pathcopy"
	"github.com/paulschiretz/pgl-stage/pkg/planner"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
	"github.com/paulschiretz/pgl-stage/pkg/precompress"
	"github.com/paulschiretz/pgl-stage/pkg/preflight"
)

// commandContext creates the compiler and hook processes; replaced in tests.
var commandContext = exec.CommandContext

// RunBuild stages the project found at the root flag.
func RunBuild(ctx context.Context, flagMap map[string]interface{}) error {
	root, ok := flagMap["root"].(string)
	if !ok || root == "" {
		return fmt.Errorf("the --root flag is required to run a build")
	}

	// Load config from the project root, or use defaults if not found.
	loadedConfig, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration from root: %w", err)
	}

	// Merge the flag values over the loaded config to get the final run config.
	runConfig := config.MergeConfigWithFlags(flagparse.Build, loadedConfig, flagMap)

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(); err != nil {
		return err
	}

	// Set the global log level based on the final configuration.
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	// Log the Summary
	runConfig.LogSummary()

	// Create the runner and feed it with our leaf workers
	runner := engine.NewRunner(
		preflight.NewValidator(),
		outputdir.NewManager(),
		compiler.NewCompiler(commandContext),
		pathcopy.NewPathCopier(
			runConfig.Engine.Performance.BufferSizeKB,
			runConfig.Engine.Performance.CopyWorkers,
		),
		hook.NewHookExecutor(commandContext),
		assetaudit.NewAuditor(),
		precompress.NewPrecompressor(
			runConfig.Engine.Performance.BufferSizeKB,
			runConfig.Engine.Performance.CopyWorkers,
		),
		bundle.NewBundler(runConfig.Engine.Performance.BufferSizeKB),
	)

	// Get the Plan
	buildPlan, err := planner.GenerateBuildPlan(runConfig)
	if err != nil {
		return err
	}

	// Execute the plan
	startTime := time.Now()
	err = runner.ExecuteBuild(ctx, buildPlan)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	plog.Info(buildinfo.Name+" finished successfully.", "duration", duration)
	return nil
}
