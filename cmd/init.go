package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-stage/pkg/buildinfo"
	"github.com/paulschiretz/pgl-stage/pkg/config"
	"github.com/paulschiretz/pgl-stage/pkg/flagparse"
	"github.com/paulschiretz/pgl-stage/pkg/lockfile"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
	"github.com/paulschiretz/pgl-stage/pkg/preflight"
)

// RunInit writes pgl-stage.config.yaml into the project root. Existing
// settings are kept unless --default is given; flags are merged on top.
func RunInit(ctx context.Context, flagMap map[string]interface{}) error {
	root, ok := flagMap["root"].(string)
	if !ok || root == "" {
		return fmt.Errorf("the --root flag is required for the init operation")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("could not determine absolute root path for %s: %w", root, err)
	}

	if err := preflight.CheckRootAccessible(absRoot); err != nil {
		return fmt.Errorf("initialization preflight failed: %w", err)
	}

	initDefault := false
	if v, ok := flagMap["default"]; ok {
		initDefault = v.(bool)
	}
	force := false
	if f, ok := flagMap["force"]; ok {
		force = f.(bool)
	}

	absConfigFilePath := filepath.Join(absRoot, config.ConfigFileName)
	_, statErr := os.Stat(absConfigFilePath)
	configExists := statErr == nil

	var baseConfig config.Config
	if initDefault {
		baseConfig = config.NewDefault()
		baseConfig.Root = absRoot
	} else {
		// A corrupt file falls back to defaults; a missing one already yields them.
		baseConfig, err = config.Load(absRoot)
		if err != nil {
			plog.Warn("Could not load existing configuration, starting with defaults.", "reason", err)
			baseConfig = config.NewDefault()
			baseConfig.Root = absRoot
		}
	}

	// Create a config from base merged with user flags.
	runConfig := config.MergeConfigWithFlags(flagparse.Init, baseConfig, flagMap)
	runConfig.Root = absRoot

	// CRITICAL: Validate the config before writing it
	if err := runConfig.Validate(); err != nil {
		return err
	}

	if configExists && !force {
		fmt.Printf("WARNING: Configuration file already exists at %s.\n", absConfigFilePath)
		if initDefault {
			fmt.Printf("Using --default will overwrite it with default values. All custom settings will be lost.\n")
		}
		if !PromptForConfirmation("Are you sure you want to continue?", false) {
			plog.Info(buildinfo.Name + " init operation canceled.")
			return nil
		}
	}

	startTime := time.Now()

	// Do not rewrite the config underneath a running build.
	lock, err := lockfile.Acquire(ctx, absRoot, buildinfo.LockAppID(absRoot))
	if err != nil {
		return fmt.Errorf("failed to acquire lock on project root: %w", err)
	}
	defer lock.Release()

	if err := config.Generate(runConfig); err != nil {
		return fmt.Errorf("failed to generate config file: %w", err)
	}

	duration := time.Since(startTime).Round(time.Millisecond)
	plog.Info(buildinfo.Name+" project successfully initialized.", "duration", duration)
	return nil
}

// PromptForConfirmation prompts the user for a yes/no response.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)

	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
