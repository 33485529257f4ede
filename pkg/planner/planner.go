package planner

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-stage/pkg/assetaudit"
	"github.com/paulschiretz/pgl-stage/pkg/bundle"
	"github.com/paulschiretz/pgl-stage/pkg/compiler"
	"github.com/paulschiretz/pgl-stage/pkg/compression"
	"github.com/paulschiretz/pgl-stage/pkg/config"
	"github.com/paulschiretz/pgl-stage/pkg/hook"
	"github.com/paulschiretz/pgl-stage/pkg/outputdir"
	"github.com/paulschiretz/pgl-stage/pkg/pathcopy"
	"github.com/paulschiretz/pgl-stage/pkg/precompress"
	"github.com/paulschiretz/pgl-stage/pkg/preflight"
	"github.com/paulschiretz/pgl-stage/pkg/util"
)

// Fixed artifact names inside the output directory.
const (
	OutputStylesheet = "styles.css"
	OutputMarkup     = "index.html"
	OutputImages     = "images"
	OutputFonts      = "fonts"
)

type BuildPlan struct {
	DryRun  bool
	Metrics bool

	CopyWorkers  int
	BufferSizeKB int

	Paths Paths

	Preflight   *preflight.Plan
	OutputDir   *outputdir.Plan
	Compiler    *compiler.Plan
	Copy        *pathcopy.Plan
	Hooks       *hook.Plan
	Audit       *assetaudit.Plan
	Precompress *precompress.Plan
	Bundle      *bundle.Plan
}

// Paths holds every absolute path a build touches.
type Paths struct {
	Root   string
	Output string

	Stylesheet string
	Markup     string
	Images     string
	Fonts      string

	OutputStylesheet string
	OutputMarkup     string
	OutputImages     string
	OutputFonts      string
}

// Sources returns the input paths keyed by a short label, for preflight.
func (p Paths) Sources() map[string]string {
	return map[string]string{
		"stylesheet": p.Stylesheet,
		"markup":     p.Markup,
		"images":     p.Images,
		"fonts":      p.Fonts,
	}
}

func resolvePaths(cfg config.Config) (Paths, error) {
	root, err := util.ResolvePath("", cfg.Root)
	if err != nil {
		return Paths{}, fmt.Errorf("could not resolve root: %w", err)
	}

	resolved := Paths{Root: root}
	for _, entry := range []struct {
		dst *string
		rel string
	}{
		{&resolved.Output, cfg.Paths.Output},
		{&resolved.Stylesheet, cfg.Paths.Stylesheet},
		{&resolved.Markup, cfg.Paths.Markup},
		{&resolved.Images, cfg.Paths.Images},
		{&resolved.Fonts, cfg.Paths.Fonts},
	} {
		if *entry.dst, err = util.ResolvePath(root, entry.rel); err != nil {
			return Paths{}, fmt.Errorf("could not resolve %q: %w", entry.rel, err)
		}
	}

	resolved.OutputStylesheet = filepath.Join(resolved.Output, OutputStylesheet)
	resolved.OutputMarkup = filepath.Join(resolved.Output, OutputMarkup)
	resolved.OutputImages = filepath.Join(resolved.Output, OutputImages)
	resolved.OutputFonts = filepath.Join(resolved.Output, OutputFonts)
	return resolved, nil
}

// GenerateBuildPlan turns a validated configuration into a BuildPlan.
func GenerateBuildPlan(cfg config.Config) (*BuildPlan, error) {

	// Global Flags
	dryRun := cfg.Runtime.DryRun
	metrics := cfg.Engine.Metrics

	paths, err := resolvePaths(cfg)
	if err != nil {
		return nil, err
	}

	precompressLevel, err := compression.ParseLevel(cfg.Precompress.Level)
	if err != nil {
		return nil, err
	}
	codecs := make([]compression.Codec, 0, len(cfg.Precompress.Formats))
	for _, f := range cfg.Precompress.Formats {
		codec, err := compression.ParseCodec(f)
		if err != nil {
			return nil, err
		}
		codecs = append(codecs, codec)
	}

	bundleFormat, err := bundle.ParseFormat(cfg.Bundle.Format)
	if err != nil {
		return nil, err
	}
	bundleLevel, err := compression.ParseLevel(cfg.Bundle.Level)
	if err != nil {
		return nil, err
	}

	return &BuildPlan{
		DryRun:       dryRun,
		Metrics:      metrics,
		CopyWorkers:  cfg.Engine.Performance.CopyWorkers,
		BufferSizeKB: cfg.Engine.Performance.BufferSizeKB,
		Paths:        paths,

		Preflight: &preflight.Plan{
			RootAccessible:   true,
			OutputSafe:       true,
			OutputAccessible: true,
			// Global Flags
			DryRun: dryRun,
		},
		OutputDir: &outputdir.Plan{
			Enabled: true,
			// Global Flags
			DryRun: dryRun,
		},
		Compiler: &compiler.Plan{
			Enabled:    true,
			Command:    append([]string(nil), cfg.Compiler.Command...),
			InputFlag:  cfg.Compiler.InputFlag,
			OutputFlag: cfg.Compiler.OutputFlag,
			MinifyFlag: cfg.Compiler.MinifyFlag,
			Minify:     cfg.Compiler.Minify,
			Timeout:    time.Duration(cfg.Compiler.TimeoutSeconds) * time.Second,
			// Global Flags
			DryRun: dryRun,
		},
		Copy: &pathcopy.Plan{
			Enabled: true,
			// Global Flags
			DryRun:  dryRun,
			Metrics: metrics,
		},
		Hooks: &hook.Plan{
			Enabled:           len(cfg.Hooks.PreBuild) > 0 || len(cfg.Hooks.PostBuild) > 0,
			PreBuildCommands:  cfg.Hooks.PreBuild,
			PostBuildCommands: cfg.Hooks.PostBuild,
			// Global Flags
			DryRun: dryRun,
		},
		Audit: &assetaudit.Plan{
			Enabled:        cfg.Audit.Enabled,
			Strict:         cfg.Audit.Strict,
			MarkupFile:     OutputMarkup,
			StylesheetFile: OutputStylesheet,
			// Global Flags
			DryRun: dryRun,
		},
		Precompress: &precompress.Plan{
			Enabled:    cfg.Precompress.Enabled,
			Codecs:     codecs,
			Extensions: cfg.Precompress.Extensions,
			Level:      precompressLevel,
			// Global Flags
			DryRun:  dryRun,
			Metrics: metrics,
		},
		Bundle: &bundle.Plan{
			Enabled: cfg.Bundle.Enabled,
			Format:  bundleFormat,
			Level:   bundleLevel,
			// Global Flags
			DryRun:  dryRun,
			Metrics: metrics,
		},
	}, nil
}
