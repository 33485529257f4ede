package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/paulschiretz/pgl-stage/pkg/buildinfo"
	"github.com/paulschiretz/pgl-stage/pkg/bundle"
	"github.com/paulschiretz/pgl-stage/pkg/compression"
	"github.com/paulschiretz/pgl-stage/pkg/flagparse"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
	"github.com/paulschiretz/pgl-stage/pkg/util"
)

// ConfigFileName is the name of the configuration file in the project root.
const ConfigFileName = "pgl-stage.config.yaml"

// PathsConfig holds the project layout. All paths are relative to the root
// unless absolute.
type PathsConfig struct {
	Stylesheet string `yaml:"stylesheet"`
	Markup     string `yaml:"markup"`
	Images     string `yaml:"images"`
	Fonts      string `yaml:"fonts"`
	Output     string `yaml:"output"`
}

type CompilerConfig struct {
	// Command is the program and its leading arguments, e.g. [npx, tailwindcss].
	// SECURITY: executed as provided.
	Command        []string `yaml:"command"`
	InputFlag      string   `yaml:"inputFlag"`
	OutputFlag     string   `yaml:"outputFlag"`
	MinifyFlag     string   `yaml:"minifyFlag"`
	Minify         bool     `yaml:"minify"`
	TimeoutSeconds int      `yaml:"timeoutSeconds"`
}

type EnginePerformanceConfig struct {
	CopyWorkers  int `yaml:"copyWorkers"`
	BufferSizeKB int `yaml:"bufferSizeKB"`
}

type EngineConfig struct {
	Metrics     bool                    `yaml:"metrics"`
	Performance EnginePerformanceConfig `yaml:"performance"`
}

type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	Strict  bool `yaml:"strict"`
}

type PrecompressConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Formats    []string `yaml:"formats"`
	Extensions []string `yaml:"extensions"`
	Level      string   `yaml:"level"`
}

type BundleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level"`
}

type HooksConfig struct {
	// SECURITY: These commands are executed by the shell as provided.
	PreBuild []string `yaml:"preBuild"`
	// PostBuild runs only after a successful build.
	PostBuild []string `yaml:"postBuild"`
}

type RuntimeConfig struct {
	DryRun bool
}

type Config struct {
	Version     string            `yaml:"version"`
	Root        string            `yaml:"-"` // Never added to config file
	Runtime     RuntimeConfig     `yaml:"-"` // Never added to config file
	LogLevel    string            `yaml:"logLevel"`
	Paths       PathsConfig       `yaml:"paths"`
	Compiler    CompilerConfig    `yaml:"compiler"`
	Engine      EngineConfig      `yaml:"engine"`
	Audit       AuditConfig       `yaml:"audit"`
	Precompress PrecompressConfig `yaml:"precompress"`
	Bundle      BundleConfig      `yaml:"bundle"`
	Hooks       HooksConfig       `yaml:"hooks"`
}

// NewDefault returns the configuration for the conventional project layout.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		Root:     "",
		LogLevel: "info",
		Paths: PathsConfig{
			Stylesheet: "src/styles.css",
			Markup:     "index.html",
			Images:     "images",
			Fonts:      "fonts",
			Output:     "dist",
		},
		Compiler: CompilerConfig{
			Command:        []string{"npx", "tailwindcss"},
			InputFlag:      "-i",
			OutputFlag:     "-o",
			MinifyFlag:     "--minify",
			Minify:         true,
			TimeoutSeconds: 0, // no timeout
		},
		Engine: EngineConfig{
			Metrics: true,
			Performance: EnginePerformanceConfig{
				CopyWorkers:  4,   // Safe for HDDs, decent for SSDs.
				BufferSizeKB: 256, // Keep it between 64KB-4MB
			},
		},
		Audit: AuditConfig{
			Enabled: true,
			Strict:  false,
		},
		Precompress: PrecompressConfig{
			Enabled:    false,
			Formats:    []string{"gzip", "zstd"},
			Extensions: []string{".html", ".css", ".svg", ".js", ".json", ".txt", ".xml"},
			Level:      "default",
		},
		Bundle: BundleConfig{
			Enabled: false,
			Format:  "tar.zst",
			Level:   "default",
		},
		Hooks: HooksConfig{
			PreBuild:  []string{},
			PostBuild: []string{},
		},
	}
}

// Load reads pgl-stage.config.yaml from root and overlays it on the defaults.
// A missing or empty file yields the defaults. Unknown keys are an error.
func Load(root string) (Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for root %s: %w", root, err)
	}

	configPath := filepath.Join(absRoot, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := NewDefault()
			cfg.Root = absRoot
			return cfg, nil
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", configPath, err)
	}

	plog.Info("Loading configuration", "path", configPath)
	config := NewDefault()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.UnmarshalWithOptions(data, &config, yaml.Strict()); err != nil {
			return Config{}, fmt.Errorf("error parsing config file %s: %w", configPath, err)
		}
	}
	config.Root = absRoot

	// NOTE: a migration step goes here once the file format changes between versions.
	if config.Version != buildinfo.Version {
		config.Version = buildinfo.Version
	}
	return config, nil
}

// Generate writes the configuration to pgl-stage.config.yaml in its root,
// replacing any existing file.
func Generate(configToGenerate Config) error {
	configPath := filepath.Join(configToGenerate.Root, ConfigFileName)
	data, err := yaml.Marshal(configToGenerate)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	plog.Info("Successfully saved config file", "path", configPath)
	return nil
}

// Validate checks the configuration for logical errors and canonicalises the root.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root path cannot be empty")
	}
	root, err := util.ExpandPath(c.Root)
	if err != nil {
		return fmt.Errorf("could not expand root path: %w", err)
	}
	if c.Root, err = filepath.Abs(root); err != nil {
		return fmt.Errorf("could not resolve root path: %w", err)
	}

	for name, p := range map[string]string{
		"paths.stylesheet": c.Paths.Stylesheet,
		"paths.markup":     c.Paths.Markup,
		"paths.images":     c.Paths.Images,
		"paths.fonts":      c.Paths.Fonts,
		"paths.output":     c.Paths.Output,
	} {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
	}

	if len(c.Compiler.Command) == 0 || strings.TrimSpace(c.Compiler.Command[0]) == "" {
		return fmt.Errorf("compiler.command cannot be empty")
	}
	if c.Compiler.OutputFlag == "" {
		return fmt.Errorf("compiler.outputFlag cannot be empty")
	}
	if c.Compiler.TimeoutSeconds < 0 {
		return fmt.Errorf("compiler.timeoutSeconds cannot be negative")
	}

	if c.Engine.Performance.CopyWorkers < 1 {
		return fmt.Errorf("engine.performance.copyWorkers must be at least 1")
	}
	if c.Engine.Performance.BufferSizeKB <= 0 {
		return fmt.Errorf("engine.performance.bufferSizeKB must be greater than 0")
	}

	if _, err := compression.ParseLevel(c.Precompress.Level); err != nil {
		return fmt.Errorf("precompress.level: %w", err)
	}
	if c.Precompress.Enabled && len(c.Precompress.Formats) == 0 {
		return fmt.Errorf("precompress.formats cannot be empty when precompression is enabled")
	}
	for _, f := range c.Precompress.Formats {
		if _, err := compression.ParseCodec(f); err != nil {
			return fmt.Errorf("precompress.formats: %w", err)
		}
	}
	for _, ext := range c.Precompress.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("precompress.extensions: %q must start with a dot", ext)
		}
	}

	if _, err := bundle.ParseFormat(c.Bundle.Format); err != nil {
		return fmt.Errorf("bundle.format: %w", err)
	}
	if _, err := compression.ParseLevel(c.Bundle.Level); err != nil {
		return fmt.Errorf("bundle.level: %w", err)
	}
	return nil
}

// LogSummary logs the effective configuration at INFO.
func (c *Config) LogSummary() {
	logArgs := []interface{}{
		"log_level", c.LogLevel,
		"root", c.Root,
		"output", c.Paths.Output,
		"dry_run", c.Runtime.DryRun,
		"stylesheet", c.Paths.Stylesheet,
		"markup", c.Paths.Markup,
		"images", c.Paths.Images,
		"fonts", c.Paths.Fonts,
		"compiler", strings.Join(c.Compiler.Command, " "),
		"minify", c.Compiler.Minify,
		"copy_workers", c.Engine.Performance.CopyWorkers,
		"buffer_size_kb", c.Engine.Performance.BufferSizeKB,
		"metrics", c.Engine.Metrics,
	}
	if c.Compiler.TimeoutSeconds > 0 {
		logArgs = append(logArgs, "compiler_timeout", fmt.Sprintf("%ds", c.Compiler.TimeoutSeconds))
	}
	if c.Audit.Enabled {
		logArgs = append(logArgs, "audit", fmt.Sprintf("enabled (strict:%t)", c.Audit.Strict))
	}
	if c.Precompress.Enabled {
		logArgs = append(logArgs, "precompress", fmt.Sprintf("enabled (f:%s l:%s e:%s)",
			strings.Join(c.Precompress.Formats, ","), c.Precompress.Level, strings.Join(c.Precompress.Extensions, ",")))
	}
	if c.Bundle.Enabled {
		logArgs = append(logArgs, "bundle", fmt.Sprintf("enabled (f:%s l:%s)", c.Bundle.Format, c.Bundle.Level))
	}
	if len(c.Hooks.PreBuild) > 0 {
		logArgs = append(logArgs, "pre_build_hooks", strings.Join(c.Hooks.PreBuild, "; "))
	}
	if len(c.Hooks.PostBuild) > 0 {
		logArgs = append(logArgs, "post_build_hooks", strings.Join(c.Hooks.PostBuild, "; "))
	}
	plog.Info("Configuration loaded", logArgs...)
}

// MergeConfigWithFlags overlays the configuration values from flags on top of a base
// configuration. It iterates over the setFlags map, which contains only the flags
// explicitly provided by the user on the command line.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base
	// Slices are shared with base otherwise.
	merged.Compiler.Command = append([]string(nil), base.Compiler.Command...)

	for name, value := range setFlags {
		switch name {
		case "root":
			merged.Root = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "dry-run":
			if command == flagparse.Build {
				merged.Runtime.DryRun = value.(bool)
			}
		case "metrics":
			merged.Engine.Metrics = value.(bool)
		case "output":
			merged.Paths.Output = value.(string)
		case "stylesheet":
			merged.Paths.Stylesheet = value.(string)
		case "markup":
			merged.Paths.Markup = value.(string)
		case "images":
			merged.Paths.Images = value.(string)
		case "fonts":
			merged.Paths.Fonts = value.(string)
		case "compiler":
			merged.Compiler.Command = value.([]string)
		case "minify":
			merged.Compiler.Minify = value.(bool)
		case "compiler-timeout":
			merged.Compiler.TimeoutSeconds = value.(int)
		case "copy-workers":
			merged.Engine.Performance.CopyWorkers = value.(int)
		case "buffer-size-kb":
			merged.Engine.Performance.BufferSizeKB = value.(int)
		case "audit":
			merged.Audit.Enabled = value.(bool)
		case "strict-audit":
			merged.Audit.Strict = value.(bool)
		case "precompress":
			merged.Precompress.Enabled = value.(bool)
		case "precompress-extensions":
			merged.Precompress.Extensions = value.([]string)
		case "bundle":
			merged.Bundle.Enabled = value.(bool)
		case "bundle-format":
			merged.Bundle.Format = value.(string)
		case "bundle-level":
			merged.Bundle.Level = value.(string)
		case "pre-build-hooks":
			merged.Hooks.PreBuild = value.([]string)
		case "post-build-hooks":
			merged.Hooks.PostBuild = value.([]string)
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged
}
