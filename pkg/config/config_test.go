package config

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-stage/pkg/buildinfo"
	"github.com/paulschiretz/pgl-stage/pkg/flagparse"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
)

func TestMain(m *testing.M) {
	plog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestConfig_Validate(t *testing.T) {
	newValidConfig := func(t *testing.T) Config {
		cfg := NewDefault()
		cfg.Root = t.TempDir()
		return cfg
	}

	t.Run("Valid Config", func(t *testing.T) {
		cfg := newValidConfig(t)
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config to pass validation, but got error: %v", err)
		}
	})

	t.Run("Relative root is made absolute", func(t *testing.T) {
		cfg := newValidConfig(t)
		cfg.Root = "."
		if err := cfg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !filepath.IsAbs(cfg.Root) {
			t.Errorf("expected absolute root, got %q", cfg.Root)
		}
	})

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"Empty Root", func(c *Config) { c.Root = "" }, "root path cannot be empty"},
		{"Empty Output", func(c *Config) { c.Paths.Output = " " }, "paths.output cannot be empty"},
		{"Empty Markup", func(c *Config) { c.Paths.Markup = "" }, "paths.markup cannot be empty"},
		{"Empty Compiler Command", func(c *Config) { c.Compiler.Command = nil }, "compiler.command cannot be empty"},
		{"Empty Output Flag", func(c *Config) { c.Compiler.OutputFlag = "" }, "compiler.outputFlag"},
		{"Negative Timeout", func(c *Config) { c.Compiler.TimeoutSeconds = -1 }, "compiler.timeoutSeconds"},
		{"Zero Copy Workers", func(c *Config) { c.Engine.Performance.CopyWorkers = 0 }, "copyWorkers"},
		{"Zero Buffer Size", func(c *Config) { c.Engine.Performance.BufferSizeKB = 0 }, "bufferSizeKB"},
		{"Invalid Precompress Level", func(c *Config) { c.Precompress.Level = "max" }, "precompress.level"},
		{"Invalid Precompress Format", func(c *Config) { c.Precompress.Formats = []string{"brotli"} }, "precompress.formats"},
		{"No Precompress Format When Enabled", func(c *Config) {
			c.Precompress.Enabled = true
			c.Precompress.Formats = nil
		}, "precompress.formats cannot be empty"},
		{"Extension Without Dot", func(c *Config) { c.Precompress.Extensions = []string{"css"} }, "must start with a dot"},
		{"Invalid Bundle Format", func(c *Config) { c.Bundle.Format = "zip" }, "bundle.format"},
		{"Invalid Bundle Level", func(c *Config) { c.Bundle.Level = "11" }, "bundle.level"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newValidConfig(t)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("Missing file yields defaults", func(t *testing.T) {
		root := t.TempDir()
		cfg, err := Load(root)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		want := NewDefault()
		want.Root = root
		if !reflect.DeepEqual(cfg, want) {
			t.Errorf("expected defaults, got %+v", cfg)
		}
	})

	t.Run("Empty file yields defaults", func(t *testing.T) {
		root := t.TempDir()
		if err := os.WriteFile(filepath.Join(root, ConfigFileName), []byte("\n"), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(root)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Paths.Output != "dist" {
			t.Errorf("expected default output, got %q", cfg.Paths.Output)
		}
	})

	t.Run("File values overlay defaults", func(t *testing.T) {
		root := t.TempDir()
		content := `version: "0.0.1"
paths:
  output: public
compiler:
  command: [tailwindcss]
  minify: false
bundle:
  enabled: true
  format: tar.gz
`
		if err := os.WriteFile(filepath.Join(root, ConfigFileName), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(root)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Paths.Output != "public" {
			t.Errorf("expected output 'public', got %q", cfg.Paths.Output)
		}
		if cfg.Paths.Markup != "index.html" {
			t.Errorf("expected default markup to survive, got %q", cfg.Paths.Markup)
		}
		if !reflect.DeepEqual(cfg.Compiler.Command, []string{"tailwindcss"}) {
			t.Errorf("unexpected compiler command %v", cfg.Compiler.Command)
		}
		if cfg.Compiler.Minify {
			t.Error("expected minify to be disabled by the file")
		}
		if !cfg.Bundle.Enabled || cfg.Bundle.Format != "tar.gz" {
			t.Errorf("unexpected bundle config %+v", cfg.Bundle)
		}
		if cfg.Version != buildinfo.Version {
			t.Errorf("expected version to be overwritten with %q, got %q", buildinfo.Version, cfg.Version)
		}
		if cfg.Root != root {
			t.Errorf("expected root %q, got %q", root, cfg.Root)
		}
	})

	t.Run("Unknown keys are rejected", func(t *testing.T) {
		root := t.TempDir()
		if err := os.WriteFile(filepath.Join(root, ConfigFileName), []byte("paths:\n  outptu: x\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(root); err == nil {
			t.Error("expected error for unknown key, got nil")
		}
	})

	t.Run("Malformed file", func(t *testing.T) {
		root := t.TempDir()
		if err := os.WriteFile(filepath.Join(root, ConfigFileName), []byte("paths: [\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(root); err == nil {
			t.Error("expected parse error, got nil")
		}
	})
}

func TestGenerate(t *testing.T) {
	root := t.TempDir()
	cfg := NewDefault()
	cfg.Root = root
	cfg.Paths.Output = "public"
	cfg.Hooks.PreBuild = []string{"echo hi"}

	if err := Generate(cfg); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, ConfigFileName))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), root) {
		t.Error("expected root to be left out of the generated file")
	}

	loaded, err := Load(root)
	if err != nil {
		t.Fatalf("Load after Generate failed: %v", err)
	}
	if loaded.Paths != cfg.Paths || loaded.Compiler.Minify != cfg.Compiler.Minify || loaded.Bundle != cfg.Bundle {
		t.Errorf("generated config did not load back unchanged:\n got %+v\nwant %+v", loaded, cfg)
	}
	if !reflect.DeepEqual(loaded.Hooks.PreBuild, cfg.Hooks.PreBuild) {
		t.Errorf("expected pre-build hooks %v, got %v", cfg.Hooks.PreBuild, loaded.Hooks.PreBuild)
	}
	if !reflect.DeepEqual(loaded.Precompress.Extensions, cfg.Precompress.Extensions) {
		t.Errorf("expected extensions %v, got %v", cfg.Precompress.Extensions, loaded.Precompress.Extensions)
	}
}

func TestMergeConfigWithFlags(t *testing.T) {
	base := NewDefault()
	base.Root = "/project"

	t.Run("overrides only set flags", func(t *testing.T) {
		flags := map[string]any{
			"root":             "/other",
			"output":           "public",
			"compiler":         []string{"tailwindcss", "--config", "tw.js"},
			"minify":           false,
			"copy-workers":     8,
			"strict-audit":     true,
			"precompress":      true,
			"bundle-format":    "tar.gz",
			"pre-build-hooks":  []string{"npm ci"},
			"post-build-hooks": []string{"echo done"},
			"dry-run":          true,
		}
		merged := MergeConfigWithFlags(flagparse.Build, base, flags)

		if merged.Root != "/other" || merged.Paths.Output != "public" {
			t.Errorf("unexpected paths: root=%q output=%q", merged.Root, merged.Paths.Output)
		}
		if !reflect.DeepEqual(merged.Compiler.Command, []string{"tailwindcss", "--config", "tw.js"}) {
			t.Errorf("unexpected compiler %v", merged.Compiler.Command)
		}
		if merged.Compiler.Minify {
			t.Error("expected minify false")
		}
		if merged.Engine.Performance.CopyWorkers != 8 {
			t.Errorf("expected 8 copy workers, got %d", merged.Engine.Performance.CopyWorkers)
		}
		if !merged.Audit.Strict || !merged.Precompress.Enabled || merged.Bundle.Format != "tar.gz" {
			t.Errorf("unexpected merge result %+v", merged)
		}
		if !merged.Runtime.DryRun {
			t.Error("expected dry run for build")
		}
		if merged.Paths.Markup != base.Paths.Markup {
			t.Errorf("expected unset markup to keep %q, got %q", base.Paths.Markup, merged.Paths.Markup)
		}
	})

	t.Run("dry-run is ignored outside build", func(t *testing.T) {
		merged := MergeConfigWithFlags(flagparse.Init, base, map[string]any{"dry-run": true})
		if merged.Runtime.DryRun {
			t.Error("expected dry run to be ignored for init")
		}
	})

	t.Run("does not alias the base compiler command", func(t *testing.T) {
		merged := MergeConfigWithFlags(flagparse.Build, base, map[string]any{})
		merged.Compiler.Command[0] = "changed"
		if base.Compiler.Command[0] != "npx" {
			t.Errorf("base was modified: %v", base.Compiler.Command)
		}
	})
}
