package planner_test

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/paulschiretz/pgl-stage/pkg/bundle"
	"github.com/paulschiretz/pgl-stage/pkg/compression"
	"github.com/paulschiretz/pgl-stage/pkg/config"
	"github.com/paulschiretz/pgl-stage/pkg/planner"
)

func TestGenerateBuildPlan(t *testing.T) {
	tests := []struct {
		name        string
		configMod   func(*config.Config)
		expectError bool
		validate    func(*testing.T, string, *planner.BuildPlan)
	}{
		{
			name:      "Defaults",
			configMod: func(c *config.Config) {},
			validate: func(t *testing.T, root string, p *planner.BuildPlan) {
				want := planner.Paths{
					Root:             root,
					Output:           filepath.Join(root, "dist"),
					Stylesheet:       filepath.Join(root, "src", "styles.css"),
					Markup:           filepath.Join(root, "index.html"),
					Images:           filepath.Join(root, "images"),
					Fonts:            filepath.Join(root, "fonts"),
					OutputStylesheet: filepath.Join(root, "dist", "styles.css"),
					OutputMarkup:     filepath.Join(root, "dist", "index.html"),
					OutputImages:     filepath.Join(root, "dist", "images"),
					OutputFonts:      filepath.Join(root, "dist", "fonts"),
				}
				if p.Paths != want {
					t.Errorf("unexpected paths:\n got %+v\nwant %+v", p.Paths, want)
				}
				if !reflect.DeepEqual(p.Compiler.Command, []string{"npx", "tailwindcss"}) || !p.Compiler.Minify {
					t.Errorf("unexpected compiler plan %+v", p.Compiler)
				}
				if p.Compiler.Timeout != 0 {
					t.Errorf("expected no timeout, got %v", p.Compiler.Timeout)
				}
				if p.Hooks.Enabled {
					t.Error("expected hooks to be disabled without commands")
				}
				if !p.Audit.Enabled || p.Audit.MarkupFile != "index.html" || p.Audit.StylesheetFile != "styles.css" {
					t.Errorf("unexpected audit plan %+v", p.Audit)
				}
				if p.Precompress.Enabled || p.Bundle.Enabled {
					t.Error("expected precompress and bundle to be disabled by default")
				}
				if p.Bundle.Format != bundle.TarZst {
					t.Errorf("expected tar.zst, got %v", p.Bundle.Format)
				}
				if !reflect.DeepEqual(p.Precompress.Codecs, []compression.Codec{compression.Gzip, compression.Zstd}) {
					t.Errorf("unexpected codecs %v", p.Precompress.Codecs)
				}
				if p.CopyWorkers != 4 || p.BufferSizeKB != 256 {
					t.Errorf("unexpected performance settings workers=%d buffer=%d", p.CopyWorkers, p.BufferSizeKB)
				}
			},
		},
		{
			name: "Dry run propagates to every step",
			configMod: func(c *config.Config) {
				c.Runtime.DryRun = true
			},
			validate: func(t *testing.T, _ string, p *planner.BuildPlan) {
				if !p.DryRun || !p.Preflight.DryRun || !p.OutputDir.DryRun || !p.Compiler.DryRun ||
					!p.Copy.DryRun || !p.Hooks.DryRun || !p.Audit.DryRun || !p.Precompress.DryRun || !p.Bundle.DryRun {
					t.Errorf("expected dry run everywhere, got %+v", p)
				}
			},
		},
		{
			name: "Absolute output and timeout",
			configMod: func(c *config.Config) {
				c.Paths.Output = filepath.Join(c.Root, "elsewhere", "public")
				c.Compiler.TimeoutSeconds = 30
				c.Hooks.PostBuild = []string{"echo done"}
				c.Bundle.Enabled = true
				c.Bundle.Format = "tar.gz"
				c.Bundle.Level = "best"
			},
			validate: func(t *testing.T, root string, p *planner.BuildPlan) {
				if p.Paths.Output != filepath.Join(root, "elsewhere", "public") {
					t.Errorf("unexpected output %s", p.Paths.Output)
				}
				if p.Compiler.Timeout != 30*time.Second {
					t.Errorf("expected 30s timeout, got %v", p.Compiler.Timeout)
				}
				if !p.Hooks.Enabled {
					t.Error("expected hooks to be enabled")
				}
				if p.Bundle.Format != bundle.TarGz || p.Bundle.Level != compression.Best {
					t.Errorf("unexpected bundle plan %+v", p.Bundle)
				}
			},
		},
		{
			name: "Invalid Bundle Format",
			configMod: func(c *config.Config) {
				c.Bundle.Format = "zip"
			},
			expectError: true,
		},
		{
			name: "Invalid Precompress Codec",
			configMod: func(c *config.Config) {
				c.Precompress.Formats = []string{"lz4"}
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			cfg := config.NewDefault()
			cfg.Root = root
			tt.configMod(&cfg)

			plan, err := planner.GenerateBuildPlan(cfg)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.validate(t, root, plan)
		})
	}
}

func TestPaths_Sources(t *testing.T) {
	p := planner.Paths{Stylesheet: "/s", Markup: "/m", Images: "/i", Fonts: "/f"}
	want := map[string]string{"stylesheet": "/s", "markup": "/m", "images": "/i", "fonts": "/f"}
	if got := p.Sources(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
