package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulschiretz/pgl-stage/pkg/config"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
)

func TestMain(m *testing.M) {
	plog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestRun(t *testing.T) {
	t.Run("no arguments prints usage", func(t *testing.T) {
		if err := run(context.Background(), nil); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("version", func(t *testing.T) {
		if err := run(context.Background(), []string{"version"}); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("unknown command", func(t *testing.T) {
		if err := run(context.Background(), []string{"deploy"}); err == nil {
			t.Error("expected error for unknown command, got nil")
		}
	})

	t.Run("unknown flag", func(t *testing.T) {
		if err := run(context.Background(), []string{"build", "--no-such-flag"}); err == nil {
			t.Error("expected error for unknown flag, got nil")
		}
	})

	t.Run("init writes the config file", func(t *testing.T) {
		root := t.TempDir()
		if err := run(context.Background(), []string{"init", "--root", root, "--log-level", "warn"}); err != nil {
			t.Fatalf("init failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(root, config.ConfigFileName)); err != nil {
			t.Errorf("expected config file: %v", err)
		}
	})

	t.Run("build fails on a missing root", func(t *testing.T) {
		if err := run(context.Background(), []string{"build", "--root", filepath.Join(t.TempDir(), "missing")}); err == nil {
			t.Error("expected error for a missing root, got nil")
		}
	})
}
