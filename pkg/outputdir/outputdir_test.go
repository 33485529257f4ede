package outputdir

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-stage/pkg/hints"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
)

func TestMain(m *testing.M) {
	plog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestClean(t *testing.T) {
	t.Run("removes existing directory recursively", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "dist")
		stale := filepath.Join(out, "old", "stale.txt")
		if err := os.MkdirAll(filepath.Dir(stale), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(stale, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}

		m := NewManager()
		if err := m.Clean(context.Background(), out, &Plan{Enabled: true}); err != nil {
			t.Fatalf("Clean failed: %v", err)
		}
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Errorf("expected output directory to be gone, stat err=%v", err)
		}
	})

	t.Run("missing directory is not an error", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "dist")
		if err := NewManager().Clean(context.Background(), out, &Plan{Enabled: true}); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("dry run keeps the directory", func(t *testing.T) {
		out := t.TempDir()
		if err := NewManager().Clean(context.Background(), out, &Plan{Enabled: true, DryRun: true}); err != nil {
			t.Fatalf("Clean failed: %v", err)
		}
		if _, err := os.Stat(out); err != nil {
			t.Errorf("expected output directory to survive a dry run, got %v", err)
		}
	})

	t.Run("removal failure is returned", func(t *testing.T) {
		if runtime.GOOS == "windows" || os.Geteuid() == 0 {
			t.Skip("read-only directories do not block removal here")
		}
		parent := filepath.Join(t.TempDir(), "locked")
		out := filepath.Join(parent, "dist")
		if err := os.MkdirAll(out, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(parent, 0555); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Chmod(parent, 0755) })

		err := NewManager().Clean(context.Background(), out, &Plan{Enabled: true})
		if err == nil {
			t.Fatal("expected an error when the output directory cannot be removed")
		}
		if !errors.Is(err, fs.ErrPermission) {
			t.Errorf("expected the error to wrap fs.ErrPermission, got %v", err)
		}
		if !strings.Contains(err.Error(), "failed to remove output directory") {
			t.Errorf("expected a removal error, got %v", err)
		}
		if _, statErr := os.Stat(out); statErr != nil {
			t.Errorf("expected output directory to remain, stat err=%v", statErr)
		}
	})

	t.Run("disabled returns a hint", func(t *testing.T) {
		err := NewManager().Clean(context.Background(), t.TempDir(), &Plan{})
		if !hints.IsHint(err) {
			t.Errorf("expected a hint, got %v", err)
		}
	})
}

func TestCreate(t *testing.T) {
	t.Run("creates missing parents", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "a", "b", "dist")
		if err := NewManager().Create(context.Background(), out, &Plan{Enabled: true}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		info, err := os.Stat(out)
		if err != nil || !info.IsDir() {
			t.Errorf("expected %s to be a directory, err=%v", out, err)
		}
	})

	t.Run("fails when a file is in the way", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "dist")
		if err := os.WriteFile(out, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := NewManager().Create(context.Background(), out, &Plan{Enabled: true}); err == nil {
			t.Error("expected an error when the output path is a file, got nil")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewManager().Create(ctx, filepath.Join(t.TempDir(), "dist"), &Plan{Enabled: true})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
