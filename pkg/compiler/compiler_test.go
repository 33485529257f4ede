package compiler

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/paulschiretz/pgl-stage/pkg/hints"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
)

func TestMain(m *testing.M) {
	plog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// TestHelperProcess stands in for the stylesheet compiler. It writes its
// working directory to the path following -o, unless HELPER_MODE says
// otherwise.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}

	switch os.Getenv("HELPER_MODE") {
	case "fail":
		os.Exit(3)
	case "nooutput":
		os.Exit(0)
	case "hang":
		time.Sleep(30 * time.Second)
		os.Exit(0)
	}

	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-o" {
			wd, _ := os.Getwd()
			if err := os.WriteFile(args[i+1], []byte(wd), 0644); err != nil {
				os.Exit(2)
			}
			os.Exit(0)
		}
	}
	os.Exit(4)
}

func helperCommand(mode string) func(ctx context.Context, name string, arg ...string) *exec.Cmd {
	return func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, arg...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1", "HELPER_MODE=" + mode}
		return cmd
	}
}

func defaultPlan() *Plan {
	return &Plan{
		Enabled:    true,
		Command:    []string{"npx", "tailwindcss"},
		InputFlag:  "-i",
		OutputFlag: "-o",
		MinifyFlag: "--minify",
		Minify:     true,
	}
}

func TestArgs(t *testing.T) {
	t.Run("minified", func(t *testing.T) {
		got := Args(defaultPlan(), "/p/src/styles.css", "/p/dist/styles.css")
		want := []string{"npx", "tailwindcss", "-i", "/p/src/styles.css", "-o", "/p/dist/styles.css", "--minify"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Args() = %v, want %v", got, want)
		}
	})

	t.Run("not minified", func(t *testing.T) {
		p := defaultPlan()
		p.Minify = false
		got := Args(p, "in.css", "out.css")
		if got[len(got)-1] != "out.css" {
			t.Errorf("expected no minify flag, got %v", got)
		}
	})

	t.Run("positional input", func(t *testing.T) {
		p := defaultPlan()
		p.InputFlag = ""
		got := Args(p, "in.css", "out.css")
		want := []string{"npx", "tailwindcss", "in.css", "-o", "out.css", "--minify"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Args() = %v, want %v", got, want)
		}
	})
}

func TestCompile(t *testing.T) {
	t.Run("success runs in the project root", func(t *testing.T) {
		root := t.TempDir()
		out := filepath.Join(root, "dist", "styles.css")
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			t.Fatal(err)
		}

		c := NewCompiler(helperCommand("ok"))
		if err := c.Compile(context.Background(), root, filepath.Join(root, "src", "styles.css"), out, defaultPlan()); err != nil {
			t.Fatalf("Compile failed: %v", err)
		}

		got, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("expected compiled output: %v", err)
		}
		wantDir, _ := filepath.EvalSymlinks(root)
		gotDir, _ := filepath.EvalSymlinks(string(got))
		if gotDir != wantDir {
			t.Errorf("expected compiler to run in %s, ran in %s", wantDir, gotDir)
		}
	})

	t.Run("non-zero exit is an ExitError with the code", func(t *testing.T) {
		root := t.TempDir()
		c := NewCompiler(helperCommand("fail"))
		err := c.Compile(context.Background(), root, "in.css", filepath.Join(root, "styles.css"), defaultPlan())

		var exitErr *ExitError
		if !errors.As(err, &exitErr) {
			t.Fatalf("expected *ExitError, got %T (%v)", err, err)
		}
		if exitErr.ExitCode != 3 {
			t.Errorf("expected exit code 3, got %d", exitErr.ExitCode)
		}
		if !strings.Contains(exitErr.Command, "tailwindcss") {
			t.Errorf("expected command line in error, got %q", exitErr.Command)
		}
	})

	t.Run("success without output file", func(t *testing.T) {
		root := t.TempDir()
		c := NewCompiler(helperCommand("nooutput"))
		err := c.Compile(context.Background(), root, "in.css", filepath.Join(root, "styles.css"), defaultPlan())
		if !errors.Is(err, ErrNoOutput) {
			t.Errorf("expected ErrNoOutput, got %v", err)
		}
	})

	t.Run("missing executable", func(t *testing.T) {
		root := t.TempDir()
		p := defaultPlan()
		p.Command = []string{filepath.Join(root, "no-such-compiler")}

		c := NewCompiler(exec.CommandContext)
		err := c.Compile(context.Background(), root, "in.css", filepath.Join(root, "styles.css"), p)
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode != -1 {
			t.Errorf("expected *ExitError with code -1, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		root := t.TempDir()
		p := defaultPlan()
		p.Timeout = 200 * time.Millisecond

		c := NewCompiler(helperCommand("hang"))
		err := c.Compile(context.Background(), root, "in.css", filepath.Join(root, "styles.css"), p)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected a deadline error, got %v", err)
		}
	})

	t.Run("dry run starts nothing", func(t *testing.T) {
		started := false
		c := NewCompiler(func(ctx context.Context, name string, arg ...string) *exec.Cmd {
			started = true
			return exec.CommandContext(ctx, name, arg...)
		})
		p := defaultPlan()
		p.DryRun = true
		if err := c.Compile(context.Background(), t.TempDir(), "in.css", "out.css", p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if started {
			t.Error("expected no process in dry run")
		}
	})

	t.Run("disabled and empty command", func(t *testing.T) {
		c := NewCompiler(exec.CommandContext)
		if err := c.Compile(context.Background(), t.TempDir(), "in", "out", &Plan{}); !hints.IsHint(err) {
			t.Errorf("expected a hint when disabled, got %v", err)
		}
		if err := c.Compile(context.Background(), t.TempDir(), "in", "out", &Plan{Enabled: true}); !errors.Is(err, ErrNoCommand) {
			t.Errorf("expected ErrNoCommand, got %v", err)
		}
	})
}
