// Package engine runs a build plan: a strictly ordered list of stages where
// each stage is a precondition for the next and the first failure ends the
// build. Completed stages are never rolled back.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulschiretz/pgl-stage/pkg/assetaudit"
	"github.com/paulschiretz/pgl-stage/pkg/buildinfo"
	"github.com/paulschiretz/pgl-stage/pkg/bundle"
	"github.com/paulschiretz/pgl-stage/pkg/compiler"
	"github.com/paulschiretz/pgl-stage/pkg/hints"
	"github.com/paulschiretz/pgl-stage/pkg/hook"
	"github.com/paulschiretz/pgl-stage/pkg/lockfile"
	"github.com/paulschiretz/pgl-stage/pkg/outputdir"
	"github.com/paulschiretz/pgl-stage/pkg/pathcopy"
	"github.com/paulschiretz/pgl-stage/pkg/planner"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
	"github.com/paulschiretz/pgl-stage/pkg/precompress"
	"github.com/paulschiretz/pgl-stage/pkg/preflight"
)

// --- Leaf workers ---
// The runner only sees these interfaces so tests can swap any step.

type Validator interface {
	Run(ctx context.Context, absRoot, absOutput string, sources map[string]string, p *preflight.Plan) error
}

type OutputDirManager interface {
	Clean(ctx context.Context, absOutputDir string, p *outputdir.Plan) error
	Create(ctx context.Context, absOutputDir string, p *outputdir.Plan) error
}

type StylesheetCompiler interface {
	Compile(ctx context.Context, absRoot, absInput, absOutput string, p *compiler.Plan) error
}

type Copier interface {
	CopyFile(ctx context.Context, absSrcPath, absTrgPath string, p *pathcopy.Plan) error
	CopyTree(ctx context.Context, absSrcPath, absTrgPath string, p *pathcopy.Plan) error
}

type HookRunner interface {
	RunPreBuild(ctx context.Context, absRoot string, p *hook.Plan) error
	RunPostBuild(ctx context.Context, absRoot string, p *hook.Plan) error
}

type Auditor interface {
	Audit(ctx context.Context, absOutputDir string, p *assetaudit.Plan) (*assetaudit.Report, error)
}

type Precompressor interface {
	Run(ctx context.Context, absOutputDir string, p *precompress.Plan) error
}

type Bundler interface {
	Bundle(ctx context.Context, absOutputDir string, p *bundle.Plan) (string, error)
}

// Runner executes build plans with its leaf workers.
type Runner struct {
	validator     Validator
	outputDir     OutputDirManager
	compiler      StylesheetCompiler
	copier        Copier
	hooks         HookRunner
	auditor       Auditor
	precompressor Precompressor
	bundler       Bundler
}

// NewRunner wires the leaf workers into a Runner.
func NewRunner(
	validator Validator,
	outputDir OutputDirManager,
	compiler StylesheetCompiler,
	copier Copier,
	hooks HookRunner,
	auditor Auditor,
	precompressor Precompressor,
	bundler Bundler,
) *Runner {
	return &Runner{
		validator:     validator,
		outputDir:     outputDir,
		compiler:      compiler,
		copier:        copier,
		hooks:         hooks,
		auditor:       auditor,
		precompressor: precompressor,
		bundler:       bundler,
	}
}

// ExecuteBuild stages the site described by p. Every returned error other
// than a context error is a *StageError.
func (r *Runner) ExecuteBuild(ctx context.Context, p *planner.BuildPlan) error {
	// Check for cancellation at the very beginning.
	if err := ctx.Err(); err != nil {
		return err
	}
	paths := p.Paths

	if err := r.validator.Run(ctx, paths.Root, paths.Output, paths.Sources(), p.Preflight); err != nil {
		return stageErr(StagePreflight, ErrPreflight, err)
	}

	if !p.DryRun {
		release, err := r.acquireLock(ctx, paths.Root)
		if err != nil {
			return err
		}
		defer release()
	}

	if err := r.hooks.RunPreBuild(ctx, paths.Root, p.Hooks); err != nil && !hints.IsHint(err) {
		return stageErr(StagePreBuildHooks, ErrHook, err)
	}

	plog.Info("Starting build", "root", paths.Root, "output", paths.Output)

	plog.Info("Cleaning output directory", "path", paths.Output)
	if err := r.outputDir.Clean(ctx, paths.Output, p.OutputDir); err != nil && !hints.IsHint(err) {
		return stageErr(StageClean, ErrCleanup, err)
	}
	if err := r.outputDir.Create(ctx, paths.Output, p.OutputDir); err != nil && !hints.IsHint(err) {
		return stageErr(StageCreate, ErrDirectoryCreation, err)
	}

	if err := r.compiler.Compile(ctx, paths.Root, paths.Stylesheet, paths.OutputStylesheet, p.Compiler); err != nil && !hints.IsHint(err) {
		return stageErr(StageCompile, ErrCompilation, err)
	}

	plog.Info("Copying markup", "source", paths.Markup, "target", paths.OutputMarkup)
	if err := r.copier.CopyFile(ctx, paths.Markup, paths.OutputMarkup, p.Copy); err != nil {
		return stageErr(StageCopyMarkup, ErrFileCopy, err)
	}

	plog.Info("Copying images", "source", paths.Images, "target", paths.OutputImages)
	if err := r.copier.CopyTree(ctx, paths.Images, paths.OutputImages, p.Copy); err != nil {
		return stageErr(StageCopyImages, ErrFileCopy, err)
	}

	plog.Info("Copying fonts", "source", paths.Fonts, "target", paths.OutputFonts)
	if err := r.copier.CopyTree(ctx, paths.Fonts, paths.OutputFonts, p.Copy); err != nil {
		return stageErr(StageCopyFonts, ErrFileCopy, err)
	}

	if _, err := r.auditor.Audit(ctx, paths.Output, p.Audit); err != nil && !hints.IsHint(err) {
		return stageErr(StageAudit, ErrAudit, err)
	}

	if err := r.precompressor.Run(ctx, paths.Output, p.Precompress); err != nil && !hints.IsHint(err) {
		return stageErr(StagePrecompress, ErrPostProcess, err)
	}

	if _, err := r.bundler.Bundle(ctx, paths.Output, p.Bundle); err != nil && !hints.IsHint(err) {
		return stageErr(StageBundle, ErrPostProcess, err)
	}

	plog.Info("Build completed", "output", paths.Output)

	if err := r.hooks.RunPostBuild(ctx, paths.Root, p.Hooks); err != nil && !hints.IsHint(err) {
		if errors.Is(err, context.Canceled) {
			plog.Info("post-build hooks skipped due to cancellation.")
		} else {
			plog.Warn("post-build hooks failed", "error", err)
		}
	}
	return nil
}

// acquireLock takes the project lock and returns its release function.
func (r *Runner) acquireLock(ctx context.Context, absRoot string) (func(), error) {
	plog.Debug("Attempting to acquire lock", "path", absRoot)
	lock, err := lockfile.Acquire(ctx, absRoot, buildinfo.LockAppID(absRoot))
	if err != nil {
		var lockErr *lockfile.ErrLockActive
		if errors.As(err, &lockErr) {
			plog.Warn("Another build is running for this project", "details", lockErr.Error())
			return nil, stageErr(StageLock, ErrLocked, err)
		}
		return nil, stageErr(StageLock, ErrLocked, fmt.Errorf("failed to acquire lock: %w", err))
	}
	plog.Debug("Lock acquired successfully.")
	return lock.Release, nil
}
