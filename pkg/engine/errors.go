package engine

import (
	"errors"
	"fmt"
)

// Stage names one step of a build.
type Stage string

const (
	StagePreflight     Stage = "preflight"
	StageLock          Stage = "lock"
	StagePreBuildHooks Stage = "pre-build-hooks"
	StageClean         Stage = "clean"
	StageCreate        Stage = "create"
	StageCompile       Stage = "compile"
	StageCopyMarkup    Stage = "copy-markup"
	StageCopyImages    Stage = "copy-images"
	StageCopyFonts     Stage = "copy-fonts"
	StageAudit         Stage = "audit"
	StagePrecompress   Stage = "precompress"
	StageBundle        Stage = "bundle"
)

// Error kinds. Every build failure matches exactly one of them with errors.Is.
var (
	ErrCleanup           = errors.New("cleanup failed")
	ErrDirectoryCreation = errors.New("directory creation failed")
	ErrCompilation       = errors.New("compilation failed")
	ErrFileCopy          = errors.New("file copy failed")

	ErrPreflight   = errors.New("preflight failed")
	ErrLocked      = errors.New("project is locked")
	ErrHook        = errors.New("hook failed")
	ErrAudit       = errors.New("asset audit failed")
	ErrPostProcess = errors.New("post-processing failed")
)

// StageError reports the stage a build stopped at, its kind and the cause.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *StageError) Unwrap() []error { return []error{e.Kind, e.Err} }

func stageErr(stage Stage, kind, err error) error {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}
