// Package preflight validates the build's paths before anything is deleted.
//
// The clean step removes the output directory recursively, so a misconfigured
// output path (the project root, a parent of it, a source directory) would
// destroy user data. These checks are read-only and run before the lock is
// taken.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulschiretz/pgl-stage/pkg/plog"
	"github.com/paulschiretz/pgl-stage/pkg/util"
)

// ErrUnsafeOutput marks an output path that the clean step must never remove.
var ErrUnsafeOutput = errors.New("unsafe output directory")

// Validator runs the checks enabled in a Plan.
type Validator struct{}

// NewValidator returns a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Run checks absRoot, absOutput and the named source paths. Sources maps a
// label (e.g. "images") to its absolute path.
func (v *Validator) Run(ctx context.Context, absRoot, absOutput string, sources map[string]string, p *Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.RootAccessible {
		if err := CheckRootAccessible(absRoot); err != nil {
			return err
		}
	}
	if p.OutputSafe {
		if err := CheckOutputSafe(absRoot, absOutput, sources); err != nil {
			return err
		}
	}
	if p.OutputAccessible {
		if err := CheckOutputAccessible(absOutput); err != nil {
			return err
		}
	}
	plog.Debug("Preflight checks passed", "root", absRoot, "output", absOutput)
	return nil
}

// CheckRootAccessible validates that the project root exists and is a directory.
func CheckRootAccessible(absRoot string) error {
	info, err := os.Stat(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("project root %s does not exist", absRoot)
		}
		return fmt.Errorf("cannot stat project root %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project root %s is not a directory", absRoot)
	}
	return nil
}

// CheckOutputSafe rejects output paths whose removal would take the project
// or its sources with it, and output paths nested inside a source, which a
// build would copy into itself.
func CheckOutputSafe(absRoot, absOutput string, sources map[string]string) error {
	if absOutput == "" {
		return fmt.Errorf("%w: output path is empty", ErrUnsafeOutput)
	}
	absOutput = filepath.Clean(absOutput)
	absRoot = filepath.Clean(absRoot)

	if isFilesystemRoot(absOutput) {
		return fmt.Errorf("%w: output path cannot be a filesystem root: %s", ErrUnsafeOutput, absOutput)
	}
	if absOutput == absRoot {
		return fmt.Errorf("%w: output path cannot be the project root: %s", ErrUnsafeOutput, absOutput)
	}
	if util.IsWithin(absOutput, absRoot) {
		return fmt.Errorf("%w: output path %s contains the project root %s", ErrUnsafeOutput, absOutput, absRoot)
	}
	for label, src := range sources {
		if src == "" {
			continue
		}
		if util.IsWithin(absOutput, filepath.Clean(src)) {
			return fmt.Errorf("%w: output path %s contains the %s source %s", ErrUnsafeOutput, absOutput, label, src)
		}
		if util.IsWithin(filepath.Clean(src), absOutput) {
			return fmt.Errorf("%w: output path %s is inside the %s source %s", ErrUnsafeOutput, absOutput, label, src)
		}
	}
	return nil
}

// CheckOutputAccessible verifies that an existing output path is a directory
// and, on Windows, that its volume is present.
func CheckOutputAccessible(absOutput string) error {
	if err := checkVolumeExists(absOutput); err != nil {
		return err
	}
	info, err := os.Lstat(absOutput)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access output path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output path exists but is not a directory: %s", absOutput)
	}
	return nil
}
