// Package outputdir recreates the output directory at the start of a build.
package outputdir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/paulschiretz/pgl-stage/pkg/hints"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
	"github.com/paulschiretz/pgl-stage/pkg/util"
)

// Manager removes and creates the output directory.
type Manager struct{}

// NewManager returns a Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Clean removes absOutputDir and everything below it. A directory that does
// not exist is not an error.
func (m *Manager) Clean(ctx context.Context, absOutputDir string, p *Plan) error {
	if !p.Enabled {
		return hints.New("clean disabled")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := os.Lstat(absOutputDir); errors.Is(err, fs.ErrNotExist) {
		plog.Debug("Output directory does not exist, nothing to clean", "path", absOutputDir)
		return nil
	}

	if p.DryRun {
		plog.Info("[DRY RUN] DELETE", "path", absOutputDir)
		return nil
	}
	if err := os.RemoveAll(absOutputDir); err != nil {
		return fmt.Errorf("failed to remove output directory %s: %w", absOutputDir, err)
	}
	plog.Notice("DELETED", "path", absOutputDir)
	return nil
}

// Create creates absOutputDir and any missing parents.
func (m *Manager) Create(ctx context.Context, absOutputDir string, p *Plan) error {
	if !p.Enabled {
		return hints.New("create disabled")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.DryRun {
		plog.Info("[DRY RUN] CREATE", "path", absOutputDir)
		return nil
	}
	if err := os.MkdirAll(absOutputDir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", absOutputDir, err)
	}
	plog.Notice("CREATED", "path", absOutputDir)
	return nil
}
