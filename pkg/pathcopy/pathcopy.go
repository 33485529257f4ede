// Package pathcopy stages files into the output directory.
//
// CopyFile copies one file byte-for-byte; CopyTree mirrors a directory tree.
// Both overwrite existing destination files. A copy is first written to a
// temporary file next to its destination and then renamed over it, so a
// destination path never holds a half-written file.
//
// CopyTree walks the source sequentially and creates every directory before
// its children are queued, while the file copies of one tree run on a bounded
// errgroup. The first failure cancels the remaining copies of that tree and is
// returned once all workers have stopped.
package pathcopy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-stage/pkg/plog"
	"github.com/paulschiretz/pgl-stage/pkg/util"
)

const tempFilePattern = ".pgl-stage-*.tmp"

// PathCopier copies files and trees. It is safe for concurrent use.
type PathCopier struct {
	numWorkers   int
	ioBufferSize int
	ioBufferPool *sync.Pool
}

// NewPathCopier creates a copier with an I/O buffer of bufferSizeKB per worker
// and at most numWorkers concurrent file copies per tree.
func NewPathCopier(bufferSizeKB, numWorkers int) *PathCopier {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if bufferSizeKB < 1 {
		bufferSizeKB = 256
	}
	size := bufferSizeKB * 1024
	return &PathCopier{
		numWorkers:   numWorkers,
		ioBufferSize: size,
		ioBufferPool: &sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// CopyFile copies absSrcPath to absTrgPath, creating the target's parent
// directory when needed.
func (c *PathCopier) CopyFile(ctx context.Context, absSrcPath, absTrgPath string, p *Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(absSrcPath)
	if err != nil {
		return sourceErr(absSrcPath, err)
	}
	if info.IsDir() {
		return sourceErr(absSrcPath, fmt.Errorf("is a directory"))
	}

	if p.DryRun {
		plog.Info("[DRY RUN] COPY", "source", absSrcPath, "target", absTrgPath)
		return nil
	}

	var metrics Metrics = NoopMetrics{}
	if p.Metrics {
		metrics = NewCopyMetrics()
	}

	if err := os.MkdirAll(filepath.Dir(absTrgPath), util.UserWritableDirPerms); err != nil {
		return destinationErr(filepath.Dir(absTrgPath), err)
	}
	if err := c.copyFile(absSrcPath, absTrgPath, metrics); err != nil {
		return err
	}
	metrics.LogSummary("File copied")
	return nil
}

// CopyTree mirrors absSrcPath into absTrgPath. Every file and subdirectory of
// the source exists at the same relative path in the target afterwards. An
// empty source yields an empty target directory. A missing source is an error.
func (c *PathCopier) CopyTree(ctx context.Context, absSrcPath, absTrgPath string, p *Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(absSrcPath)
	if err != nil {
		return sourceErr(absSrcPath, err)
	}
	if !info.IsDir() {
		return sourceErr(absSrcPath, fmt.Errorf("not a directory"))
	}

	if p.DryRun {
		plog.Info("[DRY RUN] COPY TREE", "source", absSrcPath, "target", absTrgPath)
		return nil
	}

	var metrics Metrics = NoopMetrics{}
	if p.Metrics {
		metrics = NewCopyMetrics()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.numWorkers)

	walkErr := c.walkTree(gctx, g, absSrcPath, absTrgPath, info.Mode(), metrics)
	// Wait even when the walk failed so no worker outlives this call.
	if err := g.Wait(); err != nil {
		return err
	}
	if walkErr != nil {
		return walkErr
	}
	metrics.LogSummary("Tree copied")
	return nil
}

// walkTree creates absTrgDir and queues the copies of its entries, recursing
// into subdirectories.
func (c *PathCopier) walkTree(ctx context.Context, g *errgroup.Group, absSrcDir, absTrgDir string, mode os.FileMode, metrics Metrics) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(absTrgDir, util.WithUserWritePermission(mode.Perm())); err != nil {
		return destinationErr(absTrgDir, err)
	}
	metrics.AddDirsCreated(1)

	entries, err := os.ReadDir(absSrcDir)
	if err != nil {
		return sourceErr(absSrcDir, err)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(absSrcDir, entry.Name())
		trgPath := filepath.Join(absTrgDir, entry.Name())

		isDir := entry.IsDir()
		if entry.Type()&os.ModeSymlink != 0 {
			// Links are followed; a dangling link fails like a missing file.
			info, err := os.Stat(srcPath)
			if err != nil {
				return sourceErr(srcPath, err)
			}
			isDir = info.IsDir()
		}

		if isDir {
			info, err := os.Stat(srcPath)
			if err != nil {
				return sourceErr(srcPath, err)
			}
			if err := c.walkTree(ctx, g, srcPath, trgPath, info.Mode(), metrics); err != nil {
				return err
			}
			continue
		}

		// Stop queueing once a worker has failed.
		if ctx.Err() != nil {
			return nil
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.copyFile(srcPath, trgPath, metrics); err != nil {
				return err
			}
			plog.Notice("COPY", "path", trgPath)
			return nil
		})
	}
	return nil
}

// copyFile writes the bytes of absSrcPath to a temp file beside absTrgPath
// and renames it into place, replacing whatever was there.
func (c *PathCopier) copyFile(absSrcPath, absTrgPath string, metrics Metrics) (retErr error) {
	in, err := os.Open(absSrcPath)
	if err != nil {
		return sourceErr(absSrcPath, err)
	}
	defer in.Close()

	srcInfo, err := in.Stat()
	if err != nil {
		return sourceErr(absSrcPath, err)
	}
	if srcInfo.IsDir() {
		return sourceErr(absSrcPath, fmt.Errorf("is a directory"))
	}

	trgDir := filepath.Dir(absTrgPath)
	out, err := os.CreateTemp(trgDir, tempFilePattern)
	if err != nil {
		return destinationErr(absTrgPath, err)
	}
	tmpPath := out.Name()
	defer func() {
		if retErr != nil {
			out.Close()
			os.Remove(tmpPath)
		}
	}()

	bufPtr := c.ioBufferPool.Get().(*[]byte)
	defer c.ioBufferPool.Put(bufPtr)

	src := &errReader{r: in}
	mw := &metricWriter{w: out, metrics: metrics}
	if _, err := io.CopyBuffer(mw, src, *bufPtr); err != nil {
		if src.err != nil {
			return sourceErr(absSrcPath, err)
		}
		return destinationErr(absTrgPath, err)
	}

	if err := out.Chmod(util.WithUserWritePermission(srcInfo.Mode().Perm())); err != nil {
		return destinationErr(absTrgPath, err)
	}
	if err := out.Close(); err != nil {
		return destinationErr(absTrgPath, err)
	}
	if err := os.Rename(tmpPath, absTrgPath); err != nil {
		return destinationErr(absTrgPath, err)
	}
	metrics.AddFilesCopied(1)
	return nil
}

// errReader remembers the last read error so a failed copy can be blamed on
// the right side.
type errReader struct {
	r   io.Reader
	err error
}

func (er *errReader) Read(p []byte) (int, error) {
	n, err := er.r.Read(p)
	if err != nil && err != io.EOF {
		er.err = err
	}
	return n, err
}
