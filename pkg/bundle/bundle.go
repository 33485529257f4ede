// Package bundle packs the staged output directory into a single archive.
//
// The archive is written beside the output directory as <output>.<format> so
// it never ends up inside the tree it packs. Entry names are slash-separated
// and rooted at the output directory's base name.
package bundle

import (
	"archive/tar"
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-stage/pkg/compression"
	"github.com/paulschiretz/pgl-stage/pkg/hints"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
	"github.com/paulschiretz/pgl-stage/pkg/util"
)

var ErrDisabled = hints.New("bundling is disabled")

// Bundler writes archives with a fixed I/O buffer size.
type Bundler struct {
	bufferSize int
}

// NewBundler returns a Bundler using a bufferSizeKB write buffer.
func NewBundler(bufferSizeKB int) *Bundler {
	if bufferSizeKB < 1 {
		bufferSizeKB = 256
	}
	return &Bundler{bufferSize: bufferSizeKB * 1024}
}

// ArchivePath returns the path of the archive for absOutputDir.
func ArchivePath(absOutputDir string, format Format) string {
	return filepath.Clean(absOutputDir) + "." + format.String()
}

// Bundle packs absOutputDir and returns the archive path.
func (b *Bundler) Bundle(ctx context.Context, absOutputDir string, p *Plan) (string, error) {
	if !p.Enabled {
		return "", ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	archivePath := ArchivePath(absOutputDir, p.Format)
	if p.DryRun {
		plog.Info("[DRY RUN] BUNDLE", "source", absOutputDir, "archive", archivePath)
		return archivePath, nil
	}

	start := time.Now()
	tmp, err := os.CreateTemp(filepath.Dir(archivePath), ".pgl-stage-bundle-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()

	files, written, err := b.writeArchive(ctx, absOutputDir, tmp, p)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close temp archive: %w", cerr)
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Chmod(tmpPath, util.UserWritableFilePerms); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to set archive permissions: %w", err)
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move archive into place: %w", err)
	}

	if p.Metrics {
		plog.Info("Bundle written",
			"archive", archivePath,
			"files", files,
			"bytes_written", written,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}
	return archivePath, nil
}

func (b *Bundler) writeArchive(ctx context.Context, absOutputDir string, w io.Writer, p *Plan) (files int64, written int64, retErr error) {
	cw := &countingWriter{w: w}
	bufWriter := bufio.NewWriterSize(cw, b.bufferSize)

	zw, err := compression.NewWriter(bufWriter, p.Format.Codec(), p.Level)
	if err != nil {
		return 0, 0, err
	}
	tw := tar.NewWriter(zw)

	defer func() {
		if err := tw.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("tar writer close failed: %w", err)
		}
		if err := zw.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("compressed writer close failed: %w", err)
		}
		if err := bufWriter.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("buffer flush failed: %w", err)
		}
		written = cw.n
	}()

	rootName := filepath.Base(absOutputDir)
	retErr = filepath.WalkDir(absOutputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(absOutputDir, path)
		if err != nil {
			return err
		}
		name := rootName
		if rel != "." {
			name = rootName + "/" + util.NormalizePath(rel)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			plog.Debug("Skipping non-regular file in bundle", "path", path)
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("failed to create tar header for %s: %w", path, err)
		}
		header.Name = name
		if info.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header for %s: %w", name, err)
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("failed to add %s to bundle: %w", name, err)
		}
		files++
		return nil
	})
	return files, written, retErr
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
