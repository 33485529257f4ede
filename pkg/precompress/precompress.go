// Package precompress writes compressed sidecars (<file>.gz, <file>.zst) next
// to staged text assets so a static file server can serve them directly.
package precompress

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-stage/pkg/compression"
	"github.com/paulschiretz/pgl-stage/pkg/hints"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
	"github.com/paulschiretz/pgl-stage/pkg/util"
)

var ErrDisabled = hints.New("precompression is disabled")
var ErrNothingToCompress = hints.New("no files matched the precompress extensions")

// Precompressor compresses files on a bounded pool of workers.
type Precompressor struct {
	numWorkers int
	bufferSize int
}

// NewPrecompressor returns a Precompressor running numWorkers files at once.
func NewPrecompressor(bufferSizeKB, numWorkers int) *Precompressor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if bufferSizeKB < 1 {
		bufferSizeKB = 256
	}
	return &Precompressor{numWorkers: numWorkers, bufferSize: bufferSizeKB * 1024}
}

// Run writes one sidecar per codec for every file under absOutputDir whose
// extension is listed in the plan. Existing sidecars are replaced.
func (c *Precompressor) Run(ctx context.Context, absOutputDir string, p *Plan) error {
	if !p.Enabled {
		return ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.DryRun {
		// A dry run never created the output directory.
		if _, err := os.Stat(absOutputDir); os.IsNotExist(err) {
			plog.Info("[DRY RUN] PRECOMPRESS", "path", absOutputDir, "extensions", strings.Join(p.Extensions, ","))
			return nil
		}
	}

	files, err := c.collect(absOutputDir, p.Extensions)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return ErrNothingToCompress
	}

	if p.DryRun {
		for _, f := range files {
			plog.Notice("[DRY RUN] PRECOMPRESS", "path", f)
		}
		return nil
	}

	start := time.Now()
	var written atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.numWorkers)
	for _, f := range files {
		for _, codec := range p.Codecs {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				n, err := c.compressFile(gctx, f, codec, p.Level)
				if err != nil {
					return err
				}
				written.Add(n)
				plog.Notice("PRECOMPRESS", "path", f+codec.Extension())
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if p.Metrics {
		plog.Info("Precompression finished",
			"files", len(files),
			"sidecars", len(files)*len(p.Codecs),
			"bytes_written", written.Load(),
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}
	return nil
}

// collect lists regular files below root whose extension matches, compared
// case-insensitively.
func (c *Precompressor) collect(root string, extensions []string) ([]string, error) {
	wanted := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		wanted[strings.ToLower(ext)] = struct{}{}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, ok := wanted[strings.ToLower(filepath.Ext(path))]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return files, nil
}

func (c *Precompressor) compressFile(ctx context.Context, absPath string, codec compression.Codec, level compression.Level) (written int64, retErr error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	in, err := os.Open(absPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", absPath, err)
	}
	defer in.Close()

	target := absPath + codec.Extension()
	tmp, err := os.CreateTemp(filepath.Dir(target), ".pgl-stage-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file for %s: %w", target, err)
	}
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriterSize(tmp, c.bufferSize)
	zw, err := compression.NewWriter(bw, codec, level)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		return 0, fmt.Errorf("failed to compress %s: %w", absPath, err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish %s: %w", target, err)
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush %s: %w", target, err)
	}

	info, err := tmp.Stat()
	if err != nil {
		return 0, err
	}
	if err := tmp.Chmod(util.UserWritableFilePerms); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return 0, fmt.Errorf("failed to move %s into place: %w", target, err)
	}
	return info.Size(), nil
}
