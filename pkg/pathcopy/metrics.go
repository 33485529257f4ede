package pathcopy

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/paulschiretz/pgl-stage/pkg/plog"
)

// Metrics collects counters for a single copy step.
type Metrics interface {
	AddFilesCopied(n int64)
	AddDirsCreated(n int64)
	AddBytesWritten(n int64)
	LogSummary(msg string)
}

// CopyMetrics is the atomic-counter implementation of Metrics. It is safe for
// concurrent use by the copy workers of one tree.
type CopyMetrics struct {
	FilesCopied  atomic.Int64
	DirsCreated  atomic.Int64
	BytesWritten atomic.Int64

	startTime time.Time
}

// NewCopyMetrics returns counters whose elapsed time starts now.
func NewCopyMetrics() *CopyMetrics {
	return &CopyMetrics{startTime: time.Now()}
}

func (m *CopyMetrics) AddFilesCopied(n int64)  { m.FilesCopied.Add(n) }
func (m *CopyMetrics) AddDirsCreated(n int64)  { m.DirsCreated.Add(n) }
func (m *CopyMetrics) AddBytesWritten(n int64) { m.BytesWritten.Add(n) }

// LogSummary logs the current counters under msg.
func (m *CopyMetrics) LogSummary(msg string) {
	plog.Info(msg,
		"files_copied", m.FilesCopied.Load(),
		"dirs_created", m.DirsCreated.Load(),
		"bytes_written", m.BytesWritten.Load(),
		"duration", time.Since(m.startTime).Round(time.Millisecond),
	)
}

// NoopMetrics discards everything; used when metrics are disabled.
type NoopMetrics struct{}

func (NoopMetrics) AddFilesCopied(n int64)  {}
func (NoopMetrics) AddDirsCreated(n int64)  {}
func (NoopMetrics) AddBytesWritten(n int64) {}
func (NoopMetrics) LogSummary(msg string)   {}

var _ Metrics = (*CopyMetrics)(nil)
var _ Metrics = NoopMetrics{}

// metricWriter counts bytes as they reach the destination file.
type metricWriter struct {
	w       io.Writer
	metrics Metrics
}

func (mw *metricWriter) Write(p []byte) (int, error) {
	n, err := mw.w.Write(p)
	if n > 0 {
		mw.metrics.AddBytesWritten(int64(n))
	}
	return n, err
}
