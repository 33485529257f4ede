// Package lockfile guards a project root against concurrent builds.
//
// A lock is a small JSON file created with O_EXCL. While held, a background
// heartbeat rewrites its timestamp; a lock whose timestamp is older than
// staleAfter is considered abandoned and may be taken over. Every rewrite goes
// through a temp file and a rename, so readers never see a torn file.
package lockfile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paulschiretz/pgl-stage/pkg/plog"
	"github.com/paulschiretz/pgl-stage/pkg/util"
)

// FileName is the lock file created in the project root.
const FileName = ".~pgl-stage.lock"

const acquireAttempts = 3

// Overridden in tests.
var (
	heartbeatInterval = 1 * time.Minute
	staleAfter        = 3 * heartbeatInterval
	retryDelay        = 100 * time.Millisecond
)

// Content is the JSON document stored in the lock file.
type Content struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	LastUpdate time.Time `json:"lastUpdate"`
	Nonce      string    `json:"nonce,omitempty"`
	AppID      string    `json:"appID"`
}

// ErrLockActive is returned when another live process holds the lock.
type ErrLockActive struct {
	PID       int64
	Hostname  string
	AppID     string
	TimeSince time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("build already running: PID %d on host '%s' (%s), last heartbeat %s ago",
		e.PID, e.Hostname, e.AppID, e.TimeSince.Truncate(time.Second))
}

// ErrLostRace is returned when two processes take over the same stale lock
// and this one lost.
var ErrLostRace = errors.New("lost race during stale lock takeover")

// ErrCorrupt means the lock file is empty or not valid JSON.
var ErrCorrupt = errors.New("lock file is corrupt or empty")

// Lock is a held lock. Release it exactly once; further calls are no-ops.
type Lock struct {
	path string

	mu      sync.Mutex
	content Content
	held    bool

	stop chan struct{}
	done chan struct{}
}

// Acquire takes the lock in absDir for appID. It returns *ErrLockActive when
// a live lock exists. ctx only bounds the acquisition; the heartbeat runs
// until Release.
func Acquire(ctx context.Context, absDir, appID string) (*Lock, error) {
	path := filepath.Join(absDir, FileName)

	for range acquireAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l, err := create(path, appID)
		if err == nil {
			return l.start(), nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		existing, err := read(path)
		switch {
		case errors.Is(err, ErrCorrupt):
			plog.Warn("Found corrupt lock file, treating as stale", "path", path, "error", err)
		case os.IsNotExist(err):
			// Released between our create and read.
			continue
		case err != nil:
			plog.Debug("Could not read lock file, retrying", "path", path, "error", err)
			time.Sleep(retryDelay)
			continue
		default:
			age := time.Since(existing.LastUpdate)
			if age < staleAfter {
				return nil, &ErrLockActive{
					PID:       existing.PID,
					Hostname:  existing.Hostname,
					AppID:     existing.AppID,
					TimeSince: age,
				}
			}
			plog.Warn("Found stale lock, attempting takeover", "pid", existing.PID, "age", age.Truncate(time.Second))
		}

		l, err = takeover(path, appID)
		if err != nil {
			plog.Debug("Lock takeover failed, retrying", "error", err)
			time.Sleep(retryDelay)
			continue
		}
		return l.start(), nil
	}
	return nil, fmt.Errorf("failed to acquire lock after %d attempts", acquireAttempts)
}

// Release stops the heartbeat and removes the lock file.
func (l *Lock) Release() {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return
	}
	l.held = false
	l.mu.Unlock()

	close(l.stop)
	<-l.done

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
		return
	}
	plog.Debug("Lock released", "path", l.path)
}

func newContent(appID string) (Content, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Content{}, err
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return Content{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return Content{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		LastUpdate: time.Now().UTC(),
		Nonce:      hex.EncodeToString(nonce),
		AppID:      appID,
	}, nil
}

// create claims path with O_EXCL. The returned error satisfies os.IsExist
// when the file is already there.
func create(path, appID string) (*Lock, error) {
	c, err := newContent(appID)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	return &Lock{path: path, content: c}, nil
}

// takeover overwrites a stale lock and reads it back; the nonce tells
// whether this process won.
func takeover(path, appID string) (*Lock, error) {
	c, err := newContent(appID)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(path, c); err != nil {
		return nil, err
	}
	got, err := read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read back lock file: %w", err)
	}
	if got.PID != c.PID || got.Nonce != c.Nonce {
		return nil, ErrLostRace
	}
	plog.Debug("Took over stale lock", "path", path)
	return &Lock{path: path, content: c}, nil
}

func (l *Lock) start() *Lock {
	l.held = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	sweepTempFiles(l.path)
	go l.heartbeat()
	return l
}

func (l *Lock) heartbeat() {
	defer close(l.done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			l.content.LastUpdate = time.Now().UTC()
			c := l.content
			l.mu.Unlock()
			if err := writeAtomic(l.path, c); err != nil {
				plog.Warn("Lock heartbeat failed", "error", err)
			}
		}
	}
}

func writeAtomic(path string, c Content) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock content: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lock file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp lock file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace lock file: %w", err)
	}
	return nil
}

// read parses the lock file, retrying briefly over empty or partial content.
func read(path string) (Content, error) {
	var lastErr error
	for range 3 {
		data, err := os.ReadFile(path)
		if err != nil {
			return Content{}, err
		}
		if len(data) == 0 {
			lastErr = errors.New("empty file")
		} else {
			var c Content
			if lastErr = json.Unmarshal(data, &c); lastErr == nil {
				return c, nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return Content{}, fmt.Errorf("%w: %v", ErrCorrupt, lastErr)
}

// sweepTempFiles removes temp files left by crashed heartbeats. Files younger
// than staleAfter may belong to a live writer and are kept.
func sweepTempFiles(path string) {
	matches, err := filepath.Glob(path + ".*.tmp")
	if err != nil {
		return
	}
	threshold := time.Now().Add(-staleAfter)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.ModTime().Before(threshold) {
			continue
		}
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove leftover temp lock file", "path", m, "error", err)
		}
	}
}
