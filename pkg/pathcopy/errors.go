package pathcopy

import (
	"errors"
	"fmt"
	"io/fs"
)

// Side tells which end of a copy an error happened on.
type Side int

const (
	Source Side = iota
	Destination
)

func (s Side) String() string {
	switch s {
	case Source:
		return "source"
	case Destination:
		return "destination"
	default:
		return fmt.Sprintf("unknown_side(%d)", int(s))
	}
}

// Failure reasons reported by Reason.
const (
	ReasonSourceMissing    = "source-missing"
	ReasonPermission       = "permission"
	ReasonSourceRead       = "source-read"
	ReasonDestinationWrite = "destination-write"
	ReasonUnknown          = "unknown"
)

// CopyError is returned by every failing copy operation. Path is the OS path
// on the failing Side.
type CopyError struct {
	Side Side
	Path string
	Err  error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Side, e.Path, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

// Reason classifies a copy failure as source-missing, permission, source-read
// or destination-write. Errors that are not a *CopyError yield "unknown".
func Reason(err error) string {
	var ce *CopyError
	if !errors.As(err, &ce) {
		return ReasonUnknown
	}
	switch {
	case ce.Side == Source && errors.Is(ce.Err, fs.ErrNotExist):
		return ReasonSourceMissing
	case errors.Is(ce.Err, fs.ErrPermission):
		return ReasonPermission
	case ce.Side == Source:
		return ReasonSourceRead
	default:
		return ReasonDestinationWrite
	}
}

func sourceErr(path string, err error) error {
	return &CopyError{Side: Source, Path: path, Err: err}
}

func destinationErr(path string, err error) error {
	return &CopyError{Side: Destination, Path: path, Err: err}
}
