package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	"github.com/danieljhkim/treesnap/internal/envelope"
)

// ErrorKind classifies scan failures.
type ErrorKind int

const (
	// KindIO is the catch-all for I/O and internal failures.
	KindIO ErrorKind = iota
	KindPathNotFound
	KindPermissionDenied
	KindSymlinkLoop
)

// Code returns the stable error code for the kind.
func (k ErrorKind) Code() string {
	switch k {
	case KindPathNotFound:
		return envelope.CodePathNotFound
	case KindPermissionDenied:
		return envelope.CodePermissionDenied
	case KindSymlinkLoop:
		return envelope.CodeSymlinkLoop
	default:
		return envelope.CodeIOError
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindPathNotFound:
		return "path not found"
	case KindPermissionDenied:
		return "permission denied"
	case KindSymlinkLoop:
		return "symlink loop"
	default:
		return "i/o error"
	}
}

// ScanError is a failure tied to one path during a scan.
type ScanError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Coded converts e to an envelope error. Generic I/O errors carry no path.
func (e *ScanError) Coded() envelope.Error {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	coded := envelope.NewError(e.Kind.Code(), msg)
	if e.Kind != KindIO {
		coded = coded.WithPath(e.Path)
	}
	return coded
}

// NewScanError creates a ScanError of the given kind.
func NewScanError(kind ErrorKind, path string, err error) *ScanError {
	return &ScanError{Kind: kind, Path: path, Err: err}
}

// Classify maps a filesystem error for path to a ScanError.
func Classify(path string, err error) *ScanError {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr
	}

	kind := KindIO
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = KindPathNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = KindPermissionDenied
	case errors.Is(err, syscall.ELOOP):
		kind = KindSymlinkLoop
	}
	return NewScanError(kind, path, err)
}
