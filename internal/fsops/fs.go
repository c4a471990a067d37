// Package fsops is the filesystem seam used by the scanner and by snapshot
// persistence.
//
// Scanning only reads: metadata, directory listings and symlink targets go
// through FS so that tests can inject permission and I/O faults. Output goes
// through Create, which stages a file beside its destination and renames it
// into place on Commit, so a reader never sees a half-written snapshot.
package fsops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS provides an abstraction for filesystem operations.
type FS interface {
	// Lstat returns file info without following symlinks.
	Lstat(path string) (os.FileInfo, error)

	// Stat returns file info, following symlinks.
	Stat(path string) (os.FileInfo, error)

	// Readlink reads the target of a symlink.
	Readlink(path string) (string, error)

	// ReadDir lists the entries of a directory.
	ReadDir(path string) ([]os.DirEntry, error)

	// ReadFile reads the entire contents of a file.
	ReadFile(path string) ([]byte, error)

	// Create stages a new file for path. Nothing appears at path until the
	// returned file is committed.
	Create(path string, perm os.FileMode) (*PendingFile, error)
}

// RealFS implements FS using actual OS operations.
type RealFS struct{}

// NewRealFS creates a new RealFS.
func NewRealFS() *RealFS {
	return &RealFS{}
}

func (fs *RealFS) Lstat(path string) (os.FileInfo, error) {
	return os.Lstat(path)
}

func (fs *RealFS) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (fs *RealFS) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

func (fs *RealFS) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

func (fs *RealFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Create stages a temp file in path's directory, creating the directory if
// needed.
func (fs *RealFS) Create(path string, perm os.FileMode) (*PendingFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".treesnap-tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return &PendingFile{file: tmp, path: path, perm: perm}, nil
}

// ValidateRelPath validates a snapshot entry path. Entry paths must be
// relative to the snapshot root and must not escape it. Both separators are
// accepted since snapshots may come from another platform.
func ValidateRelPath(relPath string) error {
	slashed := strings.ReplaceAll(relPath, "\\", "/")
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(slashed)))

	if relPath == "" || cleaned == "." {
		return fmt.Errorf("invalid path: empty or current directory")
	}

	if filepath.IsAbs(relPath) || strings.HasPrefix(slashed, "/") || filepath.VolumeName(relPath) != "" {
		return fmt.Errorf("invalid path: must be relative, got absolute path %q", relPath)
	}

	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("invalid path: path traversal not allowed in %q", relPath)
	}

	return nil
}
