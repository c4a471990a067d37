package fsops

import (
	"errors"
	"fmt"
	"os"
)

// ErrFinished is returned when a PendingFile is used after Commit or Discard.
var ErrFinished = errors.New("pending file already finished")

// PendingFile is output staged in a temp file. Exactly one of Commit or
// Discard takes effect; calling Discard after Commit is a no-op, so it can be
// deferred unconditionally.
type PendingFile struct {
	file *os.File
	path string
	perm os.FileMode
	done bool
}

// Path returns the destination path.
func (p *PendingFile) Path() string {
	return p.path
}

func (p *PendingFile) Write(b []byte) (int, error) {
	if p.done {
		return 0, ErrFinished
	}
	return p.file.Write(b)
}

// Commit flushes the staged data to disk and renames it to the destination.
// On failure the temp file is removed.
func (p *PendingFile) Commit() error {
	if p.done {
		return ErrFinished
	}
	p.done = true
	tmpPath := p.file.Name()

	err := p.file.Sync()
	if err != nil {
		err = fmt.Errorf("failed to sync temp file: %w", err)
	}
	if cerr := p.file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to close temp file: %w", cerr)
	}
	if err == nil {
		if cerr := os.Chmod(tmpPath, p.perm); cerr != nil {
			err = fmt.Errorf("failed to set permissions: %w", cerr)
		}
	}
	if err == nil {
		if rerr := os.Rename(tmpPath, p.path); rerr != nil {
			err = fmt.Errorf("failed to rename temp file: %w", rerr)
		}
	}
	if err != nil {
		_ = os.Remove(tmpPath)
	}
	return err
}

// Discard drops the staged data.
func (p *PendingFile) Discard() error {
	if p.done {
		return nil
	}
	p.done = true
	_ = p.file.Close()
	return os.Remove(p.file.Name())
}
