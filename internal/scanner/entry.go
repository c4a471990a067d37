package scanner

import (
	"os"
	"path/filepath"

	"github.com/danieljhkim/treesnap/internal/snapshot"
)

// buildEntry materializes one entry. Only regular files are checksummed and
// only unfollowed symlinks have their target read.
func (s *Scanner) buildEntry(abs, path string, info os.FileInfo, isLink bool) (*snapshot.Entry, error) {
	size := uint64(info.Size())
	entry := &snapshot.Entry{
		Path:  path,
		Size:  &size,
		Mode:  formatMode(info),
		MTime: info.ModTime().UTC(),
	}

	switch {
	case isLink:
		target, err := s.fs.Readlink(abs)
		if err != nil {
			return nil, err
		}
		if s.opts.NormalizePaths {
			target = filepath.ToSlash(target)
		}
		entry.Type = snapshot.TypeSymlink
		entry.Target = target
	case info.IsDir():
		entry.Type = snapshot.TypeDirectory
	case info.Mode().IsRegular():
		sum, err := s.hasher.HashFile(abs)
		if err != nil {
			return nil, err
		}
		entry.Type = snapshot.TypeFile
		entry.Checksum = sum
	default:
		entry.Type = snapshot.TypeUndefined
	}

	return entry, nil
}
