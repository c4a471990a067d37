package pattern

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultIgnoreFile is the name of the per-directory ignore file.
const DefaultIgnoreFile = ".treesnapignore"

// FileReader reads a whole file.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// Ignores is the set of ignore-file patterns in effect for a directory. It
// is immutable: Load returns a new value for subdirectories, so workers can
// share ancestors' sets without locking.
type Ignores struct {
	patterns []gitignore.Pattern
	matcher  gitignore.Matcher
}

// Load reads the ignore file named name in the directory at abs, whose path
// relative to the scan root is rel. Patterns found there are scoped to that
// directory and appended to the inherited set. A missing file returns the
// receiver unchanged.
func (ig *Ignores) Load(r FileReader, abs, rel, name string) (*Ignores, error) {
	if name == "" {
		return ig, nil
	}
	data, err := r.ReadFile(filepath.Join(abs, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ig, nil
		}
		return ig, err
	}

	domain := Split(rel)
	var added []gitignore.Pattern
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		added = append(added, gitignore.ParsePattern(line, domain))
	}
	if err := scanner.Err(); err != nil {
		return ig, err
	}
	if len(added) == 0 {
		return ig, nil
	}

	var inherited []gitignore.Pattern
	if ig != nil {
		inherited = ig.patterns
	}
	patterns := make([]gitignore.Pattern, 0, len(inherited)+len(added))
	patterns = append(patterns, inherited...)
	patterns = append(patterns, added...)
	return &Ignores{patterns: patterns, matcher: gitignore.NewMatcher(patterns)}, nil
}

// Ignored reports whether rel is ignored. Later patterns override earlier
// ones, so a deeper ignore file can re-include with "!".
func (ig *Ignores) Ignored(rel string, isDir bool) bool {
	if ig == nil || ig.matcher == nil {
		return false
	}
	return ig.matcher.Match(Split(rel), isDir)
}

// Len returns the number of patterns in effect.
func (ig *Ignores) Len() int {
	if ig == nil {
		return 0
	}
	return len(ig.patterns)
}
