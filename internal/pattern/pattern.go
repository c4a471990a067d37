// Package pattern decides which paths a scan visits.
//
// Two sources feed it: explicit patterns given on the command line, and
// ignore files found in scanned directories. Both use gitignore glob syntax
// ("*", "**", "?", "[...]", trailing "/" for directories).
//
// Explicit patterns with a leading "!" exclude a path; an excluded directory
// is pruned so that its subtree is never traversed. All other explicit
// patterns are includes: when at least one is given, a non-directory entry
// must match one of them. Directories are always traversed so that included
// files below them are reachable.
package pattern

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// ErrInvalidPattern is returned for empty or malformed patterns.
var ErrInvalidPattern = errors.New("invalid pattern")

// Filter applies explicit include and exclude patterns.
type Filter struct {
	includes []gitignore.Pattern
	excludes []gitignore.Pattern
	raw      []string
}

// Compile builds a Filter. An empty list yields a filter that allows everything.
func Compile(patterns []string) (*Filter, error) {
	f := &Filter{raw: append([]string(nil), patterns...)}
	for _, p := range patterns {
		exclude := strings.HasPrefix(p, "!")
		body := strings.TrimPrefix(p, "!")
		if err := validate(body); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, p, err)
		}
		if exclude {
			f.excludes = append(f.excludes, gitignore.ParsePattern(body, nil))
		} else {
			f.includes = append(f.includes, gitignore.ParsePattern(body, nil))
		}
	}
	return f, nil
}

// Patterns returns the patterns the filter was compiled from.
func (f *Filter) Patterns() []string {
	return f.raw
}

// Excluded reports whether rel (slash separated, relative to the root) is
// matched by an exclude pattern.
func (f *Filter) Excluded(rel string, isDir bool) bool {
	parts := Split(rel)
	for _, p := range f.excludes {
		if p.Match(parts, isDir) == gitignore.Exclude {
			return true
		}
	}
	return false
}

// Included reports whether rel passes the include patterns. Directories
// always pass.
func (f *Filter) Included(rel string, isDir bool) bool {
	if isDir || len(f.includes) == 0 {
		return true
	}
	parts := Split(rel)
	for _, p := range f.includes {
		if p.Match(parts, isDir) == gitignore.Exclude {
			return true
		}
	}
	return false
}

// Split turns a slash separated relative path into its components.
func Split(rel string) []string {
	if rel == "" {
		return nil
	}
	return strings.Split(rel, "/")
}

// validate rejects empty patterns and malformed character classes, which
// gitignore matching would otherwise treat as never matching.
func validate(p string) error {
	trimmed := strings.Trim(p, "/")
	if strings.TrimSpace(trimmed) == "" {
		return errors.New("empty pattern")
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "**" {
			continue
		}
		if _, err := path.Match(seg, ""); err != nil {
			return err
		}
	}
	return nil
}
