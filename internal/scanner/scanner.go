// Package scanner walks a directory tree in parallel and turns every
// reachable filesystem object into a snapshot entry.
//
// A single coordinator goroutine owns the queue of pending directories and
// hands them to a fixed pool of workers. Workers list a directory, classify
// and checksum its children, emit one item per child, and report discovered
// subdirectories back to the coordinator. A pending counter (queued plus
// in-flight directories) tells the coordinator when the walk is complete.
//
// Scan collects everything and sorts by path. Stream hands items to the
// caller as they are produced, in no particular order.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/danieljhkim/treesnap/internal/clock"
	"github.com/danieljhkim/treesnap/internal/envelope"
	"github.com/danieljhkim/treesnap/internal/fsops"
	"github.com/danieljhkim/treesnap/internal/hash"
	"github.com/danieljhkim/treesnap/internal/pattern"
	"github.com/danieljhkim/treesnap/internal/snapshot"
)

// MaxThreads bounds the worker count. Channel buffers scale with it.
const MaxThreads = 1024

// Options configures a scan.
type Options struct {
	// Root is the directory to scan. Relative roots are made absolute.
	Root string

	// FollowSymlinks descends into symlinked directories and records the
	// target's metadata instead of the link's.
	FollowSymlinks bool

	// MaxDepth limits recursion. Direct children of the root are at depth 1.
	// Zero means unbounded.
	MaxDepth int

	// Patterns are gitignore-style globs. A leading "!" excludes; anything
	// else is an include that files must match.
	Patterns []string

	// IgnoreFileName is the per-directory ignore file. Empty disables it.
	IgnoreFileName string

	// Algorithm is the checksum algorithm for regular files.
	Algorithm hash.Algorithm

	// Threads is the number of workers. Zero means runtime.NumCPU(); values
	// above MaxThreads are rejected.
	Threads int

	// NormalizePaths forces "/" as the entry path separator.
	NormalizePaths bool

	// Tool identifies the producer in the snapshot envelope.
	Tool envelope.Tool
}

// Scanner walks one root. It is safe to call Scan or Stream more than once.
type Scanner struct {
	opts   Options
	root   string
	fs     fsops.FS
	hasher hash.Hasher
	clock  clock.Clock
	logger *slog.Logger
	filter *pattern.Filter
}

// New validates opts and creates a Scanner. A nil hasher selects the
// implementation for opts.Algorithm.
func New(opts Options, fs fsops.FS, hasher hash.Hasher, clk clock.Clock, logger *slog.Logger) (*Scanner, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("scan root is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	if opts.Algorithm == "" {
		opts.Algorithm = hash.Default
	}
	if hasher == nil {
		hasher, err = hash.New(opts.Algorithm)
		if err != nil {
			return nil, err
		}
	}
	if hasher.Algorithm() != opts.Algorithm {
		return nil, fmt.Errorf("hasher produces %s, scan wants %s", hasher.Algorithm(), opts.Algorithm)
	}

	filter, err := pattern.Compile(opts.Patterns)
	if err != nil {
		return nil, err
	}

	if opts.Threads < 0 || opts.Threads > MaxThreads {
		return nil, fmt.Errorf("threads must be between 0 and %d, got %d", MaxThreads, opts.Threads)
	}
	if opts.Threads == 0 {
		opts.Threads = runtime.NumCPU()
	}
	if opts.MaxDepth < 0 {
		return nil, fmt.Errorf("max depth must not be negative, got %d", opts.MaxDepth)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Scanner{
		opts:   opts,
		root:   root,
		fs:     fs,
		hasher: hasher,
		clock:  clk,
		logger: logger,
		filter: filter,
	}, nil
}

// Root returns the absolute scan root.
func (s *Scanner) Root() string {
	return s.root
}

// Options returns the effective options.
func (s *Scanner) Options() Options {
	return s.opts
}

// Scan walks the whole tree and returns a snapshot sorted by path. Per-entry
// failures are listed in the envelope and make the status partial. An error
// is returned only when the root is unusable or ctx ends first.
func (s *Scanner) Scan(ctx context.Context) (*snapshot.Snapshot, error) {
	timer := clock.Start(s.clock)

	st, err := s.Stream(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	entries := make([]snapshot.Entry, 0, 256)
	var scanErrs []*snapshot.ScanError
	for item := range st.Items() {
		if item.Err != nil {
			scanErrs = append(scanErrs, item.Err)
			continue
		}
		entries = append(entries, *item.Entry)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan interrupted: %w", err)
	}

	snapshot.SortEntries(entries)
	sort.SliceStable(scanErrs, func(i, j int) bool {
		return scanErrs[i].Path < scanErrs[j].Path
	})

	status := envelope.StatusOK
	if len(scanErrs) > 0 {
		status = envelope.StatusPartial
	}

	meta := envelope.NewMeta(s.opts.Tool, envelope.ReadOnly(false), timer.Now(), timer.Elapsed()).WithDefaultProfiles()
	env := envelope.New(status, meta)
	for _, e := range scanErrs {
		env.Errors = append(env.Errors, e.Coded())
	}

	s.logger.Info("scan complete",
		"root", s.root,
		"entries", len(entries),
		"errors", len(scanErrs),
		"threads", s.opts.Threads,
		"elapsed_ms", timer.Elapsed().Milliseconds())

	return snapshot.New(env, s.root, s.opts.Algorithm, entries), nil
}

// IsRootError reports whether err means the scan root itself was unusable.
func IsRootError(err error) bool {
	var scanErr *snapshot.ScanError
	return errors.As(err, &scanErr)
}
