// Package watch reports drift in a directory tree as it happens.
//
// A Watcher takes a baseline snapshot, subscribes to filesystem events for
// every directory that is not excluded, and after each burst of events
// (debounced) takes a fresh snapshot and diffs it against the previous one.
// Non-identical results are handed to the caller, and the fresh snapshot
// becomes the new baseline.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/danieljhkim/treesnap/internal/diff"
	"github.com/danieljhkim/treesnap/internal/fsops"
	"github.com/danieljhkim/treesnap/internal/pattern"
	"github.com/danieljhkim/treesnap/internal/snapshot"
)

// DefaultDebounce is the quiet period after the last event before a new
// snapshot is taken.
const DefaultDebounce = 250 * time.Millisecond

// SnapshotFunc takes a snapshot of the watched root.
type SnapshotFunc func(ctx context.Context) (*snapshot.Snapshot, error)

// EmitFunc receives each non-identical diff. Returning an error stops Run.
type EmitFunc func(*diff.Result) error

// Options configures a Watcher.
type Options struct {
	// Root is the directory to watch.
	Root string

	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration

	// Patterns are the scan patterns; directories they exclude are not watched.
	Patterns []string

	// IgnoreFileName is the per-directory ignore file the scan honors. Paths
	// it excludes are neither watched nor trigger a rescan. Empty disables it.
	IgnoreFileName string

	// Files reads ignore files. Defaults to the real filesystem.
	Files pattern.FileReader

	// Snapshot produces snapshots of Root.
	Snapshot SnapshotFunc

	// Differ compares consecutive snapshots.
	Differ *diff.Engine
}

// Watcher watches one tree.
type Watcher struct {
	opts     Options
	root     string
	filter   *pattern.Filter
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
	baseline *snapshot.Snapshot

	// ignores maps every watched directory to the ignore-file patterns in
	// effect there. Only touched from Start and Run.
	ignores map[string]*pattern.Ignores
}

// New validates opts and creates a Watcher.
func New(opts Options, logger *slog.Logger) (*Watcher, error) {
	if opts.Snapshot == nil || opts.Differ == nil {
		return nil, fmt.Errorf("watch requires a snapshot function and a differ")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	filter, err := pattern.Compile(opts.Patterns)
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Files == nil {
		opts.Files = fsops.NewRealFS()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		opts:    opts,
		root:    root,
		filter:  filter,
		logger:  logger,
		ignores: make(map[string]*pattern.Ignores),
	}, nil
}

// Start takes the baseline snapshot and subscribes to the tree. Events that
// happen after Start returns are reported by Run.
func (w *Watcher) Start(ctx context.Context) error {
	if w.fsw != nil {
		return fmt.Errorf("watcher already started")
	}

	baseline, err := w.opts.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to take baseline snapshot: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	w.fsw = fsw
	w.baseline = baseline

	if err := w.addTree(w.root); err != nil {
		_ = fsw.Close()
		w.fsw = nil
		return err
	}

	w.logger.Info("watch started",
		"root", w.root,
		"entries", baseline.Count,
		"watched_dirs", len(fsw.WatchList()),
		"patterns", w.filter.Patterns())
	return nil
}

// Baseline returns the snapshot changes are currently measured against.
func (w *Watcher) Baseline() *snapshot.Snapshot {
	return w.baseline
}

// Run handles events until ctx ends, emit fails, or the event source closes.
// Ending by ctx is not an error.
func (w *Watcher) Run(ctx context.Context, emit EmitFunc) error {
	if w.fsw == nil {
		return fmt.Errorf("watcher not started")
	}

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.ignored(ev.Name, w.isDir(ev.Name)) {
				continue
			}
			switch {
			case ev.Op&fsnotify.Create == fsnotify.Create:
				w.addNew(ev.Name)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.forget(ev.Name)
			}
			if w.opts.IgnoreFileName != "" && filepath.Base(ev.Name) == w.opts.IgnoreFileName {
				w.reloadIgnores(filepath.Dir(ev.Name))
			}
			w.logger.Debug("fs event", "path", ev.Name, "op", ev.Op.String())
			fire = time.After(w.opts.Debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)

		case <-fire:
			fire = nil
			if err := w.rescan(ctx, emit); err != nil {
				return err
			}
		}
	}
}

// Close releases the event subscription.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}

// rescan snapshots the tree and reports the difference from the baseline.
// A failed snapshot keeps the old baseline; the next event retries.
func (w *Watcher) rescan(ctx context.Context, emit EmitFunc) error {
	current, err := w.opts.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Warn("rescan failed", "root", w.root, "error", err)
		return nil
	}

	result := w.opts.Differ.Diff(w.baseline, current)
	w.baseline = current
	if result.Identical {
		w.logger.Debug("rescan found no changes", "root", w.root)
		return nil
	}
	return emit(result)
}

// addTree subscribes to dir and every non-excluded directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			w.logger.Warn("cannot watch directory", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.ignored(p, true) {
			return filepath.SkipDir
		}
		w.loadIgnores(p)
		if err := w.fsw.Add(p); err != nil {
			if p == dir {
				return fmt.Errorf("failed to watch %s: %w", p, err)
			}
			w.logger.Warn("cannot watch directory", "path", p, "error", err)
		}
		return nil
	})
}

// addNew subscribes to a directory created after Start.
func (w *Watcher) addNew(path string) {
	// The path may be gone again by the time the event is handled.
	if err := w.addTree(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Debug("not watching new path", "path", path, "error", err)
	}
}

// reloadIgnores rereads the ignore files of dir and its subtree after one
// of them changed, and watches directories that are no longer excluded.
func (w *Watcher) reloadIgnores(dir string) {
	w.forget(dir)
	if err := w.addTree(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Debug("cannot reload ignore files", "dir", dir, "error", err)
	}
}

// loadIgnores reads the ignore file of a directory about to be watched.
func (w *Watcher) loadIgnores(dir string) {
	var inherited *pattern.Ignores
	if dir != w.root {
		inherited = w.ignoresFor(filepath.Dir(dir))
	}
	rel, _ := w.rel(dir)
	ig, err := inherited.Load(w.opts.Files, dir, rel, w.opts.IgnoreFileName)
	if err != nil {
		w.logger.Warn("cannot read ignore file", "dir", dir, "error", err)
	}
	w.ignores[dir] = ig
}

// ignoresFor returns the ignore set of the nearest watched directory at or
// above dir.
func (w *Watcher) ignoresFor(dir string) *pattern.Ignores {
	for {
		if ig, ok := w.ignores[dir]; ok {
			return ig
		}
		parent := filepath.Dir(dir)
		if dir == w.root || parent == dir {
			return nil
		}
		dir = parent
	}
}

// forget drops the ignore sets of dir and everything below it.
func (w *Watcher) forget(dir string) {
	prefix := dir + string(filepath.Separator)
	for d := range w.ignores {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.ignores, d)
		}
	}
}

// isDir reports whether an event path is a directory. A path that no longer
// exists counts as one if it was being watched.
func (w *Watcher) isDir(path string) bool {
	if info, err := os.Lstat(path); err == nil {
		return info.IsDir()
	}
	_, watched := w.ignores[path]
	return watched
}

// rel returns path relative to the root in slash form. It fails for the
// root itself and for paths outside it.
func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// ignored reports whether path is excluded by the scan patterns or by an
// ignore file, the same way the scanner decides it.
func (w *Watcher) ignored(path string, isDir bool) bool {
	rel, ok := w.rel(path)
	if !ok {
		return false
	}
	if w.filter.Excluded(rel, isDir) {
		return true
	}
	return w.ignoresFor(filepath.Dir(path)).Ignored(rel, isDir)
}
