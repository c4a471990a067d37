package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/danieljhkim/treesnap/internal/pattern"
	"github.com/danieljhkim/treesnap/internal/snapshot"
)

// dirJob is one directory waiting to be listed.
type dirJob struct {
	abs   string
	rel   string // slash separated, "" for the root
	depth int    // the root is depth 0

	// ignores holds the ignore-file patterns inherited from ancestors.
	ignores *pattern.Ignores

	// ancestors is the chain of directories above and including this one.
	// Tracked only when following symlinks, for loop detection.
	ancestors []os.FileInfo

	// children is set when the listing was already read.
	children []os.DirEntry
}

// treeEvent is either a discovered subdirectory or a completion signal.
type treeEvent struct {
	job  dirJob
	done bool
}

func (s *Scanner) walk(ctx context.Context, root dirJob, st *Stream) {
	jobs := make(chan dirJob)
	events := make(chan treeEvent, s.opts.Threads*64)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.coordinate(ctx, root, jobs, events)
	}()

	for i := 0; i < s.opts.Threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				s.processDir(ctx, job, events, st)
				// Always report completion so pending never leaks.
				events <- treeEvent{done: true}
			}
		}()
	}

	wg.Wait()
}

// coordinate owns the directory queue. pending counts queued plus in-flight
// directories; the walk is over when it reaches zero. Subdirectory events
// from a worker always precede its completion event, so pending cannot hit
// zero while discovered work is still buffered.
func (s *Scanner) coordinate(ctx context.Context, root dirJob, jobs chan<- dirJob, events <-chan treeEvent) {
	queue := make([]dirJob, 0, 256)
	queue = append(queue, root)
	pending := len(queue)
	jobsClosed := false
	ctxDone := ctx.Done()

	for pending > 0 {
		stopping := ctx.Err() != nil
		if stopping {
			pending -= len(queue)
			queue = queue[:0]
			if !jobsClosed {
				close(jobs)
				jobsClosed = true
			}
			ctxDone = nil
			if pending == 0 {
				break
			}
		}

		var (
			next  dirJob
			jobCh chan<- dirJob
		)
		if !stopping && len(queue) > 0 {
			next = queue[0]
			jobCh = jobs
		}

		select {
		case ev := <-events:
			if ev.done {
				pending--
			} else if !stopping {
				pending++
				queue = append(queue, ev.job)
			}
		case jobCh <- next:
			queue[0] = dirJob{}
			queue = queue[1:]
		case <-ctxDone:
		}
	}

	if !jobsClosed {
		close(jobs)
	}
}

// processDir lists one directory and emits an item per child. A panic is
// contained here and reported as a single I/O error item.
func (s *Scanner) processDir(ctx context.Context, job dirJob, events chan<- treeEvent, st *Stream) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scanner worker panicked", "dir", displayPath(job.rel), "panic", r)
			st.emit(ctx, Item{Err: snapshot.NewScanError(snapshot.KindIO, job.rel,
				fmt.Errorf("scanner worker panicked in %s: %v", displayPath(job.rel), r))})
		}
	}()

	if ctx.Err() != nil {
		return
	}

	ignores, err := job.ignores.Load(s.fs, job.abs, job.rel, s.opts.IgnoreFileName)
	if err != nil {
		st.emit(ctx, Item{Err: snapshot.Classify(s.entryPath(joinRel(job.rel, s.opts.IgnoreFileName)), err)})
	}

	children := job.children
	if children == nil {
		children, err = s.fs.ReadDir(job.abs)
		if err != nil {
			st.emit(ctx, Item{Err: snapshot.Classify(s.entryPath(job.rel), err)})
			return
		}
	}

	for _, child := range children {
		if ctx.Err() != nil {
			return
		}

		rel := joinRel(job.rel, child.Name())
		abs := filepath.Join(job.abs, child.Name())

		info, err := s.fs.Lstat(abs)
		if err != nil {
			st.emit(ctx, Item{Err: snapshot.Classify(s.entryPath(rel), err)})
			continue
		}

		isLink := info.Mode()&os.ModeSymlink != 0
		followed := false
		if isLink && s.opts.FollowSymlinks {
			resolved, err := s.fs.Stat(abs)
			if err != nil {
				st.emit(ctx, Item{Err: classifyLink(s.entryPath(rel), err)})
				continue
			}
			info = resolved
			followed = true
		}

		isDir := info.IsDir()
		if s.filter.Excluded(rel, isDir) || ignores.Ignored(rel, isDir) {
			continue
		}
		if !s.filter.Included(rel, isDir) {
			continue
		}

		if isDir && followed && isAncestor(job.ancestors, info) {
			st.emit(ctx, Item{Err: snapshot.NewScanError(snapshot.KindSymlinkLoop, s.entryPath(rel),
				fmt.Errorf("symlink %s points to one of its ancestors", rel))})
			continue
		}

		entry, err := s.buildEntry(abs, s.entryPath(rel), info, isLink && !followed)
		if err != nil {
			st.emit(ctx, Item{Err: snapshot.Classify(s.entryPath(rel), err)})
			continue
		}
		if !st.emit(ctx, Item{Entry: entry}) {
			return
		}

		if isDir && (s.opts.MaxDepth == 0 || job.depth+1 < s.opts.MaxDepth) {
			sub := dirJob{abs: abs, rel: rel, depth: job.depth + 1, ignores: ignores}
			if s.opts.FollowSymlinks {
				sub.ancestors = append(append(make([]os.FileInfo, 0, len(job.ancestors)+1), job.ancestors...), info)
			}
			select {
			case events <- treeEvent{job: sub}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// entryPath converts a slash separated relative path to its output form.
func (s *Scanner) entryPath(rel string) string {
	if s.opts.NormalizePaths {
		return rel
	}
	return filepath.FromSlash(rel)
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func displayPath(rel string) string {
	if rel == "" {
		return "."
	}
	return rel
}

func isAncestor(ancestors []os.FileInfo, info os.FileInfo) bool {
	for _, a := range ancestors {
		if os.SameFile(a, info) {
			return true
		}
	}
	return false
}

// classifyLink maps a failure to resolve a followed symlink. A dangling link
// is reported as not found and a resolution cycle as a loop.
func classifyLink(path string, err error) *snapshot.ScanError {
	if errors.Is(err, syscall.ELOOP) {
		return snapshot.NewScanError(snapshot.KindSymlinkLoop, path, err)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return snapshot.NewScanError(snapshot.KindPathNotFound, path, fmt.Errorf("broken symlink: %w", err))
	}
	return snapshot.Classify(path, err)
}
