package scanner

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/danieljhkim/treesnap/internal/snapshot"
)

// Item is one result of a streaming scan: exactly one of Entry or Err is set.
type Item struct {
	Entry *snapshot.Entry
	Err   *snapshot.ScanError
}

// Stats counts the items delivered so far.
type Stats struct {
	Entries int64
	Errors  int64
}

// Stream is an in-progress scan. Items arrive in no particular order.
type Stream struct {
	items  chan Item
	cancel context.CancelFunc
	once   sync.Once

	entries atomic.Int64
	errors  atomic.Int64
}

// Items returns the channel of results. It is closed when the walk ends.
func (st *Stream) Items() <-chan Item {
	return st.items
}

// Stats returns the counts of items delivered so far.
func (st *Stream) Stats() Stats {
	return Stats{Entries: st.entries.Load(), Errors: st.errors.Load()}
}

// Close stops the walk. Filesystem calls already in flight complete, but no
// further directories are dispatched. Close waits for the workers to exit.
func (st *Stream) Close() {
	st.once.Do(func() {
		st.cancel()
		for range st.items {
		}
	})
}

// Stream starts the walk and returns immediately. It fails only when the
// root cannot be used: it does not exist, is not a directory, or cannot be
// listed.
func (s *Scanner) Stream(ctx context.Context) (*Stream, error) {
	info, err := s.fs.Stat(s.root)
	if err != nil {
		return nil, snapshot.Classify(s.root, err)
	}
	if !info.IsDir() {
		return nil, snapshot.NewScanError(snapshot.KindIO, s.root, fmt.Errorf("%s is not a directory", s.root))
	}
	children, err := s.fs.ReadDir(s.root)
	if err != nil {
		return nil, snapshot.Classify(s.root, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	st := &Stream{
		items:  make(chan Item, s.opts.Threads*16),
		cancel: cancel,
	}

	root := dirJob{abs: s.root, children: children}
	if s.opts.FollowSymlinks {
		root.ancestors = []os.FileInfo{info}
	}

	s.logger.Debug("scan started",
		"root", s.root,
		"threads", s.opts.Threads,
		"follow_symlinks", s.opts.FollowSymlinks,
		"patterns", s.filter.Patterns())

	go func() {
		defer close(st.items)
		defer cancel()
		s.walk(ctx, root, st)
	}()

	return st, nil
}

// emit delivers one item, giving up if the stream was closed.
func (st *Stream) emit(ctx context.Context, item Item) bool {
	select {
	case st.items <- item:
		if item.Err != nil {
			st.errors.Add(1)
		} else {
			st.entries.Add(1)
		}
		return true
	case <-ctx.Done():
		return false
	}
}
