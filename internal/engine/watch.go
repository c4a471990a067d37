package engine

import (
	"context"

	"github.com/danieljhkim/treesnap/internal/clock"
	"github.com/danieljhkim/treesnap/internal/diff"
	"github.com/danieljhkim/treesnap/internal/envelope"
	"github.com/danieljhkim/treesnap/internal/snapshot"
	"github.com/danieljhkim/treesnap/internal/watch"
)

// Watch snapshots req.Root, then reports every later change to emit as a
// diff against the previous state. It blocks until ctx ends or emit fails.
// A nil envelope means the watch ended normally; otherwise it describes why
// the watch could not start or stopped.
func (e *Engine) Watch(ctx context.Context, req *WatchRequest, emit watch.EmitFunc) *envelope.Envelope {
	timer := clock.Start(e.clock)
	fail := func(err error) *envelope.Envelope {
		e.logger.Warn("watch failed", "root", req.Root, "error", err)
		return e.failure(DiffTool, timer, err, 0)
	}

	s, err := e.newScanner(req.Root, req.Scan)
	if err != nil {
		return fail(err)
	}

	w, err := watch.New(watch.Options{
		Root:           s.Root(),
		Debounce:       req.Debounce,
		Patterns:       req.Scan.Patterns,
		IgnoreFileName: s.Options().IgnoreFileName,
		Files:          e.fs,
		Snapshot: func(ctx context.Context) (*snapshot.Snapshot, error) {
			return s.Scan(ctx)
		},
		Differ: diff.New(diff.Options{
			IgnoreTime:    req.IgnoreTime,
			IgnoreMode:    req.IgnoreMode,
			StructureOnly: req.StructureOnly,
		}, e.clock, e.tool(DiffTool)),
	}, e.logger)
	if err != nil {
		return fail(err)
	}
	defer w.Close()

	if err := w.Start(ctx); err != nil {
		return fail(err)
	}
	if err := w.Run(ctx, emit); err != nil {
		return fail(err)
	}
	e.logger.Info("watch stopped", "root", s.Root(), "elapsed_ms", timer.Elapsed().Milliseconds())
	return nil
}
