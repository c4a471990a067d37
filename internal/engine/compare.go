package engine

import (
	"context"
	"fmt"

	"github.com/danieljhkim/treesnap/internal/clock"
	"github.com/danieljhkim/treesnap/internal/diff"
	"github.com/danieljhkim/treesnap/internal/envelope"
	"github.com/danieljhkim/treesnap/internal/persist"
	"github.com/danieljhkim/treesnap/internal/snapshot"
)

// Compare loads both sources and diffs them. Directory sources are scanned
// with req.Scan. Any source that cannot be loaded produces an error envelope
// with a LOAD_ERROR.
func (e *Engine) Compare(ctx context.Context, req *CompareRequest) envelope.Outcome[*diff.Result] {
	timer := clock.Start(e.clock)
	fail := func(err error) envelope.Outcome[*diff.Result] {
		e.logger.Warn("compare failed", "source", req.Source, "target", req.Target, "error", err)
		return envelope.Fail[*diff.Result](e.failure(DiffTool, timer, err, req.Timeout))
	}

	source, err := persist.ParseSource(req.Source)
	if err != nil {
		return fail(fmt.Errorf("%w: source: %w", ErrInvalidArgument, err))
	}
	target, err := persist.ParseSource(req.Target)
	if err != nil {
		return fail(fmt.Errorf("%w: target: %w", ErrInvalidArgument, err))
	}
	if source.Kind == persist.SourceStdin && target.Kind == persist.SourceStdin {
		return fail(fmt.Errorf("%w: source and target cannot both be standard input", ErrInvalidArgument))
	}

	// Options are validated up front so that a bad pattern is reported as
	// such rather than as a load failure.
	if source.Live() || target.Live() {
		if _, err := e.newScanner(".", req.Scan); err != nil {
			return fail(err)
		}
	}

	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	loader := persist.NewLoader(e.fs, e.stdin, e.scanFunc(req.Scan), e.logger)

	src, err := loader.Load(ctx, source)
	if err != nil {
		return fail(err)
	}
	tgt, err := loader.Load(ctx, target)
	if err != nil {
		return fail(err)
	}

	engine := diff.New(diff.Options{
		IgnoreTime:    req.IgnoreTime,
		IgnoreMode:    req.IgnoreMode,
		StructureOnly: req.StructureOnly,
	}, e.clock, e.tool(DiffTool))

	result := engine.Diff(src, tgt)
	e.logger.Info("compare complete",
		"source", req.Source,
		"target", req.Target,
		"identical", result.Identical,
		"added", result.Summary.Added,
		"removed", result.Summary.Removed,
		"modified", result.Summary.Modified)
	return envelope.Success(result)
}

// scanFunc adapts the scanner to the loader for directory sources.
func (e *Engine) scanFunc(opts ScanOptions) persist.ScanFunc {
	return func(ctx context.Context, root string) (*snapshot.Snapshot, error) {
		s, err := e.newScanner(root, opts)
		if err != nil {
			return nil, err
		}
		return s.Scan(ctx)
	}
}
