package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/danieljhkim/treesnap/internal/clock"
	"github.com/danieljhkim/treesnap/internal/envelope"
	"github.com/danieljhkim/treesnap/internal/snapshot"
	"github.com/danieljhkim/treesnap/internal/stream"
)

// Snapshot scans req.Root. Per-entry failures make the snapshot partial;
// an unusable root, an invalid request or a timeout produce an error
// envelope instead.
func (e *Engine) Snapshot(ctx context.Context, req *SnapshotRequest) envelope.Outcome[*snapshot.Snapshot] {
	timer := clock.Start(e.clock)

	s, err := e.newScanner(req.Root, req.Scan)
	if err != nil {
		return envelope.Fail[*snapshot.Snapshot](e.failure(SnapshotTool, timer, err, req.Timeout))
	}

	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	snap, err := s.Scan(ctx)
	if err != nil {
		e.logger.Warn("snapshot failed", "root", s.Root(), "error", err)
		return envelope.Fail[*snapshot.Snapshot](e.failure(SnapshotTool, timer, err, req.Timeout))
	}
	return envelope.Success(snap)
}

// SnapshotStream scans req.Root and writes the result to w as a stream.
// Errors that prevent the scan from starting are reported in the result's
// Failure and nothing is written. A timeout mid-scan ends the stream early
// with a TIMEOUT error line. The returned error is set only when writing to
// w fails.
func (e *Engine) SnapshotStream(ctx context.Context, req *SnapshotRequest, w io.Writer) (*StreamResult, error) {
	timer := clock.Start(e.clock)

	s, err := e.newScanner(req.Root, req.Scan)
	if err != nil {
		return &StreamResult{Failure: e.failure(SnapshotTool, timer, err, req.Timeout)}, nil
	}

	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	st, err := s.Stream(ctx)
	if err != nil {
		return &StreamResult{Failure: e.failure(SnapshotTool, timer, err, req.Timeout)}, nil
	}
	defer st.Close()

	sw := stream.NewWriter(w, e.clock, e.tool(SnapshotTool))
	defer func() {
		if !sw.Closed() {
			e.logger.Warn("stream ended without a tail",
				"root", s.Root(),
				"entries", sw.Summary().Total,
				"errors", sw.Summary().Errors)
		}
	}()
	if err := sw.WriteHead(s.Root(), s.Options().Algorithm, false); err != nil {
		return nil, err
	}

	for item := range st.Items() {
		if item.Err != nil {
			err = sw.WriteError(item.Err.Coded())
		} else {
			err = sw.WriteEntry(item.Entry)
		}
		if err != nil {
			return nil, fmt.Errorf("stream aborted: %w", err)
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if err := sw.WriteError(coded(ctxErr, req.Timeout)); err != nil {
			return nil, err
		}
	}
	if err := sw.WriteTail(); err != nil {
		return nil, err
	}

	summary := sw.Summary()
	e.logger.Info("stream complete",
		"root", s.Root(),
		"entries", summary.Total,
		"errors", summary.Errors,
		"elapsed_ms", timer.Elapsed().Milliseconds())

	return &StreamResult{Summary: summary, Status: sw.Status()}, nil
}

// failure builds the error envelope for an operation that produced nothing.
func (e *Engine) failure(tool string, timer clock.Stopwatch, err error, timeout time.Duration) *envelope.Envelope {
	deterministic := tool == DiffTool
	meta := envelope.NewMeta(e.tool(tool), envelope.ReadOnly(deterministic), timer.Now(), timer.Elapsed()).
		WithDefaultProfiles()
	return envelope.Failure(meta, coded(err, timeout))
}
