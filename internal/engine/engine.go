// Package engine provides the core operations of treesnap.
//
// The engine package acts as the orchestration layer between the command
// surfaces (CLI and tool server) and the lower-level packages. It turns
// requests into scanner options, enforces timeouts, loads diff inputs and
// wraps every outcome in an envelope.
//
// Key components:
//   - Snapshot: batch scan producing a sorted snapshot
//   - SnapshotStream: scan written incrementally as JSON lines
//   - Compare: diff of two sources (directories, saved snapshots, stdin)
//   - Watch: repeated diffs of a live tree as it changes
//   - Info: declared semantics without running anything
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/danieljhkim/treesnap/internal/clock"
	"github.com/danieljhkim/treesnap/internal/envelope"
	"github.com/danieljhkim/treesnap/internal/fsops"
	"github.com/danieljhkim/treesnap/internal/hash"
	"github.com/danieljhkim/treesnap/internal/pattern"
	"github.com/danieljhkim/treesnap/internal/persist"
	"github.com/danieljhkim/treesnap/internal/scanner"
	"github.com/danieljhkim/treesnap/internal/snapshot"
)

// Tool names reported in envelope metadata.
const (
	SnapshotTool = "treesnap_snapshot"
	DiffTool     = "treesnap_diff"
)

// Operation selects an engine operation for Info.
type Operation string

const (
	OpSnapshot Operation = "snapshot"
	OpDiff     Operation = "diff"
)

// Engine orchestrates all treesnap operations.
// It is the main API surface called by the CLI and the tool server.
type Engine struct {
	fs      fsops.FS
	clock   clock.Clock
	stdin   io.Reader
	logger  *slog.Logger
	version string
}

// New creates a new Engine with the given dependencies. version is the
// build version reported as tool_version.
func New(fs fsops.FS, clk clock.Clock, stdin io.Reader, logger *slog.Logger, version string) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		fs:      fs,
		clock:   clk,
		stdin:   stdin,
		logger:  logger,
		version: version,
	}
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Info returns the envelope an operation would carry, without running it.
// Snapshots read a changing filesystem and are not deterministic; a diff is
// a pure function of its inputs.
func (e *Engine) Info(op Operation) (*envelope.Envelope, error) {
	switch op {
	case OpSnapshot:
		return envelope.Info(e.tool(SnapshotTool), envelope.ReadOnly(false), e.clock.Now(), 0), nil
	case OpDiff:
		return envelope.Info(e.tool(DiffTool), envelope.ReadOnly(true), e.clock.Now(), 0), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
}

func (e *Engine) tool(name string) envelope.Tool {
	return envelope.Tool{Name: name, Version: e.version}
}

// newScanner validates scan options and builds a scanner for root. Every
// error it returns wraps ErrInvalidArgument.
func (e *Engine) newScanner(root string, opts ScanOptions) (*scanner.Scanner, error) {
	alg := hash.Default
	if opts.Checksum != "" {
		parsed, err := hash.ParseAlgorithm(opts.Checksum)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		alg = parsed
	}
	if opts.Threads < 0 || opts.Threads > scanner.MaxThreads {
		return nil, fmt.Errorf("%w: threads must be between 0 and %d, got %d",
			ErrInvalidArgument, scanner.MaxThreads, opts.Threads)
	}

	s, err := scanner.New(scanner.Options{
		Root:           root,
		FollowSymlinks: opts.FollowSymlinks,
		MaxDepth:       opts.MaxDepth,
		Patterns:       opts.Patterns,
		IgnoreFileName: opts.IgnoreFile,
		Algorithm:      alg,
		Threads:        opts.Threads,
		NormalizePaths: opts.NormalizePaths,
		Tool:           e.tool(SnapshotTool),
	}, e.fs, nil, e.clock, e.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return s, nil
}

// withTimeout applies an optional timeout.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// coded maps an operation error to its envelope error.
func coded(err error, timeout time.Duration) envelope.Error {
	var (
		loadErr *persist.LoadError
		scanErr *snapshot.ScanError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return envelope.NewError(envelope.CodeTimeout, fmt.Sprintf("operation timed out after %s", timeout)).
			WithContext("timeout_ms", timeout.Milliseconds())
	case errors.Is(err, context.Canceled):
		return envelope.NewError(envelope.CodeIOError, "operation cancelled")
	case errors.As(err, &loadErr):
		return loadErr.Coded()
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, pattern.ErrInvalidPattern), errors.Is(err, hash.ErrUnknownAlgorithm):
		return envelope.NewError(envelope.CodeInvalidArgument, err.Error())
	case errors.As(err, &scanErr):
		return scanErr.Coded()
	default:
		return envelope.NewError(envelope.CodeIOError, err.Error())
	}
}
