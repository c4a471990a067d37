package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/danieljhkim/treesnap/internal/envelope"
	"github.com/danieljhkim/treesnap/internal/fsops"
	"github.com/danieljhkim/treesnap/internal/snapshot"
	"github.com/danieljhkim/treesnap/internal/stream"
)

// ScanFunc scans a directory into a snapshot.
type ScanFunc func(ctx context.Context, root string) (*snapshot.Snapshot, error)

// LoadError reports a source that could not be turned into a snapshot.
type LoadError struct {
	Source Source
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load snapshot from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Coded returns the envelope error for e. Load failures carry no entry path;
// the source goes into the context instead.
func (e *LoadError) Coded() envelope.Error {
	return envelope.NewError(envelope.CodeLoadError, e.Error()).
		WithContext("source", e.Source.String()).
		WithContext("kind", e.Source.Kind.String())
}

// Loader acquires snapshots from sources.
type Loader struct {
	fs     fsops.FS
	stdin  io.Reader
	scan   ScanFunc
	logger *slog.Logger
}

// NewLoader creates a Loader. scan is used for directory sources and may be
// nil when only saved snapshots are expected.
func NewLoader(fs fsops.FS, stdin io.Reader, scan ScanFunc, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{fs: fs, stdin: stdin, scan: scan, logger: logger}
}

// Load acquires the snapshot for src. Every failure, including an unusable
// scan root, is returned as a *LoadError. Context cancellation is returned
// unwrapped so callers can tell a timeout apart.
func (l *Loader) Load(ctx context.Context, src Source) (*snapshot.Snapshot, error) {
	snap, err := l.load(ctx, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, &LoadError{Source: src, Err: err}
	}

	l.logger.Debug("snapshot loaded", "source", src.String(), "kind", src.Kind.String(), "entries", snap.Count)
	return snap, nil
}

func (l *Loader) load(ctx context.Context, src Source) (*snapshot.Snapshot, error) {
	switch src.Kind {
	case SourceDir:
		if l.scan == nil {
			return nil, fmt.Errorf("directory sources are not supported here")
		}
		return l.scan(ctx, src.Path)
	case SourceJSON, SourceJSONL:
		data, err := l.fs.ReadFile(src.Path)
		if err != nil {
			return nil, err
		}
		if src.Kind == SourceJSONL {
			return checked(stream.Decode(bytes.NewReader(data), src.Origin()))
		}
		return checked(snapshot.Decode(bytes.NewReader(data), src.Origin()))
	case SourceStdin:
		if l.stdin == nil {
			return nil, fmt.Errorf("standard input is not available")
		}
		data, err := io.ReadAll(l.stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read standard input: %w", err)
		}
		return Decode(data, src.Origin())
	default:
		return nil, fmt.Errorf("unknown source kind %d", src.Kind)
	}
}

// Decode parses data as either a snapshot document or a stream, deciding by
// the first JSON value: a stream begins with a head envelope.
func Decode(data []byte, origin snapshot.Origin) (*snapshot.Snapshot, error) {
	var probe struct {
		Envelope *struct {
			Stream envelope.StreamMarker `json:"stream"`
		} `json:"$envelope"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&probe); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	if probe.Envelope != nil && probe.Envelope.Stream == envelope.StreamHead {
		return checked(stream.Decode(bytes.NewReader(data), origin))
	}
	return checked(snapshot.Decode(bytes.NewReader(data), origin))
}

// checked rejects snapshots whose entry paths would escape the root.
func checked(snap *snapshot.Snapshot, err error) (*snapshot.Snapshot, error) {
	if err != nil {
		return nil, err
	}
	for i := range snap.Entries {
		if err := fsops.ValidateRelPath(snap.Entries[i].Path); err != nil {
			return nil, fmt.Errorf("invalid snapshot: %w", err)
		}
	}
	return snap, nil
}
