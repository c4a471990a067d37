// Package stream frames a scan as JSON lines for incremental consumption.
//
// A stream is exactly one head line, any number of middle lines, and exactly
// one tail line:
//
//	{"$envelope":{"version":"1.0","stream":"head","status":"ok","meta":{...}},"version":"1.0","root":"/data","checksum_algorithm":"xxh3_64"}
//	{"path":"a.txt","type":"file",...}
//	{"$envelope":{"errors":[{"code":"PERMISSION_DENIED",...}]}}
//	{"$envelope":{"version":"1.0","stream":"tail","status":"partial","summary":{...},"execution_time_ms":12}}
//
// Middle lines are bare entries or error-only envelopes. The tail reports
// partial status whenever an error line was written.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/danieljhkim/treesnap/internal/clock"
	"github.com/danieljhkim/treesnap/internal/envelope"
	"github.com/danieljhkim/treesnap/internal/hash"
	"github.com/danieljhkim/treesnap/internal/snapshot"
)

var (
	// ErrHeadNotWritten is returned when a middle line or the tail is
	// written before the head.
	ErrHeadNotWritten = errors.New("stream head has not been written")

	// ErrHeadWritten is returned when the head is written twice.
	ErrHeadWritten = errors.New("stream head already written")

	// ErrClosed is returned for any write after the tail.
	ErrClosed = errors.New("stream already closed")
)

type state int

const (
	stateIdle state = iota
	stateOpen
	stateClosed
)

// head is the first line of a stream.
type head struct {
	Envelope          *envelope.Envelope `json:"$envelope"`
	Version           string             `json:"version"`
	Root              string             `json:"root"`
	ChecksumAlgorithm hash.Algorithm     `json:"checksum_algorithm"`
}

// frame is an envelope-only line: an error line or the tail.
type frame struct {
	Envelope *envelope.Envelope `json:"$envelope"`
}

// Writer emits a stream. It is not safe for concurrent use; the single
// consumer of a scan owns it.
type Writer struct {
	w     io.Writer
	enc   *json.Encoder
	timer clock.Stopwatch
	tool  envelope.Tool

	state   state
	entries int
	errors  int
}

// NewWriter creates a Writer. Timing starts now.
func NewWriter(w io.Writer, clk clock.Clock, tool envelope.Tool) *Writer {
	return &Writer{
		w:     w,
		enc:   json.NewEncoder(w),
		timer: clock.Start(clk),
		tool:  tool,
	}
}

// WriteHead writes the head line.
func (sw *Writer) WriteHead(root string, alg hash.Algorithm, deterministic bool) error {
	switch sw.state {
	case stateOpen:
		return ErrHeadWritten
	case stateClosed:
		return ErrClosed
	}

	meta := envelope.NewMeta(sw.tool, envelope.ReadOnly(deterministic), sw.timer.Now(), 0).
		WithProfiles(envelope.StreamingProfile())
	env := envelope.New(envelope.StatusOK, meta)
	env.Stream = envelope.StreamHead

	if err := sw.line(head{Envelope: env, Version: snapshot.SchemaVersion, Root: root, ChecksumAlgorithm: alg}); err != nil {
		return err
	}
	sw.state = stateOpen
	return nil
}

// WriteEntry writes one entry as a bare middle line.
func (sw *Writer) WriteEntry(entry *snapshot.Entry) error {
	if err := sw.ready(); err != nil {
		return err
	}
	if err := sw.line(entry); err != nil {
		return err
	}
	sw.entries++
	return nil
}

// WriteError writes an error-only middle line.
func (sw *Writer) WriteError(coded envelope.Error) error {
	if err := sw.ready(); err != nil {
		return err
	}
	if err := sw.line(frame{Envelope: &envelope.Envelope{Errors: []envelope.Error{coded}}}); err != nil {
		return err
	}
	sw.errors++
	return nil
}

// WriteTail writes the tail line and closes the stream.
func (sw *Writer) WriteTail() error {
	if err := sw.ready(); err != nil {
		return err
	}

	elapsed := sw.timer.Elapsed().Milliseconds()
	summary := sw.Summary()
	env := &envelope.Envelope{
		Version:         envelope.ProtocolVersion,
		Stream:          envelope.StreamTail,
		Status:          sw.Status(),
		Summary:         &summary,
		ExecutionTimeMS: &elapsed,
	}

	sw.state = stateClosed
	return sw.line(frame{Envelope: env})
}

// Summary returns the counts so far. Every entry written counts as both
// total and processed.
func (sw *Writer) Summary() envelope.Summary {
	return envelope.Summary{Total: sw.entries, Processed: sw.entries, Errors: sw.errors}
}

// Status is partial once any error line has been written.
func (sw *Writer) Status() envelope.Status {
	if sw.errors > 0 {
		return envelope.StatusPartial
	}
	return envelope.StatusOK
}

// ExitCode is zero for ok and partial streams: the tail already reports the
// error count. Only a stream whose head was never written fails.
func (sw *Writer) ExitCode() int {
	if sw.state == stateIdle {
		return envelope.ExitError
	}
	return envelope.ExitOK
}

// Closed reports whether the tail has been written.
func (sw *Writer) Closed() bool {
	return sw.state == stateClosed
}

func (sw *Writer) ready() error {
	switch sw.state {
	case stateIdle:
		return ErrHeadNotWritten
	case stateClosed:
		return ErrClosed
	}
	return nil
}

func (sw *Writer) line(v any) error {
	if err := sw.enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write stream line: %w", err)
	}
	if f, ok := sw.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush stream: %w", err)
		}
	}
	return nil
}
