package engine

import (
	"github.com/danieljhkim/treesnap/internal/envelope"
)

// StreamResult represents the result of a streaming snapshot.
type StreamResult struct {
	// Summary is the tail summary (zero when Failure is set)
	Summary envelope.Summary

	// Status is the tail status
	Status envelope.Status

	// Failure is set when the scan could not start. Nothing was written to
	// the output in that case.
	Failure *envelope.Envelope
}

// ExitCode returns the process exit code. Streams that started exit zero
// even when partial; the tail already carries the error count.
func (r *StreamResult) ExitCode() int {
	if r.Failure != nil {
		return r.Failure.ExitCode()
	}
	return envelope.ExitOK
}
