// Package envelope implements the annotation protocol attached to every
// treesnap result.
//
// An Envelope is serialized under the "$envelope" key, as a sibling of the
// payload fields rather than a wrapper around them. It carries the protocol
// version, an overall Status, semantic metadata about the invocation (Meta),
// and any coded errors. Streaming output reuses the same type for its head,
// error and tail lines, distinguished by the Stream marker.
package envelope

import (
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the version of the annotation protocol.
const ProtocolVersion = "1.0"

// Level is the protocol conformance level reported in Meta.
const Level = 2

// Key is the JSON key under which an Envelope is attached to a payload.
const Key = "$envelope"

// Status is the overall outcome of an operation.
type Status string

const (
	// StatusOK means the operation completed without errors.
	StatusOK Status = "ok"

	// StatusError means the operation produced no usable result.
	StatusError Status = "error"

	// StatusPartial means the operation completed but some entries failed.
	StatusPartial Status = "partial"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitPartial = 2
)

// ExitCode maps a status to the process exit code.
func (s Status) ExitCode() int {
	switch s {
	case StatusOK:
		return ExitOK
	case StatusPartial:
		return ExitPartial
	default:
		return ExitError
	}
}

// Worst returns the more severe of two statuses.
func Worst(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusError:
			return 2
		case StatusPartial:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// StreamMarker identifies the head and tail lines of a stream.
type StreamMarker string

const (
	StreamHead StreamMarker = "head"
	StreamTail StreamMarker = "tail"
)

// Semantics declares the behavioral properties of an invocation.
type Semantics struct {
	// Idempotent is true when repeating the invocation has no additional effect.
	Idempotent bool

	// Mutates is true when the invocation changes external state.
	Mutates bool

	// Safe is true when the invocation is non-destructive.
	Safe bool

	// Deterministic is true when the output depends only on the input.
	Deterministic bool
}

// ReadOnly returns the semantics shared by snapshot and diff: idempotent,
// non-mutating and safe.
func ReadOnly(deterministic bool) Semantics {
	return Semantics{
		Idempotent:    true,
		Mutates:       false,
		Safe:          true,
		Deterministic: deterministic,
	}
}

// Tool identifies the program that produced an envelope.
type Tool struct {
	Name    string
	Version string
}

// Meta carries semantic metadata about an invocation.
type Meta struct {
	Idempotent      bool      `json:"idempotent"`
	Mutates         bool      `json:"mutates"`
	Safe            bool      `json:"safe"`
	Deterministic   bool      `json:"deterministic"`
	Level           int       `json:"level"`
	ExecutionTimeMS int64     `json:"execution_time_ms"`
	Tool            string    `json:"tool"`
	ToolVersion     string    `json:"tool_version"`
	Timestamp       time.Time `json:"timestamp"`
	InvocationID    string    `json:"invocation_id,omitempty"`
	Profiles        []Profile `json:"profiles,omitempty"`
}

// NewMeta builds the metadata block for an invocation.
func NewMeta(tool Tool, sem Semantics, timestamp time.Time, elapsed time.Duration) *Meta {
	return &Meta{
		Idempotent:      sem.Idempotent,
		Mutates:         sem.Mutates,
		Safe:            sem.Safe,
		Deterministic:   sem.Deterministic,
		Level:           Level,
		ExecutionTimeMS: elapsed.Milliseconds(),
		Tool:            tool.Name,
		ToolVersion:     NormalizeVersion(tool.Version),
		Timestamp:       timestamp.UTC(),
		InvocationID:    uuid.NewString(),
	}
}

// WithProfiles replaces the profile list and returns m.
func (m *Meta) WithProfiles(profiles ...Profile) *Meta {
	m.Profiles = profiles
	return m
}

// WithDefaultProfiles attaches the determinism profile, which records that
// the result depends on the file system.
func (m *Meta) WithDefaultProfiles() *Meta {
	return m.WithProfiles(DeterminismProfile())
}

// Summary is the aggregate count reported in a stream tail.
type Summary struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// Envelope is the annotation attached to a result.
//
// Version and Status are omitted only on middle error lines of a stream,
// which carry nothing but Errors.
type Envelope struct {
	Version         string       `json:"version,omitempty"`
	Stream          StreamMarker `json:"stream,omitempty"`
	Status          Status       `json:"status,omitempty"`
	Meta            *Meta        `json:"meta,omitempty"`
	Errors          []Error      `json:"errors,omitempty"`
	Summary         *Summary     `json:"summary,omitempty"`
	ExecutionTimeMS *int64       `json:"execution_time_ms,omitempty"`
}

// New creates an envelope with the given status and metadata.
func New(status Status, meta *Meta) *Envelope {
	return &Envelope{
		Version: ProtocolVersion,
		Status:  status,
		Meta:    meta,
	}
}

// Failure creates an error envelope carrying the given coded errors.
func Failure(meta *Meta, errs ...Error) *Envelope {
	env := New(StatusError, meta)
	env.Errors = errs
	return env
}

// Info creates the dry-run envelope used for capability introspection.
func Info(tool Tool, sem Semantics, timestamp time.Time, elapsed time.Duration) *Envelope {
	return New(StatusOK, NewMeta(tool, sem, timestamp, elapsed).WithDefaultProfiles())
}

// WithErrors appends coded errors and returns e.
func (e *Envelope) WithErrors(errs ...Error) *Envelope {
	e.Errors = append(e.Errors, errs...)
	return e
}

// IsError reports whether e describes a failed operation.
func (e *Envelope) IsError() bool {
	return e != nil && e.Status == StatusError
}

// ExitCode returns the process exit code for e.
func (e *Envelope) ExitCode() int {
	if e == nil {
		return ExitError
	}
	return e.Status.ExitCode()
}
