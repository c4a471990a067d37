package envelope

import "encoding/json"

// Annotated is implemented by payloads that carry their own envelope.
type Annotated interface {
	Annotation() *Envelope
}

// Outcome holds either a payload or a failure envelope, never both.
//
// It serializes as whichever variant is set, with no discriminant key: a
// payload with its "$envelope" sibling, or a bare failure envelope.
type Outcome[T Annotated] struct {
	value   T
	failure *Envelope
	ok      bool
}

// Success wraps a completed payload.
func Success[T Annotated](v T) Outcome[T] {
	return Outcome[T]{value: v, ok: true}
}

// Fail wraps a failure envelope.
func Fail[T Annotated](env *Envelope) Outcome[T] {
	return Outcome[T]{failure: env}
}

// OK reports whether the outcome holds a payload.
func (o Outcome[T]) OK() bool {
	return o.ok
}

// Value returns the payload and whether one is present.
func (o Outcome[T]) Value() (T, bool) {
	return o.value, o.ok
}

// Failure returns the failure envelope, or nil on success.
func (o Outcome[T]) Failure() *Envelope {
	return o.failure
}

// Envelope returns the envelope of whichever variant is set.
func (o Outcome[T]) Envelope() *Envelope {
	if o.ok {
		return o.value.Annotation()
	}
	return o.failure
}

// Status returns the overall status.
func (o Outcome[T]) Status() Status {
	env := o.Envelope()
	if env == nil {
		return StatusError
	}
	return env.Status
}

// ExitCode returns the process exit code for the outcome.
func (o Outcome[T]) ExitCode() int {
	return o.Status().ExitCode()
}

func (o Outcome[T]) MarshalJSON() ([]byte, error) {
	if o.ok {
		return json.Marshal(o.value)
	}
	return json.Marshal(o.failure)
}
