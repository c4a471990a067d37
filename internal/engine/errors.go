package engine

import "errors"

var (
	// ErrInvalidArgument indicates a request that cannot be run as given.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownOperation indicates an Info request for an unknown operation.
	ErrUnknownOperation = errors.New("unknown operation")
)
