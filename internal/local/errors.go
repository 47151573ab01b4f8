package local

import "errors"

var (
	// ErrCommandTimeout indicates no matching response arrived within the
	// timeout across all retry attempts.
	ErrCommandTimeout = errors.New("local: command timed out")
	// ErrDevice indicates the panel answered but the response does not
	// carry what the command requires.
	ErrDevice = errors.New("local: unexpected panel response")
	// ErrConnection indicates the UDP socket could not be set up or used.
	ErrConnection = errors.New("local: connection failure")
)
