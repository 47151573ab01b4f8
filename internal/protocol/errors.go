package protocol

import "errors"

// Sentinel errors for the wire protocols. Decode failures on a single
// datagram or frame are logged and the unit discarded by the callers;
// command-level failures surface to the caller of the transport.
var (
	// ErrFraming indicates malformed envelope markers or terminator.
	ErrFraming = errors.New("protocol: malformed envelope")
	// ErrDecoding indicates a payload that is not valid per the expected schema.
	ErrDecoding = errors.New("protocol: invalid payload")
	// ErrShortRead indicates an incomplete binary frame; the caller must
	// buffer and retry once more data arrives.
	ErrShortRead = errors.New("protocol: incomplete frame")
	// ErrEncoding indicates a request that cannot be represented on the wire.
	ErrEncoding = errors.New("protocol: unencodable request")
)
