package core

import "errors"

var (
	// ErrUnknownSession is returned when a request targets a session
	// that was never opened or has already been closed.
	ErrUnknownSession = errors.New("unknown session")

	// ErrSessionLimit is returned by open when the concurrent-session
	// cap has been reached.
	ErrSessionLimit = errors.New("session limit exceeded")

	// ErrMalformedRequest is returned for requests the transport could
	// parse but the engine cannot act on (empty line, bad frame type).
	ErrMalformedRequest = errors.New("malformed request")
)
