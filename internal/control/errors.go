package control

import "errors"

var (
	// ErrUnexpectedFrame marks a ControlFrame arriving in a state that
	// doesn't expect it (spec section 4.3's state machine rejects
	// out-of-sequence control frames rather than trying to interpret them).
	ErrUnexpectedFrame = errors.New("control: unexpected frame for current state")
	// ErrRIDMismatch marks a frame whose rid does not match the in-flight
	// rekey attempt's rid, treated as a stale/duplicate message.
	ErrRIDMismatch = errors.New("control: rid does not match in-flight rekey")
	// ErrAlreadyInFlight marks an attempt to start a new rekey while one is
	// already in progress.
	ErrAlreadyInFlight = errors.New("control: rekey already in flight")
	// ErrTimedOut marks a rekey attempt that exceeded its deadline waiting
	// for the peer's response (spec section 4.3's REKEY_HANDSHAKE_TIMEOUT).
	ErrTimedOut = errors.New("control: rekey timed out")
	// ErrAborted marks a rekey the peer explicitly aborted.
	ErrAborted = errors.New("control: rekey aborted by peer")
)
