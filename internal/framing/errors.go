package framing

import "errors"

// These mirror the drop-reason taxonomy of core/aead.py / spec section 7.2:
// header errors are safe to log with detail, session/replay/auth errors are
// deliberately indistinguishable to an observer on the wire (spec section
// 4.1.3's "always silent" rule for session_id/epoch mismatch).
var (
	ErrHeaderTooShort  = errors.New("framing: wire packet shorter than header")
	ErrVersionMismatch = errors.New("framing: wire version mismatch")
	ErrCryptoIDMismatch = errors.New("framing: kem/sig id mismatch")
	ErrSessionMismatch = errors.New("framing: session id mismatch")
	ErrEpochMismatch   = errors.New("framing: epoch mismatch")
	ErrReplay          = errors.New("framing: replayed or out-of-window sequence number")
	ErrAuthFail        = errors.New("framing: AEAD authentication failed")
	ErrSequenceOverflow = errors.New("framing: sequence counter reached rekey threshold")
	ErrEpochOverflow   = errors.New("framing: epoch counter exhausted (255)")
)

// DropReason is a stable, loggable classification of why a packet was
// rejected, matching async_proxy.py's drop-counter buckets.
type DropReason string

const (
	DropNone          DropReason = ""
	DropHeaderTooShort DropReason = "header_too_short"
	DropVersion       DropReason = "version_mismatch"
	DropCryptoID      DropReason = "crypto_id_mismatch"
	DropSessionEpoch  DropReason = "session_epoch_mismatch"
	DropReplay        DropReason = "replay"
	DropAuth          DropReason = "auth_fail"
)
