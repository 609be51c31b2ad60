package handshake

import "errors"

// Mirrors original_source/core/exceptions.py's HandshakeError hierarchy:
// HandshakeFormatError for malformed wire data, HandshakeVerifyError for
// anything that fails a cryptographic check (signature, PSK tag, suite
// negotiation).
var (
	ErrFormat           = errors.New("handshake: malformed wire data")
	ErrVerify           = errors.New("handshake: verification failed")
	ErrSuiteMismatch    = errors.New("handshake: negotiated suite does not match configured suite")
	ErrPeerClosed       = errors.New("handshake: peer closed connection")
	ErrTimeout          = errors.New("handshake: timed out")
)
