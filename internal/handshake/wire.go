// Package handshake implements the one-shot TCP handshake that negotiates a
// PQC suite, authenticates the Drone with a pre-shared key, and derives the
// directional AEAD keys handed off to the framing layer (spec section 4.2).
//
// Grounded on original_source/core/handshake.py's wire layout and
// transcript construction, re-expressed with this module's length-prefixed
// binary packing (internal/bin) instead of Python's struct module.
package handshake

import (
	"fmt"

	"github.com/skywave-systems/pqtun-core/internal/bin"
)

// ServerHello is the first handshake message, sent by the GCS (server) to
// the Drone (client): negotiated algorithm names, session identity, a
// fresh ephemeral KEM public key, and a signature over the transcript.
type ServerHello struct {
	Version   byte
	KEMName   string
	SigName   string
	SessionID [8]byte
	Challenge [8]byte
	KEMPublic []byte
	Signature []byte
}

// Encode serializes a ServerHello as:
// version(1) | u16 len(kem_name) | kem_name | u16 len(sig_name) | sig_name |
// session_id(8) | challenge(8) | u32 len(kem_pub) | kem_pub |
// u16 len(signature) | signature
func (h ServerHello) Encode() []byte {
	kemName := []byte(h.KEMName)
	sigName := []byte(h.SigName)

	size := 1 + 2 + len(kemName) + 2 + len(sigName) + 8 + 8 + 4 + len(h.KEMPublic) + 2 + len(h.Signature)
	out := make([]byte, size)
	pos := 0
	out[pos] = h.Version
	pos++

	bin.PutU16BE(out[pos:], uint16(len(kemName)))
	pos += 2
	pos += copy(out[pos:], kemName)

	bin.PutU16BE(out[pos:], uint16(len(sigName)))
	pos += 2
	pos += copy(out[pos:], sigName)

	pos += copy(out[pos:], h.SessionID[:])
	pos += copy(out[pos:], h.Challenge[:])

	bin.PutU32BE(out[pos:], uint32(len(h.KEMPublic)))
	pos += 4
	pos += copy(out[pos:], h.KEMPublic)

	bin.PutU16BE(out[pos:], uint16(len(h.Signature)))
	pos += 2
	pos += copy(out[pos:], h.Signature)

	return out
}

// DecodeServerHello parses the Encode layout, returning ErrFormat on any
// length inconsistency or truncation.
func DecodeServerHello(buf []byte) (ServerHello, error) {
	var h ServerHello
	pos := 0

	if len(buf) < 1 {
		return h, fmt.Errorf("%w: empty hello", ErrFormat)
	}
	h.Version = buf[pos]
	pos++

	kemName, n, err := readLenPrefixed16(buf, pos)
	if err != nil {
		return h, err
	}
	h.KEMName = string(kemName)
	pos = n

	sigName, n, err := readLenPrefixed16(buf, pos)
	if err != nil {
		return h, err
	}
	h.SigName = string(sigName)
	pos = n

	if len(buf) < pos+16 {
		return h, fmt.Errorf("%w: truncated session_id/challenge", ErrFormat)
	}
	copy(h.SessionID[:], buf[pos:pos+8])
	pos += 8
	copy(h.Challenge[:], buf[pos:pos+8])
	pos += 8

	kemPub, n, err := readLenPrefixed32(buf, pos)
	if err != nil {
		return h, err
	}
	h.KEMPublic = kemPub
	pos = n

	sig, n, err := readLenPrefixed16(buf, pos)
	if err != nil {
		return h, err
	}
	h.Signature = sig
	pos = n

	if pos != len(buf) {
		return h, fmt.Errorf("%w: trailing bytes after hello", ErrFormat)
	}
	return h, nil
}

func readLenPrefixed16(buf []byte, pos int) (value []byte, newPos int, err error) {
	if len(buf) < pos+2 {
		return nil, 0, fmt.Errorf("%w: truncated length prefix", ErrFormat)
	}
	l := int(bin.U16BE(buf[pos:]))
	pos += 2
	if len(buf) < pos+l {
		return nil, 0, fmt.Errorf("%w: truncated field of length %d", ErrFormat, l)
	}
	return buf[pos : pos+l], pos + l, nil
}

func readLenPrefixed32(buf []byte, pos int) (value []byte, newPos int, err error) {
	if len(buf) < pos+4 {
		return nil, 0, fmt.Errorf("%w: truncated length prefix", ErrFormat)
	}
	l := int(bin.U32BE(buf[pos:]))
	pos += 4
	if len(buf) < pos+l {
		return nil, 0, fmt.Errorf("%w: truncated field of length %d", ErrFormat, l)
	}
	return buf[pos : pos+l], pos + l, nil
}

// AuthMessage is the Drone's (client's) reply: the KEM ciphertext and the
// HMAC-PSK authentication tag over the ServerHello wire bytes.
type AuthMessage struct {
	KEMCiphertext []byte
	Tag           []byte
}

// Encode serializes as: u32 len(kem_ct) | kem_ct | tag (fixed 32 bytes, the
// SHA-256 digest size).
func (m AuthMessage) Encode() []byte {
	out := make([]byte, 4+len(m.KEMCiphertext)+len(m.Tag))
	bin.PutU32BE(out, uint32(len(m.KEMCiphertext)))
	pos := 4
	pos += copy(out[pos:], m.KEMCiphertext)
	copy(out[pos:], m.Tag)
	return out
}

// DecodeAuthMessage parses the Encode layout given the expected tag size
// (spec section 4.2.1: tag length equals the PSK MAC's digest size).
func DecodeAuthMessage(buf []byte, tagSize int) (AuthMessage, error) {
	var m AuthMessage
	ct, pos, err := readLenPrefixed32(buf, 0)
	if err != nil {
		return m, err
	}
	m.KEMCiphertext = ct
	if len(buf) != pos+tagSize {
		return m, fmt.Errorf("%w: auth message length mismatch, want tag of %d bytes", ErrFormat, tagSize)
	}
	m.Tag = buf[pos:]
	return m, nil
}
