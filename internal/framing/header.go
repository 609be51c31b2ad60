// Package framing implements the fixed 22-byte wire header, deterministic
// counter-derived nonces, and the AEAD Sender/Receiver pair that frame
// application datagrams between Drone and GCS (spec section 4.1).
//
// Grounded on original_source/core/aead.py's HEADER_STRUCT
// ("!BBBBB8sQB") and _build_nonce, re-expressed with this module's own
// big-endian packing helpers instead of Python's struct module.
package framing

import (
	"fmt"

	"github.com/skywave-systems/pqtun-core/internal/bin"
	"github.com/skywave-systems/pqtun-core/internal/suites"
)

// HeaderSize is the fixed wire header length in bytes: version(1) +
// kem_id(1) + kem_param(1) + sig_id(1) + sig_param(1) + session_id(8) +
// seq(8) + epoch(1).
const HeaderSize = 22

// Header is the parsed form of the fixed wire header.
type Header struct {
	Version   byte
	KEMID     byte
	KEMParam  byte
	SigID     byte
	SigParam  byte
	SessionID [8]byte
	Seq       uint64
	Epoch     byte
}

// Pack serializes the header into exactly HeaderSize bytes.
func (h Header) Pack() []byte {
	out := make([]byte, HeaderSize)
	out[0] = h.Version
	out[1] = h.KEMID
	out[2] = h.KEMParam
	out[3] = h.SigID
	out[4] = h.SigParam
	copy(out[5:13], h.SessionID[:])
	bin.PutU64BE(out[13:21], h.Seq)
	out[21] = h.Epoch
	return out
}

// UnpackHeader parses the fixed-size header prefix of wire. It does not
// validate field values against a suite; callers compare the parsed fields
// against the expected session state (spec section 4.1.3).
func UnpackHeader(wire []byte) (Header, error) {
	if len(wire) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes, need at least %d", ErrHeaderTooShort, len(wire), HeaderSize)
	}
	var h Header
	h.Version = wire[0]
	h.KEMID = wire[1]
	h.KEMParam = wire[2]
	h.SigID = wire[3]
	h.SigParam = wire[4]
	copy(h.SessionID[:], wire[5:13])
	h.Seq = bin.U64BE(wire[13:21])
	h.Epoch = wire[21]
	return h, nil
}

// HeaderIDsMatch reports whether the header's four algorithm-ID bytes match
// the session's negotiated suite.
func (h Header) HeaderIDsMatch(ids suites.HeaderIDs) bool {
	return h.KEMID == ids.KEMID && h.KEMParam == ids.KEMParam &&
		h.SigID == ids.SigID && h.SigParam == ids.SigParam
}
