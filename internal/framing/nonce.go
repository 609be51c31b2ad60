package framing

import "github.com/skywave-systems/pqtun-core/internal/bin"

// buildNonce derives a deterministic AEAD nonce from (epoch, seq) without
// ever transmitting it on the wire, per original_source/core/aead.py's
// _build_nonce: the first byte is the epoch, the next 11 bytes are the
// 64-bit sequence number left-padded with zeros, and any remaining bytes
// (for 16-byte-nonce AEADs such as Ascon-128a) are zero-padded on the right.
func buildNonce(epoch byte, seq uint64, nonceLen int) []byte {
	out := make([]byte, nonceLen)
	out[0] = epoch
	var seqBytes [8]byte
	bin.PutU64BE(seqBytes[:], seq)
	// 11-byte big-endian encoding of seq: 3 leading zero bytes (out[1:4],
	// left as zero by make) then the 8-byte value at out[4:12].
	copy(out[4:12], seqBytes[:])
	return out
}
