package handshake

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/skywave-systems/pqtun-core/internal/bin"
)

// maxFrameBytes bounds a single handshake message so a malformed or hostile
// peer cannot force an unbounded allocation (spec section 7: handshake
// input is untrusted until the PSK tag verifies).
const maxFrameBytes = 1 << 20

// writeFrame writes a u32-length-prefixed buffer, honoring deadline.
func writeFrame(conn net.Conn, deadline time.Time, payload []byte) error {
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	var lenBuf [4]byte
	bin.PutU32BE(lenBuf[:], uint32(len(payload)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("%w: writing frame length: %v", ErrPeerClosed, err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("%w: writing frame body: %v", ErrPeerClosed, err)
	}
	return nil
}

// readFrame reads a u32-length-prefixed buffer, honoring deadline.
func readFrame(conn net.Conn, deadline time.Time) ([]byte, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: reading frame length: %v", ErrPeerClosed, err)
	}
	n := bin.U32BE(lenBuf[:])
	if n > maxFrameBytes {
		return nil, fmt.Errorf("%w: frame length %d exceeds max %d", ErrFormat, n, maxFrameBytes)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("%w: reading frame body: %v", ErrPeerClosed, err)
	}
	return buf, nil
}
