package relay

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// dscpToTOS converts a 6-bit DSCP value to the 8-bit TOS/Traffic-Class byte
// the kernel socket option expects, matching async_proxy.py's
// _dscp_to_tos (dscp << 2; the low two bits are ECN, left at 0).
func dscpToTOS(dscp int) byte {
	return byte(dscp<<2) & 0xfc
}

// SetEncryptedSocketDSCP marks every packet sent from conn with the given
// DSCP class, so network QoS policies can prioritize tunnel traffic over
// bulk plaintext (spec section 6.1's ENCRYPTED_DSCP). The teacher's own
// stack has no equivalent call; rather than import golang.org/x/net solely
// for ipv4.NewConn(...).SetTOS(...), this sets the socket option directly
// via golang.org/x/sys/unix, which the corpus already carries as a
// transitive dependency of several other wired libraries.
func SetEncryptedSocketDSCP(conn *net.UDPConn, dscp int) error {
	tos := dscpToTOS(dscp)
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("relay: obtaining raw conn for DSCP: %w", err)
	}
	var sockErr error
	err = rawConn.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, int(tos))
	})
	if err != nil {
		return fmt.Errorf("relay: rawConn.Control: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("relay: setsockopt IP_TOS: %w", sockErr)
	}
	return nil
}
