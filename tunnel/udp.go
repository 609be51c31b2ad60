package tunnel

import (
	"fmt"
	"net"

	"github.com/skywave-systems/pqtun-core/internal/config"
	"github.com/skywave-systems/pqtun-core/internal/logging"
	"github.com/skywave-systems/pqtun-core/internal/relay"
)

// openUDPSockets binds the plaintext and encrypted UDP sockets for role and
// resolves the fixed encrypted peer address, mirroring
// async_proxy.py's _setup_sockets per-role port table (spec section 4.4).
func openUDPSockets(role logging.Role, cfg config.Config) (ptConn, encConn *net.UDPConn, encPeer *net.UDPAddr, err error) {
	var plaintextHost string
	var plaintextPort int
	var encryptedRxPort int
	var encryptedPeerHost string
	var encryptedPeerPort int

	switch role {
	case logging.RoleDrone:
		plaintextHost, plaintextPort = cfg.DronePlaintextHost, cfg.DronePlaintextTx
		encryptedRxPort = cfg.UDPDroneRx
		encryptedPeerHost, encryptedPeerPort = cfg.GCSHost, cfg.UDPGCSRx
	case logging.RoleGCS:
		plaintextHost, plaintextPort = cfg.GCSPlaintextHost, cfg.GCSPlaintextTx
		encryptedRxPort = cfg.UDPGCSRx
		encryptedPeerHost, encryptedPeerPort = cfg.DroneHost, cfg.UDPDroneRx
	default:
		return nil, nil, nil, fmt.Errorf("tunnel: unknown role %q", role)
	}

	ptConn, err = net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(plaintextHost), Port: plaintextPort})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tunnel: binding plaintext socket: %w", err)
	}

	encConn, err = net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: encryptedRxPort})
	if err != nil {
		ptConn.Close()
		return nil, nil, nil, fmt.Errorf("tunnel: binding encrypted socket: %w", err)
	}

	// DSCP marking is a QoS nicety, not a security property; a platform that
	// rejects the sockopt (e.g. no CAP_NET_ADMIN) shouldn't block startup.
	_ = relay.SetEncryptedSocketDSCP(encConn, cfg.EncryptedDSCP)

	peerIPs, err := net.LookupIP(encryptedPeerHost)
	if err != nil || len(peerIPs) == 0 {
		ptConn.Close()
		encConn.Close()
		return nil, nil, nil, fmt.Errorf("tunnel: resolving peer host %q: %w", encryptedPeerHost, err)
	}
	encPeer = &net.UDPAddr{IP: peerIPs[0], Port: encryptedPeerPort}

	return ptConn, encConn, encPeer, nil
}
