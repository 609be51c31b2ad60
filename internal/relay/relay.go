// Package relay implements the UDP event loop that bridges a local
// plaintext application socket and the encrypted peer-facing socket,
// encrypting/decrypting each datagram through internal/framing and
// classifying every drop (spec section 4.4).
//
// The relay also carries the rekey control channel in-band on the same
// encrypted socket: every plaintext payload is prefixed with a one-byte
// type tag (0x01 data, 0x02 control) before encryption, and an outbox
// queue of pending control frames is drained ahead of ordinary traffic on
// every pass, exactly as spec section 4.4.2 describes (internal/control
// owns the control-frame state machine; the relay only transports bytes
// for it).
//
// Grounded on original_source/core/async_proxy.py's main proxy loop: two
// read directions per role, drop classification without doing AEAD work
// first where possible, and DSCP marking on the encrypted socket.
package relay

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/skywave-systems/pqtun-core/internal/counters"
	"github.com/skywave-systems/pqtun-core/internal/framing"
)

// maxDatagramBytes bounds a single read so a malformed or oversized
// datagram can't force a large allocation (spec's Non-goal list excludes
// fragmentation handling — datagrams above this are simply dropped).
const maxDatagramBytes = 65507

// Packet type tags prefixed to every plaintext payload once
// EnablePacketType is set (spec section 4.3.2/4.4.2).
const (
	packetTypeData    byte = 0x01
	packetTypeControl byte = 0x02
)

// outboxDepth bounds how many pending control frames the relay will queue
// before the caller's EnqueueControl starts reporting back pressure.
const outboxDepth = 16

// Session is the live AEAD state a Relay forwards packets through. It is
// swapped out atomically by the rekey control flow (internal/control)
// without the relay ever blocking mid-packet (spec section 4.3's "active
// context" swap).
type Session struct {
	SessionID [8]byte
	Sender    *framing.Sender
	Receiver  *framing.Receiver
}

// RekeyTrigger is pushed onto a Relay's configured trigger channel when the
// relay itself detects a condition that must start a rekey, currently only
// the sender's sequence counter reaching its configured threshold (spec
// section 4.3.1/4.4.2, tested by section 8.2 scenario 6).
type RekeyTrigger struct {
	SuiteID string
	Reason  string
}

// Relay owns one endpoint's two UDP sockets and the active session.
type Relay struct {
	log *zap.Logger
	cnt *counters.Counters

	ptConn  *net.UDPConn
	encConn *net.UDPConn

	// ptPeer is the local application's address; it may move if the
	// application rebinds, gated by isAllowedPlaintextSource.
	ptPeerMu sync.RWMutex
	ptPeer   *net.UDPAddr

	// encPeer is the remote tunnel endpoint's address; datagrams from any
	// other source on this socket are dropped outright (spec section
	// 4.4.2's peer-address enforcement).
	encPeer *net.UDPAddr

	configuredPlaintextHost netip.Addr
	enablePacketType        bool
	strictPeerMatch         bool
	isCoordinator           bool

	activeSuiteID func() string
	rekeyTrigger  chan<- RekeyTrigger
	controlIn     chan<- []byte

	outbox chan []byte

	session atomic.Pointer[Session]
}

// Config bundles the fixed parameters of one Relay instance.
type Config struct {
	PlaintextConn           *net.UDPConn
	EncryptedConn           *net.UDPConn
	EncryptedPeer           *net.UDPAddr
	ConfiguredPlaintextHost netip.Addr
	EnablePacketType        bool

	// StrictPeerMatch requires encrypted ingress to match EncryptedPeer on
	// both IP and port; when false, only the IP must match (spec section
	// 4.4.2 / config key STRICT_UDP_PEER_MATCH).
	StrictPeerMatch bool

	// IsCoordinator marks this endpoint as the one allowed to originate a
	// rekey (config key CONTROL_COORDINATOR_ROLE resolved against this
	// role). It gates whether a sequence-overflow condition enqueues a
	// rekey trigger here, or is left to the peer.
	IsCoordinator bool

	// ActiveSuiteID reports the currently negotiated suite id, consulted
	// when a sequence-overflow trigger needs to propose re-keying to the
	// same suite with a fresh session.
	ActiveSuiteID func() string

	// RekeyTrigger receives a RekeyTrigger when the relay itself decides a
	// rekey must start (sequence overflow). May be nil if this endpoint is
	// never the coordinator.
	RekeyTrigger chan<- RekeyTrigger

	// ControlIn receives the decoded payload (control-frame JSON bytes,
	// type prefix already stripped) of every inbound 0x02 datagram, for
	// internal/control to consume. May be nil if packet-type framing is
	// disabled.
	ControlIn chan<- []byte
}

// New constructs a Relay bound to the given sockets and initial session.
func New(cfg Config, session *Session, log *zap.Logger, cnt *counters.Counters) *Relay {
	r := &Relay{
		log:                     log,
		cnt:                     cnt,
		ptConn:                  cfg.PlaintextConn,
		encConn:                 cfg.EncryptedConn,
		encPeer:                 cfg.EncryptedPeer,
		configuredPlaintextHost: cfg.ConfiguredPlaintextHost,
		enablePacketType:        cfg.EnablePacketType,
		strictPeerMatch:         cfg.StrictPeerMatch,
		isCoordinator:           cfg.IsCoordinator,
		activeSuiteID:           cfg.ActiveSuiteID,
		rekeyTrigger:            cfg.RekeyTrigger,
		controlIn:               cfg.ControlIn,
		outbox:                  make(chan []byte, outboxDepth),
	}
	r.session.Store(session)
	return r
}

// SwapSession atomically installs a new session (post-rekey-commit), the
// one and only point of contact between internal/control and the relay's
// hot path.
func (r *Relay) SwapSession(s *Session) {
	r.session.Store(s)
}

// ActiveSessionID reports the current session's identity for status/logs.
func (r *Relay) ActiveSessionID() [8]byte {
	return r.session.Load().SessionID
}

// ActiveEpoch reports the current session sender's epoch for status/logs.
func (r *Relay) ActiveEpoch() byte {
	return r.session.Load().Sender.Epoch()
}

// EnqueueControl queues a control-frame payload (already JSON-marshaled by
// internal/control) for the outbox drain to prefix, encrypt, and transmit
// on the next pass. Returns false if the outbox is full, meaning the
// caller should log and let its own retry/timeout logic handle it.
func (r *Relay) EnqueueControl(payload []byte) bool {
	select {
	case r.outbox <- payload:
		return true
	default:
		return false
	}
}

// Run starts both forwarding directions plus the outbox drain and blocks
// until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(3)

	errCh := make(chan error, 3)
	go func() {
		defer wg.Done()
		errCh <- r.pumpPlaintextToEncrypted(ctx)
	}()
	go func() {
		defer wg.Done()
		errCh <- r.pumpEncryptedToPlaintext(ctx)
	}()
	go func() {
		defer wg.Done()
		r.drainOutbox(ctx)
		errCh <- nil
	}()

	go func() {
		<-ctx.Done()
		r.ptConn.Close()
		r.encConn.Close()
	}()

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil && ctx.Err() == nil {
			return err
		}
	}
	return ctx.Err()
}

// drainOutbox implements spec section 4.4.2 step 1: for each queued
// control payload, prefix 0x02, encrypt under the current session, and
// send to enc_peer on the same encrypted socket data uses.
func (r *Relay) drainOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-r.outbox:
			framed := make([]byte, 1+len(payload))
			framed[0] = packetTypeControl
			copy(framed[1:], payload)

			sess := r.session.Load()
			wire, err := sess.Sender.Encrypt(framed)
			if err != nil {
				r.log.Warn("relay: encrypting control frame failed, dropping", zap.Error(err))
				r.cnt.RecordDrop("other")
				continue
			}
			if _, err := r.encConn.WriteToUDP(wire, r.encPeer); err != nil {
				if ctx.Err() != nil {
					return
				}
				r.log.Warn("relay: writing control frame failed", zap.Error(err))
				continue
			}
			r.cnt.RecordEncryptedOut(len(wire))
		}
	}
}

// pumpPlaintextToEncrypted reads from the local application socket,
// encrypts, and forwards to the peer (spec section 4.4.1: the plaintext
// sender's address becomes/confirms pt_peer).
func (r *Relay) pumpPlaintextToEncrypted(ctx context.Context) error {
	buf := make([]byte, maxDatagramBytes)
	for {
		n, addr, err := r.ptConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		r.cnt.RecordPlaintextIn(n)

		if r.isAllowedPlaintextSource(addr) {
			r.ptPeerMu.Lock()
			r.ptPeer = addr
			r.ptPeerMu.Unlock()
		}

		plaintext := buf[:n]
		if r.enablePacketType {
			framed := make([]byte, 1+n)
			framed[0] = packetTypeData
			copy(framed[1:], plaintext)
			plaintext = framed
		}

		sess := r.session.Load()
		wire, err := sess.Sender.Encrypt(plaintext)
		if err != nil {
			if errors.Is(err, framing.ErrSequenceOverflow) {
				r.cnt.RecordDrop("other")
				r.maybeTriggerRekey()
				continue
			}
			r.log.Warn("relay: encrypt failed, dropping plaintext datagram", zap.Error(err))
			r.cnt.RecordDrop("other")
			continue
		}
		if _, err := r.encConn.WriteToUDP(wire, r.encPeer); err != nil {
			r.log.Warn("relay: write to encrypted peer failed", zap.Error(err))
			continue
		}
		r.cnt.RecordEncryptedOut(len(wire))
	}
}

// maybeTriggerRekey enqueues a RekeyTrigger when this endpoint is the
// rekey coordinator, implementing spec section 4.3.1's "Sender local
// event: seq >= rekey_threshold on the coordinator" trigger source.
func (r *Relay) maybeTriggerRekey() {
	if !r.isCoordinator || r.rekeyTrigger == nil {
		return
	}
	var suiteID string
	if r.activeSuiteID != nil {
		suiteID = r.activeSuiteID()
	}
	select {
	case r.rekeyTrigger <- RekeyTrigger{SuiteID: suiteID, Reason: "sequence_overflow"}:
	default:
		r.log.Warn("relay: rekey trigger queue full, dropping sequence-overflow trigger")
	}
}

// pumpEncryptedToPlaintext reads from the peer-facing socket, enforces the
// configured peer address, decrypts, demultiplexes data from in-band
// control frames, and forwards data payloads to the local application
// (spec section 4.4.2-4.4.3).
func (r *Relay) pumpEncryptedToPlaintext(ctx context.Context) error {
	buf := make([]byte, maxDatagramBytes)
	for {
		n, addr, err := r.encConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		r.cnt.RecordEncryptedIn(n)

		if !addrEqual(addr, r.encPeer, r.strictPeerMatch) {
			r.cnt.RecordDrop("src_addr")
			continue
		}

		sess := r.session.Load()
		pt, ok := sess.Receiver.DecryptSilent(buf[:n])
		if !ok {
			r.cnt.RecordDrop(string(sess.Receiver.LastErrorReason()))
			continue
		}

		if r.enablePacketType {
			if len(pt) == 0 {
				r.cnt.RecordDrop("other")
				continue
			}
			switch pt[0] {
			case packetTypeControl:
				r.deliverControl(pt[1:])
				continue
			case packetTypeData:
				pt = pt[1:]
			default:
				r.cnt.RecordDrop("other")
				continue
			}
		}

		r.ptPeerMu.RLock()
		dest := r.ptPeer
		r.ptPeerMu.RUnlock()
		if dest == nil {
			r.cnt.RecordDrop("no_plaintext_peer")
			continue
		}
		if _, err := r.ptConn.WriteToUDP(pt, dest); err != nil {
			r.log.Warn("relay: write to plaintext peer failed", zap.Error(err))
			continue
		}
		r.cnt.RecordPlaintextOut(len(pt))
	}
}

// deliverControl hands a decoded control-frame payload to whoever
// internal/control's caller wired up as ControlIn, copying it first since
// it aliases the shared receive buffer.
func (r *Relay) deliverControl(payload []byte) {
	if r.controlIn == nil {
		return
	}
	cp := append([]byte(nil), payload...)
	select {
	case r.controlIn <- cp:
	default:
		r.log.Warn("relay: control inbox full, dropping control frame")
	}
}

// isAllowedPlaintextSource restricts pt_peer updates to loopback addresses
// or addresses matching the configured plaintext host's address family, per
// the spec's Open Question on plaintext peer dynamism — an application
// that accidentally binds from an unexpected interface cannot redirect
// decrypted traffic there.
func (r *Relay) isAllowedPlaintextSource(addr *net.UDPAddr) bool {
	if !r.enablePacketType {
		return true
	}
	ip, ok := netip.AddrFromSlice(addr.IP)
	if !ok {
		return false
	}
	ip = ip.Unmap()
	if ip.IsLoopback() {
		return true
	}
	return ip.Is4() == r.configuredPlaintextHost.Is4()
}

// addrEqual compares an observed source address against the configured
// peer. When strict is false only the IP is compared, tolerating a peer
// that rebinds its source port (spec section 4.4.2 / STRICT_UDP_PEER_MATCH).
func addrEqual(a, b *net.UDPAddr, strict bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !a.IP.Equal(b.IP) {
		return false
	}
	if strict {
		return a.Port == b.Port
	}
	return true
}
