package tunnel

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/cloudflare/circl/sign"
	"go.uber.org/zap"

	"github.com/skywave-systems/pqtun-core/internal/config"
	"github.com/skywave-systems/pqtun-core/internal/control"
	"github.com/skywave-systems/pqtun-core/internal/controlapi"
	"github.com/skywave-systems/pqtun-core/internal/handshake"
	"github.com/skywave-systems/pqtun-core/internal/identity"
	"github.com/skywave-systems/pqtun-core/internal/logging"
	"github.com/skywave-systems/pqtun-core/internal/relay"
	"github.com/skywave-systems/pqtun-core/internal/statusfile"
	"github.com/skywave-systems/pqtun-core/internal/suites"
)

// controlInboxDepth bounds how many decoded in-band control frames may be
// queued between the relay's decrypt path and the rekey control loop
// before the relay starts dropping them.
const controlInboxDepth = 16

// Run assembles and drives one endpoint's full lifecycle: identity
// loading, the initial handshake, the UDP relay, the in-band rekey
// control loop, and the optional status file / control API, until ctx is
// canceled.
//
// Which side coordinates rekeys is read from cfg.CoordinatorRole (spec
// section 6.1's CONTROL_COORDINATOR_ROLE); the TCP handshake's
// client/server roles stay fixed to Drone/GCS regardless of who
// coordinates, since only the GCS holds a listening socket and a static
// signing identity.
func Run(ctx context.Context, role logging.Role, cfg config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cc := newCoreContext(role, cfg, log)
	cc.cancel = cancel

	suite, err := cc.Registry.Get(cfg.InitialSuiteID)
	if err != nil {
		return fmt.Errorf("tunnel: resolving initial suite: %w", err)
	}
	cc.activeSuite = suite

	var sigSecret sign.PrivateKey
	var sigPublic sign.PublicKey
	if role == logging.RoleGCS {
		sigSecret, err = identity.LoadSecret(cfg.SecretsDir, suite.SigName)
		if err != nil {
			return fmt.Errorf("tunnel: loading GCS signing identity: %w", err)
		}
	} else {
		sigPublic, err = identity.LoadPublic(cfg.SecretsDir, suite.SigName)
		if err != nil {
			return fmt.Errorf("tunnel: loading GCS signing public key: %w", err)
		}
	}

	// The GCS's handshake listener stays open for the whole run: the
	// initial handshake accepts on it once, and every later rekey accepts
	// a fresh connection on it again (spec section 9's design note: each
	// rekey's handshake owns its own short-lived socket).
	var ln net.Listener
	if role == logging.RoleGCS {
		ln, err = listenHandshake(cfg)
		if err != nil {
			return fmt.Errorf("tunnel: starting handshake listener: %w", err)
		}
		defer ln.Close()
		go func() {
			<-ctx.Done()
			ln.Close()
		}()
	}

	conn, err := establishInitialControlConn(ctx, role, ln, cfg, log, cc.RateLimit)
	if err != nil {
		return fmt.Errorf("tunnel: establishing control connection: %w", err)
	}

	initialTimeout := handshakeTimeout(cfg.RekeyHandshakeTimeoutSeconds)
	var result handshake.Result
	if role == logging.RoleGCS {
		result, err = handshake.ServerHandshake(conn, cfg.WireVersion, suite, sigSecret, cfg.DronePSK, initialTimeout)
	} else {
		result, err = handshake.ClientHandshake(conn, cfg.WireVersion, suite, sigPublic, cfg.DronePSK, initialTimeout)
	}
	conn.Close()
	if err != nil {
		return fmt.Errorf("tunnel: initial handshake: %w", err)
	}
	cc.noteHandshake(suite, result)

	session, err := buildSession(role, suite, result, cfg.ReplayWindow)
	if err != nil {
		return fmt.Errorf("tunnel: building initial session: %w", err)
	}

	ptConn, encConn, encPeer, err := openUDPSockets(role, cfg)
	if err != nil {
		return err
	}
	defer ptConn.Close()
	defer encConn.Close()

	configuredPlaintextHost, err := netip.ParseAddr(plaintextHostFor(role, cfg))
	if err != nil {
		return fmt.Errorf("tunnel: parsing configured plaintext host: %w", err)
	}

	isCoordinator := coordinatorRole(role, cfg)

	rekeyRequests := make(chan rekeyRequest, 4)
	controlIn := make(chan []byte, controlInboxDepth)
	relayTriggers := make(chan relay.RekeyTrigger, 4)

	r := relay.New(relay.Config{
		PlaintextConn:           ptConn,
		EncryptedConn:           encConn,
		EncryptedPeer:           encPeer,
		ConfiguredPlaintextHost: configuredPlaintextHost,
		EnablePacketType:        cfg.EnablePacketType,
		StrictPeerMatch:         cfg.StrictUDPPeerMatch,
		IsCoordinator:           isCoordinator,
		ActiveSuiteID:           cc.ActiveSuiteID,
		RekeyTrigger:            relayTriggers,
		ControlIn:               controlIn,
	}, session, log, cc.Counters)
	cc.Relay = r

	relayErrCh := make(chan error, 1)
	relayCtx, cancelRelay := context.WithCancel(ctx)
	defer cancelRelay()
	go func() { relayErrCh <- r.Run(relayCtx) }()

	// Forward relay-detected sequence-overflow triggers into the same
	// queue operator-requested rekeys use, so the coordinator loop has a
	// single place to read rekey work from (spec section 4.3.1 / 4.4.2).
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-relayTriggers:
				select {
				case rekeyRequests <- rekeyRequest{suiteID: t.SuiteID, reason: t.Reason}:
				default:
					log.Warn("tunnel: rekey request queue full, dropping sequence-overflow trigger")
				}
			}
		}
	}()

	if cfg.StatusFilePath != "" {
		writer := statusfile.NewWriter(cfg.StatusFilePath)
		stop := make(chan struct{})
		go writer.RunPeriodic(handshakeTimeout(cfg.StatusFileInterval), func() statusfile.Snapshot {
			return cc.buildStatusSnapshot()
		}, stop)
		go func() { <-ctx.Done(); close(stop) }()
	}

	var apiServer *controlapi.Server
	if cfg.ControlAPIEnabled {
		apiServer, err = controlapi.Listen(cfg.ControlAPIAddr, log, cc.controlAPIHandlers(rekeyRequests))
		if err != nil {
			return fmt.Errorf("tunnel: starting control API: %w", err)
		}
		go apiServer.Serve(ctx)
		defer apiServer.Close()
	}

	// doHandshake performs this endpoint's own half of every rekey's fresh
	// handshake: the Drone always dials and runs the client role, the GCS
	// always accepts on its listener and runs the server role, regardless
	// of which side is configured as the rekey coordinator.
	var doHandshake rekeyHandshakeFunc
	if role == logging.RoleDrone {
		doHandshake = func(hctx context.Context, s suites.Suite) (handshake.Result, error) {
			hc, err := dialHandshakeConn(hctx, cfg, log)
			if err != nil {
				return handshake.Result{}, fmt.Errorf("tunnel: opening rekey handshake connection: %w", err)
			}
			defer hc.Close()
			return handshake.ClientHandshake(hc, cfg.WireVersion, s, sigPublic, cfg.DronePSK, handshakeTimeout(cfg.RekeyHandshakeTimeoutSeconds))
		}
	} else {
		doHandshake = func(hctx context.Context, s suites.Suite) (handshake.Result, error) {
			hc, err := acceptHandshakeConn(hctx, ln, cfg, log, cc.RateLimit)
			if err != nil {
				return handshake.Result{}, fmt.Errorf("tunnel: accepting rekey handshake connection: %w", err)
			}
			defer hc.Close()
			return handshake.ServerHandshake(hc, cfg.WireVersion, s, sigSecret, cfg.DronePSK, handshakeTimeout(cfg.RekeyHandshakeTimeoutSeconds))
		}
	}

	var loopErr error
	if isCoordinator {
		cc.coordinator = control.NewCoordinator()
		loopErr = cc.runCoordinatorLoop(ctx, doHandshake, rekeyRequests, controlIn)
	} else {
		cc.follower = control.NewFollower()
		loopErr = cc.runFollowerLoop(ctx, doHandshake, controlIn)
	}

	cancelRelay()
	<-relayErrCh
	return loopErr
}

type rekeyRequest struct {
	suiteID string
	reason  string
}

func plaintextHostFor(role logging.Role, cfg config.Config) string {
	if role == logging.RoleDrone {
		return cfg.DronePlaintextHost
	}
	return cfg.GCSPlaintextHost
}
