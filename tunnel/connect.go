package tunnel

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/skywave-systems/pqtun-core/internal/config"
	"github.com/skywave-systems/pqtun-core/internal/contextutil"
	"github.com/skywave-systems/pqtun-core/internal/logging"
	"github.com/skywave-systems/pqtun-core/internal/ratelimit"
)

// dialHandshakeConn establishes one TCP connection to the GCS's handshake
// port, for either the initial handshake or a later rekey's fresh
// handshake (spec section 4.2.1: drone connects; section 9's design note
// models each rekey's handshake as owning its own short-lived socket
// rather than reusing one persistent connection).
func dialHandshakeConn(ctx context.Context, cfg config.Config, log *zap.Logger) (net.Conn, error) {
	addr := net.JoinHostPort(cfg.GCSHost, fmt.Sprintf("%d", cfg.TCPHandshakePort))
	backoff := 500 * time.Millisecond
	const maxBackoff = 5 * time.Second
	for {
		attemptCtx, cancel := contextutil.WithTimeout(ctx, handshakeTimeout(cfg.RekeyHandshakeTimeoutSeconds))
		var d net.Dialer
		conn, err := d.DialContext(attemptCtx, "tcp", addr)
		cancel()
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("tunnel: dialing GCS failed, retrying", zap.String("addr", addr), zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// listenHandshake binds the GCS's handshake listen socket, kept open for
// the lifetime of the process so every rekey can accept a fresh connection
// on it, not just the initial handshake.
func listenHandshake(cfg config.Config) (net.Listener, error) {
	addr := net.JoinHostPort(cfg.GCSHost, fmt.Sprintf("%d", cfg.TCPHandshakePort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tunnel: listening on %s: %w", addr, err)
	}
	return ln, nil
}

// acceptHandshakeConn accepts the next connection on ln, applying the
// per-IP handshake rate limit and, when cfg.StrictHandshakeIP is set, an
// allowlist check against cfg.DroneHost before the connection ever reaches
// internal/handshake (spec section 4.2.2's acceptance policy / config key
// STRICT_HANDSHAKE_IP).
func acceptHandshakeConn(ctx context.Context, ln net.Listener, cfg config.Config, log *zap.Logger, rl *ratelimit.Limiter) (net.Conn, error) {
	var allowedIP netip.Addr
	if cfg.StrictHandshakeIP {
		parsed, err := netip.ParseAddr(cfg.DroneHost)
		if err != nil {
			return nil, fmt.Errorf("tunnel: parsing drone_host for strict handshake IP check: %w", err)
		}
		allowedIP = parsed.Unmap()
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("tunnel: accept: %w", err)
		}

		tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
		if !ok {
			conn.Close()
			continue
		}
		remoteAddr, ok := netip.AddrFromSlice(tcpAddr.IP)
		if !ok {
			conn.Close()
			continue
		}
		remoteAddr = remoteAddr.Unmap()

		if !rl.Allow(remoteAddr) {
			log.Warn("tunnel: rejecting handshake connection, rate limited", zap.Stringer("addr", conn.RemoteAddr()))
			conn.Close()
			continue
		}
		if cfg.StrictHandshakeIP && remoteAddr != allowedIP {
			log.Warn("tunnel: rejecting handshake connection, IP not in allowlist", zap.Stringer("addr", conn.RemoteAddr()))
			conn.Close()
			continue
		}
		return conn, nil
	}
}

// establishInitialControlConn brings up the one-shot TCP connection the
// very first handshake runs on: GCS accepts on its listener, Drone dials.
func establishInitialControlConn(ctx context.Context, role logging.Role, ln net.Listener, cfg config.Config, log *zap.Logger, rl *ratelimit.Limiter) (net.Conn, error) {
	if role == logging.RoleGCS {
		return acceptHandshakeConn(ctx, ln, cfg, log, rl)
	}
	return dialHandshakeConn(ctx, cfg, log)
}
