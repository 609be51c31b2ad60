// Package tunnel wires the suite registry, handshake, framing, rekey
// control, relay, rate limiting, counters, status file, and optional
// control API into one running Drone or GCS process (spec section 4 end
// to end; the top-level orchestration original_source/core/drone.py and
// core/gcs.py each perform in their own run()).
package tunnel

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/skywave-systems/pqtun-core/internal/config"
	"github.com/skywave-systems/pqtun-core/internal/control"
	"github.com/skywave-systems/pqtun-core/internal/counters"
	"github.com/skywave-systems/pqtun-core/internal/handshake"
	"github.com/skywave-systems/pqtun-core/internal/logging"
	"github.com/skywave-systems/pqtun-core/internal/ratelimit"
	"github.com/skywave-systems/pqtun-core/internal/relay"
	"github.com/skywave-systems/pqtun-core/internal/statusfile"
	"github.com/skywave-systems/pqtun-core/internal/suites"
)

// CoreContext holds every long-lived component one running endpoint
// (Drone or GCS) needs, built once by Run and referenced by the control
// API's handlers and the status-file builder.
type CoreContext struct {
	Role   logging.Role
	Config config.Config
	Log    *zap.Logger

	Registry  *suites.Registry
	Counters  *counters.Counters
	RateLimit *ratelimit.Limiter

	Relay *relay.Relay

	cancel context.CancelFunc

	mu                      sync.Mutex
	coordinator             *control.Coordinator // non-nil only for the coordinator role
	follower                *control.Follower    // non-nil only for the follower role
	activeSuite             suites.Suite
	lastPrimitiveTotalMillis float64
}

func newCoreContext(role logging.Role, cfg config.Config, log *zap.Logger) *CoreContext {
	reg := suites.NewRegistry(cfg.EnableAscon, cfg.EnableAscon128A)
	return &CoreContext{
		Role:      role,
		Config:    cfg,
		Log:       log,
		Registry:  reg,
		Counters:  counters.New(prometheus.NewRegistry()),
		RateLimit: ratelimit.New(cfg.HandshakeRLBurst, cfg.HandshakeRLRefillPerSec, 10*time.Minute),
	}
}

// ActiveSuiteID reports the suite the active session was built with, for
// status and control-API responses.
func (c *CoreContext) ActiveSuiteID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeSuite.ID
}

// activeSigName reports the signature algorithm the currently active suite
// negotiates, consulted by the follower's rekey-acceptability check.
func (c *CoreContext) activeSigName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeSuite.SigName
}

// setActiveSuite installs suite as the active suite once a (re)handshake
// using it has committed.
func (c *CoreContext) setActiveSuite(suite suites.Suite) {
	c.mu.Lock()
	c.activeSuite = suite
	c.mu.Unlock()
}

// noteHandshake records a completed handshake's metrics and logs its
// completion, shared by the initial handshake and every later rekey.
func (c *CoreContext) noteHandshake(suite suites.Suite, result handshake.Result) {
	recordHandshakeMetrics(c.Counters, result.Metrics)
	logHandshakeComplete(c.Log, suite, result)
	c.mu.Lock()
	c.lastPrimitiveTotalMillis = result.Metrics.PrimitiveTotalMillis()
	c.mu.Unlock()
}

// buildStatusSnapshot assembles the current point-in-time status document
// for the optional status file and the control API's "status" command.
func (c *CoreContext) buildStatusSnapshot() statusfile.Snapshot {
	snap := c.Counters.Snapshot()
	c.mu.Lock()
	suiteID := c.activeSuite.ID
	primitiveTotal := c.lastPrimitiveTotalMillis
	c.mu.Unlock()

	var sessionID [8]byte
	var epoch byte
	if c.Relay != nil {
		sessionID = c.Relay.ActiveSessionID()
		epoch = c.Relay.ActiveEpoch()
	}

	return statusfile.Snapshot{
		Timestamp:                     time.Now().UTC(),
		Role:                          string(c.Role),
		SessionID:                     sessionIDHex(sessionID),
		SuiteID:                       suiteID,
		Epoch:                         epoch,
		PlaintextPacketsOut:           snap.PlaintextPacketsOut,
		PlaintextPacketsIn:            snap.PlaintextPacketsIn,
		EncryptedPacketsOut:           snap.EncryptedPacketsOut,
		EncryptedPacketsIn:            snap.EncryptedPacketsIn,
		Drops:                         snap.Drops,
		RekeysOK:                      snap.RekeysOK,
		RekeysFailed:                  snap.RekeysFailed,
		LastRekeyMillis:               snap.LastRekeyMillis,
		LastRekeySuite:                snap.LastRekeySuite,
		HandshakePrimitiveTotalMillis: primitiveTotal,
	}
}
