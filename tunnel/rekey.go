package tunnel

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skywave-systems/pqtun-core/internal/config"
	"github.com/skywave-systems/pqtun-core/internal/control"
	"github.com/skywave-systems/pqtun-core/internal/handshake"
	"github.com/skywave-systems/pqtun-core/internal/logging"
	"github.com/skywave-systems/pqtun-core/internal/suites"
)

// sendControl marshals f and hands it to the relay's outbox, to be
// prefixed 0x02 and AEAD-encrypted onto the same UDP socket data uses
// (spec section 4.3.2's in-band control frames, section 4.4.2's outbox
// drain).
func (c *CoreContext) sendControl(f control.ControlFrame) error {
	data, err := f.Marshal()
	if err != nil {
		return fmt.Errorf("tunnel: marshaling control frame: %w", err)
	}
	if !c.Relay.EnqueueControl(data) {
		return fmt.Errorf("tunnel: control outbox full, dropped %s", f.Type)
	}
	return nil
}

// recvControl blocks on controlIn (fed by the relay's decode of inbound
// 0x02 datagrams) until one frame arrives, ctx is canceled, or timeout
// elapses.
func recvControl(ctx context.Context, controlIn <-chan []byte, timeout time.Duration) (control.ControlFrame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case data := <-controlIn:
		return control.Unmarshal(data)
	case <-timer.C:
		return control.ControlFrame{}, fmt.Errorf("tunnel: timed out waiting for control frame")
	case <-ctx.Done():
		return control.ControlFrame{}, ctx.Err()
	}
}

// rekeyHandshakeFunc performs this endpoint's own half of a fresh TCP
// handshake for suite, regardless of which side is the rekey
// coordinator: the Drone always dials and runs the client role, the GCS
// always accepts and runs the server role (spec section 4.2.1's roles are
// fixed by the TCP transport, independent of CONTROL_COORDINATOR_ROLE).
// Each call owns a short-lived connection rather than reusing a
// persistent one (spec section 9's design note on background rekey
// tasks).
type rekeyHandshakeFunc func(ctx context.Context, suite suites.Suite) (handshake.Result, error)

// runCoordinatorLoop drives the coordinator side of the rekey control
// protocol (spec section 4.3.1/4.3.3): it waits for rekey triggers —
// operator-requested via the control API, or the relay's own
// sequence-overflow detection — and for unsolicited frames from the peer
// (pings) while idle, all multiplexed in-band over the encrypted UDP
// socket rather than a side channel.
func (c *CoreContext) runCoordinatorLoop(ctx context.Context, doHandshake rekeyHandshakeFunc, rekeyRequests <-chan rekeyRequest, controlIn <-chan []byte) error {
	pollInterval := handshakeTimeout(c.Config.BarePollIntervalSeconds)
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	dwell := handshakeTimeout(c.Config.BareSuiteDwellSeconds)
	lastRekey := time.Now().Add(-dwell)

	for {
		select {
		case <-ctx.Done():
			return nil

		case req := <-rekeyRequests:
			if since := time.Since(lastRekey); since < dwell {
				c.Log.Warn("tunnel: rekey request arrived inside dwell window, ignoring",
					zap.String("suite_id", req.suiteID), zap.Duration("since_last", since))
				continue
			}
			suite, err := c.Registry.Get(req.suiteID)
			if err != nil {
				c.Log.Warn("tunnel: rekey request names unknown suite", zap.String("suite_id", req.suiteID), zap.Error(err))
				continue
			}

			start := time.Now()
			rekeyErr := c.performRekey(ctx, doHandshake, suite, controlIn)
			c.Counters.RecordRekeyResult(rekeyErr == nil, float64(time.Since(start))/float64(time.Millisecond), req.suiteID, req.reason)
			if rekeyErr != nil {
				c.Log.Warn("tunnel: rekey failed", zap.String("suite_id", req.suiteID), zap.Error(rekeyErr))
				continue
			}
			lastRekey = time.Now()
			c.Log.Info("tunnel: rekey committed", zap.String("suite_id", req.suiteID), zap.String("reason", req.reason))

		case data := <-controlIn:
			frame, err := control.Unmarshal(data)
			if err != nil {
				c.Log.Warn("tunnel: coordinator received malformed control frame", zap.Error(err))
				continue
			}
			if frame.Type == control.FramePing {
				if err := c.sendControl(control.ControlFrame{Type: control.FramePong, RID: frame.RID}); err != nil {
					c.Log.Warn("tunnel: replying to ping failed", zap.Error(err))
				}
				continue
			}
			c.Log.Warn("tunnel: coordinator ignoring unsolicited control frame", zap.String("type", string(frame.Type)))

		case <-ticker.C:
			if err := c.sendControl(control.ControlFrame{Type: control.FramePing}); err != nil {
				c.Log.Warn("tunnel: coordinator keepalive failed", zap.Error(err))
			}
		}
	}
}

// performRekey drives one full rekey attempt: propose the suite in-band,
// wait for the follower's readiness, run a fresh handshake, commit
// in-band, and swap the relay's active session (spec section 4.3.3).
func (c *CoreContext) performRekey(ctx context.Context, doHandshake rekeyHandshakeFunc, suite suites.Suite, controlIn <-chan []byte) error {
	timeout := handshakeTimeout(c.Config.RekeyHandshakeTimeoutSeconds)

	initFrame, err := c.coordinator.Begin(suite.ID)
	if err != nil {
		return fmt.Errorf("tunnel: beginning rekey: %w", err)
	}
	if err := c.sendControl(initFrame); err != nil {
		return fmt.Errorf("tunnel: sending rekey_init: %w", err)
	}

	respFrame, err := recvControl(ctx, controlIn, timeout)
	if err != nil {
		return fmt.Errorf("tunnel: reading rekey response: %w", err)
	}
	ready, err := c.coordinator.HandleFrame(respFrame)
	if err != nil {
		return fmt.Errorf("tunnel: follower rejected rekey: %w", err)
	}
	if !ready {
		return fmt.Errorf("tunnel: follower not ready for rekey")
	}

	result, err := doHandshake(ctx, suite)
	if err != nil {
		abort := c.coordinator.Abort(err.Error())
		_ = c.sendControl(abort)
		return fmt.Errorf("tunnel: rekey handshake: %w", err)
	}
	c.noteHandshake(suite, result)

	session, err := buildSession(c.Role, suite, result, c.Config.ReplayWindow)
	if err != nil {
		abort := c.coordinator.Abort(err.Error())
		_ = c.sendControl(abort)
		return fmt.Errorf("tunnel: building rekeyed session: %w", err)
	}

	commitFrame, err := c.coordinator.Commit()
	if err != nil {
		return fmt.Errorf("tunnel: committing rekey: %w", err)
	}
	if err := c.sendControl(commitFrame); err != nil {
		return fmt.Errorf("tunnel: sending rekey_commit: %w", err)
	}

	c.Relay.SwapSession(session)
	c.setActiveSuite(suite)
	c.coordinator.Confirm()
	return nil
}

// runFollowerLoop drives the follower side of the rekey control protocol
// (spec section 4.3.4): it blocks reading in-band control frames and
// responds to whatever the coordinator sends, running this endpoint's own
// half of the fresh handshake for each proposed rekey.
func (c *CoreContext) runFollowerLoop(ctx context.Context, doHandshake rekeyHandshakeFunc, controlIn <-chan []byte) error {
	acceptable := func(suiteID string) bool {
		suite, err := c.Registry.Get(suiteID)
		if err != nil {
			return false
		}
		return suite.SigName == c.activeSigName()
	}

	var pendingSuite suites.Suite
	var pendingResult handshake.Result

	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-controlIn:
			frame, err := control.Unmarshal(data)
			if err != nil {
				c.Log.Warn("tunnel: follower received malformed control frame", zap.Error(err))
				continue
			}

			switch frame.Type {
			case control.FramePing:
				if err := c.sendControl(control.ControlFrame{Type: control.FramePong, RID: frame.RID}); err != nil {
					c.Log.Warn("tunnel: replying to ping failed", zap.Error(err))
				}

			case control.FrameRekeyInit:
				resp, send, ferr := c.follower.HandleFrame(frame, acceptable)
				if ferr != nil {
					c.Log.Warn("tunnel: follower rekey_init error", zap.Error(ferr))
					continue
				}
				if send {
					if err := c.sendControl(resp); err != nil {
						c.Log.Warn("tunnel: replying to rekey_init failed", zap.Error(err))
						continue
					}
				}
				if resp.Type == control.FrameRekeyAbort {
					continue
				}

				suite, err := c.Registry.Get(frame.SuiteID)
				if err != nil {
					c.Log.Warn("tunnel: follower accepted an unresolvable suite", zap.String("suite_id", frame.SuiteID), zap.Error(err))
					c.follower.Reset()
					continue
				}

				result, err := doHandshake(ctx, suite)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					c.Log.Warn("tunnel: follower rekey handshake failed", zap.Error(err))
					c.follower.Reset()
					continue
				}
				c.noteHandshake(suite, result)
				pendingSuite = suite
				pendingResult = result

			case control.FrameRekeyCommit:
				if _, _, err := c.follower.HandleFrame(frame, nil); err != nil {
					c.Log.Warn("tunnel: follower rekey_commit rejected", zap.Error(err))
					continue
				}
				session, err := buildSession(c.Role, pendingSuite, pendingResult, c.Config.ReplayWindow)
				if err != nil {
					c.Log.Warn("tunnel: building rekeyed session failed", zap.Error(err))
					c.Counters.RecordRekeyResult(false, pendingResult.Metrics.TotalMillis(), pendingSuite.ID, "peer_initiated")
					c.follower.Reset()
					continue
				}
				c.Relay.SwapSession(session)
				c.setActiveSuite(pendingSuite)
				c.Counters.RecordRekeyResult(true, pendingResult.Metrics.TotalMillis(), pendingSuite.ID, "peer_initiated")
				c.follower.Reset()

			case control.FrameRekeyAbort:
				c.follower.Reset()

			default:
				c.Log.Warn("tunnel: follower ignoring unexpected frame", zap.String("type", string(frame.Type)))
			}
		}
	}
}

// coordinatorRole reports whether role is the configured rekey
// coordinator (spec section 6.1's CONTROL_COORDINATOR_ROLE), replacing an
// earlier hardcoded "drone always coordinates" assumption.
func coordinatorRole(role logging.Role, cfg config.Config) bool {
	return string(role) == cfg.CoordinatorRole
}
