package control

import "fmt"

// Follower drives the responding side of a rekey: accept or reject a
// proposed suite, accept the peer's new incoming handshake connection out
// of band, then swap to the new session on commit.
type Follower struct {
	state FollowerState
	rid   string
}

// NewFollower returns a Follower in the idle state.
func NewFollower() *Follower {
	return &Follower{state: FollowerIdle}
}

// State returns the follower's current state.
func (f *Follower) State() FollowerState { return f.state }

// AcceptableSuite is supplied by the caller to decide whether a proposed
// suite_id is one this follower is willing and able to negotiate (spec
// section 4.5: availability-gated suites must be rejected, not silently
// downgraded).
type AcceptableSuite func(suiteID string) bool

// HandleFrame processes an incoming rekey-control frame, returning the
// response frame to send back (if any) and whether one should be sent.
func (flw *Follower) HandleFrame(cf ControlFrame, acceptable AcceptableSuite) (response ControlFrame, send bool, err error) {
	switch cf.Type {
	case FrameRekeyInit:
		if flw.state != FollowerIdle && flw.state != FollowerCommitted && flw.state != FollowerAborted {
			return ControlFrame{}, false, fmt.Errorf("%w: rekey_init while in state %s", ErrUnexpectedFrame, flw.state)
		}
		if acceptable != nil && !acceptable(cf.SuiteID) {
			flw.state = FollowerAborted
			flw.rid = cf.RID
			return ControlFrame{Type: FrameRekeyAbort, RID: cf.RID, Reason: "suite unavailable"}, true, nil
		}
		flw.state = FollowerReady
		flw.rid = cf.RID
		return ControlFrame{Type: FrameRekeyReady, RID: cf.RID}, true, nil

	case FrameRekeyCommit:
		if cf.RID != flw.rid {
			return ControlFrame{}, false, ErrRIDMismatch
		}
		if flw.state != FollowerReady {
			return ControlFrame{}, false, fmt.Errorf("%w: rekey_commit while in state %s", ErrUnexpectedFrame, flw.state)
		}
		flw.state = FollowerCommitted
		return ControlFrame{}, false, nil

	case FrameRekeyAbort:
		flw.state = FollowerAborted
		return ControlFrame{}, false, nil

	default:
		return ControlFrame{}, false, fmt.Errorf("%w: %s", ErrUnexpectedFrame, cf.Type)
	}
}

// Reset returns the follower to idle, e.g. after the new session's first
// packet confirms the swap and the caller is ready for the next rekey.
func (flw *Follower) Reset() {
	flw.state = FollowerIdle
	flw.rid = ""
}
