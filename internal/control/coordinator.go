package control

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Coordinator drives the initiating side of a rekey: propose a suite,
// wait for the follower's readiness, perform the new handshake out of
// band (the caller owns that, via internal/handshake), then commit.
// Exactly one rekey may be in flight at a time (spec section 4.3).
type Coordinator struct {
	mu sync.Mutex

	state   CoordinatorState
	rid     string
	suiteID string
}

// NewCoordinator returns a Coordinator in the idle state.
func NewCoordinator() *Coordinator {
	return &Coordinator{state: CoordinatorIdle}
}

// State returns the coordinator's current state.
func (c *Coordinator) State() CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Begin starts a new rekey attempt proposing suiteID, returning the
// rekey_init frame to send to the peer. Fails if a rekey is already in
// flight.
func (c *Coordinator) Begin(suiteID string) (ControlFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CoordinatorIdle && c.state != CoordinatorDone && c.state != CoordinatorAborted {
		return ControlFrame{}, ErrAlreadyInFlight
	}
	c.rid = uuid.NewString()
	c.suiteID = suiteID
	c.state = CoordinatorProposed
	return ControlFrame{Type: FrameRekeyInit, RID: c.rid, SuiteID: suiteID}, nil
}

// HandleFrame processes a frame from the follower. Returns whether the
// follower has signaled readiness to proceed with the new handshake.
func (c *Coordinator) HandleFrame(f ControlFrame) (ready bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f.RID != c.rid {
		return false, ErrRIDMismatch
	}

	switch f.Type {
	case FrameRekeyReady:
		if c.state != CoordinatorProposed {
			return false, fmt.Errorf("%w: rekey_ready in state %s", ErrUnexpectedFrame, c.state)
		}
		c.state = CoordinatorHandshaking
		return true, nil
	case FrameRekeyAbort:
		c.state = CoordinatorAborted
		return false, fmt.Errorf("%w: %s", ErrAborted, f.Reason)
	default:
		return false, fmt.Errorf("%w: %s in state %s", ErrUnexpectedFrame, f.Type, c.state)
	}
}

// Commit marks the new handshake complete and returns the rekey_commit
// frame telling the follower to swap its active framing context.
func (c *Coordinator) Commit() (ControlFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CoordinatorHandshaking {
		return ControlFrame{}, fmt.Errorf("%w: Commit called in state %s", ErrUnexpectedFrame, c.state)
	}
	c.state = CoordinatorCommitting
	return ControlFrame{Type: FrameRekeyCommit, RID: c.rid}, nil
}

// Confirm marks the rekey fully complete once traffic has been observed on
// the new session, returning the coordinator to idle for a future rekey.
func (c *Coordinator) Confirm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = CoordinatorDone
}

// Abort gives up on the in-flight rekey, returning the rekey_abort frame to
// notify the peer, and resets to idle.
func (c *Coordinator) Abort(reason string) ControlFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	rid := c.rid
	c.state = CoordinatorAborted
	return ControlFrame{Type: FrameRekeyAbort, RID: rid, Reason: reason}
}
