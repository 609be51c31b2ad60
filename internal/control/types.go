// Package control implements the two-phase (prepare/commit) in-band rekey
// control protocol: a tagged-union ControlFrame exchanged over the existing
// framed UDP channel, and the coordinator/follower state machines that
// drive a suite rotation without ever dropping application traffic (spec
// section 4.3).
//
// Grounded on original_source/core/async_proxy.py's rekey orchestration
// (dwell/confirm/poll timers, rekey_trigger_reason, rekeys_ok/rekeys_fail
// counters) re-expressed as an explicit state machine rather than the
// original's single long-running coroutine.
package control

import "encoding/json"

// FrameType tags a ControlFrame's payload, the Go analogue of the
// original's dict-based control messages distinguished by a "type" key.
type FrameType string

const (
	FrameRekeyInit    FrameType = "rekey_init"
	FrameRekeyPrepare FrameType = "rekey_prepare"
	FrameRekeyReady   FrameType = "rekey_ready"
	FrameRekeyCommit  FrameType = "rekey_commit"
	FrameRekeyAbort   FrameType = "rekey_abort"
	FramePing         FrameType = "ping"
	FramePong         FrameType = "pong"
)

// ControlFrame is the wire shape of every rekey-control message. Only the
// fields relevant to Type are populated; the rest are left at their zero
// value and omitted from JSON.
type ControlFrame struct {
	Type FrameType `json:"type"`
	RID  string    `json:"rid"`

	// rekey_init / rekey_prepare: the suite the coordinator proposes.
	SuiteID string `json:"suite_id,omitempty"`

	// rekey_commit: the epoch the new session should start counting from
	// (always 0 in the current design — a commit always pairs with a fresh
	// session_id — but carried explicitly so a future partial-rekey variant
	// has somewhere to put it without a wire format break).
	Epoch *byte `json:"epoch,omitempty"`

	// rekey_abort: human-readable reason, surfaced in logs/counters.
	Reason string `json:"reason,omitempty"`
}

// Marshal serializes a ControlFrame to its JSON wire form.
func (f ControlFrame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// Unmarshal parses a ControlFrame from its JSON wire form.
func Unmarshal(data []byte) (ControlFrame, error) {
	var f ControlFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ControlFrame{}, err
	}
	return f, nil
}
