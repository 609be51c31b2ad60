package handshake

import "time"

// Metrics captures the per-primitive timing and artifact-size breakdown
// ("Part-B" in the original implementation's terminology) that
// core/handshake.py's _finalize_handshake_metrics records for every
// completed handshake. Surfaced by tunnel/ into both the prometheus
// registry and the status-file snapshot (spec section 6.4).
type Metrics struct {
	KeygenDuration time.Duration
	EncapDuration  time.Duration
	DecapDuration  time.Duration
	SignDuration   time.Duration
	VerifyDuration time.Duration
	TotalDuration  time.Duration

	PublicKeyBytes   int
	CiphertextBytes  int
	SignatureBytes   int
	SharedSecretBytes int
	ServerHelloBytes int
	AuthTagBytes     int
}

// TotalMillis returns the whole-handshake wall time in milliseconds, the
// field name the status file exposes as rekey_ms/handshake_ms.
func (m Metrics) TotalMillis() float64 {
	return float64(m.TotalDuration) / float64(time.Millisecond)
}

// PrimitiveTotalMillis sums the five measured primitive timings, matching
// _finalize_handshake_metrics's primitive_total_ms field: the portion of
// total handshake time attributable to cryptographic operations versus
// network round trips.
func (m Metrics) PrimitiveTotalMillis() float64 {
	sum := m.KeygenDuration + m.EncapDuration + m.DecapDuration + m.SignDuration + m.VerifyDuration
	return float64(sum) / float64(time.Millisecond)
}
