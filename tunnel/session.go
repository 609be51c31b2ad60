package tunnel

import (
	"time"

	"go.uber.org/zap"

	"github.com/skywave-systems/pqtun-core/internal/counters"
	"github.com/skywave-systems/pqtun-core/internal/framing"
	"github.com/skywave-systems/pqtun-core/internal/handshake"
	"github.com/skywave-systems/pqtun-core/internal/logging"
	"github.com/skywave-systems/pqtun-core/internal/relay"
	"github.com/skywave-systems/pqtun-core/internal/suites"
)

// buildSession turns a completed handshake Result into a relay.Session,
// directional keys assigned by role (Drone encrypts d2g/decrypts g2d, GCS
// the reverse). HKDF always derives 32-byte halves (internal/handshake/kdf.go);
// tokens with a shorter key (ascon128a) take their prefix, the one place
// the suite's AEAD requirement is allowed to narrow the KDF output.
func buildSession(role logging.Role, suite suites.Suite, result handshake.Result, replayWindow uint64) (*relay.Session, error) {
	keySize := suite.AEADToken.KeySize()
	var sendKey, recvKey []byte
	if role == logging.RoleDrone {
		sendKey = result.KeyD2G[:keySize]
		recvKey = result.KeyG2D[:keySize]
	} else {
		sendKey = result.KeyG2D[:keySize]
		recvKey = result.KeyD2G[:keySize]
	}

	snd, err := framing.NewSender(suite.AEADToken, sendKey, 1, suite.HeaderIDs, result.SessionID)
	if err != nil {
		return nil, err
	}
	rcv, err := framing.NewReceiver(suite.AEADToken, recvKey, 1, suite.HeaderIDs, result.SessionID, 0, replayWindow)
	if err != nil {
		return nil, err
	}
	return &relay.Session{SessionID: result.SessionID, Sender: snd, Receiver: rcv}, nil
}

// recordHandshakeMetrics feeds a completed handshake's Part-B timing and
// artifact sizes into the counters registry (spec section 6.4's
// handshake_primitive_total_ms / artifact byte fields).
func recordHandshakeMetrics(cnt *counters.Counters, m handshake.Metrics) {
	if m.KeygenDuration > 0 {
		cnt.RecordPrimitive("kem_keygen", m.KeygenDuration, "public_key", m.PublicKeyBytes)
	}
	if m.EncapDuration > 0 {
		cnt.RecordPrimitive("kem_encap", m.EncapDuration, "ciphertext", m.CiphertextBytes)
	}
	if m.DecapDuration > 0 {
		cnt.RecordPrimitive("kem_decap", m.DecapDuration, "shared_secret", m.SharedSecretBytes)
	}
	if m.SignDuration > 0 {
		cnt.RecordPrimitive("sig_sign", m.SignDuration, "signature", m.SignatureBytes)
	}
	if m.VerifyDuration > 0 {
		cnt.RecordPrimitive("sig_verify", m.VerifyDuration, "", 0)
	}
}

// logHandshakeComplete emits a single structured summary line per
// completed handshake, matching the teacher's one-line-per-milestone
// logging density rather than a line per primitive.
func logHandshakeComplete(log *zap.Logger, suite suites.Suite, result handshake.Result) {
	fields := append(logging.SessionFields(sessionIDHex(result.SessionID), suite.ID),
		zap.Duration("total", result.Metrics.TotalDuration),
		zap.Float64("primitive_total_ms", result.Metrics.PrimitiveTotalMillis()),
	)
	log.Info("handshake complete", fields...)
}

func sessionIDHex(id [8]byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i, b := range id {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}

// handshakeTimeout converts the config's float-seconds duration fields to
// time.Duration, shared by every timing knob tunnel.Run reads from Config.
func handshakeTimeout(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
