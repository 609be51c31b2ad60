package handshake

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"net"
	"time"

	"github.com/cloudflare/circl/sign"

	"github.com/skywave-systems/pqtun-core/internal/suites"
)

// Result is what a completed handshake (either role) hands back to the
// caller for wiring into internal/framing.
type Result struct {
	SessionID [8]byte
	KeyD2G    []byte // drone-to-gcs direction
	KeyG2D    []byte // gcs-to-drone direction
	Metrics   Metrics
}

// ServerHandshake runs the GCS side of the handshake over an already
// accepted TCP connection: generate an ephemeral KEM keypair, sign a
// transcript, send ServerHello, then read back the Drone's KEM ciphertext
// and PSK auth tag (spec section 4.2.1, steps 1-4).
//
// sigSecret must belong to the suite's signature scheme; psk is the raw
// pre-shared key bytes (spec section 4.2.2: HMAC-SHA256 over the exact
// ServerHello wire bytes).
func ServerHandshake(conn net.Conn, version byte, suite suites.Suite, sigSecret sign.PrivateKey, psk []byte, timeout time.Duration) (Result, error) {
	deadline := time.Now().Add(timeout)
	var metrics Metrics
	start := time.Now()

	kemScheme, err := suites.KEMScheme(suite.KEMName)
	if err != nil {
		return Result{}, err
	}
	sigScheme, err := suites.SigScheme(suite.SigName)
	if err != nil {
		return Result{}, err
	}

	t0 := time.Now()
	kemPub, kemSecret, err := kemScheme.GenerateKeyPair()
	metrics.KeygenDuration = time.Since(t0)
	if err != nil {
		return Result{}, fmt.Errorf("handshake: kem keygen: %w", err)
	}
	kemPubBytes, err := kemPub.MarshalBinary()
	if err != nil {
		return Result{}, fmt.Errorf("handshake: marshal kem public key: %w", err)
	}

	var sessionID, challenge [8]byte
	if _, err := rand.Read(sessionID[:]); err != nil {
		return Result{}, fmt.Errorf("handshake: generating session id: %w", err)
	}
	if _, err := rand.Read(challenge[:]); err != nil {
		return Result{}, fmt.Errorf("handshake: generating challenge: %w", err)
	}

	transcript := buildTranscript(version, sessionID, challenge, suite.KEMName, suite.SigName, kemPubBytes)
	t0 = time.Now()
	signature := sigScheme.Sign(sigSecret, transcript, nil)
	metrics.SignDuration = time.Since(t0)

	hello := ServerHello{
		Version:   version,
		KEMName:   suite.KEMName,
		SigName:   suite.SigName,
		SessionID: sessionID,
		Challenge: challenge,
		KEMPublic: kemPubBytes,
		Signature: signature,
	}
	helloWire := hello.Encode()
	metrics.PublicKeyBytes = len(kemPubBytes)
	metrics.SignatureBytes = len(signature)
	metrics.ServerHelloBytes = len(helloWire)

	if err := writeFrame(conn, deadline, helloWire); err != nil {
		return Result{}, err
	}

	authBuf, err := readFrame(conn, deadline)
	if err != nil {
		return Result{}, err
	}
	authMsg, err := DecodeAuthMessage(authBuf, sha256.Size)
	if err != nil {
		return Result{}, err
	}
	metrics.AuthTagBytes = len(authMsg.Tag)
	metrics.CiphertextBytes = len(authMsg.KEMCiphertext)

	t0 = time.Now()
	sharedSecret, err := kemScheme.Decapsulate(kemSecret, authMsg.KEMCiphertext)
	metrics.DecapDuration = time.Since(t0)
	if err != nil {
		return Result{}, fmt.Errorf("%w: kem decapsulation: %v", ErrVerify, err)
	}
	metrics.SharedSecretBytes = len(sharedSecret)

	if !verifyPSKTag(psk, helloWire, authMsg.Tag) {
		return Result{}, fmt.Errorf("%w: drone authentication failed", ErrVerify)
	}

	keyD2G, keyG2D, err := deriveTransportKeys(sharedSecret, sessionID, suite.KEMName, suite.SigName)
	if err != nil {
		return Result{}, fmt.Errorf("handshake: key derivation: %w", err)
	}

	metrics.TotalDuration = time.Since(start)
	return Result{
		SessionID: sessionID,
		// GCS sends on the gcs-to-drone key and receives on drone-to-gcs.
		KeyD2G:  keyD2G,
		KeyG2D:  keyG2D,
		Metrics: metrics,
	}, nil
}
