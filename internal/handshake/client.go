package handshake

import (
	"fmt"
	"net"
	"time"

	"github.com/cloudflare/circl/sign"

	"github.com/skywave-systems/pqtun-core/internal/suites"
)

// ClientHandshake runs the Drone side of the handshake: read and verify
// ServerHello against the GCS's static signature public key and the suite
// the Drone was configured to use (rejecting any negotiated downgrade),
// encapsulate against the offered KEM public key, authenticate with the
// PSK, and derive transport keys (spec section 4.2.1, steps 2-5).
func ClientHandshake(conn net.Conn, version byte, suite suites.Suite, gcsSigPublic sign.PublicKey, psk []byte, timeout time.Duration) (Result, error) {
	deadline := time.Now().Add(timeout)
	var metrics Metrics
	start := time.Now()

	sigScheme, err := suites.SigScheme(suite.SigName)
	if err != nil {
		return Result{}, err
	}
	kemScheme, err := suites.KEMScheme(suite.KEMName)
	if err != nil {
		return Result{}, err
	}

	helloWire, err := readFrame(conn, deadline)
	if err != nil {
		return Result{}, err
	}
	hello, err := DecodeServerHello(helloWire)
	if err != nil {
		return Result{}, err
	}
	metrics.ServerHelloBytes = len(helloWire)
	metrics.PublicKeyBytes = len(hello.KEMPublic)
	metrics.SignatureBytes = len(hello.Signature)

	if hello.Version != version {
		return Result{}, fmt.Errorf("%w: wire version mismatch, got %d want %d", ErrVerify, hello.Version, version)
	}
	// Reject any downgrade: the negotiated algorithms in the hello must be
	// exactly the suite this Drone is configured to speak.
	if hello.KEMName != suite.KEMName || hello.SigName != suite.SigName {
		return Result{}, fmt.Errorf("%w: server offered %s/%s, configured for %s/%s",
			ErrSuiteMismatch, hello.KEMName, hello.SigName, suite.KEMName, suite.SigName)
	}

	transcript := buildTranscript(hello.Version, hello.SessionID, hello.Challenge, hello.KEMName, hello.SigName, hello.KEMPublic)
	t0 := time.Now()
	ok := sigScheme.Verify(gcsSigPublic, transcript, hello.Signature, nil)
	metrics.VerifyDuration = time.Since(t0)
	if !ok {
		return Result{}, fmt.Errorf("%w: server hello signature invalid", ErrVerify)
	}

	kemPub, err := kemScheme.UnmarshalBinaryPublicKey(hello.KEMPublic)
	if err != nil {
		return Result{}, fmt.Errorf("%w: parsing kem public key: %v", ErrFormat, err)
	}

	t0 = time.Now()
	kemCiphertext, sharedSecret, err := kemScheme.Encapsulate(kemPub)
	metrics.EncapDuration = time.Since(t0)
	if err != nil {
		return Result{}, fmt.Errorf("handshake: kem encapsulation: %w", err)
	}
	metrics.CiphertextBytes = len(kemCiphertext)
	metrics.SharedSecretBytes = len(sharedSecret)

	tag := computePSKTag(psk, helloWire)
	metrics.AuthTagBytes = len(tag)
	authMsg := AuthMessage{KEMCiphertext: kemCiphertext, Tag: tag}
	if err := writeFrame(conn, deadline, authMsg.Encode()); err != nil {
		return Result{}, err
	}

	keyD2G, keyG2D, err := deriveTransportKeys(sharedSecret, hello.SessionID, suite.KEMName, suite.SigName)
	if err != nil {
		return Result{}, fmt.Errorf("handshake: key derivation: %w", err)
	}

	metrics.TotalDuration = time.Since(start)
	return Result{
		SessionID: hello.SessionID,
		// Drone sends on the drone-to-gcs key and receives on gcs-to-drone.
		KeyD2G:  keyD2G,
		KeyG2D:  keyG2D,
		Metrics: metrics,
	}, nil
}
