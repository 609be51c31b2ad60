package tunnel

import (
	"crypto/rand"
	"testing"

	"github.com/skywave-systems/pqtun-core/internal/handshake"
	"github.com/skywave-systems/pqtun-core/internal/logging"
	"github.com/skywave-systems/pqtun-core/internal/suites"
)

func fakeHandshakeResult(t *testing.T) handshake.Result {
	t.Helper()
	var sessionID [8]byte
	if _, err := rand.Read(sessionID[:]); err != nil {
		t.Fatal(err)
	}
	keyD2G := make([]byte, 32)
	keyG2D := make([]byte, 32)
	if _, err := rand.Read(keyD2G); err != nil {
		t.Fatal(err)
	}
	if _, err := rand.Read(keyG2D); err != nil {
		t.Fatal(err)
	}
	return handshake.Result{SessionID: sessionID, KeyD2G: keyD2G, KeyG2D: keyG2D}
}

func TestBuildSessionTruncatesKeyForAscon128a(t *testing.T) {
	reg := suites.NewRegistry(true, true)
	suite, err := reg.Get("cs-mlkem768-ascon128a-mldsa65")
	if err != nil {
		t.Fatalf("resolving ascon128a suite: %v", err)
	}
	if suite.AEADToken.KeySize() != 16 {
		t.Fatalf("expected ascon128a key size 16, got %d", suite.AEADToken.KeySize())
	}

	result := fakeHandshakeResult(t)
	sess, err := buildSession(logging.RoleDrone, suite, result, 1024)
	if err != nil {
		t.Fatalf("buildSession: %v", err)
	}
	if sess.SessionID != result.SessionID {
		t.Fatalf("session id mismatch")
	}
}

func TestBuildSessionFullKeyForAESGCM(t *testing.T) {
	reg := suites.NewRegistry(true, true)
	suite, err := reg.Get("cs-mlkem768-aesgcm-mldsa65")
	if err != nil {
		t.Fatalf("resolving aesgcm suite: %v", err)
	}
	if suite.AEADToken.KeySize() != 32 {
		t.Fatalf("expected aesgcm key size 32, got %d", suite.AEADToken.KeySize())
	}

	result := fakeHandshakeResult(t)
	if _, err := buildSession(logging.RoleGCS, suite, result, 1024); err != nil {
		t.Fatalf("buildSession: %v", err)
	}
}

func TestBuildSessionDirectionalKeysSwapByRole(t *testing.T) {
	reg := suites.NewRegistry(true, true)
	suite, err := reg.Get("cs-mlkem768-aesgcm-mldsa65")
	if err != nil {
		t.Fatal(err)
	}
	result := fakeHandshakeResult(t)

	droneSess, err := buildSession(logging.RoleDrone, suite, result, 1024)
	if err != nil {
		t.Fatal(err)
	}
	gcsSess, err := buildSession(logging.RoleGCS, suite, result, 1024)
	if err != nil {
		t.Fatal(err)
	}

	// The Drone encrypts with d2g/decrypts with g2d; the GCS is the mirror
	// image. Encrypting on one side and decrypting on the other must
	// succeed in exactly one direction pairing.
	wire, err := droneSess.Sender.Encrypt([]byte("hello"))
	if err != nil {
		t.Fatalf("drone encrypt: %v", err)
	}
	pt, ok := gcsSess.Receiver.DecryptSilent(wire)
	if !ok || string(pt) != "hello" {
		t.Fatalf("gcs failed to decrypt drone's d2g traffic")
	}
}

func TestSessionIDHex(t *testing.T) {
	id := [8]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x11, 0x22, 0x33}
	got := sessionIDHex(id)
	want := "deadbeef00112233"
	if got != want {
		t.Fatalf("sessionIDHex() = %q, want %q", got, want)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	d := handshakeTimeout(1.5)
	if d.Seconds() != 1.5 {
		t.Fatalf("handshakeTimeout(1.5) = %v, want 1.5s", d)
	}
}
