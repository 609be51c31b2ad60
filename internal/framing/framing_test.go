package framing

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/skywave-systems/pqtun-core/internal/suites"
)

func testHeaderIDs() suites.HeaderIDs {
	return suites.HeaderIDs{KEMID: 1, KEMParam: 2, SigID: 2, SigParam: 2}
}

func newPair(t *testing.T, token suites.AEADToken, window uint64) (*Sender, *Receiver) {
	t.Helper()
	key := make([]byte, token.KeySize())
	rand.Read(key)
	var sessionID [8]byte
	rand.Read(sessionID[:])

	snd, err := NewSender(token, key, 1, testHeaderIDs(), sessionID)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	rcv, err := NewReceiver(token, key, 1, testHeaderIDs(), sessionID, 0, window)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	return snd, rcv
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	for _, token := range []suites.AEADToken{suites.AEADAESGCM, suites.AEADChaCha20Poly1305, suites.AEADAscon128A} {
		snd, rcv := newPair(t, token, 64)
		for i := 0; i < 5; i++ {
			pt := []byte("application payload")
			wire, err := snd.Encrypt(pt)
			if err != nil {
				t.Fatalf("%s: Encrypt: %v", token, err)
			}
			got, err := rcv.Decrypt(wire)
			if err != nil {
				t.Fatalf("%s: Decrypt: %v", token, err)
			}
			if !bytes.Equal(got, pt) {
				t.Fatalf("%s: round trip mismatch", token)
			}
		}
	}
}

func TestDecryptRejectsShortPacket(t *testing.T) {
	_, rcv := newPair(t, suites.AEADAESGCM, 64)
	_, err := rcv.Decrypt([]byte{1, 2, 3})
	if !errors.Is(err, ErrHeaderTooShort) {
		t.Fatalf("expected ErrHeaderTooShort, got %v", err)
	}
}

func TestDecryptSilentRejectsTamperedCiphertext(t *testing.T) {
	snd, rcv := newPair(t, suites.AEADAESGCM, 64)
	wire, err := snd.Encrypt([]byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	wire[len(wire)-1] ^= 0xff
	if _, ok := rcv.DecryptSilent(wire); ok {
		t.Fatal("expected decrypt failure on tampered ciphertext")
	}
	if rcv.LastErrorReason() != DropAuth {
		t.Fatalf("expected DropAuth, got %v", rcv.LastErrorReason())
	}
}

func TestReplayRejectsDuplicateSeq(t *testing.T) {
	snd, rcv := newPair(t, suites.AEADAESGCM, 64)
	wire, _ := snd.Encrypt([]byte("first"))
	if _, err := rcv.Decrypt(wire); err != nil {
		t.Fatalf("first decrypt: %v", err)
	}
	if _, err := rcv.Decrypt(wire); !errors.Is(err, ErrReplay) {
		t.Fatalf("expected ErrReplay on duplicate, got %v", err)
	}
}

func TestReplayAcceptsOutOfOrderWithinWindow(t *testing.T) {
	snd, rcv := newPair(t, suites.AEADAESGCM, 64)
	var wires [][]byte
	for i := 0; i < 4; i++ {
		w, _ := snd.Encrypt([]byte("payload"))
		wires = append(wires, w)
	}
	// deliver in order 0, 2, 3, 1 — the late arrival of seq 1 must still land.
	order := []int{0, 2, 3, 1}
	for _, idx := range order {
		if _, err := rcv.Decrypt(wires[idx]); err != nil {
			t.Fatalf("seq index %d: unexpected error: %v", idx, err)
		}
	}
}

func TestReplayScenarioTamperedThenRetransmitOriginal(t *testing.T) {
	// spec section 8.2 scenario 3: a tampered packet at a given seq consumes
	// the replay-window slot even though authentication fails; a later
	// retransmission of the original untampered packet at that same seq is
	// now rejected as replay, not re-attempted for auth.
	snd, rcv := newPair(t, suites.AEADAESGCM, 64)
	wire, _ := snd.Encrypt([]byte("payload"))
	tampered := append([]byte(nil), wire...)
	tampered[len(tampered)-1] ^= 0xff

	if _, ok := rcv.DecryptSilent(tampered); ok {
		t.Fatal("expected tampered packet to fail auth")
	}
	if rcv.LastErrorReason() != DropAuth {
		t.Fatalf("expected DropAuth, got %v", rcv.LastErrorReason())
	}

	if _, ok := rcv.DecryptSilent(wire); ok {
		t.Fatal("expected original retransmit to be rejected as replay")
	}
	if rcv.LastErrorReason() != DropReplay {
		t.Fatalf("expected DropReplay on retransmit, got %v", rcv.LastErrorReason())
	}
}

func TestReplayRejectsTooOldSeq(t *testing.T) {
	snd, rcv := newPair(t, suites.AEADAESGCM, 4)
	var wires [][]byte
	for i := 0; i < 10; i++ {
		w, _ := snd.Encrypt([]byte("payload"))
		wires = append(wires, w)
	}
	for _, w := range wires {
		rcv.Decrypt(w)
	}
	// seq 0 is far outside the 4-wide window by now.
	if _, err := rcv.Decrypt(wires[0]); !errors.Is(err, ErrReplay) {
		t.Fatalf("expected ErrReplay for too-old seq, got %v", err)
	}
}

func TestSessionAndEpochMismatchAreSilentlyIndistinguishable(t *testing.T) {
	snd, rcv := newPair(t, suites.AEADAESGCM, 64)
	wire, _ := snd.Encrypt([]byte("payload"))
	wire[5] ^= 0xff // corrupt a session_id byte
	if _, ok := rcv.DecryptSilent(wire); ok {
		t.Fatal("expected session mismatch rejection")
	}
	if rcv.LastErrorReason() != DropSessionEpoch {
		t.Fatalf("expected DropSessionEpoch, got %v", rcv.LastErrorReason())
	}
}

func TestHeaderIDMismatchRejected(t *testing.T) {
	snd, rcv := newPair(t, suites.AEADAESGCM, 64)
	wire, _ := snd.Encrypt([]byte("payload"))
	wire[1] ^= 0xff // corrupt kem_id
	if _, err := rcv.Decrypt(wire); !errors.Is(err, ErrCryptoIDMismatch) {
		t.Fatalf("expected ErrCryptoIDMismatch, got %v", err)
	}
}

func TestSequenceOverflowBlocksEncrypt(t *testing.T) {
	snd, _ := newPair(t, suites.AEADAESGCM, 64)
	snd.SetRekeySeqThreshold(0)
	if _, err := snd.Encrypt([]byte("payload")); !errors.Is(err, ErrSequenceOverflow) {
		t.Fatalf("expected ErrSequenceOverflow, got %v", err)
	}
}

func TestBumpEpochResetsSeqAndRejectsAtMax(t *testing.T) {
	snd, _ := newPair(t, suites.AEADAESGCM, 64)
	snd.Encrypt([]byte("payload"))
	if snd.Seq() != 1 {
		t.Fatalf("expected seq 1 before bump, got %d", snd.Seq())
	}
	if err := snd.BumpEpoch(); err != nil {
		t.Fatalf("BumpEpoch: %v", err)
	}
	if snd.Seq() != 0 || snd.Epoch() != 1 {
		t.Fatalf("expected epoch 1 seq 0 after bump, got epoch %d seq %d", snd.Epoch(), snd.Seq())
	}

	snd.mu.Lock()
	snd.epoch = 255
	snd.mu.Unlock()
	if err := snd.BumpEpoch(); !errors.Is(err, ErrEpochOverflow) {
		t.Fatalf("expected ErrEpochOverflow, got %v", err)
	}
}

func TestHeaderPackUnpackRoundTrip(t *testing.T) {
	h := Header{
		Version:   1,
		KEMID:     1,
		KEMParam:  2,
		SigID:     2,
		SigParam:  2,
		SessionID: [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
		Seq:       123456789,
		Epoch:     3,
	}
	packed := h.Pack()
	if len(packed) != HeaderSize {
		t.Fatalf("packed header length = %d, want %d", len(packed), HeaderSize)
	}
	got, err := UnpackHeader(packed)
	if err != nil {
		t.Fatalf("UnpackHeader: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
}
