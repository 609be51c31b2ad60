package handshake

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/skywave-systems/pqtun-core/internal/suites"
)

func testSuite(t *testing.T) suites.Suite {
	t.Helper()
	reg := suites.NewRegistry(false, false)
	s, err := reg.Get(suites.DefaultSuiteID)
	if err != nil {
		t.Fatalf("registry.Get: %v", err)
	}
	return s
}

func runHandshakePair(t *testing.T, psk []byte, clientSuite *suites.Suite) (Result, Result, error, error) {
	t.Helper()
	suite := testSuite(t)
	if clientSuite == nil {
		clientSuite = &suite
	}

	sigScheme, err := suites.SigScheme(suite.SigName)
	if err != nil {
		t.Fatalf("SigScheme: %v", err)
	}
	sigPub, sigSecret, err := sigScheme.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	var serverResult, clientResult Result
	var serverErr, clientErr error
	done := make(chan struct{})

	go func() {
		defer close(done)
		serverResult, serverErr = ServerHandshake(serverConn, 1, suite, sigSecret, psk, 2*time.Second)
	}()

	clientResult, clientErr = ClientHandshake(clientConn, 1, *clientSuite, sigPub, psk, 2*time.Second)
	<-done

	return serverResult, clientResult, serverErr, clientErr
}

func TestHandshakeRoundTripDerivesMatchingKeys(t *testing.T) {
	psk := bytes.Repeat([]byte{0x11}, 32)
	serverResult, clientResult, serverErr, clientErr := runHandshakePair(t, psk, nil)
	if serverErr != nil {
		t.Fatalf("server handshake: %v", serverErr)
	}
	if clientErr != nil {
		t.Fatalf("client handshake: %v", clientErr)
	}
	if serverResult.SessionID != clientResult.SessionID {
		t.Fatalf("session id mismatch: server %x client %x", serverResult.SessionID, clientResult.SessionID)
	}
	if !bytes.Equal(serverResult.KeyD2G, clientResult.KeyD2G) {
		t.Fatal("key_d2g mismatch between server and client")
	}
	if !bytes.Equal(serverResult.KeyG2D, clientResult.KeyG2D) {
		t.Fatal("key_g2d mismatch between server and client")
	}
	if bytes.Equal(serverResult.KeyD2G, serverResult.KeyG2D) {
		t.Fatal("directional keys must differ")
	}
}

func TestHandshakeRejectsWrongPSK(t *testing.T) {
	_, _, serverErr, clientErr := runHandshakePair(t, bytes.Repeat([]byte{0x11}, 32), nil)
	_ = clientErr
	_ = serverErr

	goodPSK := bytes.Repeat([]byte{0x11}, 32)
	badPSK := bytes.Repeat([]byte{0x22}, 32)

	suite := testSuite(t)
	sigScheme, _ := suites.SigScheme(suite.SigName)
	sigPub, sigSecret, _ := sigScheme.GenerateKey()

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	var serverErr2 error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, serverErr2 = ServerHandshake(serverConn, 1, suite, sigSecret, goodPSK, 2*time.Second)
	}()
	_, clientErr2 := ClientHandshake(clientConn, 1, suite, sigPub, badPSK, 2*time.Second)
	<-done

	if !errors.Is(serverErr2, ErrVerify) {
		t.Fatalf("expected server ErrVerify on mismatched PSK, got %v", serverErr2)
	}
	_ = clientErr2
}

func TestHandshakeRejectsSuiteDowngrade(t *testing.T) {
	reg := suites.NewRegistry(false, false)
	weaker, err := reg.Get("cs-mlkem512-aesgcm-mldsa44")
	if err != nil {
		t.Fatalf("Get weaker suite: %v", err)
	}
	psk := bytes.Repeat([]byte{0x11}, 32)
	_, _, _, clientErr := runHandshakePair(t, psk, &weaker)
	if !errors.Is(clientErr, ErrSuiteMismatch) {
		t.Fatalf("expected ErrSuiteMismatch, got %v", clientErr)
	}
}

func TestServerHelloEncodeDecodeRoundTrip(t *testing.T) {
	h := ServerHello{
		Version:   1,
		KEMName:   "ML-KEM-768",
		SigName:   "ML-DSA-65",
		SessionID: [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
		Challenge: [8]byte{8, 7, 6, 5, 4, 3, 2, 1},
		KEMPublic: bytes.Repeat([]byte{0xaa}, 1184),
		Signature: bytes.Repeat([]byte{0xbb}, 3309),
	}
	wire := h.Encode()
	got, err := DecodeServerHello(wire)
	if err != nil {
		t.Fatalf("DecodeServerHello: %v", err)
	}
	if got.Version != h.Version || got.KEMName != h.KEMName || got.SigName != h.SigName {
		t.Fatalf("scalar field mismatch: %+v", got)
	}
	if got.SessionID != h.SessionID || got.Challenge != h.Challenge {
		t.Fatalf("fixed field mismatch: %+v", got)
	}
	if !bytes.Equal(got.KEMPublic, h.KEMPublic) || !bytes.Equal(got.Signature, h.Signature) {
		t.Fatal("variable-length field mismatch")
	}
}

func TestDecodeServerHelloRejectsTrailingBytes(t *testing.T) {
	h := ServerHello{Version: 1, KEMName: "k", SigName: "s", KEMPublic: []byte{1}, Signature: []byte{2}}
	wire := append(h.Encode(), 0xff)
	if _, err := DecodeServerHello(wire); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestDecodeAuthMessageRejectsBadTagLength(t *testing.T) {
	m := AuthMessage{KEMCiphertext: []byte{1, 2, 3}, Tag: []byte{4, 5}}
	wire := m.Encode()
	if _, err := DecodeAuthMessage(wire, 32); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat for wrong tag size, got %v", err)
	}
}
