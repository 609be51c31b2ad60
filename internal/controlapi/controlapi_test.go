package controlapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
)

func startTestServer(t *testing.T, h Handlers) (*Server, func()) {
	t.Helper()
	srv, err := Listen("127.0.0.1:0", zap.NewNop(), h)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	return srv, cancel
}

func exchangeOnce(t *testing.T, addr net.Addr, req Request) Response {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	data, _ := json.Marshal(req)
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatalf("no response: %v", scanner.Err())
	}
	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal response: %v", err)
	}
	return resp
}

func TestPingDefaultsToOK(t *testing.T) {
	srv, cancel := startTestServer(t, Handlers{})
	defer cancel()
	resp := exchangeOnce(t, srv.Addr(), Request{Command: "ping"})
	if !resp.OK {
		t.Fatalf("expected OK ping response, got %+v", resp)
	}
}

func TestRekeyDispatchesToHandler(t *testing.T) {
	var gotSuite string
	srv, cancel := startTestServer(t, Handlers{
		Rekey: func(suiteID string) Response {
			gotSuite = suiteID
			return Response{OK: true}
		},
	})
	defer cancel()
	resp := exchangeOnce(t, srv.Addr(), Request{Command: "rekey", SuiteID: "cs-mlkem1024-aesgcm-mldsa87"})
	if !resp.OK {
		t.Fatalf("expected OK response, got %+v", resp)
	}
	if gotSuite != "cs-mlkem1024-aesgcm-mldsa87" {
		t.Fatalf("handler got suite %q", gotSuite)
	}
}

func TestUnknownCommandReturnsError(t *testing.T) {
	srv, cancel := startTestServer(t, Handlers{})
	defer cancel()
	resp := exchangeOnce(t, srv.Addr(), Request{Command: "bogus"})
	if resp.OK {
		t.Fatal("expected error response for unknown command")
	}
}

func TestMalformedRequestReturnsError(t *testing.T) {
	srv, cancel := startTestServer(t, Handlers{})
	defer cancel()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.Write([]byte("not json\n"))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatalf("no response: %v", scanner.Err())
	}
	var resp Response
	json.Unmarshal(scanner.Bytes(), &resp)
	if resp.OK {
		t.Fatal("expected error response for malformed request")
	}
}
