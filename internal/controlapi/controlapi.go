// Package controlapi implements the optional line-delimited JSON TCP
// control endpoint an operator or local tool can use to ping, fetch status,
// force a rekey, or request shutdown (spec section 6.3). Not the in-band
// rekey protocol (internal/control) — this is an out-of-band local
// management surface, analogous to the teacher's runtime-togglable
// metrics/signal-driven controls in cmd/flowersec-tunnel/main.go, re-shaped
// as a TCP API instead of OS signals since this spec's operator surface is
// explicitly a socket (spec section 6.3).
package controlapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"go.uber.org/zap"
)

// Request is one line of the control protocol's request side.
type Request struct {
	Command string `json:"command"`
	SuiteID string `json:"suite_id,omitempty"`
}

// Response is one line of the control protocol's response side.
type Response struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Status  any    `json:"status,omitempty"`
}

// Handlers is the set of callbacks the server dispatches commands to;
// tunnel.Run supplies the concrete implementations.
type Handlers struct {
	Ping     func() Response
	Status   func() Response
	Rekey    func(suiteID string) Response
	Shutdown func() Response
}

// Server accepts connections on a single TCP listener and serves one
// request-response exchange per line, matching a minimal line-delimited
// JSON protocol rather than a full RPC framework (spec's Non-goals exclude
// pulling in a generic RPC stack for what is a handful of operator
// commands).
type Server struct {
	listener net.Listener
	log      *zap.Logger
	handlers Handlers
}

// Listen binds addr and returns a Server ready to Serve.
func Listen(addr string, log *zap.Logger, h Handlers) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("controlapi: listen %s: %w", addr, err)
	}
	return &Server{listener: ln, log: log, handlers: h}, nil
}

// Addr returns the bound address, useful when addr was ":0".
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }

// Serve accepts and handles connections until ctx is canceled or Close is
// called.
func (s *Server) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("controlapi: accept failed", zap.Error(err))
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)
	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			enc.Encode(Response{OK: false, Error: "malformed request: " + err.Error()})
			continue
		}
		enc.Encode(s.dispatch(req))
	}
}

func (s *Server) dispatch(req Request) Response {
	switch req.Command {
	case "ping":
		if s.handlers.Ping != nil {
			return s.handlers.Ping()
		}
		return Response{OK: true}
	case "status":
		if s.handlers.Status != nil {
			return s.handlers.Status()
		}
		return Response{OK: false, Error: "status handler not configured"}
	case "rekey":
		if s.handlers.Rekey != nil {
			return s.handlers.Rekey(req.SuiteID)
		}
		return Response{OK: false, Error: "rekey handler not configured"}
	case "shutdown":
		if s.handlers.Shutdown != nil {
			return s.handlers.Shutdown()
		}
		return Response{OK: false, Error: "shutdown handler not configured"}
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
}
