// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package control serves the daemon's unix control socket. Each
// connection carries exactly one request and one response; the request
// is parsed leniently so operators can drive the daemon with nothing
// but echo and nc.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hjson/hjson-go/v4"
	"go.uber.org/zap"

	"github.com/wingedpig/sslaunch/pkg/protocol"
)

const (
	defaultReadTimeout    = 3 * time.Second
	defaultWriteTimeout   = 3 * time.Second
	defaultMaxRequestSize = 64 * 1024
)

// Handler processes one decoded request.
type Handler func(ctx context.Context, req protocol.Request) protocol.Response

// Config holds the control server knobs.
type Config struct {
	SocketPath     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
}

// Server accepts connections on the control socket and dispatches
// requests to a Handler.
type Server struct {
	cfg     Config
	handler Handler
	logger  *zap.Logger

	ln net.Listener
	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a server. Call Listen then Serve.
func New(cfg Config, handler Handler, logger *zap.Logger) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = defaultMaxRequestSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, handler: handler, logger: logger}
}

// Listen binds the unix socket. A leftover socket file from a crashed
// daemon is removed after a dial probe confirms nothing is listening;
// a live listener means another daemon owns the socket.
func (s *Server) Listen() error {
	path := s.cfg.SocketPath

	if _, err := os.Stat(path); err == nil {
		conn, err := net.DialTimeout("unix", path, time.Second)
		if err == nil {
			conn.Close()
			return fmt.Errorf("socket %s is in use by another daemon", path)
		}
		s.logger.Info("removing stale control socket", zap.String("path", path))
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", path, err)
	}
	// The socket carries unauthenticated control commands; keep it
	// owner-only.
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		os.Remove(path)
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.ln = ln
	s.logger.Info("control socket listening", zap.String("path", path))
	return nil
}

// Serve accepts connections until Close is called. Each connection is
// handled on its own goroutine; per-request serialization is the
// handler's concern, not the transport's.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("server is not listening")
	}

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting, waits for in-flight connections and removes
// the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if s.ln != nil {
		err = s.ln.Close()
		s.wg.Wait()
		// Only unlink a socket this server actually bound; the path may
		// belong to another daemon when Listen failed.
		os.Remove(s.cfg.SocketPath)
	}
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

	data, readErr := io.ReadAll(io.LimitReader(conn, s.cfg.MaxRequestSize+1))
	if int64(len(data)) > s.cfg.MaxRequestSize {
		s.respond(conn, protocol.Errorf(protocol.ErrParse, "request too large"))
		return
	}
	// Clients that never half-close their write side hit the read
	// deadline; whatever arrived by then is still worth parsing.
	if readErr != nil && len(data) == 0 {
		s.logger.Debug("dropping empty connection", zap.Error(readErr))
		return
	}

	req, err := decodeRequest(data)
	if err != nil {
		s.respond(conn, protocol.Errorf(protocol.ErrParse, "%v", err))
		return
	}

	s.logger.Debug("control request", zap.String("cmd", req.Cmd))
	s.respond(conn, s.handler(ctx, req))
}

// decodeRequest parses a lenient (HJSON) request body into the strict
// request struct.
func decodeRequest(data []byte) (protocol.Request, error) {
	var req protocol.Request

	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return req, fmt.Errorf("parse request: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return req, fmt.Errorf("convert request: %w", err)
	}
	if err := json.Unmarshal(jsonData, &req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	if req.Cmd == "" {
		return req, errors.New("request is missing cmd")
	}
	return req, nil
}

func (s *Server) respond(conn net.Conn, resp protocol.Response) {
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))

	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encode response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}
