// Package bridge lets CLI invocations reach the running tray app over a
// Unix socket in the application directory.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
)

// Server listens on a Unix socket and routes requests to a Router.
type Server struct {
	router   Router
	listener net.Listener
	sockPath string
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer binds sockPath, replacing a stale socket file left by a crashed
// process. Callers hold the single-instance lock, so a live owner cannot
// exist.
func NewServer(sockPath string, router Router, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	_ = os.Remove(sockPath)

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		router:   router,
		listener: listener,
		sockPath: sockPath,
		logger:   logger.With("component", "bridge"),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Serve accepts connections and handles them. Blocks until Close.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Close shuts down the server: closes the listener, cancels running
// commands, waits for connections and removes the socket.
func (s *Server) Close() {
	_ = s.listener.Close()
	s.cancel()
	s.wg.Wait()
	_ = os.Remove(s.sockPath)
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	// Allow up to 10MB lines.
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		resp := s.handleRequest(scanner.Bytes())

		data, err := json.Marshal(resp)
		if err != nil {
			data, _ = json.Marshal(Response{Type: "Error", Code: CodeInternal, Message: err.Error()})
		}
		data = append(data, '\n')

		if _, err := conn.Write(data); err != nil {
			return
		}
	}
}

func (s *Server) handleRequest(line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{Type: "Error", Code: CodeParse, Message: "parse error: " + err.Error()}
	}

	switch req.Type {
	case "Ping":
		return Response{Type: "Pong"}

	case "Invoke":
		s.logger.Debug("invoke", "cmd", req.Cmd)
		result, err := s.router.Invoke(s.ctx, req.Cmd, req.Args)
		if err != nil {
			return Response{Type: "Error", Code: CodeInternal, Message: err.Error()}
		}
		data, err := json.Marshal(result)
		if err != nil {
			return Response{Type: "Error", Code: CodeInternal, Message: err.Error()}
		}
		return Response{Type: "Result", Result: data}

	default:
		s.logger.Warn("unknown request type", "type", req.Type)
		return Response{Type: "Error", Code: CodeUnknown, Message: "unknown request type: " + req.Type}
	}
}
