package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"
)

// connTimeout bounds one request/response exchange.
const connTimeout = 30 * time.Second

// HandlerFunc serves one command. The returned value is marshalled into
// the response's data field.
type HandlerFunc func(ctx context.Context, args map[string]string) (any, error)

// Server accepts CLI connections on a Unix domain socket and dispatches
// commands to registered handlers. Ping is built in.
type Server struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	listener net.Listener
	wg       sync.WaitGroup
	stopped  bool
}

// NewServer creates an empty server; register handlers before Listen.
func NewServer() *Server {
	return &Server{handlers: make(map[string]HandlerFunc)}
}

// Register binds a command name to its handler.
func (s *Server) Register(command string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = fn
}

// Listen accepts connections on socketPath until ctx is cancelled. A
// stale socket file is removed first; the live socket is owner-only.
func (s *Server) Listen(ctx context.Context, socketPath string) error {
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.stopped = false
	s.mu.Unlock()

	log.Printf("ipc: listening on %s", socketPath)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Stop closes the listener and drains in-flight connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.stopped = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("drain timeout: connections still open after 5s")
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		writeError(conn, "empty request")
		return
	}

	var req Request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		writeError(conn, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if req.Command == CmdPing {
		writeResponse(conn, Response{OK: true, Data: "pong"})
		return
	}

	s.mu.Lock()
	fn := s.handlers[req.Command]
	s.mu.Unlock()
	if fn == nil {
		writeError(conn, fmt.Sprintf("unknown command: %q", req.Command))
		return
	}

	data, err := fn(ctx, req.Args)
	if err != nil {
		writeError(conn, err.Error())
		return
	}
	writeResponse(conn, Response{OK: true, Data: data})
}

func writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

func writeError(conn net.Conn, msg string) {
	writeResponse(conn, Response{OK: false, Error: msg})
}
