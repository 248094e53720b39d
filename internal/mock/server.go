package mock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"feditest/pkg/logging"
)

// Server serves a Node on a TCP listener.
type Server struct {
	node *Node

	mu         sync.RWMutex
	httpServer *http.Server
	listener   net.Listener
	running    bool
	serveErr   error
}

// NewServer creates a server for node.
func NewServer(node *Node) *Server {
	return &Server{node: node}
}

// Start listens on addr and serves in the background. An addr with port 0
// picks a free port; Addr reports the chosen one.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.node.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Mock", err, "Mock node stopped serving")
			s.mu.Lock()
			s.serveErr = err
			s.mu.Unlock()
		}
	}()
	s.running = true
	logging.Info("Mock", "Mock node listening on %s with accounts %v", listener.Addr(), s.node.AccountNames())
	return nil
}

// Stop shuts the server down, forcing it closed when ctx has no deadline
// and graceful shutdown takes longer than five seconds.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logging.Warn("Mock", "Force closing mock node: %v", err)
		_ = s.httpServer.Close()
	}
	s.running = false
	s.httpServer = nil
	return nil
}

// Addr returns the listen address, or "" when not running.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return ""
	}
	return s.listener.Addr().String()
}

// Err returns the error that stopped the server, if any.
func (s *Server) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serveErr
}
