// HTTP endpoint for Prometheus scraping
//
//	server := metrics.NewServer(sm, ":9090")
//	errCh := server.StartAsync()
//	defer server.Shutdown(context.Background())
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Gatherer produces Prometheus exposition text.
type Gatherer interface {
	Gather() string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	// Address to listen on (e.g., ":9090" or "127.0.0.1:9090")
	Address string

	// Optional basic auth credentials
	Username string
	Password string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      ":9090",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server serves /metrics, /health and /ready.
type Server struct {
	g      Gatherer
	cfg    ServerConfig
	server *http.Server

	mu        sync.RWMutex
	running   bool
	startTime time.Time
	listener  net.Listener
}

// NewServer creates a server with the default config listening on addr.
func NewServer(g Gatherer, addr string) *Server {
	cfg := DefaultServerConfig()
	cfg.Address = addr
	return NewServerWithConfig(g, cfg)
}

// NewServerWithConfig creates a server with a custom config.
func NewServerWithConfig(g Gatherer, cfg ServerConfig) *Server {
	s := &Server{g: g, cfg: cfg}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start listens and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}
	s.mu.Lock()
	s.running = true
	s.startTime = time.Now()
	s.listener = ln
	s.mu.Unlock()

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine. The channel yields the
// serve error, if any, and is closed when the server stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return s.server.Shutdown(ctx)
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Address
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	out := s.g.Gather()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(out))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("OK\n"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !s.IsRunning() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Not Ready\n"))
		return
	}
	_, _ = w.Write([]byte("Ready\n"))
}

func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.Username == "" && s.cfg.Password == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if ok &&
		subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.Username)) == 1 &&
		subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.Password)) == 1 {
		return true
	}
	w.Header().Set("WWW-Authenticate", `Basic realm="Clock Metrics"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
	return false
}
