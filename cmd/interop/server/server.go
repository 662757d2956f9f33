// Package server provides an importable HTTP server for the browser interop
// test. E2E tests start and stop it programmatically without running main().
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/thesyncim/cc/pkg/cc"
	"github.com/thesyncim/cc/pkg/cc/explog"
)

// Config holds server configuration options.
type Config struct {
	Addr         string        // Listen address (":8080", or ":0" for a random port)
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout

	// Algorithm is the congestion control algorithm tag, see cc.Algorithms.
	Algorithm string

	// Bitrate settings for each controller, in bps.
	InitialBitrate int64
	MinBitrate     int64
	MaxBitrate     int64

	// ExpLogPath, when non-empty, writes per-update estimate records to the
	// given file for offline analysis.
	ExpLogPath string
}

// DefaultConfig returns a configuration suitable for testing. It binds to a
// random available port.
func DefaultConfig() Config {
	return Config{
		Addr:           ":0",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		Algorithm:      cc.AlgorithmGCCV0,
		InitialBitrate: 500_000,
		MinBitrate:     100_000,
		MaxBitrate:     5_000_000,
	}
}

// Server is an importable HTTP server for WebRTC browser interop testing.
type Server struct {
	cfg        Config
	httpServer *http.Server
	listener   net.Listener
	recorder   *explog.Recorder
	addr       string
	mu         sync.Mutex
	running    bool
}

// NewServer creates a new server with the given configuration. The algorithm
// tag is validated here so a misconfigured name fails before any browser
// connects. The server does not listen until Start is called.
func NewServer(cfg Config) (*Server, error) {
	if _, err := cc.New(cfg.Algorithm); err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg}

	if cfg.ExpLogPath != "" {
		rec, err := explog.Create(cfg.ExpLogPath)
		if err != nil {
			return nil, fmt.Errorf("open estimate log: %w", err)
		}
		s.recorder = rec
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(HTMLPage))
	})
	mux.HandleFunc("/offer", s.handleOffer)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It returns the actual
// listen address (useful when the configured port is 0) and does not block.
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.addr, nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = ln
	s.addr = ln.Addr().String()
	s.running = true

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			// Server was likely shut down underneath us.
		}
	}()

	return s.addr, nil
}

// Shutdown gracefully shuts down the server and flushes the estimate log.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	err := s.httpServer.Shutdown(ctx)
	if s.recorder != nil {
		if cerr := s.recorder.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Addr returns the address the server is listening on, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
