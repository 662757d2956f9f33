package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestServerStartStop(t *testing.T) {
	srv, err := NewServer(DefaultConfig())
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}

	addr, err := srv.Start()
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if addr == "" || addr == ":0" {
		t.Errorf("Start() returned invalid address: %q", addr)
	}
	t.Logf("Server started on %s", addr)

	if got := srv.Addr(); got != addr {
		t.Errorf("Addr() = %q, want %q", got, addr)
	}

	url := "http://" + addr + "/"
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("HTTP GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Congestion Control Interop Test") {
		t.Error("Response body doesn't contain expected HTML")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	if _, err := http.Get(url); err == nil {
		t.Error("Expected connection error after shutdown, but request succeeded")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Addr != ":0" {
		t.Errorf("DefaultConfig().Addr = %q, want %q", cfg.Addr, ":0")
	}
	if cfg.Algorithm != "gcc-v0" {
		t.Errorf("DefaultConfig().Algorithm = %q, want %q", cfg.Algorithm, "gcc-v0")
	}
	if cfg.MinBitrate <= 0 || cfg.MaxBitrate <= cfg.MinBitrate {
		t.Errorf("DefaultConfig() bitrate bounds invalid: min=%d max=%d", cfg.MinBitrate, cfg.MaxBitrate)
	}
}

func TestNewServerRejectsUnknownAlgorithm(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Algorithm = "nada"

	if _, err := NewServer(cfg); err == nil {
		t.Fatal("NewServer() accepted an unknown algorithm")
	}
}

func TestServerDoubleStart(t *testing.T) {
	srv, err := NewServer(DefaultConfig())
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	addr1, err := srv.Start()
	if err != nil {
		t.Fatalf("First Start() failed: %v", err)
	}

	addr2, err := srv.Start()
	if err != nil {
		t.Fatalf("Second Start() failed: %v", err)
	}

	if addr1 != addr2 {
		t.Errorf("Second Start() returned different address: %q vs %q", addr1, addr2)
	}
}

func TestServerWritesEstimateLog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExpLogPath = filepath.Join(t.TempDir(), "gcc_estimates.log")

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	if _, err := srv.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	data, err := os.ReadFile(cfg.ExpLogPath)
	if err != nil {
		t.Fatalf("estimate log not written: %v", err)
	}
	if !strings.Contains(string(data), "# GCC estimates log") {
		t.Errorf("estimate log missing header: %q", string(data))
	}
}
