package cmd

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"
)

// startTestDaemon serves http over a unix socket at tgSocketPath(baseDir),
// mirroring how daemonClient dials the real daemon.
func startTestDaemon(t *testing.T, baseDir string, handler http.Handler) {
	t.Helper()
	ln, err := net.Listen("unix", tgSocketPath(baseDir))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
}

func TestDaemonClientGetDecodesJSON(t *testing.T) {
	baseDir := t.TempDir()
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(authHeaderName); got != "secret" {
			t.Errorf("auth header = %q, want secret", got)
		}
		json.NewEncoder(w).Encode(map[string]any{"pid": 42})
	})
	startTestDaemon(t, baseDir, mux)

	client := newDaemonClient(baseDir, "secret")
	var out struct {
		PID int `json:"pid"`
	}
	if err := client.Get(t.Context(), "/status", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.PID != 42 {
		t.Errorf("PID = %d, want 42", out.PID)
	}
}

func TestDaemonClientPostErrorBody(t *testing.T) {
	baseDir := t.TempDir()
	mux := http.NewServeMux()
	mux.HandleFunc("/remote/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "missing cwd"})
	})
	startTestDaemon(t, baseDir, mux)

	client := newDaemonClient(baseDir, "secret")
	err := client.Post(t.Context(), "/remote/register", map[string]any{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestPingHealth(t *testing.T) {
	baseDir := t.TempDir()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	startTestDaemon(t, baseDir, mux)

	client := newDaemonClient(baseDir, "secret")
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	if !pingHealth(ctx, client) {
		t.Fatal("expected pingHealth to succeed")
	}
}
