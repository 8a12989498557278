package quantd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"quantex/config"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServeUntilCancelled(t *testing.T) {
	cfg := config.DefaultConfig
	cfg.Port = freePort(t)
	cfg.ShutdownTimeout = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, &cfg, zap.NewNop()) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("health: %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
}

func TestServePortInUse(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	cfg := config.DefaultConfig
	cfg.Port = l.Addr().(*net.TCPAddr).Port
	if err := serve(context.Background(), &cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected error when the port is taken")
	}
}

func TestRunBadFlag(t *testing.T) {
	if code := Run([]string{"-bogus"}); code != 2 {
		t.Fatalf("exit %d, want 2", code)
	}
}
