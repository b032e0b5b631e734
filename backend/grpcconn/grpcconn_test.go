package grpcconn

import (
	"testing"

	"google.golang.org/grpc/connectivity"
)

// grpc.NewClient dials lazily, so Fun against an unreachable target still
// succeeds at construction time; connectivity failures only surface once
// something is attempted on the connection, or through GetState() after
// it has had a chance to try. These tests pin down the hooks' shape and
// the state-to-bool mapping in Health rather than timing a real dial.

func TestConfigFunSucceedsLazily(t *testing.T) {
	cfg := Config(Options{Target: "127.0.0.1:1"})

	obj, err := cfg.Fun(0)
	if err != nil {
		t.Fatalf("expected lazy dial to succeed at construction, got %v", err)
	}
	if obj == nil {
		t.Fatal("expected a non-nil *grpc.ClientConn")
	}

	cfg.Closer(obj)
}

func TestConfigHealthReportsShutdownAsUnhealthy(t *testing.T) {
	cfg := Config(Options{Target: "127.0.0.1:1"})

	obj, err := cfg.Fun(0)
	if err != nil {
		t.Fatalf("Fun: %v", err)
	}

	cfg.Closer(obj)
	if state := obj.(interface{ GetState() connectivity.State }).GetState(); state != connectivity.Shutdown {
		t.Fatalf("expected Shutdown after Close, got %v", state)
	}

	if cfg.Health(obj) {
		t.Error("expected Health to report false for a shut-down connection")
	}
}

func TestConfigSetsHooks(t *testing.T) {
	cfg := Config(Options{Target: "127.0.0.1:1"})
	if cfg.Fun == nil || cfg.Health == nil || cfg.Closer == nil {
		t.Error("expected Fun, Health, and Closer to all be set")
	}
}
