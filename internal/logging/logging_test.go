package logging

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New("loud", ""); err == nil {
		t.Error("New() should reject unknown level")
	}
}

func TestNew_WithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := New("debug", path)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	logger.Debug("hello")
	_ = logger.Sync()
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	FromContext(context.Background(), base).Info("plain")
	FromContext(WithRequestID(context.Background(), "req-1"), base).Info("tagged")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if len(entries[0].Context) != 0 {
		t.Errorf("plain entry fields = %v, want none", entries[0].Context)
	}
	if got := entries[1].ContextMap()["request_id"]; got != "req-1" {
		t.Errorf("request_id = %v, want %q", got, "req-1")
	}
}
