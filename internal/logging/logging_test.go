package logging

import (
	"context"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Errorf("Expected empty request ID, got %q", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("Expected req-123, got %q", got)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Error("Expected default logger, got nil")
	}
}

func TestLIncludesRequestID(t *testing.T) {
	logger := New("debug", "text")
	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-456")
	if L(ctx) == nil {
		t.Fatal("Expected logger with request_id attr")
	}
}

func TestComponent(t *testing.T) {
	if Component(nil, "engine") == nil {
		t.Error("Expected component logger from nil parent")
	}
	logger := New("info", "json")
	if Component(logger, "wizard") == nil {
		t.Error("Expected component logger")
	}
}
