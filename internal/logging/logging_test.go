package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNew_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger := New(level, "text")
		if logger == nil {
			t.Fatalf("New(%q) returned nil", level)
		}
	}
}

func TestNew_JSONFormat(t *testing.T) {
	logger := New("info", "json")
	if logger == nil {
		t.Fatal("New returned nil for json format")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Errorf("expected empty request id, got %q", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
}

func TestShopIDRoundTrip(t *testing.T) {
	ctx := WithShopID(context.Background(), "demo.myshopify.com")
	if got := ShopID(ctx); got != "demo.myshopify.com" {
		t.Errorf("expected shop id, got %q", got)
	}
}

func TestFromContext_Default(t *testing.T) {
	if got := FromContext(context.Background()); got != slog.Default() {
		t.Error("expected default logger for empty context")
	}
}

func TestL_AttachesContext(t *testing.T) {
	ctx := WithLogger(context.Background(), New("info", "text"))
	ctx = WithRequestID(ctx, "req-9")
	ctx = WithShopID(ctx, "demo.myshopify.com")
	if L(ctx) == nil {
		t.Fatal("L returned nil")
	}
}
