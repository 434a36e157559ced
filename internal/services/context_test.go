package services_test

import (
	"context"
	"testing"

	"reembed/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRequestID(ctx, "req-123")
	ctx = services.WithSourceURL(ctx, "https://example.com/v/1")

	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
	if src, ok := services.SourceURLFromContext(ctx); !ok || src != "https://example.com/v/1" {
		t.Fatalf("unexpected source url: %v %v", src, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRequestID(ctx, "")
	ctx = services.WithSourceURL(ctx, "")
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("expected no request id")
	}
	if _, ok := services.SourceURLFromContext(ctx); ok {
		t.Fatal("expected no source url")
	}
}
