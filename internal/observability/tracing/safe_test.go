package tracing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsUserData(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/invitations"),
		attribute.String("email", "a@example.com"),
		attribute.String("token", "secret"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("unexpected attributes: %v", attrs)
	}
}

func TestSafeErrorRedactsMessage(t *testing.T) {
	err := SafeError(fmt.Errorf("lookup user a@example.com: %w", errors.New("boom")))
	if err.Error() != "internal_error" {
		t.Fatalf("expected redacted error, got %q", err.Error())
	}
	if got := SafeError(fmt.Errorf("wrap: %w", context.DeadlineExceeded)); got.Error() != "deadline_exceeded" {
		t.Fatalf("expected deadline_exceeded, got %q", got.Error())
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil")
	}
}
