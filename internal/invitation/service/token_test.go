package service

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
)

func TestLocalTokenIsBoundedAlphanumeric(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	email := strings.Repeat("very.long.address", 8) + "@example.com"

	token := localToken("01hv5n3q8r", email, snowflake.ID(1234567890), now)
	if len(token) != 64 {
		t.Fatalf("expected 64 characters, got %d", len(token))
	}
	for _, r := range token {
		if !isAlnum(r) {
			t.Fatalf("unexpected character %q in %s", r, token)
		}
	}
}

func TestLocalTokenDependsOnNonce(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	email := strings.Repeat("x", 200) + "@example.com"

	a := localToken("aaaaaaaaaaaaaaaaaaaaaaaaaa", email, 42, now)
	b := localToken("bbbbbbbbbbbbbbbbbbbbbbbbbb", email, 42, now)
	if a == b {
		t.Fatalf("expected different nonces to survive truncation")
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := sanitizeToken("  ab-c_d=\n"); got != "abcd" {
		t.Fatalf("unexpected sanitized token %q", got)
	}
	if got := sanitizeToken(strings.Repeat("f", 100)); len(got) != 64 {
		t.Fatalf("expected truncation to 64, got %d", len(got))
	}
}

func TestNewNonceIsLowercase(t *testing.T) {
	nonce := newNonce()
	if nonce != strings.ToLower(nonce) || len(nonce) != 26 {
		t.Fatalf("unexpected nonce %q", nonce)
	}
}
