package auth

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	h, err := HashPassword("sekrit", DefaultArgon2Params())
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ok, err := VerifyPassword("sekrit", h)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}
	ok, err = VerifyPassword("wrong", h)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	if _, err := VerifyPassword("x", "plainsha256"); err == nil {
		t.Fatalf("expected error for malformed hash")
	}
}

func TestNewTokenLength(t *testing.T) {
	if _, err := NewToken(8); err == nil {
		t.Fatalf("expected error for short token")
	}
	tok, err := NewToken(32)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if len(tok) < 40 {
		t.Fatalf("token unexpectedly short: %q", tok)
	}
}
