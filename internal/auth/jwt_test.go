package auth

import (
	"strings"
	"testing"
	"time"
)

// newTestTokenService creates a TokenService with a fixed, known secret so
// tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestGenerate_ReturnsWellFormedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("acc-123")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if token == "" {
		t.Fatal("Generate() returned empty token")
	}

	// JWTs have 3 dot-separated parts: header.payload.signature
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("Generate() token has %d segments, want 3", len(parts))
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)
	accountID := "acc-abc-123"

	token, err := ts.Generate(accountID)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != accountID {
		t.Errorf("Validate() accountID = %q, want %q", got, accountID)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration("acc-123", -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}

	if _, err := ts.Validate(token); err == nil {
		t.Fatal("Validate() should return an error for an expired token")
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate("acc-123")

	// Flip a character in the signature segment.
	tampered := token[:len(token)-2] + "xx"
	if _, err := ts.Validate(tampered); err == nil {
		t.Fatal("Validate() should reject a tampered token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1 := newTestTokenService(t)
	ts2, err := NewTokenService("a-completely-different-secret!!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	token, _ := ts1.Generate("acc-123")
	if _, err := ts2.Validate(token); err == nil {
		t.Fatal("Validate() should reject a token signed with a different secret")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, tokenStr := range []string{"", "not.a.jwt", "garbage"} {
		if _, err := ts.Validate(tokenStr); err == nil {
			t.Errorf("Validate(%q) should return an error", tokenStr)
		}
	}
}
