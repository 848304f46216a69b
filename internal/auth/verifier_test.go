package auth

import (
	"context"
	"testing"
	"time"
)

func TestVerifySession_RoundTrip(t *testing.T) {
	v := NewJWTVerifier("test-secret", "nestchat")

	token, err := v.IssueToken("alice", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	userID, err := v.VerifySession(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifySession failed: %v", err)
	}
	if userID != "alice" {
		t.Errorf("expected user alice, got %q", userID)
	}
}

func TestVerifySession_Expired(t *testing.T) {
	v := NewJWTVerifier("test-secret", "nestchat")

	token, err := v.IssueToken("alice", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	_, err = v.VerifySession(context.Background(), token)
	if err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifySession_WrongSecret(t *testing.T) {
	issuer := NewJWTVerifier("secret-a", "nestchat")
	verifier := NewJWTVerifier("secret-b", "nestchat")

	token, err := issuer.IssueToken("alice", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	_, err = verifier.VerifySession(context.Background(), token)
	if err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for mis-signed token, got %v", err)
	}
}

func TestVerifySession_MissingToken(t *testing.T) {
	v := NewJWTVerifier("test-secret", "nestchat")

	if _, err := v.VerifySession(context.Background(), ""); err != ErrMissingToken {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestVerifySession_Garbage(t *testing.T) {
	v := NewJWTVerifier("test-secret", "nestchat")

	if _, err := v.VerifySession(context.Background(), "not-a-jwt"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
