package session

import (
	"strings"
	"testing"
	"time"
)

func jwtTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWTSigningKey = "test-signing-key-0123456789abcdef"
	return cfg
}

func TestJWT_IssueAndVerify(t *testing.T) {
	mgr, err := NewJWTManager(jwtTestConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	now := time.Now().UTC()
	tok, exp, err := mgr.Issue("01HUSER", []string{"buyer", "vendor"}, "01HSESSION", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.After(now) {
		t.Fatalf("expected exp after now")
	}

	claims, err := mgr.Verify(tok, now.Add(1*time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "01HUSER" || claims.SessionID != "01HSESSION" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "buyer" {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
}

func TestJWT_RejectsExpired(t *testing.T) {
	cfg := jwtTestConfig()
	cfg.AccessTokenTTL = time.Minute
	cfg.ClockSkew = 0

	mgr, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := mgr.Issue("u", nil, "s", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := mgr.Verify(tok, now.Add(2*time.Minute)); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestJWT_RejectsTampered(t *testing.T) {
	mgr, err := NewJWTManager(jwtTestConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := mgr.Issue("u", nil, "s", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := mgr.Verify(tampered, now); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for tampered token, got %v", err)
	}
}

func TestJWT_RejectsWrongKey(t *testing.T) {
	now := time.Now().UTC()

	mgrA, err := NewJWTManager(jwtTestConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	cfgB := jwtTestConfig()
	cfgB.JWTSigningKey = "another-signing-key-0123456789ab"
	mgrB, err := NewJWTManager(cfgB)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	tok, _, err := mgrA.Issue("u", nil, "s", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := mgrB.Verify(tok, now); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for wrong key, got %v", err)
	}
}

func TestJWT_RejectsEmptySubjects(t *testing.T) {
	mgr, err := NewJWTManager(jwtTestConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	now := time.Now().UTC()
	if _, _, err := mgr.Issue("", nil, "s", now); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for empty user id, got %v", err)
	}
	if _, _, err := mgr.Issue("u", nil, "", now); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for empty session id, got %v", err)
	}
}
