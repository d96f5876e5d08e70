package identity

import (
	"context"
	"errors"
	"testing"
)

func TestStaticVerifier(t *testing.T) {
	v := StaticVerifier{
		Users: map[string]string{"alice": "s3cret-passphrase"},
		IDs:   map[string]string{"alice": "01HUSER"},
		Roles: map[string][]string{"alice": {"buyer", "vendor"}},
	}

	id, err := v.Verify(context.Background(), Assertion{Username: "alice", Password: "s3cret-passphrase"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "01HUSER" {
		t.Fatalf("unexpected user id %q", id.UserID)
	}
	if len(id.Roles) != 2 {
		t.Fatalf("expected 2 roles, got %v", id.Roles)
	}

	if _, err := v.Verify(context.Background(), Assertion{Username: "alice", Password: "wrong"}); !errors.Is(err, ErrBadAssertion) {
		t.Fatalf("expected ErrBadAssertion for wrong password, got %v", err)
	}
	if _, err := v.Verify(context.Background(), Assertion{Username: "nobody", Password: "x"}); !errors.Is(err, ErrBadAssertion) {
		t.Fatalf("expected ErrBadAssertion for unknown user, got %v", err)
	}
}
