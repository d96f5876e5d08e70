package password

import (
	"strings"
	"testing"
)

func testConfig() Config {
	// Cheap parameters so the suite stays fast; Verify accepts smaller
	// settings than the configured baseline.
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   16 * 1024,
			Iterations:  1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

func TestHashAndVerify(t *testing.T) {
	cfg := testConfig()

	enc, err := cfg.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(enc, "$argon2id$v=19$") {
		t.Fatalf("unexpected hash format: %s", enc)
	}

	ok, err := cfg.Verify(enc, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}

	ok, err = cfg.Verify(enc, "wrong password")
	if err != nil {
		t.Fatalf("Verify mismatch: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	cfg := testConfig()

	cases := []string{
		"",
		"not-a-hash",
		"$argon2i$v=19$m=16,t=1,p=1$c2FsdHNhbHQ$aGFzaA",
		"$argon2id$v=18$m=16,t=1,p=1$c2FsdHNhbHQ$aGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$aGFzaA",
		"$argon2id$v=19$m=16,t=1,p=1$!!!$aGFzaA",
	}
	for _, c := range cases {
		if _, err := cfg.Verify(c, "pw"); err != ErrInvalidHash {
			t.Fatalf("hash %q: expected ErrInvalidHash, got %v", c, err)
		}
	}
}

func TestVerifyRejectsOversizedParams(t *testing.T) {
	cfg := testConfig()

	// Attacker-controlled hash claiming a huge memory cost.
	huge := "$argon2id$v=19$m=1048576,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY"
	if _, err := cfg.Verify(huge, "pw"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash for oversized params, got %v", err)
	}
}

func TestHashRejectsInvalidPassword(t *testing.T) {
	cfg := testConfig()

	if _, err := cfg.Hash(""); err != ErrInvalidPassword {
		t.Fatalf("expected ErrInvalidPassword for empty input, got %v", err)
	}
	if _, err := cfg.Hash(strings.Repeat("a", 300)); err != ErrInvalidPassword {
		t.Fatalf("expected ErrInvalidPassword for oversized input, got %v", err)
	}
}
