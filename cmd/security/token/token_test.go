package token

import "testing"

func TestFingerprintHex_SHAFallback(t *testing.T) {
	t.Setenv(HMACEnvKey, "")

	fp := FingerprintHex("renewal-secret")
	if len(fp) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(fp))
	}
	if fp != HashSHA256Hex("renewal-secret") {
		t.Fatalf("expected SHA-256 fallback when no HMAC key is set")
	}
	if fp == FingerprintHex("other-secret") {
		t.Fatalf("distinct secrets produced the same fingerprint")
	}
}

func TestFingerprintHex_HMACMode(t *testing.T) {
	t.Setenv(HMACEnvKey, "0123456789abcdef0123456789abcdef")

	fp := FingerprintHex("renewal-secret")
	if fp == HashSHA256Hex("renewal-secret") {
		t.Fatalf("expected HMAC output to differ from plain SHA-256")
	}
	if fp != FingerprintHex("renewal-secret") {
		t.Fatalf("fingerprint must be deterministic")
	}
}

func TestFingerprintHexRequireHMAC(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if _, err := FingerprintHexRequireHMAC("s", 32); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}

	t.Setenv(HMACEnvKey, "short")
	if _, err := FingerprintHexRequireHMAC("s", 32); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}

	t.Setenv(HMACEnvKey, "0123456789abcdef0123456789abcdef")
	fp, err := FingerprintHexRequireHMAC("s", 32)
	if err != nil {
		t.Fatalf("FingerprintHexRequireHMAC: %v", err)
	}
	if len(fp) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(fp))
	}
}
