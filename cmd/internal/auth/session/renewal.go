package session

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/Godswillconcept/markethub-sub002/cmd/security/token"
)

func newRenewalSecret(nBytes int) (plain string, fingerprint string, err error) {
	b := make([]byte, nBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}

	// URL-safe, no padding.
	plain = base64.RawURLEncoding.EncodeToString(b)

	fingerprint = token.FingerprintHex(plain) // 64 hex chars

	return plain, fingerprint, nil
}

func fingerprintHex(secret string) string {
	return token.FingerprintHex(secret)
}
