package session

import "errors"

var (
	// ErrInvalidToken is returned when an access token fails verification or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnauthorized is returned when a renewal secret is revoked, unknown,
	// or otherwise unusable. Terminal for the presenting client.
	ErrUnauthorized = errors.New("credential rejected")

	// ErrSessionNotFound is returned when a session id does not match any row.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the backing session is past absolute expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked is returned when the backing session has been deactivated.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrRenewalNotFound is returned when a fingerprint has no active renewal
	// credential. A rotation race loser sees this: the intended replay defense.
	ErrRenewalNotFound = errors.New("renewal credential not found")

	// ErrSessionInactive is returned by rotation when the owning session can
	// no longer back credentials.
	ErrSessionInactive = errors.New("owning session inactive")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
