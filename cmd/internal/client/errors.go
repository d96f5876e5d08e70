package client

import "errors"

var (
	// ErrUnauthorized is the issuer explicitly rejecting the credential.
	// Terminal: the local session ends.
	ErrUnauthorized = errors.New("client: unauthorized")

	// ErrSessionExpired is the issuer reporting the session past its
	// absolute expiry. Terminal: the local session ends.
	ErrSessionExpired = errors.New("client: session expired")

	// ErrSessionEnded reports that the session was already ended locally
	// (logout, a sibling's logout broadcast, or an earlier terminal failure).
	ErrSessionEnded = errors.New("client: session ended")

	// ErrNoSession reports a call attempted before any session was adopted.
	ErrNoSession = errors.New("client: no session")

	// ErrRenewalExhausted reports the renewal attempt ceiling was exceeded
	// on network failures alone. Terminal: the local session ends.
	ErrRenewalExhausted = errors.New("client: renewal attempts exhausted")
)
