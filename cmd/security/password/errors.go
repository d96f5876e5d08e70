package password

import "errors"

var (
	// ErrInvalidHash is returned for malformed or unsupported hash strings.
	ErrInvalidHash = errors.New("invalid password hash")

	// ErrInvalidPassword is returned for empty or oversized password input.
	ErrInvalidPassword = errors.New("invalid password")
)
