package identity

import "errors"

var (
	// ErrBadAssertion is returned when an identity assertion does not verify.
	// It deliberately covers unknown user, bad password and disabled account.
	ErrBadAssertion = errors.New("identity assertion rejected")
)
