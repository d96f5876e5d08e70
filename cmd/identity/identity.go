package identity

import "context"

// Assertion is the caller-supplied proof of identity presented at login.
type Assertion struct {
	Username string
	Password string
}

// Identity is the verified result this core consumes: a user id and a role
// set. Everything else about the user lives outside the auth core.
type Identity struct {
	UserID string
	Roles  []string
}

// Verifier validates an identity assertion against the user backend.
//
// Implementations must return ErrBadAssertion for any failure the caller
// should treat as "wrong credentials" (unknown user, bad password, disabled
// account) so the HTTP layer cannot leak which part failed.
type Verifier interface {
	Verify(ctx context.Context, a Assertion) (Identity, error)
}

// StaticVerifier is a fixed-table Verifier for tests and local development.
type StaticVerifier struct {
	// Users maps username -> password.
	Users map[string]string
	// IDs maps username -> user id; missing entries fall back to the username.
	IDs map[string]string
	// Roles maps username -> role set.
	Roles map[string][]string
}

// Verify checks the assertion against the static table.
func (v StaticVerifier) Verify(_ context.Context, a Assertion) (Identity, error) {
	pw, ok := v.Users[a.Username]
	if !ok || pw != a.Password {
		return Identity{}, ErrBadAssertion
	}

	id := a.Username
	if mapped, ok := v.IDs[a.Username]; ok {
		id = mapped
	}

	return Identity{UserID: id, Roles: v.Roles[a.Username]}, nil
}
