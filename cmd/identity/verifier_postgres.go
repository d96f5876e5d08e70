package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Godswillconcept/markethub-sub002/cmd/security/password"
)

// PostgresVerifier verifies assertions against the markethub.users table.
type PostgresVerifier struct {
	pool *pgxpool.Pool
	pw   password.Config

	// dummyHash is verified on unknown-user lookups so that login timing does
	// not reveal whether a username exists.
	dummyHash string
}

// NewPostgresVerifier creates a Postgres-backed Verifier.
func NewPostgresVerifier(pool *pgxpool.Pool, pw password.Config) (*PostgresVerifier, error) {
	if pool == nil {
		return nil, errors.New("identity: nil db pool")
	}

	v := &PostgresVerifier{pool: pool, pw: pw}
	if hash, err := pw.Hash("dummy-password-for-timing-only"); err == nil {
		v.dummyHash = hash
	}
	return v, nil
}

// Verify looks up the user by username and checks the password hash.
func (v *PostgresVerifier) Verify(ctx context.Context, a Assertion) (Identity, error) {
	username := strings.ToLower(strings.TrimSpace(a.Username))
	if username == "" || a.Password == "" {
		return Identity{}, ErrBadAssertion
	}

	var (
		userID       string
		passwordHash string
		roles        []string
		isActive     bool
	)
	err := v.pool.QueryRow(ctx, `
		SELECT id, password_hash, roles, is_active
		FROM markethub.users
		WHERE username = $1
	`, username).Scan(&userID, &passwordHash, &roles, &isActive)
	if errors.Is(err, pgx.ErrNoRows) {
		if v.dummyHash != "" {
			_, _ = v.pw.Verify(v.dummyHash, a.Password)
		}
		return Identity{}, ErrBadAssertion
	}
	if err != nil {
		return Identity{}, err
	}

	ok, err := v.pw.Verify(passwordHash, a.Password)
	if err != nil || !ok || !isActive {
		return Identity{}, ErrBadAssertion
	}

	return Identity{UserID: userID, Roles: roles}, nil
}
