package session

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store using PostgreSQL (markethub schema).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateSession inserts a new session row and returns it.
func (s *PostgresStore) CreateSession(ctx context.Context, now time.Time, userID string, roles []string, dev DeviceContext, ttl time.Duration) (Session, error) {
	id := ulid.Make().String()
	expiresAt := now.Add(ttl)

	var ip net.IP
	if dev.IP != nil {
		ip = dev.IP
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO markethub.sessions (
			id, user_id, roles, platform, user_agent, ip,
			is_active, revoke_reason, created_at, last_activity_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			TRUE, NULL, $7, $7, $8
		)
	`, id, userID, roles, string(dev.Platform), nullIfEmpty(dev.UserAgent), ip, now, expiresAt)
	if err != nil {
		return Session{}, err
	}

	return Session{
		ID:             id,
		UserID:         userID,
		Roles:          roles,
		Platform:       dev.Platform,
		UserAgent:      dev.UserAgent,
		IP:             dev.IP,
		IsActive:       true,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      expiresAt,
	}, nil
}

// GetSession loads a session row by ID.
func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (Session, error) {
	row, err := scanSession(s.pool.QueryRow(ctx, `
		SELECT id, user_id, roles, platform, user_agent, ip,
		       is_active, revoke_reason, created_at, last_activity_at, expires_at
		FROM markethub.sessions
		WHERE id = $1
	`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return row, nil
}

// TouchSession advances last_activity_at. The guard keeps it monotonic and
// makes the call a no-op on inactive rows.
func (s *PostgresStore) TouchSession(ctx context.Context, now time.Time, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE markethub.sessions
		SET last_activity_at = $2
		WHERE id = $1 AND is_active AND last_activity_at < $2
	`, sessionID, now)
	return err
}

// DeactivateSession deactivates one session and revokes its renewal
// credentials in a single transaction.
func (s *PostgresStore) DeactivateSession(ctx context.Context, now time.Time, sessionID string, reason RevocationReason) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := deactivateSessionTx(ctx, tx, now, sessionID, reason); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// DeactivateAllForUser deactivates every active session of a user in one
// transaction, except exceptSessionID when non-empty.
func (s *PostgresStore) DeactivateAllForUser(ctx context.Context, now time.Time, userID, exceptSessionID string, reason RevocationReason) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id FROM markethub.sessions
		WHERE user_id = $1 AND is_active AND id <> $2
		FOR UPDATE
	`, userID, exceptSessionID)
	if err != nil {
		return 0, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := deactivateSessionTx(ctx, tx, now, id, reason); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// SweepExpiredSessions deletes sessions past expiry, plus deactivated
// sessions idle beyond inactiveCutoff. Renewal rows go with them (FK cascade).
func (s *PostgresStore) SweepExpiredSessions(ctx context.Context, now time.Time, inactiveCutoff time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM markethub.sessions
		WHERE expires_at <= $1
		   OR (NOT is_active AND $2::interval > INTERVAL '0' AND last_activity_at < $1 - $2::interval)
	`, now, inactiveCutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// IssueRenewal inserts an active renewal credential bound to sessionID.
func (s *PostgresStore) IssueRenewal(ctx context.Context, now time.Time, sessionID, fingerprint string, dev DeviceContext, ttl time.Duration) (RenewalCredential, error) {
	expiresAt := now.Add(ttl)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO markethub.renewal_credentials (
			fingerprint, session_id, platform, user_agent,
			is_active, created_at, last_used_at, expires_at
		) VALUES ($1, $2, $3, $4, TRUE, $5, $5, $6)
	`, fingerprint, sessionID, string(dev.Platform), nullIfEmpty(dev.UserAgent), now, expiresAt)
	if err != nil {
		return RenewalCredential{}, err
	}

	return RenewalCredential{
		Fingerprint: fingerprint,
		SessionID:   sessionID,
		Platform:    dev.Platform,
		UserAgent:   dev.UserAgent,
		IsActive:    true,
		CreatedAt:   now,
		LastUsedAt:  now,
		ExpiresAt:   expiresAt,
	}, nil
}

// FindActiveRenewal returns the active credential for a fingerprint.
func (s *PostgresStore) FindActiveRenewal(ctx context.Context, fingerprint string) (RenewalCredential, error) {
	cred, err := scanRenewal(s.pool.QueryRow(ctx, `
		SELECT fingerprint, session_id, platform, user_agent,
		       is_active, created_at, last_used_at, expires_at
		FROM markethub.renewal_credentials
		WHERE fingerprint = $1 AND is_active
	`, fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return RenewalCredential{}, ErrRenewalNotFound
	}
	if err != nil {
		return RenewalCredential{}, err
	}
	return cred, nil
}

// FindRenewal returns the credential for a fingerprint regardless of state.
func (s *PostgresStore) FindRenewal(ctx context.Context, fingerprint string) (RenewalCredential, error) {
	cred, err := scanRenewal(s.pool.QueryRow(ctx, `
		SELECT fingerprint, session_id, platform, user_agent,
		       is_active, created_at, last_used_at, expires_at
		FROM markethub.renewal_credentials
		WHERE fingerprint = $1
	`, fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return RenewalCredential{}, ErrRenewalNotFound
	}
	if err != nil {
		return RenewalCredential{}, err
	}
	return cred, nil
}

// RotateRenewal performs the rotation inside a single transaction:
// lock old row, check the owning session, deactivate + ledger-stamp the old
// fingerprint, insert the replacement, advance session activity.
func (s *PostgresStore) RotateRenewal(ctx context.Context, now time.Time, oldFingerprint, newFingerprint string, ttl time.Duration) (RenewalCredential, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return RenewalCredential{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old, err := getActiveRenewalForUpdateTx(ctx, tx, oldFingerprint)
	if err != nil {
		return RenewalCredential{}, err
	}

	sess, err := getSessionForUpdateTx(ctx, tx, old.SessionID)
	if err != nil {
		return RenewalCredential{}, err
	}
	if !sess.Valid(now) {
		return RenewalCredential{}, ErrSessionInactive
	}

	if _, err := tx.Exec(ctx, `
		UPDATE markethub.renewal_credentials
		SET is_active = FALSE, last_used_at = $2
		WHERE fingerprint = $1
	`, old.Fingerprint, now); err != nil {
		return RenewalCredential{}, err
	}

	if err := insertRevocationTx(ctx, tx, RevocationEntry{
		ID:             ulid.Make().String(),
		Fingerprint:    old.Fingerprint,
		Kind:           KindRenewal,
		OriginalExpiry: old.ExpiresAt,
		RevokedAt:      now,
		Reason:         ReasonRotation,
		UserID:         sess.UserID,
		SessionID:      sess.ID,
	}); err != nil {
		return RenewalCredential{}, err
	}

	expiresAt := now.Add(ttl)
	if _, err := tx.Exec(ctx, `
		INSERT INTO markethub.renewal_credentials (
			fingerprint, session_id, platform, user_agent,
			is_active, created_at, last_used_at, expires_at
		) VALUES ($1, $2, $3, $4, TRUE, $5, $5, $6)
	`, newFingerprint, sess.ID, string(old.Platform), nullIfEmpty(old.UserAgent), now, expiresAt); err != nil {
		return RenewalCredential{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE markethub.sessions
		SET last_activity_at = $2
		WHERE id = $1 AND last_activity_at < $2
	`, sess.ID, now); err != nil {
		return RenewalCredential{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return RenewalCredential{}, err
	}

	return RenewalCredential{
		Fingerprint: newFingerprint,
		SessionID:   sess.ID,
		Platform:    old.Platform,
		UserAgent:   old.UserAgent,
		IsActive:    true,
		CreatedAt:   now,
		LastUsedAt:  now,
		ExpiresAt:   expiresAt,
	}, nil
}

// SweepExpiredRenewals deletes credentials past expires_at.
func (s *PostgresStore) SweepExpiredRenewals(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM markethub.renewal_credentials
		WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SweepStaleRenewals deletes inactive credentials unused longer than age.
func (s *PostgresStore) SweepStaleRenewals(ctx context.Context, now time.Time, age time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM markethub.renewal_credentials
		WHERE NOT is_active AND last_used_at < $1 - $2::interval
	`, now, age)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// AddRevocation appends a ledger entry.
func (s *PostgresStore) AddRevocation(ctx context.Context, e RevocationEntry) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertRevocationTx(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// IsRevoked reports whether a fingerprint has an entry whose original expiry
// is still in the future. Absence means not revoked.
func (s *PostgresStore) IsRevoked(ctx context.Context, fingerprint string, now time.Time) (bool, error) {
	var revoked bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM markethub.revocation_entries
			WHERE fingerprint = $1 AND original_expiry > $2
		)
	`, fingerprint, now).Scan(&revoked)
	if err != nil {
		return false, err
	}
	return revoked, nil
}

// SweepExpiredRevocations deletes entries whose original expiry has passed.
func (s *PostgresStore) SweepExpiredRevocations(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM markethub.revocation_entries
		WHERE original_expiry <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
