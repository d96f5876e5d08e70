package session

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
)

// row scanners shared by pool and tx paths.

type pgxRow interface {
	Scan(dest ...any) error
}

func scanSession(r pgxRow) (Session, error) {
	var (
		row      Session
		platform string
		ua       *string
		ip       net.IP
	)
	err := r.Scan(
		&row.ID,
		&row.UserID,
		&row.Roles,
		&platform,
		&ua,
		&ip,
		&row.IsActive,
		&row.RevokeReason,
		&row.CreatedAt,
		&row.LastActivityAt,
		&row.ExpiresAt,
	)
	if err != nil {
		return Session{}, err
	}
	row.Platform = Platform(platform)
	if ua != nil {
		row.UserAgent = *ua
	}
	row.IP = ip
	return row, nil
}

func scanRenewal(r pgxRow) (RenewalCredential, error) {
	var (
		cred     RenewalCredential
		platform string
		ua       *string
	)
	err := r.Scan(
		&cred.Fingerprint,
		&cred.SessionID,
		&platform,
		&ua,
		&cred.IsActive,
		&cred.CreatedAt,
		&cred.LastUsedAt,
		&cred.ExpiresAt,
	)
	if err != nil {
		return RenewalCredential{}, err
	}
	cred.Platform = Platform(platform)
	if ua != nil {
		cred.UserAgent = *ua
	}
	return cred, nil
}

// getActiveRenewalForUpdateTx loads and locks the active renewal row for a
// fingerprint. Locking serializes concurrent rotations of the same secret:
// the loser re-reads an inactive row and gets ErrRenewalNotFound.
func getActiveRenewalForUpdateTx(ctx context.Context, tx pgx.Tx, fingerprint string) (RenewalCredential, error) {
	cred, err := scanRenewal(tx.QueryRow(ctx, `
		SELECT fingerprint, session_id, platform, user_agent,
		       is_active, created_at, last_used_at, expires_at
		FROM markethub.renewal_credentials
		WHERE fingerprint = $1 AND is_active
		FOR UPDATE
	`, fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return RenewalCredential{}, ErrRenewalNotFound
	}
	if err != nil {
		return RenewalCredential{}, err
	}
	return cred, nil
}

// getSessionForUpdateTx loads and locks a session row, serializing rotation
// against concurrent deactivation of the same session.
func getSessionForUpdateTx(ctx context.Context, tx pgx.Tx, sessionID string) (Session, error) {
	row, err := scanSession(tx.QueryRow(ctx, `
		SELECT id, user_id, roles, platform, user_agent, ip,
		       is_active, revoke_reason, created_at, last_activity_at, expires_at
		FROM markethub.sessions
		WHERE id = $1
		FOR UPDATE
	`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return row, nil
}

func insertRevocationTx(ctx context.Context, tx pgx.Tx, e RevocationEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO markethub.revocation_entries (
			id, fingerprint, kind, original_expiry, revoked_at, reason, user_id, session_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.Fingerprint, string(e.Kind), e.OriginalExpiry, e.RevokedAt, string(e.Reason),
		nullIfEmpty(e.UserID), nullIfEmpty(e.SessionID))
	return err
}

// deactivateSessionTx applies the full deactivation cascade for one session:
// session flagged inactive, active renewal credentials flagged inactive and
// ledger-stamped. Idempotent on already-inactive sessions.
func deactivateSessionTx(ctx context.Context, tx pgx.Tx, now time.Time, sessionID string, reason RevocationReason) error {
	sess, err := getSessionForUpdateTx(ctx, tx, sessionID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE markethub.sessions
		SET is_active = FALSE,
		    revoke_reason = COALESCE(revoke_reason, $2)
		WHERE id = $1
	`, sessionID, string(reason)); err != nil {
		return err
	}

	rows, err := tx.Query(ctx, `
		SELECT fingerprint, expires_at
		FROM markethub.renewal_credentials
		WHERE session_id = $1 AND is_active
		FOR UPDATE
	`, sessionID)
	if err != nil {
		return err
	}
	type fpExp struct {
		fp  string
		exp time.Time
	}
	creds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (fpExp, error) {
		var v fpExp
		err := row.Scan(&v.fp, &v.exp)
		return v, err
	})
	if err != nil {
		return err
	}

	for _, c := range creds {
		if err := insertRevocationTx(ctx, tx, RevocationEntry{
			ID:             ulid.Make().String(),
			Fingerprint:    c.fp,
			Kind:           KindRenewal,
			OriginalExpiry: c.exp,
			RevokedAt:      now,
			Reason:         reason,
			UserID:         sess.UserID,
			SessionID:      sessionID,
		}); err != nil {
			return err
		}
	}

	if len(creds) > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE markethub.renewal_credentials
			SET is_active = FALSE, last_used_at = $2
			WHERE session_id = $1 AND is_active
		`, sessionID, now); err != nil {
			return err
		}
	}

	return nil
}
