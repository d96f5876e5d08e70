package session

import (
	"context"
	"net"
	"time"
)

// Platform represents the client platform associated with a session.
type Platform string

const (
	// PlatformWeb is a browser-based session.
	PlatformWeb Platform = "web"
	// PlatformIOS is an iOS native session.
	PlatformIOS Platform = "ios"
	// PlatformAndroid is an Android native session.
	PlatformAndroid Platform = "android"
	// PlatformDesktop is a desktop (macOS/Windows/Linux) session.
	PlatformDesktop Platform = "desktop"
	// PlatformUnknown is used when the client platform is not known.
	PlatformUnknown Platform = "unknown"
)

// DeviceContext describes the client device that owns a session.
type DeviceContext struct {
	Platform  Platform
	UserAgent string
	IP        net.IP
}

// RevocationReason explains why a fingerprint landed on the ledger.
type RevocationReason string

const (
	ReasonLogout   RevocationReason = "logout"
	ReasonRotation RevocationReason = "rotation"
	ReasonSecurity RevocationReason = "security"
)

// CredentialKind distinguishes ledger entries for access vs renewal credentials.
type CredentialKind string

const (
	KindAccess  CredentialKind = "access"
	KindRenewal CredentialKind = "renewal"
)

// Session mirrors the markethub.sessions row: one per logged-in device.
type Session struct {
	ID             string
	UserID         string
	Roles          []string
	Platform       Platform
	UserAgent      string
	IP             net.IP
	IsActive       bool
	RevokeReason   *string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
}

// Valid reports whether the session can still back credentials.
func (s Session) Valid(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

// RenewalCredential mirrors the markethub.renewal_credentials row.
// Only the fingerprint of the secret is ever stored.
type RenewalCredential struct {
	Fingerprint string
	SessionID   string
	Platform    Platform
	UserAgent   string
	IsActive    bool
	CreatedAt   time.Time
	LastUsedAt  time.Time
	ExpiresAt   time.Time
}

// RevocationEntry is one append-only denylist record.
// UserID/SessionID are optional linkage and may be empty.
type RevocationEntry struct {
	ID             string
	Fingerprint    string
	Kind           CredentialKind
	OriginalExpiry time.Time
	RevokedAt      time.Time
	Reason         RevocationReason
	UserID         string
	SessionID      string
}

// SessionStore persists session rows.
//
// DeactivateSession and DeactivateAllForUser must cascade: the session's
// active renewal credentials are deactivated and ledger-stamped in the same
// transaction, so a deactivated session can never leave a usable renewal
// credential behind.
type SessionStore interface {
	// CreateSession inserts a new active session with expires_at = now + ttl.
	CreateSession(ctx context.Context, now time.Time, userID string, roles []string, dev DeviceContext, ttl time.Duration) (Session, error)

	// GetSession loads a session row by ID.
	GetSession(ctx context.Context, sessionID string) (Session, error)

	// TouchSession advances last_activity_at. It never regresses the value and
	// is a no-op (not an error) on inactive sessions.
	TouchSession(ctx context.Context, now time.Time, sessionID string) error

	// DeactivateSession deactivates one session and revokes its renewal credentials.
	DeactivateSession(ctx context.Context, now time.Time, sessionID string, reason RevocationReason) error

	// DeactivateAllForUser deactivates every active session of a user, except
	// exceptSessionID when non-empty ("log out everywhere but here").
	DeactivateAllForUser(ctx context.Context, now time.Time, userID, exceptSessionID string, reason RevocationReason) (int64, error)

	// SweepExpiredSessions deletes sessions past expires_at, plus deactivated
	// sessions whose last activity is older than inactiveCutoff.
	SweepExpiredSessions(ctx context.Context, now time.Time, inactiveCutoff time.Duration) (int64, error)
}

// RenewalStore persists renewal credential rows.
type RenewalStore interface {
	// IssueRenewal inserts an active credential bound to sessionID.
	IssueRenewal(ctx context.Context, now time.Time, sessionID, fingerprint string, dev DeviceContext, ttl time.Duration) (RenewalCredential, error)

	// FindActiveRenewal returns the active credential for a fingerprint, or
	// ErrRenewalNotFound when absent or inactive.
	FindActiveRenewal(ctx context.Context, fingerprint string) (RenewalCredential, error)

	// FindRenewal returns the credential for a fingerprint in any state, or
	// ErrRenewalNotFound when the row is absent (never issued, or swept). A
	// deactivated row is returned as-is so callers can tell a rotated replay
	// apart from a dead session.
	FindRenewal(ctx context.Context, fingerprint string) (RenewalCredential, error)

	// RotateRenewal atomically deactivates oldFingerprint, ledger-stamps it
	// with reason=rotation, inserts a new credential for the same session, and
	// advances the session's activity. Returns ErrRenewalNotFound when the old
	// fingerprint has no active row, ErrSessionInactive when the owning session
	// can no longer back credentials.
	RotateRenewal(ctx context.Context, now time.Time, oldFingerprint, newFingerprint string, ttl time.Duration) (RenewalCredential, error)

	// SweepExpiredRenewals deletes credentials past expires_at.
	SweepExpiredRenewals(ctx context.Context, now time.Time) (int64, error)

	// SweepStaleRenewals deletes inactive credentials unused for longer than age.
	SweepStaleRenewals(ctx context.Context, now time.Time, age time.Duration) (int64, error)
}

// RevocationLedger is the append-only denylist.
//
// IsRevoked treats an absent entry as not revoked: entries whose original
// expiry has passed carry no information and may be physically gone.
type RevocationLedger interface {
	AddRevocation(ctx context.Context, e RevocationEntry) error
	IsRevoked(ctx context.Context, fingerprint string, now time.Time) (bool, error)
	SweepExpiredRevocations(ctx context.Context, now time.Time) (int64, error)
}

// Store is the full persistence surface the issuer needs.
type Store interface {
	SessionStore
	RenewalStore
	RevocationLedger
}
