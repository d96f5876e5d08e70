package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Godswillconcept/markethub-sub002/cmd/identity"
)

// LogoutScope selects how far a logout reaches.
type LogoutScope string

const (
	// ScopeThisSession ends only the calling session.
	ScopeThisSession LogoutScope = "this_session"
	// ScopeAllSessions ends every session of the user.
	ScopeAllSessions LogoutScope = "all_sessions"
)

// Issued is the result of login or renewal: a short-lived access token and
// an opaque renewal secret. The secret leaves the server exactly once, here.
type Issued struct {
	SessionID     string
	UserID        string
	Roles         []string
	AccessToken   string
	AccessExp     time.Time
	RenewalSecret string
	RenewalExp    time.Time
}

// SweepReport counts rows removed by one sweep pass.
type SweepReport struct {
	Sessions    int64
	Renewals    int64
	Revocations int64
}

// EventSink is notified after a logout or revocation commits, so connected
// tabs of the affected sessions can be told without polling. An empty
// sessionID means every session of the user ended. Implementations must not
// block.
type EventSink interface {
	SessionLoggedOut(userID, sessionID string)
	SessionsRevoked(userID, exceptSessionID string)
}

type nopSink struct{}

func (nopSink) SessionLoggedOut(string, string) {}
func (nopSink) SessionsRevoked(string, string)  {}

// Service is the token issuer: the only place login, renewal and logout
// semantics live. Clients never construct credentials themselves.
type Service struct {
	cfg      Config
	log      *slog.Logger
	store    Store
	tokens   AccessTokenManager
	verifier identity.Verifier
	metrics  *Metrics
	events   EventSink
}

// ServiceOption configures optional Service dependencies.
type ServiceOption func(*Service)

// WithMetrics attaches issuer metrics.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithEventSink attaches a session event sink.
func WithEventSink(sink EventSink) ServiceOption {
	return func(s *Service) {
		if sink != nil {
			s.events = sink
		}
	}
}

// NewService constructs a Service.
func NewService(cfg Config, log *slog.Logger, store Store, tokens AccessTokenManager, verifier identity.Verifier, opts ...ServiceOption) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		cfg:      cfg,
		log:      log,
		store:    store,
		tokens:   tokens,
		verifier: verifier,
		events:   nopSink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Service) renewalTTL(dev DeviceContext) time.Duration {
	switch dev.Platform {
	case PlatformIOS, PlatformAndroid, PlatformDesktop:
		return s.cfg.RenewalTTLNative
	default:
		// Browsers and unknown platforms get the shorter policy.
		return s.cfg.RenewalTTLWeb
	}
}

// Login validates the identity assertion, creates a session, and issues an
// access + renewal credential pair.
func (s *Service) Login(ctx context.Context, now time.Time, a identity.Assertion, dev DeviceContext) (Issued, error) {
	id, err := s.verifier.Verify(ctx, a)
	if err != nil {
		if errors.Is(err, identity.ErrBadAssertion) {
			s.metrics.login("unauthorized")
			return Issued{}, ErrUnauthorized
		}
		s.metrics.login("error")
		return Issued{}, err
	}

	sess, err := s.store.CreateSession(ctx, now, id.UserID, id.Roles, dev, s.cfg.SessionTTL)
	if err != nil {
		s.metrics.login("error")
		return Issued{}, err
	}

	secret, fingerprint, err := newRenewalSecret(s.cfg.RenewalSecretBytes)
	if err != nil {
		return Issued{}, err
	}

	renewalTTL := s.renewalTTL(dev)
	cred, err := s.store.IssueRenewal(ctx, now, sess.ID, fingerprint, dev, renewalTTL)
	if err != nil {
		s.metrics.login("error")
		return Issued{}, err
	}

	accessToken, accessExp, err := s.tokens.Issue(id.UserID, id.Roles, sess.ID, now)
	if err != nil {
		return Issued{}, err
	}

	s.metrics.login("ok")
	return Issued{
		SessionID:     sess.ID,
		UserID:        id.UserID,
		Roles:         id.Roles,
		AccessToken:   accessToken,
		AccessExp:     accessExp,
		RenewalSecret: secret,
		RenewalExp:    cred.ExpiresAt,
	}, nil
}

// Renew exchanges a renewal secret for a fresh credential pair, rotating the
// secret. Exactly one concurrent attempt per fingerprint can succeed; losers
// see ErrUnauthorized because the fingerprint they presented is already
// inactive.
func (s *Service) Renew(ctx context.Context, now time.Time, renewalSecret string, dev DeviceContext) (Issued, error) {
	renewalSecret = strings.TrimSpace(renewalSecret)
	// Basic sanity bounds to avoid pathological inputs.
	if renewalSecret == "" || len(renewalSecret) > 4096 {
		s.metrics.renewal("unauthorized")
		return Issued{}, ErrUnauthorized
	}

	// Fingerprint in-memory; the raw secret is never persisted or logged.
	fingerprint := fingerprintHex(renewalSecret)

	// State-agnostic lookup so a dead session can be told apart from a
	// rotated replay. An absent row (never issued, or swept) is a plain
	// bad credential.
	cred, err := s.store.FindRenewal(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, ErrRenewalNotFound) {
			s.metrics.renewal("unauthorized")
			return Issued{}, ErrUnauthorized
		}
		return Issued{}, err
	}

	// The owning session decides first: logout and forced revocation
	// deactivate it in the same transaction that kills the credential, so
	// any credential under a dead session reports the session, not itself.
	sess, err := s.store.GetSession(ctx, cred.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			s.metrics.renewal("session_expired")
			return Issued{}, ErrSessionExpired
		}
		return Issued{}, err
	}
	if !sess.Valid(now) {
		s.metrics.renewal("session_expired")
		return Issued{}, ErrSessionExpired
	}

	// Session alive but credential inactive: a rotation replay.
	if !cred.IsActive {
		s.metrics.renewal("revoked")
		return Issued{}, ErrUnauthorized
	}

	revoked, err := s.store.IsRevoked(ctx, fingerprint, now)
	if err != nil {
		return Issued{}, err
	}
	if revoked {
		s.metrics.renewal("revoked")
		return Issued{}, ErrUnauthorized
	}

	if !cred.ExpiresAt.After(now) {
		s.metrics.renewal("unauthorized")
		return Issued{}, ErrUnauthorized
	}

	newSecret, newFingerprint, err := newRenewalSecret(s.cfg.RenewalSecretBytes)
	if err != nil {
		return Issued{}, err
	}

	fresh, err := s.store.RotateRenewal(ctx, now, fingerprint, newFingerprint, s.renewalTTL(dev))
	if err != nil {
		switch {
		case errors.Is(err, ErrRenewalNotFound):
			// Lost a rotation race: the replay defense, not an internal error.
			s.metrics.renewal("conflict")
			return Issued{}, ErrUnauthorized
		case errors.Is(err, ErrSessionInactive):
			s.metrics.renewal("session_expired")
			return Issued{}, ErrSessionExpired
		default:
			s.metrics.renewal("error")
			return Issued{}, err
		}
	}

	accessToken, accessExp, err := s.tokens.Issue(sess.UserID, sess.Roles, sess.ID, now)
	if err != nil {
		return Issued{}, err
	}

	s.metrics.renewal("ok")
	return Issued{
		SessionID:     sess.ID,
		UserID:        sess.UserID,
		Roles:         sess.Roles,
		AccessToken:   accessToken,
		AccessExp:     accessExp,
		RenewalSecret: newSecret,
		RenewalExp:    fresh.ExpiresAt,
	}, nil
}

// Logout ends the calling session, or every session of its user when scope
// is ScopeAllSessions. The store cascades: renewal credentials are
// deactivated and ledger-stamped in the same transaction.
func (s *Service) Logout(ctx context.Context, now time.Time, sessionID string, scope LogoutScope) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	switch scope {
	case ScopeAllSessions:
		n, err := s.store.DeactivateAllForUser(ctx, now, sess.UserID, "", ReasonLogout)
		if err != nil {
			return err
		}
		s.metrics.revocation(ReasonLogout, n)
		s.events.SessionLoggedOut(sess.UserID, "")
		s.log.Info("auth.logout.all", "user_id", sess.UserID, "sessions", n)
		return nil
	default:
		if err := s.store.DeactivateSession(ctx, now, sessionID, ReasonLogout); err != nil {
			return err
		}
		s.metrics.revocation(ReasonLogout, 1)
		s.events.SessionLoggedOut(sess.UserID, sessionID)
		return nil
	}
}

// RevokeAllForUser force-ends every session of a user (password change,
// security event). exceptSessionID, when non-empty, keeps one session alive
// ("log out everywhere but here").
func (s *Service) RevokeAllForUser(ctx context.Context, now time.Time, userID, exceptSessionID string) (int64, error) {
	n, err := s.store.DeactivateAllForUser(ctx, now, userID, exceptSessionID, ReasonSecurity)
	if err != nil {
		return 0, err
	}
	s.metrics.revocation(ReasonSecurity, n)
	s.events.SessionsRevoked(userID, exceptSessionID)
	return n, nil
}

// ValidateAccessToken verifies an access token and ensures the backing
// session is still active. The server is the sole authority on liveness.
func (s *Service) ValidateAccessToken(ctx context.Context, token string, now time.Time) (AccessClaims, error) {
	claims, err := s.tokens.Verify(token, now)
	if err != nil {
		return AccessClaims{}, err
	}

	sess, err := s.store.GetSession(ctx, claims.SessionID)
	if err != nil {
		return AccessClaims{}, err
	}
	if sess.UserID != claims.UserID {
		return AccessClaims{}, ErrInvalidToken
	}
	if !sess.IsActive {
		return AccessClaims{}, ErrSessionRevoked
	}
	if !sess.ExpiresAt.After(now) {
		return AccessClaims{}, ErrSessionExpired
	}

	return claims, nil
}

// TouchSession records activity on a session (best-effort).
func (s *Service) TouchSession(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.TouchSession(ctx, now, sessionID)
}

// Sweep removes expired sessions, renewal credentials and moot ledger
// entries. Safe to call repeatedly; a second pass with no new expirations
// removes nothing.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var rep SweepReport

	n, err := s.store.SweepExpiredSessions(ctx, now, s.cfg.InactiveRetention)
	if err != nil {
		return rep, err
	}
	rep.Sessions = n
	s.metrics.swept("sessions", n)

	n, err = s.store.SweepExpiredRenewals(ctx, now)
	if err != nil {
		return rep, err
	}
	rep.Renewals = n

	stale, err := s.store.SweepStaleRenewals(ctx, now, s.cfg.InactiveRetention)
	if err != nil {
		return rep, err
	}
	rep.Renewals += stale
	s.metrics.swept("renewals", rep.Renewals)

	n, err = s.store.SweepExpiredRevocations(ctx, now)
	if err != nil {
		return rep, err
	}
	rep.Revocations = n
	s.metrics.swept("revocations", n)

	return rep, nil
}
