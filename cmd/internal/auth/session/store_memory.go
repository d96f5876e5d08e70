package session

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore is an in-process Store used when no database is configured and
// as the substrate for the service tests. A single mutex makes every
// multi-row operation (rotation, cascading deactivation) atomic, mirroring
// the transactional guarantees of the Postgres store.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	renewals    map[string]*RenewalCredential // fingerprint -> credential
	revocations map[string][]RevocationEntry  // fingerprint -> entries
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*Session),
		renewals:    make(map[string]*RenewalCredential),
		revocations: make(map[string][]RevocationEntry),
	}
}

// CreateSession inserts a new active session row.
func (s *MemoryStore) CreateSession(ctx context.Context, now time.Time, userID string, roles []string, dev DeviceContext, ttl time.Duration) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := Session{
		ID:             ulid.Make().String(),
		UserID:         userID,
		Roles:          append([]string(nil), roles...),
		Platform:       dev.Platform,
		UserAgent:      dev.UserAgent,
		IP:             dev.IP,
		IsActive:       true,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
	}
	s.sessions[row.ID] = &row
	return row, nil
}

// GetSession loads a session row by ID.
func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *row, nil
}

// TouchSession advances last_activity_at (monotonic; no-op on inactive rows).
func (s *MemoryStore) TouchSession(ctx context.Context, now time.Time, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if !row.IsActive {
		return nil
	}
	if now.After(row.LastActivityAt) {
		row.LastActivityAt = now
	}
	return nil
}

// DeactivateSession deactivates one session and revokes its renewal credentials.
func (s *MemoryStore) DeactivateSession(ctx context.Context, now time.Time, sessionID string, reason RevocationReason) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.deactivateLocked(now, row, reason)
	return nil
}

// DeactivateAllForUser deactivates every active session of a user, honoring except.
func (s *MemoryStore) DeactivateAllForUser(ctx context.Context, now time.Time, userID, exceptSessionID string, reason RevocationReason) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, row := range s.sessions {
		if row.UserID != userID || !row.IsActive || row.ID == exceptSessionID {
			continue
		}
		s.deactivateLocked(now, row, reason)
		n++
	}
	return n, nil
}

// deactivateLocked applies the full cascade under the store lock.
func (s *MemoryStore) deactivateLocked(now time.Time, row *Session, reason RevocationReason) {
	if row.IsActive {
		row.IsActive = false
		r := string(reason)
		row.RevokeReason = &r
	}

	for _, cred := range s.renewals {
		if cred.SessionID != row.ID || !cred.IsActive {
			continue
		}
		cred.IsActive = false
		s.addRevocationLocked(RevocationEntry{
			Fingerprint:    cred.Fingerprint,
			Kind:           KindRenewal,
			OriginalExpiry: cred.ExpiresAt,
			RevokedAt:      now,
			Reason:         reason,
			UserID:         row.UserID,
			SessionID:      row.ID,
		})
	}
}

// SweepExpiredSessions deletes rows past expiry or deactivated and idle too long.
func (s *MemoryStore) SweepExpiredSessions(ctx context.Context, now time.Time, inactiveCutoff time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, row := range s.sessions {
		expired := !now.Before(row.ExpiresAt)
		staleInactive := !row.IsActive && inactiveCutoff > 0 && now.Sub(row.LastActivityAt) > inactiveCutoff
		if !expired && !staleInactive {
			continue
		}
		delete(s.sessions, id)
		// Mirror the Postgres ON DELETE CASCADE.
		for fp, cred := range s.renewals {
			if cred.SessionID == id {
				delete(s.renewals, fp)
			}
		}
		n++
	}
	return n, nil
}

// IssueRenewal inserts an active credential bound to sessionID.
func (s *MemoryStore) IssueRenewal(ctx context.Context, now time.Time, sessionID, fingerprint string, dev DeviceContext, ttl time.Duration) (RenewalCredential, error) {
	if err := ctx.Err(); err != nil {
		return RenewalCredential{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return RenewalCredential{}, ErrSessionNotFound
	}

	cred := RenewalCredential{
		Fingerprint: fingerprint,
		SessionID:   sessionID,
		Platform:    dev.Platform,
		UserAgent:   dev.UserAgent,
		IsActive:    true,
		CreatedAt:   now,
		LastUsedAt:  now,
		ExpiresAt:   now.Add(ttl),
	}
	s.renewals[fingerprint] = &cred
	return cred, nil
}

// FindActiveRenewal returns the active credential for a fingerprint.
func (s *MemoryStore) FindActiveRenewal(ctx context.Context, fingerprint string) (RenewalCredential, error) {
	if err := ctx.Err(); err != nil {
		return RenewalCredential{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.renewals[fingerprint]
	if !ok || !cred.IsActive {
		return RenewalCredential{}, ErrRenewalNotFound
	}
	return *cred, nil
}

// FindRenewal returns the credential for a fingerprint regardless of state.
func (s *MemoryStore) FindRenewal(ctx context.Context, fingerprint string) (RenewalCredential, error) {
	if err := ctx.Err(); err != nil {
		return RenewalCredential{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.renewals[fingerprint]
	if !ok {
		return RenewalCredential{}, ErrRenewalNotFound
	}
	return *cred, nil
}

// RotateRenewal performs the atomic rotation under the store lock.
func (s *MemoryStore) RotateRenewal(ctx context.Context, now time.Time, oldFingerprint, newFingerprint string, ttl time.Duration) (RenewalCredential, error) {
	if err := ctx.Err(); err != nil {
		return RenewalCredential{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.renewals[oldFingerprint]
	if !ok || !old.IsActive {
		return RenewalCredential{}, ErrRenewalNotFound
	}

	sess, ok := s.sessions[old.SessionID]
	if !ok || !sess.Valid(now) {
		return RenewalCredential{}, ErrSessionInactive
	}

	old.IsActive = false
	old.LastUsedAt = now
	s.addRevocationLocked(RevocationEntry{
		Fingerprint:    old.Fingerprint,
		Kind:           KindRenewal,
		OriginalExpiry: old.ExpiresAt,
		RevokedAt:      now,
		Reason:         ReasonRotation,
		UserID:         sess.UserID,
		SessionID:      sess.ID,
	})

	fresh := RenewalCredential{
		Fingerprint: newFingerprint,
		SessionID:   sess.ID,
		Platform:    old.Platform,
		UserAgent:   old.UserAgent,
		IsActive:    true,
		CreatedAt:   now,
		LastUsedAt:  now,
		ExpiresAt:   now.Add(ttl),
	}
	s.renewals[newFingerprint] = &fresh

	if now.After(sess.LastActivityAt) {
		sess.LastActivityAt = now
	}

	return fresh, nil
}

// SweepExpiredRenewals deletes credentials past expires_at.
func (s *MemoryStore) SweepExpiredRenewals(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for fp, cred := range s.renewals {
		if !now.Before(cred.ExpiresAt) {
			delete(s.renewals, fp)
			n++
		}
	}
	return n, nil
}

// SweepStaleRenewals deletes inactive credentials unused for longer than age.
func (s *MemoryStore) SweepStaleRenewals(ctx context.Context, now time.Time, age time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for fp, cred := range s.renewals {
		if !cred.IsActive && now.Sub(cred.LastUsedAt) > age {
			delete(s.renewals, fp)
			n++
		}
	}
	return n, nil
}

// AddRevocation appends a ledger entry.
func (s *MemoryStore) AddRevocation(ctx context.Context, e RevocationEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.addRevocationLocked(e)
	return nil
}

func (s *MemoryStore) addRevocationLocked(e RevocationEntry) {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	s.revocations[e.Fingerprint] = append(s.revocations[e.Fingerprint], e)
}

// IsRevoked reports whether a fingerprint has a still-relevant ledger entry.
func (s *MemoryStore) IsRevoked(ctx context.Context, fingerprint string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.revocations[fingerprint] {
		if e.OriginalExpiry.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// SweepExpiredRevocations deletes entries whose original expiry has passed.
func (s *MemoryStore) SweepExpiredRevocations(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for fp, entries := range s.revocations {
		kept := entries[:0]
		for _, e := range entries {
			if e.OriginalExpiry.After(now) {
				kept = append(kept, e)
			} else {
				n++
			}
		}
		if len(kept) == 0 {
			delete(s.revocations, fp)
		} else {
			s.revocations[fp] = kept
		}
	}
	return n, nil
}
