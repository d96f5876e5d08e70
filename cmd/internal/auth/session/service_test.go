package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Godswillconcept/markethub-sub002/cmd/identity"
)

func testService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()

	cfg := jwtTestConfig()
	mgr, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	verifier := identity.StaticVerifier{
		Users: map[string]string{"ada": "correct horse", "bob": "hunter2"},
		IDs:   map[string]string{"ada": "01HADA", "bob": "01HBOB"},
		Roles: map[string][]string{"ada": {"vendor"}, "bob": {"buyer"}},
	}

	st := NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(cfg, log, st, mgr, verifier), st
}

func TestService_LoginIssuesPair(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)
	now := time.Now().UTC()

	issued, err := svc.Login(ctx, now, identity.Assertion{Username: "ada", Password: "correct horse"}, testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if issued.SessionID == "" || issued.AccessToken == "" || issued.RenewalSecret == "" {
		t.Fatalf("incomplete issue: %+v", issued)
	}
	if issued.UserID != "01HADA" {
		t.Fatalf("user id %q", issued.UserID)
	}
	if !issued.RenewalExp.After(now) || !issued.AccessExp.After(now) {
		t.Fatalf("expiries not in the future")
	}

	claims, err := svc.ValidateAccessToken(ctx, issued.AccessToken, now.Add(time.Second))
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.SessionID != issued.SessionID || claims.UserID != "01HADA" {
		t.Fatalf("claims do not match issue: %+v", claims)
	}
}

func TestService_LoginRejectsBadAssertion(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)
	now := time.Now().UTC()

	for _, a := range []identity.Assertion{
		{Username: "ada", Password: "wrong"},
		{Username: "nobody", Password: "correct horse"},
	} {
		if _, err := svc.Login(ctx, now, a, testDevice); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Login(%q): expected ErrUnauthorized, got %v", a.Username, err)
		}
	}
}

func TestService_RenewRotatesSecret(t *testing.T) {
	ctx := context.Background()
	svc, st := testService(t)
	now := time.Now().UTC()

	issued, err := svc.Login(ctx, now, identity.Assertion{Username: "ada", Password: "correct horse"}, testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	later := now.Add(time.Minute)
	renewed, err := svc.Renew(ctx, later, issued.RenewalSecret, testDevice)
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if renewed.SessionID != issued.SessionID {
		t.Fatalf("renewal moved sessions: %q -> %q", issued.SessionID, renewed.SessionID)
	}
	if renewed.RenewalSecret == issued.RenewalSecret {
		t.Fatalf("secret was not rotated")
	}

	// The old secret is dead: both the active-set lookup and the ledger agree.
	if _, err := svc.Renew(ctx, later.Add(time.Second), issued.RenewalSecret, testDevice); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("replayed secret: expected ErrUnauthorized, got %v", err)
	}
	revoked, err := st.IsRevoked(ctx, fingerprintHex(issued.RenewalSecret), later)
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Fatalf("rotated fingerprint missing from the ledger")
	}

	// The rotated secret keeps working.
	if _, err := svc.Renew(ctx, later.Add(2*time.Second), renewed.RenewalSecret, testDevice); err != nil {
		t.Fatalf("Renew with rotated secret: %v", err)
	}
}

func TestService_RenewAfterLogoutIsSessionExpired(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)
	now := time.Now().UTC()

	issued, err := svc.Login(ctx, now, identity.Assertion{Username: "ada", Password: "correct horse"}, testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(ctx, now, issued.SessionID, ScopeThisSession); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := svc.Renew(ctx, now.Add(time.Second), issued.RenewalSecret, testDevice); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired after logout, got %v", err)
	}
}

func TestService_LogoutAllSessionsRevokesSiblings(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)
	now := time.Now().UTC()

	a := identity.Assertion{Username: "ada", Password: "correct horse"}
	tabA, err := svc.Login(ctx, now, a, testDevice)
	if err != nil {
		t.Fatalf("Login A: %v", err)
	}
	tabB, err := svc.Login(ctx, now, a, testDevice)
	if err != nil {
		t.Fatalf("Login B: %v", err)
	}

	if err := svc.Logout(ctx, now, tabA.SessionID, ScopeAllSessions); err != nil {
		t.Fatalf("Logout all: %v", err)
	}

	for name, secret := range map[string]string{"own": tabA.RenewalSecret, "sibling": tabB.RenewalSecret} {
		if _, err := svc.Renew(ctx, now.Add(time.Second), secret, testDevice); !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("%s session: expected ErrSessionExpired, got %v", name, err)
		}
	}
}

func TestService_ConcurrentRenewSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)
	now := time.Now().UTC()

	issued, err := svc.Login(ctx, now, identity.Assertion{Username: "ada", Password: "correct horse"}, testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	const attempts = 16
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Renew(ctx, now.Add(time.Second), issued.RenewalSecret, testDevice)
		}(i)
	}
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrUnauthorized):
		default:
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winning rotation, got %d", wins)
	}
}

func TestService_ValidateAccessTokenChecksSessionState(t *testing.T) {
	ctx := context.Background()
	svc, st := testService(t)
	now := time.Now().UTC()

	issued, err := svc.Login(ctx, now, identity.Assertion{Username: "bob", Password: "hunter2"}, testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Revoked session: token is cryptographically fine, session says no.
	if err := st.DeactivateSession(ctx, now, issued.SessionID, ReasonSecurity); err != nil {
		t.Fatalf("DeactivateSession: %v", err)
	}
	if _, err := svc.ValidateAccessToken(ctx, issued.AccessToken, now.Add(time.Second)); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}

	// Expired session on a second login: session outlived by validation time.
	issued2, err := svc.Login(ctx, now, identity.Assertion{Username: "bob", Password: "hunter2"}, testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	past := now.Add(svc.cfg.SessionTTL + time.Hour)
	if _, err := svc.ValidateAccessToken(ctx, issued2.AccessToken, past); err == nil {
		t.Fatalf("expected failure for token past session expiry")
	}
}

func TestService_RevokeAllForUserKeepsExcept(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)
	now := time.Now().UTC()

	a := identity.Assertion{Username: "ada", Password: "correct horse"}
	keep, _ := svc.Login(ctx, now, a, testDevice)
	drop, _ := svc.Login(ctx, now, a, testDevice)

	n, err := svc.RevokeAllForUser(ctx, now, "01HADA", keep.SessionID)
	if err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 revoked session, got %d", n)
	}

	if _, err := svc.Renew(ctx, now.Add(time.Second), keep.RenewalSecret, testDevice); err != nil {
		t.Fatalf("kept session must still renew: %v", err)
	}
	if _, err := svc.Renew(ctx, now.Add(time.Second), drop.RenewalSecret, testDevice); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("revoked session: expected ErrSessionExpired, got %v", err)
	}
}

func TestService_SweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)
	now := time.Now().UTC()

	if _, err := svc.Login(ctx, now, identity.Assertion{Username: "ada", Password: "correct horse"}, testDevice); err != nil {
		t.Fatalf("Login: %v", err)
	}

	far := now.Add(svc.cfg.SessionTTL + svc.cfg.InactiveRetention + time.Hour)
	rep, err := svc.Sweep(ctx, far)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if rep.Sessions != 1 {
		t.Fatalf("expected 1 swept session, got %d", rep.Sessions)
	}

	rep, err = svc.Sweep(ctx, far)
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if rep.Sessions != 0 || rep.Renewals != 0 || rep.Revocations != 0 {
		t.Fatalf("second sweep removed rows: %+v", rep)
	}
}

type captureSink struct {
	mu      sync.Mutex
	events  []string
	revoked []string
}

func (c *captureSink) SessionLoggedOut(userID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, userID+"/"+sessionID)
}

func (c *captureSink) SessionsRevoked(userID, exceptSessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked = append(c.revoked, userID+"/"+exceptSessionID)
}

func TestService_LogoutNotifiesSink(t *testing.T) {
	ctx := context.Background()

	cfg := jwtTestConfig()
	mgr, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	verifier := identity.StaticVerifier{Users: map[string]string{"ada": "pw"}}
	sink := &captureSink{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(cfg, log, NewMemoryStore(), mgr, verifier, WithEventSink(sink))

	now := time.Now().UTC()
	issued, err := svc.Login(ctx, now, identity.Assertion{Username: "ada", Password: "pw"}, testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(ctx, now, issued.SessionID, ScopeThisSession); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	want := "ada/" + issued.SessionID
	if len(sink.events) != 1 || sink.events[0] != want {
		t.Fatalf("sink saw %v, want [%s]", sink.events, want)
	}
}

func TestService_LogoutAllNotifiesWithoutSessionScope(t *testing.T) {
	ctx := context.Background()

	cfg := jwtTestConfig()
	mgr, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	verifier := identity.StaticVerifier{Users: map[string]string{"ada": "pw"}}
	sink := &captureSink{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(cfg, log, NewMemoryStore(), mgr, verifier, WithEventSink(sink))

	now := time.Now().UTC()
	issued, err := svc.Login(ctx, now, identity.Assertion{Username: "ada", Password: "pw"}, testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.Login(ctx, now, identity.Assertion{Username: "ada", Password: "pw"}, testDevice); err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if err := svc.Logout(ctx, now, issued.SessionID, ScopeAllSessions); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	// An unscoped notification: every session of the user ended.
	if len(sink.events) != 1 || sink.events[0] != "ada/" {
		t.Fatalf("sink saw %v, want [ada/]", sink.events)
	}
}

func TestService_RevokeAllNotifiesWithSurvivor(t *testing.T) {
	ctx := context.Background()

	cfg := jwtTestConfig()
	mgr, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	verifier := identity.StaticVerifier{Users: map[string]string{"ada": "pw"}}
	sink := &captureSink{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(cfg, log, NewMemoryStore(), mgr, verifier, WithEventSink(sink))

	now := time.Now().UTC()
	kept, err := svc.Login(ctx, now, identity.Assertion{Username: "ada", Password: "pw"}, testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.Login(ctx, now, identity.Assertion{Username: "ada", Password: "pw"}, testDevice); err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if _, err := svc.RevokeAllForUser(ctx, now, kept.UserID, kept.SessionID); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 0 {
		t.Fatalf("logout notifications for a revocation: %v", sink.events)
	}
	want := kept.UserID + "/" + kept.SessionID
	if len(sink.revoked) != 1 || sink.revoked[0] != want {
		t.Fatalf("sink saw %v, want [%s]", sink.revoked, want)
	}
}
