package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Godswillconcept/markethub-sub002/cmd/internal/events"
)

// Doer sends business requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Coordinator makes the access/renewal distinction invisible to callers
// while guaranteeing at most one renewal attempt is in flight per tab.
//
// One instance per tab. All mutable coordination state (the renewing flag,
// the waiter queue, the credential epoch) lives on the instance so tests can
// run independent coordinators without cross-test leakage.
type Coordinator struct {
	log    *slog.Logger
	cfg    Config
	issuer Issuer
	http   Doer
	bus    Bus
	store  StateStore
	tabID  string

	now          func() time.Time
	sleep        func(context.Context, time.Duration) error
	onSessionEnd func(error)
	unsubscribe  func()

	mu         sync.Mutex
	hasSession bool
	access     string
	accessExp  time.Time
	state      TabState
	epoch      uint64
	renewing   bool
	waiters    []chan renewResult
}

type renewResult struct {
	access string
	err    error
}

// CoordinatorOption configures optional Coordinator dependencies.
type CoordinatorOption func(*Coordinator)

// WithHTTPClient overrides the business-call transport.
func WithHTTPClient(d Doer) CoordinatorOption {
	return func(c *Coordinator) {
		if d != nil {
			c.http = d
		}
	}
}

// WithBus attaches the cross-tab broadcast channel.
func WithBus(b Bus) CoordinatorOption {
	return func(c *Coordinator) {
		if b != nil {
			c.bus = b
		}
	}
}

// WithStateStore overrides the tab state persistence.
func WithStateStore(s StateStore) CoordinatorOption {
	return func(c *Coordinator) {
		if s != nil {
			c.store = s
		}
	}
}

// WithTabID fixes the tab identity instead of generating one.
func WithTabID(id string) CoordinatorOption {
	return func(c *Coordinator) {
		if id != "" {
			c.tabID = id
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSleep overrides the backoff sleeper. Tests use this to run the retry
// loop without real delays.
func WithSleep(sleep func(context.Context, time.Duration) error) CoordinatorOption {
	return func(c *Coordinator) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithOnSessionEnd registers the host application callback fired after a
// terminal failure or a sibling logout, always after local state is cleared.
func WithOnSessionEnd(fn func(error)) CoordinatorOption {
	return func(c *Coordinator) {
		if fn != nil {
			c.onSessionEnd = fn
		}
	}
}

// NewCoordinator constructs a Coordinator and resumes any persisted tab
// state. A resumed tab has no access credential in memory; its first call
// renews.
func NewCoordinator(log *slog.Logger, cfg Config, issuer Issuer, opts ...CoordinatorOption) (*Coordinator, error) {
	if log == nil {
		log = slog.Default()
	}
	if issuer == nil {
		return nil, errors.New("client: nil issuer")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultConfig().AttemptTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}

	c := &Coordinator{
		log:          log,
		cfg:          cfg,
		issuer:       issuer,
		http:         http.DefaultClient,
		bus:          nopBus{},
		store:        NewMemoryStateStore(),
		tabID:        ulid.Make().String(),
		now:          func() time.Time { return time.Now().UTC() },
		sleep:        sleepCtx,
		onSessionEnd: func(error) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	state, ok, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("client: load tab state: %w", err)
	}
	if ok && state.RenewalSecret != "" {
		c.state = state
		c.hasSession = true
	}

	c.unsubscribe = c.bus.Subscribe(c.tabID, c.onBusEvent)
	return c, nil
}

// TabID returns this coordinator's tab identity.
func (c *Coordinator) TabID() string {
	return c.tabID
}

// Close detaches the coordinator from the bus and rejects queued waiters.
// Persisted state is kept so the tab can resume.
func (c *Coordinator) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.mu.Lock()
	c.renewing = false
	c.drainWaitersLocked(renewResult{err: ErrSessionEnded})
	c.mu.Unlock()
}

// AdoptSession installs freshly issued credentials (login). It resets the
// credential epoch so a stale in-flight renewal cannot clobber them.
func (c *Coordinator) AdoptSession(creds Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hasSession = true
	c.access = creds.AccessToken
	c.accessExp = creds.AccessExp
	c.state = TabState{
		SessionID:      creds.SessionID,
		RenewalSecret:  creds.RenewalSecret,
		RenewalExp:     creds.RenewalExp,
		LastActivityAt: c.now(),
	}
	c.epoch++
	return c.store.Save(c.state)
}

// Do sends an authenticated request. On an authorization failure it joins or
// starts the single-flight renewal, then retries the request once with the
// fresh credential. Non-authorization responses are returned as-is.
func (c *Coordinator) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	access, err := c.currentAccess(ctx)
	if err != nil {
		return nil, err
	}

	resp, doErr := c.send(ctx, req, access)
	switch Classify(resp, doErr) {
	case OutcomeUnauthorized:
		drainAndClose(resp)
	case OutcomeSessionExpired:
		drainAndClose(resp)
		c.terminate(ErrSessionExpired)
		return nil, ErrSessionExpired
	case OutcomeSuccess:
		c.touchActivity()
		return resp, nil
	default:
		return resp, doErr
	}

	access, err = c.renewOrJoin(ctx, access)
	if err != nil {
		return nil, err
	}

	resp, doErr = c.send(ctx, req, access)
	switch Classify(resp, doErr) {
	case OutcomeUnauthorized:
		// A fresh credential rejected twice is a server-side verdict.
		drainAndClose(resp)
		c.terminate(ErrUnauthorized)
		return nil, ErrUnauthorized
	case OutcomeSessionExpired:
		drainAndClose(resp)
		c.terminate(ErrSessionExpired)
		return nil, ErrSessionExpired
	case OutcomeSuccess:
		c.touchActivity()
		return resp, nil
	default:
		return resp, doErr
	}
}

// Logout ends the session server-side, clears local state, and broadcasts
// so sibling tabs converge. Local state is cleared even when the server
// call fails.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.mu.Lock()
	if !c.hasSession {
		c.mu.Unlock()
		return ErrNoSession
	}
	access := c.access
	sessionID := c.state.SessionID
	c.mu.Unlock()

	err := c.issuer.Logout(ctx, access)

	c.clearSession(ErrSessionEnded)
	_ = c.bus.Publish(ctx, events.Event{
		Kind:      events.KindLogout,
		SessionID: sessionID,
		TS:        c.now(),
		Tab:       c.tabID,
	})
	return err
}

// ---- renewal ----

// currentAccess returns a usable access credential, renewing first when the
// held one is absent, past expiry, or stale under the inactivity window.
func (c *Coordinator) currentAccess(ctx context.Context) (string, error) {
	c.mu.Lock()
	if !c.hasSession {
		c.mu.Unlock()
		return "", ErrNoSession
	}
	now := c.now()
	stale := c.access == "" ||
		(!c.accessExp.IsZero() && !now.Before(c.accessExp)) ||
		(c.cfg.InactivityWindow > 0 && now.Sub(c.state.LastActivityAt) > c.cfg.InactivityWindow)
	access := c.access
	c.mu.Unlock()
	if !stale {
		return access, nil
	}

	return c.renewOrJoin(ctx, access)
}

// renewOrJoin is the single-flight gate: the first caller renews, everyone
// else waits for that outcome. staleAccess is the credential the caller saw
// fail (or found stale); if the held credential already differs, a concurrent
// renewal or sibling broadcast has happened and its result is used instead.
func (c *Coordinator) renewOrJoin(ctx context.Context, staleAccess string) (string, error) {
	c.mu.Lock()
	if !c.hasSession {
		c.mu.Unlock()
		return "", ErrSessionEnded
	}
	if c.renewing {
		ch := make(chan renewResult, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case res := <-ch:
			return res.access, res.err
		case <-ctx.Done():
			c.removeWaiter(ch)
			return "", ctx.Err()
		}
	}
	if c.access != "" && c.access != staleAccess {
		access := c.access
		c.mu.Unlock()
		return access, nil
	}
	c.renewing = true
	startEpoch := c.epoch
	secret := c.state.RenewalSecret
	sessionID := c.state.SessionID
	c.mu.Unlock()

	return c.renewLoop(ctx, secret, sessionID, startEpoch)
}

func (c *Coordinator) renewLoop(ctx context.Context, secret, sessionID string, startEpoch uint64) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.cfg.backoff(attempt)); err != nil {
				return c.abortRenewal(err)
			}
		}

		actx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		creds, err := c.issuer.Renew(actx, secret, sessionID)
		cancel()

		if err == nil {
			return c.adoptRenewed(ctx, creds)
		}

		switch {
		case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrSessionExpired):
			// A sibling's renewed broadcast may have superseded this race
			// loss; only then is the failure non-terminal.
			if access, ok := c.supersededBySibling(startEpoch); ok {
				c.log.Info("client.renew.superseded", "tab", c.tabID)
				return access, nil
			}
			c.terminate(err)
			return "", err
		default:
			if ctx.Err() != nil {
				return c.abortRenewal(ctx.Err())
			}
			lastErr = err
			c.log.Info("client.renew.retry", "tab", c.tabID, "attempt", attempt, "err", err)
		}
	}

	err := fmt.Errorf("%w: %v", ErrRenewalExhausted, lastErr)
	c.terminate(err)
	return "", err
}

// adoptRenewed installs the rotated credentials, releases waiters, and
// broadcasts to sibling tabs.
func (c *Coordinator) adoptRenewed(ctx context.Context, creds Credentials) (string, error) {
	c.mu.Lock()
	if !c.hasSession {
		// A logout landed while the renewal round-trip was in flight. The
		// rotated credentials are dropped; installing or persisting them
		// would resurrect a session that is already dead everywhere else.
		c.renewing = false
		c.drainWaitersLocked(renewResult{err: ErrSessionEnded})
		c.mu.Unlock()
		return "", ErrSessionEnded
	}
	c.access = creds.AccessToken
	c.accessExp = creds.AccessExp
	c.state.RenewalSecret = creds.RenewalSecret
	c.state.RenewalExp = creds.RenewalExp
	if creds.SessionID != "" {
		c.state.SessionID = creds.SessionID
	}
	c.state.LastActivityAt = c.now()
	c.epoch++
	if err := c.store.Save(c.state); err != nil {
		c.log.Error("client.state.save.fail", "tab", c.tabID, "err", err)
	}
	sessionID := c.state.SessionID
	c.renewing = false
	c.drainWaitersLocked(renewResult{access: creds.AccessToken})
	c.mu.Unlock()

	_ = c.bus.Publish(ctx, events.Event{
		Kind:      events.KindRenewed,
		SessionID: sessionID,
		Access:    creds.AccessToken,
		AccessExp: creds.AccessExp,
		TS:        c.now(),
		Tab:       c.tabID,
	})
	return creds.AccessToken, nil
}

// supersededBySibling reports whether the credential epoch advanced since
// the renewal started, i.e. a sibling's broadcast already installed a fresh
// access credential.
func (c *Coordinator) supersededBySibling(startEpoch uint64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasSession || c.epoch == startEpoch || c.access == "" {
		return "", false
	}
	access := c.access
	c.renewing = false
	c.drainWaitersLocked(renewResult{access: access})
	return access, true
}

// abortRenewal releases the single-flight gate on cancellation without
// clearing credentials: cancellation is not an auth verdict.
func (c *Coordinator) abortRenewal(cause error) (string, error) {
	c.mu.Lock()
	c.renewing = false
	c.drainWaitersLocked(renewResult{err: cause})
	c.mu.Unlock()
	return "", cause
}

// ---- session end ----

// terminate clears all local credential state and notifies the host. A
// second terminate is a no-op.
func (c *Coordinator) terminate(cause error) {
	if !c.clearSession(cause) {
		return
	}
	c.onSessionEnd(cause)
}

// clearSession wipes memory and persisted state, rejecting queued waiters
// with cause; reports whether a session was actually ended.
func (c *Coordinator) clearSession(cause error) bool {
	c.mu.Lock()
	had := c.hasSession
	c.hasSession = false
	c.access = ""
	c.accessExp = time.Time{}
	c.state = TabState{}
	c.renewing = false
	c.drainWaitersLocked(renewResult{err: cause})
	c.mu.Unlock()

	if had {
		if err := c.store.Clear(); err != nil {
			c.log.Error("client.state.clear.fail", "tab", c.tabID, "err", err)
		}
	}
	return had
}

// ---- bus ----

// onBusEvent applies a sibling tab's broadcast. Events scoped to a session
// this tab does not belong to are ignored, so another session's logout never
// clears a live session's state here.
func (c *Coordinator) onBusEvent(ev events.Event) {
	switch ev.Kind {
	case events.KindRenewed:
		c.mu.Lock()
		if !c.hasSession || !c.sameSessionLocked(ev.SessionID) {
			c.mu.Unlock()
			return
		}
		c.access = ev.Access
		c.accessExp = ev.AccessExp
		c.state.LastActivityAt = c.now()
		c.epoch++
		if err := c.store.Save(c.state); err != nil {
			c.log.Error("client.state.save.fail", "tab", c.tabID, "err", err)
		}
		c.mu.Unlock()
	case events.KindLogout:
		c.mu.Lock()
		match := c.hasSession && c.sameSessionLocked(ev.SessionID)
		c.mu.Unlock()
		if !match {
			return
		}
		c.terminate(ErrSessionEnded)
	}
}

func (c *Coordinator) sameSessionLocked(sessionID string) bool {
	return sessionID == "" || c.state.SessionID == "" || sessionID == c.state.SessionID
}

// ---- plumbing ----

func (c *Coordinator) send(ctx context.Context, req *http.Request, access string) (*http.Response, error) {
	out, err := cloneRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	out.Header.Set("Authorization", "Bearer "+access)
	if sid := c.sessionID(); sid != "" {
		out.Header.Set("X-Session-Id", sid)
	}
	return c.http.Do(out)
}

func (c *Coordinator) sessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.SessionID
}

func (c *Coordinator) touchActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasSession {
		return
	}
	now := c.now()
	if now.After(c.state.LastActivityAt) {
		c.state.LastActivityAt = now
		if err := c.store.Save(c.state); err != nil {
			c.log.Error("client.state.save.fail", "tab", c.tabID, "err", err)
		}
	}
}

func (c *Coordinator) removeWaiter(ch chan renewResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) drainWaitersLocked(res renewResult) {
	for _, ch := range c.waiters {
		ch <- res
	}
	c.waiters = nil
}

// cloneRequest produces a sendable copy so the original can be retried; a
// consumed body is rewound through GetBody.
func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	out := req.Clone(ctx)
	if req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("client: request body is not replayable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func drainAndClose(resp *http.Response) {
	if resp == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
