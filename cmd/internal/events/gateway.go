package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/Godswillconcept/markethub-sub002/cmd/internal/auth/session"
)

const (
	wsSubprotocol = "markethub.events.v1"

	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 16

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 5 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsDefaultHeartbeatEvery   = 30 * time.Second
	wsDefaultHeartbeatTimeout = 10 * time.Second
	wsMaxPingFailures         = 3

	wsMaxFrameBytes = 32 << 10

	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// TokenValidator authenticates the bearer token presented on the websocket
// upgrade. *session.Service satisfies it.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string, now time.Time) (session.AccessClaims, error)
}

// Gateway is the websocket entrypoint for the session event relay.
//
// Each connection is one tab of one user. Inbound frames are validated and
// fanned out through the Hub; outbound frames are events other tabs of the
// same user published.
type Gateway struct {
	log    *slog.Logger
	hub    *Hub
	tokens TokenValidator

	originRequired bool
	allowedOrigins []string
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration
}

// NewGateway constructs a Gateway with secure defaults.
func NewGateway(log *slog.Logger, hub *Hub, tokens TokenValidator) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if hub == nil {
		hub = NewHub(log, envIntWS("MARKETHUB_WS_SEND_QUEUE", wsDefaultSendQueueSize))
	}

	g := &Gateway{log: log, hub: hub, tokens: tokens}

	g.originRequired = envBoolWS("MARKETHUB_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("MARKETHUB_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)
	// websocket.Accept enforces its own origin policy: same-host is ok,
	// cross-origin requires OriginPatterns. Derive them from the allowlist so
	// the two layers agree.
	g.originPatterns = deriveOriginPatterns(g.allowedOrigins)

	g.writeTimeout = envDurationWS("MARKETHUB_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("MARKETHUB_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)
	g.heartbeatEvery = envDurationWS("MARKETHUB_WS_HEARTBEAT_INTERVAL", wsDefaultHeartbeatEvery)
	g.heartbeatTimeout = envDurationWS("MARKETHUB_WS_HEARTBEAT_TIMEOUT", wsDefaultHeartbeatTimeout)

	return g
}

// Hub returns the gateway's hub so it can double as the issuer's event sink.
func (g *Gateway) Hub() *Hub {
	if g == nil {
		return nil
	}
	return g.hub
}

// ServeHTTP adapter so the gateway can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS authenticates and upgrades the request, then runs the relay loop.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := g.authenticate(w, r)
	if !ok {
		return
	}

	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("events.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	tabID := strings.TrimSpace(r.URL.Query().Get("tab"))
	if tabID == "" {
		tabID = ulid.Make().String()
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{wsSubprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("events.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocol {
		g.log.Info("events.reject.subprotocol", "got", sp, "want", wsSubprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(wsMaxFrameBytes)

	tab := g.hub.Subscribe(claims.UserID, claims.SessionID, tabID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unsubscribe(tab)
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-tab.Done():
				return
			case ev := <-tab.Send:
				if err := writeEvent(ctx, conn, ev, g.writeTimeout); err != nil {
					g.log.Info("events.write.fail", "user_id", claims.UserID, "tab", tabID, "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-tab.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		ev, err := readEvent(readCtx, conn)
		readCancel()

		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				shutdown(websocket.StatusNormalClosure, "peer closed")
			} else {
				g.log.Info("events.read.fail", "user_id", claims.UserID, "tab", tabID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		// The relay trusts the connection's identity, never the frame's.
		ev.Tab = tabID
		ev.SessionID = claims.SessionID
		if ev.TS.IsZero() {
			ev.TS = time.Now().UTC()
		}
		if err := ev.Validate(); err != nil {
			g.log.Info("events.reject.frame", "user_id", claims.UserID, "tab", tabID, "err", err)
			continue readLoop
		}

		g.hub.Publish(claims.UserID, ev)
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

func (g *Gateway) authenticate(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	token := bearerToken(r)
	if token == "" {
		// Browsers cannot set headers on websocket upgrades; accept the token
		// as a query parameter there.
		token = strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if token == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return session.AccessClaims{}, false
	}

	claims, err := g.tokens.ValidateAccessToken(r.Context(), token, time.Now().UTC())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return session.AccessClaims{}, false
	}
	return claims, true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errOriginRequired
		}
		return nil
	}
	for _, allowed := range g.allowedOrigins {
		if originMatches(origin, allowed) {
			return nil
		}
	}
	return errOriginForbidden
}

func originMatches(origin, allowed string) bool {
	o, err := url.Parse(origin)
	if err != nil {
		return false
	}
	a, err := url.Parse(allowed)
	if err != nil {
		return false
	}
	if !strings.EqualFold(o.Scheme, a.Scheme) {
		return false
	}
	if !strings.EqualFold(o.Hostname(), a.Hostname()) {
		return false
	}
	// An allowlist entry without a port admits any port on that host.
	if a.Port() != "" && o.Port() != a.Port() {
		return false
	}
	return true
}

func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	patterns := make([]string, 0, len(allowed))
	for _, a := range allowed {
		u, err := url.Parse(a)
		if err != nil || u.Hostname() == "" {
			continue
		}
		host := u.Hostname()
		if u.Port() != "" {
			host = host + ":" + u.Port()
		} else {
			host = host + ":*"
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		patterns = append(patterns, host, u.Hostname())
	}
	return patterns
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev Event, timeout time.Duration) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, b)
}

func readEvent(ctx context.Context, conn *websocket.Conn) (Event, error) {
	var ev Event
	_, b, err := conn.Read(ctx)
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(b, &ev); err != nil {
		return ev, err
	}
	return ev, nil
}

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key, def string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		v = def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
