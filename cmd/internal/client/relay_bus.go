package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Godswillconcept/markethub-sub002/cmd/internal/events"
)

const (
	relaySubprotocol  = "markethub.events.v1"
	relayWriteTimeout = 5 * time.Second
)

// RelayBus is a Bus backed by the server's /events websocket gateway. The
// server excludes the originating tab, so cross-process tabs of one user
// share a channel without any client-side fanout logic.
type RelayBus struct {
	log   *slog.Logger
	conn  *websocket.Conn
	tabID string

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	next int
	subs map[int]func(events.Event)

	closeOnce sync.Once
	readDone  chan struct{}
}

// DialRelay connects to the events gateway. baseURL is the http(s) server
// base; accessToken authenticates the upgrade; tabID names this tab.
func DialRelay(ctx context.Context, log *slog.Logger, baseURL, accessToken, tabID string) (*RelayBus, error) {
	if log == nil {
		log = slog.Default()
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/events")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("access_token", accessToken)
	q.Set("tab", tabID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{relaySubprotocol},
	})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b := &RelayBus{
		log:      log,
		conn:     conn,
		tabID:    tabID,
		ctx:      runCtx,
		cancel:   cancel,
		subs:     make(map[int]func(events.Event)),
		readDone: make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

// Publish sends ev to the gateway; the server fans it out to sibling tabs.
func (b *RelayBus) Publish(ctx context.Context, ev events.Event) error {
	ev.Tab = b.tabID
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, relayWriteTimeout)
	defer cancel()
	return b.conn.Write(wctx, websocket.MessageText, body)
}

// Subscribe registers fn for relayed sibling events. tabID is ignored: the
// server already excluded this tab as originator.
func (b *RelayBus) Subscribe(_ string, fn func(events.Event)) (cancel func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Close tears the connection down and stops the read loop.
func (b *RelayBus) Close() {
	b.closeOnce.Do(func() {
		b.cancel()
		_ = b.conn.Close(websocket.StatusNormalClosure, "bye")
		<-b.readDone
	})
}

func (b *RelayBus) readLoop() {
	defer close(b.readDone)

	for {
		_, body, err := b.conn.Read(b.ctx)
		if err != nil {
			if b.ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				b.log.Info("client.relay.read.fail", "tab", b.tabID, "err", err)
			}
			return
		}

		var ev events.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			b.log.Info("client.relay.bad_frame", "tab", b.tabID, "err", err)
			continue
		}

		b.mu.RLock()
		fns := make([]func(events.Event), 0, len(b.subs))
		for _, fn := range b.subs {
			fns = append(fns, fn)
		}
		b.mu.RUnlock()

		for _, fn := range fns {
			fn(ev)
		}
	}
}
