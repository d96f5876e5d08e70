package events

import (
	"log/slog"
	"sync"
	"time"
)

// Tab represents one connected subscriber: a single browser tab or client
// process of a user.
//
// Send is intentionally NOT closed by the hub to keep concurrent publishers
// safe; done signals the owning goroutines to stop, and Close is idempotent.
type Tab struct {
	UserID    string
	SessionID string
	TabID     string
	Send      chan Event

	done      chan struct{}
	closeOnce sync.Once
}

// Done returns a channel closed when the tab is shutting down.
func (t *Tab) Done() <-chan struct{} {
	if t == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.done
}

// Close signals the tab's goroutines to stop (idempotent). It does NOT close
// Send so a racing Publish never panics.
func (t *Tab) Close() {
	if t == nil {
		return
	}
	t.closeOnce.Do(func() {
		close(t.done)
	})
}

// Hub fans session events out to every connected tab of a user, excluding
// the tab that originated the event.
type Hub struct {
	log           *slog.Logger
	sendQueueSize int

	mu     sync.RWMutex
	byUser map[string]map[string]*Tab
}

// NewHub constructs a Hub.
func NewHub(log *slog.Logger, sendQueueSize int) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Hub{
		log:           log,
		sendQueueSize: sendQueueSize,
		byUser:        make(map[string]map[string]*Tab),
	}
}

// Subscribe registers a tab for a user's session and returns its handle. A
// second subscription with the same tab id replaces the first; the old
// handle is closed so its connection loop exits.
func (h *Hub) Subscribe(userID, sessionID, tabID string) *Tab {
	t := &Tab{
		UserID:    userID,
		SessionID: sessionID,
		TabID:     tabID,
		Send:      make(chan Event, h.sendQueueSize),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	tabs, ok := h.byUser[userID]
	if !ok {
		tabs = make(map[string]*Tab)
		h.byUser[userID] = tabs
	}
	old := tabs[tabID]
	tabs[tabID] = t
	h.mu.Unlock()

	old.Close()
	return t
}

// Unsubscribe removes a tab. Safe to call for a tab already replaced.
func (h *Hub) Unsubscribe(t *Tab) {
	if t == nil {
		return
	}

	h.mu.Lock()
	if tabs, ok := h.byUser[t.UserID]; ok {
		if tabs[t.TabID] == t {
			delete(tabs, t.TabID)
		}
		if len(tabs) == 0 {
			delete(h.byUser, t.UserID)
		}
	}
	h.mu.Unlock()

	t.Close()
}

// Publish delivers ev to every tab of userID except the one named by ev.Tab.
// A non-empty ev.SessionID restricts delivery to that session's tabs.
// Delivery is best-effort: a tab with a full queue is skipped, never blocked
// on.
func (h *Hub) Publish(userID string, ev Event) {
	h.publish(userID, ev, func(t *Tab) bool {
		if t.TabID == ev.Tab {
			return false
		}
		if ev.SessionID != "" && t.SessionID != "" && t.SessionID != ev.SessionID {
			return false
		}
		return true
	})
}

func (h *Hub) publish(userID string, ev Event, keep func(*Tab) bool) {
	h.mu.RLock()
	tabs := make([]*Tab, 0, len(h.byUser[userID]))
	for _, t := range h.byUser[userID] {
		if !keep(t) {
			continue
		}
		tabs = append(tabs, t)
	}
	h.mu.RUnlock()

	for _, t := range tabs {
		select {
		case t.Send <- ev:
		case <-t.Done():
		default:
			h.log.Info("events.publish.drop", "user_id", userID, "tab", t.TabID, "kind", ev.Kind)
		}
	}
}

// SessionLoggedOut lets the hub serve as the issuer's event sink: a logout
// that commits server-side is pushed to the affected tabs, no originator
// excluded. A non-empty sessionID reaches only that session's tabs; empty
// means every session of the user ended.
func (h *Hub) SessionLoggedOut(userID, sessionID string) {
	h.Publish(userID, Event{
		Kind:      KindLogout,
		SessionID: sessionID,
		TS:        time.Now().UTC(),
	})
}

// SessionsRevoked covers forced revocation with a survivor: every tab of the
// user is told to log out except tabs of exceptSessionID.
func (h *Hub) SessionsRevoked(userID, exceptSessionID string) {
	ev := Event{Kind: KindLogout, TS: time.Now().UTC()}
	h.publish(userID, ev, func(t *Tab) bool {
		return exceptSessionID == "" || t.SessionID != exceptSessionID
	})
}
