package events

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), 8)
}

func recvEvent(t *testing.T, tab *Tab) Event {
	t.Helper()
	select {
	case ev := <-tab.Send:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("tab %s: no event delivered", tab.TabID)
		return Event{}
	}
}

func assertNoEvent(t *testing.T, tab *Tab) {
	t.Helper()
	select {
	case ev := <-tab.Send:
		t.Fatalf("tab %s: unexpected event %+v", tab.TabID, ev)
	default:
	}
}

func TestHub_PublishExcludesOriginator(t *testing.T) {
	h := testHub()
	a := h.Subscribe("user-1", "sess-1", "tab-a")
	b := h.Subscribe("user-1", "sess-1", "tab-b")
	other := h.Subscribe("user-2", "sess-9", "tab-a")

	now := time.Now().UTC()
	h.Publish("user-1", Event{Kind: KindRenewed, Access: "tok", TS: now, Tab: "tab-a"})

	got := recvEvent(t, b)
	if got.Kind != KindRenewed || got.Access != "tok" {
		t.Fatalf("delivered %+v", got)
	}
	assertNoEvent(t, a)
	assertNoEvent(t, other)
}

func TestHub_LogoutSinkReachesEveryTab(t *testing.T) {
	h := testHub()
	a := h.Subscribe("user-1", "sess-1", "tab-a")
	b := h.Subscribe("user-1", "sess-1", "tab-b")

	h.SessionLoggedOut("user-1", "sess-1")

	for _, tab := range []*Tab{a, b} {
		got := recvEvent(t, tab)
		if got.Kind != KindLogout {
			t.Fatalf("tab %s: kind %q", tab.TabID, got.Kind)
		}
	}
}

func TestHub_LogoutScopedToOneSession(t *testing.T) {
	h := testHub()
	a := h.Subscribe("user-1", "sess-a", "tab-1")
	b := h.Subscribe("user-1", "sess-b", "tab-2")

	h.SessionLoggedOut("user-1", "sess-a")

	got := recvEvent(t, a)
	if got.Kind != KindLogout || got.SessionID != "sess-a" {
		t.Fatalf("delivered %+v", got)
	}
	// The user's other live session must not see a logout.
	assertNoEvent(t, b)
}

func TestHub_LogoutAllSessionsReachesEverySession(t *testing.T) {
	h := testHub()
	a := h.Subscribe("user-1", "sess-a", "tab-1")
	b := h.Subscribe("user-1", "sess-b", "tab-2")

	h.SessionLoggedOut("user-1", "")

	for _, tab := range []*Tab{a, b} {
		got := recvEvent(t, tab)
		if got.Kind != KindLogout {
			t.Fatalf("tab %s: kind %q", tab.TabID, got.Kind)
		}
	}
}

func TestHub_SessionsRevokedSparesExceptedSession(t *testing.T) {
	h := testHub()
	kept := h.Subscribe("user-1", "sess-keep", "tab-1")
	gone := h.Subscribe("user-1", "sess-gone", "tab-2")

	h.SessionsRevoked("user-1", "sess-keep")

	got := recvEvent(t, gone)
	if got.Kind != KindLogout {
		t.Fatalf("delivered %+v", got)
	}
	assertNoEvent(t, kept)
}

func TestHub_RenewedScopedToOwnSession(t *testing.T) {
	h := testHub()
	sibling := h.Subscribe("user-1", "sess-a", "tab-2")
	other := h.Subscribe("user-1", "sess-b", "tab-3")

	h.Publish("user-1", Event{
		Kind:      KindRenewed,
		SessionID: "sess-a",
		Access:    "tok",
		TS:        time.Now().UTC(),
		Tab:       "tab-1",
	})

	got := recvEvent(t, sibling)
	if got.Access != "tok" {
		t.Fatalf("delivered %+v", got)
	}
	assertNoEvent(t, other)
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	h := testHub()
	a := h.Subscribe("user-1", "sess-1", "tab-a")
	b := h.Subscribe("user-1", "sess-1", "tab-b")
	h.Unsubscribe(b)

	select {
	case <-b.Done():
	default:
		t.Fatalf("unsubscribed tab not closed")
	}

	h.Publish("user-1", Event{Kind: KindLogout, TS: time.Now().UTC()})
	recvEvent(t, a)
	assertNoEvent(t, b)
}

func TestHub_ResubscribeReplacesTab(t *testing.T) {
	h := testHub()
	old := h.Subscribe("user-1", "sess-1", "tab-a")
	fresh := h.Subscribe("user-1", "sess-1", "tab-a")

	select {
	case <-old.Done():
	default:
		t.Fatalf("replaced tab not closed")
	}

	h.Publish("user-1", Event{Kind: KindLogout, TS: time.Now().UTC()})
	recvEvent(t, fresh)
}

func TestHub_FullQueueDoesNotBlock(t *testing.T) {
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), 1)
	tab := h.Subscribe("user-1", "sess-1", "tab-a")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			h.Publish("user-1", Event{Kind: KindLogout, TS: time.Now().UTC()})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a full queue")
	}
	recvEvent(t, tab)
}

func TestEvent_Validate(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name string
		ev   Event
		ok   bool
	}{
		{"renewed with access", Event{Kind: KindRenewed, Access: "tok", TS: now}, true},
		{"renewed without access", Event{Kind: KindRenewed, TS: now}, false},
		{"logout", Event{Kind: KindLogout, TS: now}, true},
		{"unknown kind", Event{Kind: "explode", TS: now}, false},
		{"missing ts", Event{Kind: KindLogout}, false},
	}
	for _, tc := range cases {
		err := tc.ev.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
