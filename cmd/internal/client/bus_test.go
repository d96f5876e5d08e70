package client

import (
	"context"
	"testing"
	"time"

	"github.com/Godswillconcept/markethub-sub002/cmd/internal/events"
)

func TestMemoryBusExcludesOriginator(t *testing.T) {
	bus := NewMemoryBus()

	var gotA, gotB []events.Event
	bus.Subscribe("tab-a", func(ev events.Event) { gotA = append(gotA, ev) })
	bus.Subscribe("tab-b", func(ev events.Event) { gotB = append(gotB, ev) })

	ev := events.Event{Kind: events.KindRenewed, Access: "tok", TS: time.Now(), Tab: "tab-a"}
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(gotA) != 0 {
		t.Fatalf("originator received its own event")
	}
	if len(gotB) != 1 || gotB[0].Access != "tok" {
		t.Fatalf("sibling delivery = %+v", gotB)
	}
}

func TestMemoryBusCancelStopsDelivery(t *testing.T) {
	bus := NewMemoryBus()

	var got int
	cancel := bus.Subscribe("tab-b", func(events.Event) { got++ })
	cancel()

	if err := bus.Publish(context.Background(), events.Event{Kind: events.KindLogout, Tab: "tab-a"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got != 0 {
		t.Fatalf("cancelled subscriber still received %d events", got)
	}
}

func TestMemoryBusHonorsContext(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bus.Publish(ctx, events.Event{Kind: events.KindLogout, Tab: "tab-a"}); err == nil {
		t.Fatalf("expected context error")
	}
}
