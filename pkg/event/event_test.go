// pkg/event/event_test.go
package event

import (
	"sync"
	"testing"

	"github.com/opd-ai/go-dogfight/pkg/entity"
)

// A handler that cancels its own subscription mid-publish must not stop
// the remaining handlers of that publish from running, and must not run
// again afterwards.
func TestBusPublish_CancelDuringPublish_FinishesCurrentDelivery(t *testing.T) {
	bus := NewEventBus()
	var order []string

	var first *Subscription
	first = bus.Subscribe(CommandApplied, func(Event) {
		order = append(order, "first")
		first.Cancel()
	})
	bus.Subscribe(CommandApplied, func(Event) {
		order = append(order, "second")
	})

	ev := NewCommandEvent(nil, "Alpha", "set_heading", 1, true)
	bus.Publish(ev)
	bus.Publish(ev)

	want := []string{"first", "second", "second"}
	if len(order) != len(want) {
		t.Fatalf("delivery order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("delivery %d = %q, want %q", i, order[i], want[i])
		}
	}
}

// A handler may subscribe another handler while a publish is in flight;
// the new handler only sees later events.
func TestBusPublish_SubscribeDuringPublish_StartsWithNextEvent(t *testing.T) {
	bus := NewEventBus()
	lateCalls := 0
	subscribed := false

	bus.Subscribe(TickCompleted, func(Event) {
		if !subscribed {
			subscribed = true
			bus.Subscribe(TickCompleted, func(Event) { lateCalls++ })
		}
	})

	snap := entity.NewSnapshot(1, false, nil)
	bus.Publish(NewTickEvent(nil, snap))
	if lateCalls != 0 {
		t.Fatalf("late handler saw the event that registered it")
	}
	bus.Publish(NewTickEvent(nil, snap))
	if lateCalls != 1 {
		t.Errorf("late handler calls = %d, want 1", lateCalls)
	}
}

// The engine only builds per-tick snapshots while TickCompleted has a
// listener, so HasSubscribers must follow Subscribe and Cancel exactly.
func TestBusHasSubscribers_FollowsTickListeners(t *testing.T) {
	bus := NewEventBus()
	if bus.HasSubscribers(TickCompleted) {
		t.Fatal("new bus should have no tick listeners")
	}

	recorder := bus.Subscribe(TickCompleted, func(Event) {})
	feed := bus.Subscribe(TickCompleted, func(Event) {})
	bus.Subscribe(CommandApplied, func(Event) {})

	recorder.Cancel()
	if !bus.HasSubscribers(TickCompleted) {
		t.Error("one tick listener remains after the first Cancel")
	}

	feed.Cancel()
	feed.Cancel()
	if bus.HasSubscribers(TickCompleted) {
		t.Error("expected no tick listeners after both cancelled")
	}
	if !bus.HasSubscribers(CommandApplied) {
		t.Error("cancelling tick listeners removed an unrelated subscription")
	}
}

func TestBusSubscribe_UniqueIDsAcrossTypes(t *testing.T) {
	bus := NewEventBus()
	seen := make(map[uint64]bool)
	for _, typ := range []Type{FighterAdded, FighterRejected, TickCompleted, FighterAdded} {
		sub := bus.Subscribe(typ, func(Event) {})
		if sub.Type != typ {
			t.Errorf("subscription type = %q, want %q", sub.Type, typ)
		}
		if seen[sub.ID] {
			t.Errorf("duplicate subscription id %d", sub.ID)
		}
		seen[sub.ID] = true
	}
}

// Feed goroutines subscribe and cancel while the engine publishes.
func TestBus_ConcurrentSubscribeCancelPublish(t *testing.T) {
	bus := NewEventBus()
	var mu sync.Mutex
	delivered := 0
	bus.Subscribe(TickCompleted, func(Event) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	snap := entity.NewSnapshot(3, false, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := bus.Subscribe(TickCompleted, func(Event) {})
			sub.Cancel()
		}()
		go func() {
			defer wg.Done()
			bus.Publish(NewTickEvent(nil, snap))
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if delivered != 8 {
		t.Errorf("permanent listener saw %d ticks, want 8", delivered)
	}
}

func TestNewFighterEvent_CarriesID(t *testing.T) {
	tests := []struct {
		typ Type
		id  string
	}{
		{FighterAdded, "Alpha"},
		{FighterRejected, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			ev := NewFighterEvent(tt.typ, "engine", tt.id)
			if ev.GetType() != tt.typ {
				t.Errorf("GetType() = %v, want %v", ev.GetType(), tt.typ)
			}
			if ev.GetSource() != "engine" {
				t.Errorf("GetSource() = %v, want engine", ev.GetSource())
			}
			if ev.FighterID != tt.id {
				t.Errorf("FighterID = %q, want %q", ev.FighterID, tt.id)
			}
		})
	}
}

func TestNewCommandEvent_Outcome_SelectsType(t *testing.T) {
	tests := []struct {
		name     string
		accepted bool
		want     Type
	}{
		{"accepted command", true, CommandApplied},
		{"rejected command", false, CommandRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := NewCommandEvent(nil, "Bravo", "set_heading", 12, tt.accepted)
			if ev.GetType() != tt.want {
				t.Errorf("GetType() = %v, want %v", ev.GetType(), tt.want)
			}
			if ev.Accepted() != tt.accepted {
				t.Errorf("Accepted() = %v, want %v", ev.Accepted(), tt.accepted)
			}
			if ev.Tick != 12 || ev.Kind != "set_heading" || ev.FighterID != "Bravo" {
				t.Errorf("unexpected payload: %+v", ev)
			}
		})
	}
}

// Only handlers for the published type run; a rejected command does not
// reach CommandApplied listeners.
func TestBusPublish_RoutesByCommandOutcome(t *testing.T) {
	bus := NewEventBus()
	applied, rejected := 0, 0
	bus.Subscribe(CommandApplied, func(Event) { applied++ })
	bus.Subscribe(CommandRejected, func(Event) { rejected++ })

	bus.Publish(NewCommandEvent(nil, "Alpha", "set_heading", 1, true))
	bus.Publish(NewCommandEvent(nil, "Ghost", "set_heading", 1, false))
	bus.Publish(NewCommandEvent(nil, "Ghost", "spawn", 2, false))

	if applied != 1 || rejected != 2 {
		t.Errorf("applied=%d rejected=%d, want 1 and 2", applied, rejected)
	}
}

func TestNewTickEvent_CarriesSnapshot(t *testing.T) {
	snap := entity.NewSnapshot(7, false, []*entity.Fighter{entity.NewFighter("Alpha")})
	ev := NewTickEvent(nil, snap)

	if ev.GetType() != TickCompleted {
		t.Errorf("GetType() = %v, want %v", ev.GetType(), TickCompleted)
	}
	if ev.Tick != 7 {
		t.Errorf("Tick = %d, want 7", ev.Tick)
	}
	if ev.Snapshot != snap {
		t.Error("Snapshot pointer not preserved")
	}
}

func TestNewLifecycleEvent_EndDetail(t *testing.T) {
	ev := NewLifecycleEvent(SimulationEnded, nil, 42, "context canceled")
	if ev.GetType() != SimulationEnded {
		t.Errorf("GetType() = %v, want %v", ev.GetType(), SimulationEnded)
	}
	if ev.Tick != 42 || ev.Detail != "context canceled" {
		t.Errorf("unexpected payload: %+v", ev)
	}
}
