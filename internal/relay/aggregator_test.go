package relay

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/tgmirror/internal/config"
)

func TestAggregatorFlushesAfterQuiescence(t *testing.T) {
	units := make(chan *SendUnit, 4)
	agg := NewAggregator(20*time.Millisecond, func(u *SendUnit) { units <- u })

	route := config.Route{SourceChatID: -1, TargetChatID: -2}
	for i := 1; i <= 3; i++ {
		agg.Add(Message{ID: i, ChatID: -1, GroupID: "g1", Media: []Media{{Kind: "photo", FileID: "f"}}}, route)
	}

	select {
	case u := <-units:
		if u.Kind != UnitGrouped {
			t.Errorf("Kind = %q, want %q", u.Kind, UnitGrouped)
		}
		if u.GroupID != "g1" {
			t.Errorf("GroupID = %q, want g1", u.GroupID)
		}
		if len(u.Messages) != 3 {
			t.Fatalf("got %d messages, want 3", len(u.Messages))
		}
		for i, m := range u.Messages {
			if m.ID != i+1 {
				t.Errorf("messages[%d].ID = %d, arrival order lost", i, m.ID)
			}
		}
	case <-time.After(time.Second):
		t.Fatal("album never flushed")
	}

	if agg.Pending() != 0 {
		t.Errorf("Pending = %d after flush, want 0", agg.Pending())
	}
}

func TestAggregatorTimerResetOnArrival(t *testing.T) {
	units := make(chan *SendUnit, 4)
	agg := NewAggregator(60*time.Millisecond, func(u *SendUnit) { units <- u })

	route := config.Route{SourceChatID: -1, TargetChatID: -2}
	agg.Add(Message{ID: 1, ChatID: -1, GroupID: "g1"}, route)
	time.Sleep(30 * time.Millisecond)
	agg.Add(Message{ID: 2, ChatID: -1, GroupID: "g1"}, route)

	// 30ms after the second item the original window has elapsed but the
	// rearmed one has not.
	select {
	case <-units:
		t.Fatal("flushed before the rearmed window elapsed")
	case <-time.After(30 * time.Millisecond):
	}

	select {
	case u := <-units:
		if len(u.Messages) != 2 {
			t.Errorf("got %d messages, want 2", len(u.Messages))
		}
	case <-time.After(time.Second):
		t.Fatal("album never flushed")
	}
}

func TestAggregatorSeparateBuffersPerTarget(t *testing.T) {
	units := make(chan *SendUnit, 4)
	agg := NewAggregator(20*time.Millisecond, func(u *SendUnit) { units <- u })

	routeA := config.Route{SourceChatID: -1, TargetChatID: -2}
	routeB := config.Route{SourceChatID: -1, TargetChatID: -3}
	agg.Add(Message{ID: 1, ChatID: -1, GroupID: "g1"}, routeA)
	agg.Add(Message{ID: 1, ChatID: -1, GroupID: "g1"}, routeB)

	if agg.Pending() != 2 {
		t.Errorf("Pending = %d, want one buffer per target", agg.Pending())
	}

	targets := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case u := <-units:
			targets[u.Route.Key()] = true
		case <-time.After(time.Second):
			t.Fatal("album never flushed")
		}
	}
	if !targets["-2"] || !targets["-3"] {
		t.Errorf("flushed targets = %v, want both -2 and -3", targets)
	}
}

func TestAggregatorDistinctGroups(t *testing.T) {
	units := make(chan *SendUnit, 4)
	agg := NewAggregator(20*time.Millisecond, func(u *SendUnit) { units <- u })

	route := config.Route{SourceChatID: -1, TargetChatID: -2}
	agg.Add(Message{ID: 1, ChatID: -1, GroupID: "g1"}, route)
	agg.Add(Message{ID: 2, ChatID: -1, GroupID: "g2"}, route)

	got := map[string]int{}
	for i := 0; i < 2; i++ {
		select {
		case u := <-units:
			got[u.GroupID] = len(u.Messages)
		case <-time.After(time.Second):
			t.Fatal("album never flushed")
		}
	}
	if got["g1"] != 1 || got["g2"] != 1 {
		t.Errorf("flushed groups = %v, want g1 and g2 with one item each", got)
	}
}
