package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"rankkit/core"
)

func TestHubSubscribeBroadcastUnsubscribe(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)

	ev := core.NewScoreModified("weekly", "bob", 10, 10)
	h.Broadcast(context.Background(), ev)

	received := <-ch
	if received.Name != "bob" || received.Type != core.EventScoreModified {
		t.Fatalf("unexpected event: %+v", received)
	}

	h.Unsubscribe(id)
	_, ok := <-ch
	if ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.Subscribers())
	}
}

func TestHubBoardFilter(t *testing.T) {
	h := NewHub()
	_, weekly := h.Subscribe(4, "weekly")
	_, all := h.Subscribe(4)

	h.Broadcast(context.Background(), core.NewScoreSet("daily", "a", 1))
	h.Broadcast(context.Background(), core.NewScoreSet("weekly", "b", 2))

	if len(weekly) != 1 || (<-weekly).Board != "weekly" {
		t.Fatal("weekly subscriber should only see weekly events")
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber should see 2 events, got %d", len(all))
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub()
	_, ch := h.Subscribe(1)
	h.Broadcast(context.Background(), core.NewBoardCleared("b"))
	h.Broadcast(context.Background(), core.NewBoardCleared("b"))
	if len(ch) != 1 || h.Dropped() != 1 {
		t.Fatalf("len=%d dropped=%d", len(ch), h.Dropped())
	}
}

func TestMarshalJSON(t *testing.T) {
	ev := core.NewScoreSet("weekly", "alice", 42.5)
	b := MarshalJSON(ev)
	var out core.Event
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Name != "alice" || out.Score != 42.5 || out.Board != "weekly" {
		t.Fatalf("unexpected event: %+v", out)
	}
}
