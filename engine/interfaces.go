package engine

import (
	"context"

	"rankkit/core"
)

// Publisher accepts mutation events. EventBus and Service implement it.
type Publisher interface {
	Publish(ctx context.Context, ev core.Event)
}

// Subscriber registers event handlers.
type Subscriber interface {
	Subscribe(typ core.EventType, handler Handler) func()
	SubscribeAll(handler Handler) func()
}

// BoardInfo describes a declared board.
type BoardInfo struct {
	Name     string        `json:"name"`
	Polarity core.Polarity `json:"polarity"`
}
