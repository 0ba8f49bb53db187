package core

import "time"

// EventType enumerates leaderboard mutation events.
type EventType string

const (
	EventScoreSet      EventType = "score_set"
	EventScoreModified EventType = "score_modified"
	EventEntryRemoved  EventType = "entry_removed"
	EventBoardCleared  EventType = "board_cleared"
)

// Event represents an immutable mutation event.
type Event struct {
	Type  EventType `json:"type"`
	Time  time.Time `json:"time"`
	Board string    `json:"board"`
	Name  string    `json:"name,omitempty"`
	Score float64   `json:"score,omitempty"`
	Delta float64   `json:"delta,omitempty"`
}

func NewScoreSet(board, name string, score float64) Event {
	return Event{Type: EventScoreSet, Time: time.Now().UTC(), Board: board, Name: name, Score: score}
}

func NewScoreModified(board, name string, delta, score float64) Event {
	return Event{Type: EventScoreModified, Time: time.Now().UTC(), Board: board, Name: name, Delta: delta, Score: score}
}

func NewEntryRemoved(board, name string) Event {
	return Event{Type: EventEntryRemoved, Time: time.Now().UTC(), Board: board, Name: name}
}

func NewBoardCleared(board string) Event {
	return Event{Type: EventBoardCleared, Time: time.Now().UTC(), Board: board}
}
