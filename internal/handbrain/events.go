package handbrain

import (
	"context"
	"time"
)

// EventType names a committed change to a game.
type EventType string

const (
	EventGameCreated  EventType = "game_created"
	EventPlayerJoined EventType = "player_joined"
	EventSuggestion   EventType = "suggestion"
	EventMove         EventType = "move"
	EventGameDeleted  EventType = "game_deleted"
)

// Event is published after the change it describes has been committed.
// Game is the snapshot after the change and is nil for deletions.
type Event struct {
	Type       EventType   `json:"type"`
	GameID     string      `json:"game_id"`
	Game       *Game       `json:"game,omitempty"`
	Suggestion *Suggestion `json:"suggestion,omitempty"`
	Move       *Move       `json:"move,omitempty"`
	At         time.Time   `json:"at"`
}

// Publisher fans events out to observers. Publish must not block on slow
// observers and has no way to fail the operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	if e.events == nil {
		return
	}
	ev.At = e.now()
	e.events.Publish(ctx, ev)
}
