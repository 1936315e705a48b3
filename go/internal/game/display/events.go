package display

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/kenoboard/go/internal/game"
	"github.com/mcdev12/kenoboard/go/internal/game/stream"
)

// Event is the envelope for everything pushed to board clients
type Event struct {
	ID        string          `json:"id"`        // Event UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload

	// Version is the store version the event was built from, 0 for events not
	// derived from the store. Boards skip game events older than their welcome.
	Version uint64 `json:"version,omitempty"`
}

// EventType represents the type of board event
type EventType string

const (
	EventTypeGameState       EventType = "GameState"
	EventTypeHighlight       EventType = "Highlight"
	EventTypeConnectionState EventType = "ConnectionState"
)

// GameStatePayload is sent on connect and after every store mutation.
type GameStatePayload struct {
	Kind     game.MutationKind `json:"kind,omitempty"`
	HasGame  bool              `json:"has_game"`
	Game     game.Snapshot     `json:"game"`
	Heads    int               `json:"heads"`
	Tails    int               `json:"tails"`
	TimeLeft string            `json:"time_left"`
	Archived *int64            `json:"archived_game_id,omitempty"`
}

// HighlightPayload marks a newly drawn pick for the board animation
type HighlightPayload struct {
	GameID   int64     `json:"game_id"`
	Pick     int       `json:"pick"`
	At       time.Time `json:"at"`
	WindowMs int64     `json:"window_ms"`
}

// ConnectionStatePayload mirrors the upstream connection state
type ConnectionStatePayload struct {
	State      stream.ConnState `json:"state"`
	RetryCount int              `json:"retry_count"`
	DelayMs    int64            `json:"delay_ms,omitempty"`
	Error      string           `json:"error,omitempty"`
	At         time.Time        `json:"at"`
}

// NewEvent wraps payload in an envelope stamped with now
func NewEvent(t EventType, payload any, now time.Time) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: now,
		Data:      data,
	}, nil
}

func gameStatePayload(kind game.MutationKind, snap game.Snapshot, hasGame bool, now time.Time) GameStatePayload {
	return GameStatePayload{
		Kind:     kind,
		HasGame:  hasGame,
		Game:     snap,
		Heads:    snap.Heads(),
		Tails:    snap.Tails(),
		TimeLeft: snap.FormatTimeLeft(now),
	}
}

func connectionStatePayload(c stream.StateChange) ConnectionStatePayload {
	p := ConnectionStatePayload{
		State:      c.State,
		RetryCount: c.RetryCount,
		DelayMs:    c.Delay.Milliseconds(),
		At:         c.At,
	}
	if c.Err != nil {
		p.Error = c.Err.Error()
	}
	return p
}

// ParseEventPayload decodes the data of a board event into its payload struct.
func ParseEventPayload(event *Event) (any, error) {
	switch event.Type {
	case EventTypeGameState:
		var payload GameStatePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeHighlight:
		var payload HighlightPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeConnectionState:
		var payload ConnectionStatePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}
}
