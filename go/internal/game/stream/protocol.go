package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/kenoboard/go/internal/game"
)

// MessageType identifies a server frame
type MessageType string

const (
	// MessageTypeNewGame starts a game with no picks.
	MessageTypeNewGame MessageType = "NEW"
	// MessageTypePick adds one pick to the active game.
	MessageTypePick MessageType = "PIC"
	// MessageTypeCurrentGame is a full resync including every pick so far.
	MessageTypeCurrentGame MessageType = "CUR"
)

// ErrUnknownMessageType is returned by Dispatch for a type outside NEW/PIC/CUR.
var ErrUnknownMessageType = errors.New("unknown message type")

// Message is the frame envelope
type Message struct {
	Type MessageType     `json:"type"`
	Body json.RawMessage `json:"body"`
}

// NewGameBody is the NEW payload. Times are epoch milliseconds.
type NewGameBody struct {
	GameID               *int64 `json:"gameId"`
	NextGameTime         int64  `json:"nextGameTime"`
	CurrentGameStartTime int64  `json:"currentGameStartTime"`
	CurrentGameEndTime   int64  `json:"currentGameEndTime"`
}

// PickBody is the PIC payload
type PickBody struct {
	Pick *int `json:"pick"`
}

// CurrentGameBody is the CUR payload
type CurrentGameBody struct {
	GameID               *int64 `json:"gameId"`
	NextGameTime         int64  `json:"nextGameTime"`
	CurrentGameStartTime int64  `json:"currentGameStartTime"`
	CurrentGameEndTime   int64  `json:"currentGameEndTime"`
	Picks                []int  `json:"picks"`
}

// DecodeError reports a frame that could not be parsed.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses a raw frame into its envelope. It does not look at the body.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, &DecodeError{Raw: raw, Err: err}
	}
	if msg.Type == "" {
		return Message{}, &DecodeError{Raw: raw, Err: errors.New("missing type")}
	}
	return msg, nil
}

// Encode builds a frame from a type and body.
func Encode(t MessageType, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", t, err)
	}
	return json.Marshal(Message{Type: t, Body: raw})
}

// Dispatch applies msg to the store. The body is fully decoded before any mutation,
// so a malformed body leaves the store untouched.
func Dispatch(store *game.Store, msg Message) error {
	switch msg.Type {
	case MessageTypeNewGame:
		var body NewGameBody
		if err := decodeBody(msg, &body); err != nil {
			return err
		}
		if body.GameID == nil {
			return &DecodeError{Raw: msg.Body, Err: errors.New("NEW body missing gameId")}
		}
		store.ReplaceGame(game.Game{
			ID:              *body.GameID,
			NextDrawAt:      fromMillis(body.NextGameTime),
			DrawWindowStart: fromMillis(body.CurrentGameStartTime),
			DrawWindowEnd:   fromMillis(body.CurrentGameEndTime),
		})
		return nil

	case MessageTypePick:
		var body PickBody
		if err := decodeBody(msg, &body); err != nil {
			return err
		}
		if body.Pick == nil {
			return &DecodeError{Raw: msg.Body, Err: errors.New("PIC body missing pick")}
		}
		store.AddPick(*body.Pick)
		return nil

	case MessageTypeCurrentGame:
		var body CurrentGameBody
		if err := decodeBody(msg, &body); err != nil {
			return err
		}
		if body.GameID == nil {
			return &DecodeError{Raw: msg.Body, Err: errors.New("CUR body missing gameId")}
		}
		picks := body.Picks
		if picks == nil {
			picks = []int{}
		}
		store.ReplaceGame(game.Game{
			ID:              *body.GameID,
			NextDrawAt:      fromMillis(body.NextGameTime),
			DrawWindowStart: fromMillis(body.CurrentGameStartTime),
			DrawWindowEnd:   fromMillis(body.CurrentGameEndTime),
			Picks:           picks,
		})
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}
}

func decodeBody(msg Message, v any) error {
	if len(msg.Body) == 0 {
		return &DecodeError{Raw: msg.Body, Err: fmt.Errorf("%s frame has no body", msg.Type)}
	}
	if err := json.Unmarshal(msg.Body, v); err != nil {
		return &DecodeError{Raw: msg.Body, Err: fmt.Errorf("%s body: %w", msg.Type, err)}
	}
	return nil
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// NewGameFrame builds a NEW frame; used by tooling and tests that play the server role.
func NewGameFrame(gameID int64, next, start, end time.Time) ([]byte, error) {
	return Encode(MessageTypeNewGame, NewGameBody{
		GameID:               &gameID,
		NextGameTime:         toMillis(next),
		CurrentGameStartTime: toMillis(start),
		CurrentGameEndTime:   toMillis(end),
	})
}

// PickFrame builds a PIC frame
func PickFrame(pick int) ([]byte, error) {
	return Encode(MessageTypePick, PickBody{Pick: &pick})
}

// CurrentGameFrame builds a CUR frame
func CurrentGameFrame(gameID int64, next, start, end time.Time, picks []int) ([]byte, error) {
	if picks == nil {
		picks = []int{}
	}
	return Encode(MessageTypeCurrentGame, CurrentGameBody{
		GameID:               &gameID,
		NextGameTime:         toMillis(next),
		CurrentGameStartTime: toMillis(start),
		CurrentGameEndTime:   toMillis(end),
		Picks:                picks,
	})
}
