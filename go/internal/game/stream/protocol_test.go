package stream

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/kenoboard/go/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProtocolStore(t *testing.T) *game.Store {
	t.Helper()
	s, err := game.NewStore(2, clockwork.NewFakeClock())
	require.NoError(t, err)
	return s
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType MessageType
		wantErr  bool
	}{
		{name: "new game", raw: `{"type":"NEW","body":{"gameId":1}}`, wantType: MessageTypeNewGame},
		{name: "pick", raw: `{"type":"PIC","body":{"pick":3}}`, wantType: MessageTypePick},
		{name: "unknown type still decodes", raw: `{"type":"XYZ","body":{}}`, wantType: "XYZ"},
		{name: "invalid json", raw: `{"type":`, wantErr: true},
		{name: "not an object", raw: `[1,2,3]`, wantErr: true},
		{name: "missing type", raw: `{"body":{"pick":3}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.raw))
			if tt.wantErr {
				var decodeErr *DecodeError
				require.ErrorAs(t, err, &decodeErr)
				assert.Equal(t, tt.raw, string(decodeErr.Raw))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, msg.Type)
		})
	}
}

func TestDispatch_NewGame(t *testing.T) {
	store := newProtocolStore(t)

	msg, err := Decode([]byte(`{"type":"NEW","body":{"gameId":12,"nextGameTime":1714564800000,"currentGameStartTime":1714564740000,"currentGameEndTime":1714564770000}}`))
	require.NoError(t, err)
	require.NoError(t, Dispatch(store, msg))

	snap, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, int64(12), snap.GameID)
	assert.Equal(t, time.UnixMilli(1714564800000).UTC(), snap.NextDrawAt)
	assert.Equal(t, time.UnixMilli(1714564740000).UTC(), snap.DrawWindowStart)
	assert.Equal(t, time.UnixMilli(1714564770000).UTC(), snap.DrawWindowEnd)
	assert.Empty(t, snap.Picks)
}

func TestDispatch_NewGameZeroTimes(t *testing.T) {
	store := newProtocolStore(t)

	msg, err := Decode([]byte(`{"type":"NEW","body":{"gameId":0}}`))
	require.NoError(t, err)
	require.NoError(t, Dispatch(store, msg))

	snap, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, int64(0), snap.GameID)
	assert.True(t, snap.NextDrawAt.IsZero())
}

func TestDispatch_PickAppendsAndIgnoresDuplicates(t *testing.T) {
	store := newProtocolStore(t)
	store.ReplaceGame(game.Game{ID: 1})

	for _, raw := range []string{
		`{"type":"PIC","body":{"pick":4}}`,
		`{"type":"PIC","body":{"pick":44}}`,
		`{"type":"PIC","body":{"pick":4}}`,
	} {
		msg, err := Decode([]byte(raw))
		require.NoError(t, err)
		require.NoError(t, Dispatch(store, msg))
	}

	snap, _ := store.Current()
	assert.Equal(t, []int{4, 44}, snap.Picks)
}

func TestDispatch_CurrentGameReplacesPicks(t *testing.T) {
	store := newProtocolStore(t)
	store.ReplaceGame(game.Game{ID: 1, Picks: []int{9, 10}})

	msg, err := Decode([]byte(`{"type":"CUR","body":{"gameId":2,"nextGameTime":0,"currentGameStartTime":0,"currentGameEndTime":0,"picks":[3,3,70]}}`))
	require.NoError(t, err)
	require.NoError(t, Dispatch(store, msg))

	snap, _ := store.Current()
	assert.Equal(t, int64(2), snap.GameID)
	assert.Equal(t, []int{3, 70}, snap.Picks)
}

func TestDispatch_CurrentGameWithoutPicks(t *testing.T) {
	store := newProtocolStore(t)
	store.ReplaceGame(game.Game{ID: 1, Picks: []int{9}})

	msg, err := Decode([]byte(`{"type":"CUR","body":{"gameId":1}}`))
	require.NoError(t, err)
	require.NoError(t, Dispatch(store, msg))

	snap, _ := store.Current()
	assert.Empty(t, snap.Picks)
	assert.NotNil(t, snap.Picks)
}

func TestDispatch_Errors(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantUnknown bool
	}{
		{name: "unknown type", raw: `{"type":"XYZ","body":{}}`, wantUnknown: true},
		{name: "lowercase type", raw: `{"type":"pic","body":{"pick":1}}`, wantUnknown: true},
		{name: "pick wrong type", raw: `{"type":"PIC","body":{"pick":"one"}}`},
		{name: "pick missing", raw: `{"type":"PIC","body":{}}`},
		{name: "pick no body", raw: `{"type":"PIC"}`},
		{name: "new missing game id", raw: `{"type":"NEW","body":{"nextGameTime":1}}`},
		{name: "cur picks wrong type", raw: `{"type":"CUR","body":{"gameId":1,"picks":"1,2"}}`},
		{name: "cur missing game id", raw: `{"type":"CUR","body":{"picks":[1]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newProtocolStore(t)
			store.ReplaceGame(game.Game{ID: 5, Picks: []int{1, 2}})
			before, _ := store.Current()

			msg, err := Decode([]byte(tt.raw))
			require.NoError(t, err)

			err = Dispatch(store, msg)
			require.Error(t, err)
			if tt.wantUnknown {
				assert.True(t, errors.Is(err, ErrUnknownMessageType))
			} else {
				var decodeErr *DecodeError
				assert.ErrorAs(t, err, &decodeErr)
			}

			after, _ := store.Current()
			assert.Equal(t, before, after)
		})
	}
}

func TestFrameBuilders(t *testing.T) {
	next := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	raw, err := NewGameFrame(3, next, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"NEW","body":{"gameId":3,"nextGameTime":1714564800000,"currentGameStartTime":0,"currentGameEndTime":0}}`, string(raw))

	raw, err = PickFrame(80)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"PIC","body":{"pick":80}}`, string(raw))

	raw, err = CurrentGameFrame(3, next, time.Time{}, time.Time{}, nil)
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, MessageTypeCurrentGame, msg.Type)

	var body CurrentGameBody
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	require.NotNil(t, body.GameID)
	assert.Equal(t, int64(3), *body.GameID)
	assert.Equal(t, []int{}, body.Picks)
}
