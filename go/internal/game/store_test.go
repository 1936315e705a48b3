package game

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, historySize int) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	s, err := NewStore(historySize, clock)
	require.NoError(t, err)
	return s, clock
}

func recvMutation(t *testing.T, ch <-chan Mutation) Mutation {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "mutation channel closed")
		return m
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for mutation")
		return Mutation{}
	}
}

func requireNoMutation(t *testing.T, ch <-chan Mutation) {
	t.Helper()
	select {
	case m := <-ch:
		t.Fatalf("expected no mutation, got %+v", m)
	default:
	}
}

func TestStore_NewGameThenDistinctPicks(t *testing.T) {
	s, _ := newTestStore(t, 0)
	s.ReplaceGame(Game{ID: 1})

	picks := []int{5, 80, 40, 41, 1, 77, 23}
	for _, p := range picks {
		assert.True(t, s.AddPick(p))
	}

	snap, ok := s.Current()
	require.True(t, ok)
	assert.Len(t, snap.Picks, len(picks))
	assert.Equal(t, picks, snap.Picks)
	assert.Equal(t, len(picks), snap.Heads()+snap.Tails())
	assert.Equal(t, 4, snap.Heads())
	assert.Equal(t, 3, snap.Tails())
}

func TestStore_AddPickIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, 0)
	s.ReplaceGame(Game{ID: 1})
	require.True(t, s.AddPick(12))

	ch, cancel := s.Subscribe(4)
	defer cancel()

	assert.False(t, s.AddPick(12))
	snap, _ := s.Current()
	assert.Equal(t, []int{12}, snap.Picks)
	requireNoMutation(t, ch)
}

func TestStore_ResyncReplacesRegardlessOfHistory(t *testing.T) {
	s, _ := newTestStore(t, 0)
	s.ReplaceGame(Game{ID: 9})
	for _, p := range []int{1, 2, 50, 60} {
		s.AddPick(p)
	}

	s.ReplaceGame(Game{ID: 10, Picks: []int{3, 7, 12}})

	snap, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, int64(10), snap.GameID)
	assert.ElementsMatch(t, []int{3, 7, 12}, snap.Picks)
}

func TestStore_ResyncCollapsesDuplicates(t *testing.T) {
	s, _ := newTestStore(t, 0)
	s.ReplaceGame(Game{ID: 1, Picks: []int{4, 4, 9}})

	snap, _ := s.Current()
	assert.Equal(t, []int{4, 9}, snap.Picks)
}

func TestStore_NewGameResetsPicks(t *testing.T) {
	s, _ := newTestStore(t, 0)
	s.ReplaceGame(Game{ID: 1, Picks: []int{1, 2, 3}})

	next := time.Date(2024, 5, 1, 12, 3, 0, 0, time.UTC)
	s.ReplaceGame(Game{ID: 2, NextDrawAt: next})

	snap, _ := s.Current()
	assert.Equal(t, int64(2), snap.GameID)
	assert.Empty(t, snap.Picks)
	assert.Equal(t, next, snap.NextDrawAt)
}

func TestStore_CurrentBeforeAnyGame(t *testing.T) {
	s, _ := newTestStore(t, 0)

	snap, ok := s.Current()
	assert.False(t, ok)
	assert.Empty(t, snap.Picks)

	// picks before the first game still land in the active snapshot
	assert.True(t, s.AddPick(33))
	snap, ok = s.Current()
	assert.False(t, ok)
	assert.Equal(t, []int{33}, snap.Picks)
}

func TestStore_AddPickDoesNotValidateRange(t *testing.T) {
	s, _ := newTestStore(t, 0)
	s.ReplaceGame(Game{ID: 1})

	outside := []int{MinPick - 1, MaxPick + 1, -3}
	for _, p := range outside {
		assert.True(t, s.AddPick(p))
	}

	snap, _ := s.Current()
	assert.Equal(t, outside, snap.Picks)
	for _, p := range snap.Picks {
		assert.False(t, p >= MinPick && p <= MaxPick, "pick %d should be outside the board", p)
	}
}

func TestStore_CurrentReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t, 0)
	s.ReplaceGame(Game{ID: 1, Picks: []int{1, 2}})

	snap, _ := s.Current()
	snap.Picks[0] = 99

	again, _ := s.Current()
	assert.Equal(t, []int{1, 2}, again.Picks)
}

func TestStore_HighlightFiresOncePerAddition(t *testing.T) {
	s, clock := newTestStore(t, 0)
	ch, cancel := s.Subscribe(16)
	defer cancel()

	s.ReplaceGame(Game{ID: 1})
	m := recvMutation(t, ch)
	assert.Equal(t, MutationReplace, m.Kind)
	assert.Nil(t, m.Highlight)

	clock.Advance(time.Second)
	s.AddPick(17)
	m = recvMutation(t, ch)
	assert.Equal(t, MutationPick, m.Kind)
	require.NotNil(t, m.Highlight)
	assert.Equal(t, 17, m.Highlight.Pick)
	assert.Equal(t, clock.Now(), m.Highlight.At)

	s.AddPick(17)
	requireNoMutation(t, ch)

	h, ok := s.LastHighlight()
	require.True(t, ok)
	assert.Equal(t, 17, h.Pick)
}

func TestStore_ResyncWithoutPlusOneHasNoHighlight(t *testing.T) {
	s, _ := newTestStore(t, 0)
	s.ReplaceGame(Game{ID: 1, Picks: []int{1, 2}})

	ch, cancel := s.Subscribe(4)
	defer cancel()

	s.ReplaceGame(Game{ID: 1, Picks: []int{1, 2, 3, 4}})
	m := recvMutation(t, ch)
	assert.Nil(t, m.Highlight)

	s.ReplaceGame(Game{ID: 2})
	m = recvMutation(t, ch)
	assert.Nil(t, m.Highlight)
}

func TestStore_ResyncWithPlusOneHighlights(t *testing.T) {
	s, _ := newTestStore(t, 0)
	s.ReplaceGame(Game{ID: 1, Picks: []int{1, 2}})

	ch, cancel := s.Subscribe(4)
	defer cancel()

	s.ReplaceGame(Game{ID: 1, Picks: []int{1, 2, 70}})
	m := recvMutation(t, ch)
	require.NotNil(t, m.Highlight)
	assert.Equal(t, 70, m.Highlight.Pick)
}

func TestStore_NewGameClearsHighlight(t *testing.T) {
	s, _ := newTestStore(t, 0)
	s.ReplaceGame(Game{ID: 1})
	s.AddPick(9)

	_, ok := s.LastHighlight()
	require.True(t, ok)

	s.ReplaceGame(Game{ID: 2})
	_, ok = s.LastHighlight()
	assert.False(t, ok)
}

func TestStore_ResyncKeepsHighlightOfKeptPick(t *testing.T) {
	s, _ := newTestStore(t, 0)
	s.ReplaceGame(Game{ID: 1})
	s.AddPick(9)

	// same game, same picks
	s.ReplaceGame(Game{ID: 1, Picks: []int{9}})
	h, ok := s.LastHighlight()
	require.True(t, ok)
	assert.Equal(t, 9, h.Pick)

	// same game, the highlighted pick is gone
	s.ReplaceGame(Game{ID: 1, Picks: []int{}})
	_, ok = s.LastHighlight()
	assert.False(t, ok)
}

func TestStore_VersionIncreasesPerMutation(t *testing.T) {
	s, _ := newTestStore(t, 0)

	snap, _ := s.Current()
	assert.Zero(t, snap.Version)

	s.ReplaceGame(Game{ID: 1})
	s.AddPick(4)
	s.AddPick(4)
	snap, _ = s.Current()
	assert.Equal(t, uint64(2), snap.Version)

	s.ReplaceGame(Game{ID: 2})
	snap, _ = s.Current()
	assert.Equal(t, uint64(3), snap.Version)
}

func TestStore_ArchivesPreviousGame(t *testing.T) {
	s, _ := newTestStore(t, 2)
	ch, cancel := s.Subscribe(16)
	defer cancel()

	s.ReplaceGame(Game{ID: 1, Picks: []int{1, 2}})
	m := recvMutation(t, ch)
	assert.Nil(t, m.Archived)

	// resync of the same game does not archive
	s.ReplaceGame(Game{ID: 1, Picks: []int{1, 2, 3}})
	m = recvMutation(t, ch)
	assert.Nil(t, m.Archived)

	s.ReplaceGame(Game{ID: 2})
	m = recvMutation(t, ch)
	require.NotNil(t, m.Archived)
	assert.Equal(t, int64(1), m.Archived.GameID)
	assert.Equal(t, []int{1, 2, 3}, m.Archived.Picks)

	s.ReplaceGame(Game{ID: 3})
	s.ReplaceGame(Game{ID: 4})

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, int64(3), history[0].GameID)
	assert.Equal(t, int64(2), history[1].GameID)

	_, ok := s.Game(1)
	assert.False(t, ok, "game 1 should have been evicted")

	g, ok := s.Game(4)
	require.True(t, ok)
	assert.Equal(t, int64(4), g.GameID)
}

func TestStore_ReadingHistoryKeepsArchiveOrder(t *testing.T) {
	s, _ := newTestStore(t, 2)
	s.ReplaceGame(Game{ID: 1})
	s.ReplaceGame(Game{ID: 2})
	s.ReplaceGame(Game{ID: 3})

	_, ok := s.Game(1)
	require.True(t, ok)

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, int64(2), history[0].GameID)
	assert.Equal(t, int64(1), history[1].GameID)

	// the oldest archived game goes first, reads or not
	s.ReplaceGame(Game{ID: 4})
	_, ok = s.Game(1)
	assert.False(t, ok)
	_, ok = s.Game(2)
	assert.True(t, ok)
	_, ok = s.Game(3)
	assert.True(t, ok)
}

func TestStore_HistoryDisabled(t *testing.T) {
	s, _ := newTestStore(t, 0)
	s.ReplaceGame(Game{ID: 1})
	s.ReplaceGame(Game{ID: 2})

	assert.Empty(t, s.History())
	_, ok := s.Game(1)
	assert.False(t, ok)
}

func TestStore_CloseEndsSubscriptions(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ch, _ := s.Subscribe(1)
	s.Close()

	_, ok := <-ch
	assert.False(t, ok)
}
