package game

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/kenoboard/go/internal/notify"
	"github.com/rs/zerolog/log"
)

// MutationKind tells subscribers what changed the active game
type MutationKind string

const (
	MutationReplace MutationKind = "replace"
	MutationPick    MutationKind = "pick"
)

// Mutation is pushed to subscribers after every change of the active game.
type Mutation struct {
	Kind     MutationKind `json:"kind"`
	Snapshot Snapshot     `json:"snapshot"`

	// Highlight is set when the change added exactly one pick.
	Highlight *Highlight `json:"highlight,omitempty"`

	// Archived holds the previous game when a replace switched to a new game id.
	Archived *Snapshot `json:"archived,omitempty"`
}

// Store owns the single active game. Mutations are expected from one goroutine (the
// stream loop); reads and subscriptions are safe from anywhere.
type Store struct {
	mu      sync.RWMutex
	active  Snapshot
	index   map[int]struct{}
	hasGame bool
	version uint64

	detector *Detector
	history  *lru.Cache // nil when disabled
	feed     *notify.Feed[Mutation]
}

// NewStore creates an empty store keeping up to historySize finished games.
// A historySize of zero disables history.
func NewStore(historySize int, clock clockwork.Clock) (*Store, error) {
	s := &Store{
		active:   Snapshot{Picks: []int{}},
		index:    make(map[int]struct{}),
		detector: NewDetector(clock),
		feed:     notify.NewFeed[Mutation]("game_store"),
	}

	if historySize > 0 {
		cache, err := lru.New(historySize)
		if err != nil {
			return nil, fmt.Errorf("create history cache: %w", err)
		}
		s.history = cache
	}

	return s, nil
}

// ReplaceGame overwrites the active game. Picks start empty unless g.Picks is set.
func (s *Store) ReplaceGame(g Game) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.active.clone()
	prevHadGame := s.hasGame

	s.active = Snapshot{
		GameID:          g.ID,
		NextDrawAt:      g.NextDrawAt,
		DrawWindowStart: g.DrawWindowStart,
		DrawWindowEnd:   g.DrawWindowEnd,
		Picks:           make([]int, 0, PicksPerGame),
	}
	s.index = make(map[int]struct{}, PicksPerGame)
	for _, p := range g.Picks {
		s.insert(p)
	}
	s.hasGame = true

	s.version++
	s.active.Version = s.version

	m := Mutation{Kind: MutationReplace, Snapshot: s.active.clone()}
	if h, ok := s.detector.Observe(prev.Picks, s.active.Picks); ok {
		m.Highlight = &h
	} else if last := s.detector.Last(); prev.GameID != g.ID || !s.active.Has(last.Pick) {
		// the last highlight belongs to a game or pick that is gone
		s.detector.Reset()
	}
	if prevHadGame && prev.GameID != g.ID {
		m.Archived = &prev
		if s.history != nil {
			s.history.Add(prev.GameID, prev)
		}
	}

	log.Debug().
		Int64("game_id", g.ID).
		Int("picks", len(s.active.Picks)).
		Bool("archived", m.Archived != nil).
		Msg("game replaced")

	s.feed.Publish(m)
}

// AddPick inserts pick into the active game. It reports false when the pick was
// already present, in which case nothing changes and nobody is notified.
func (s *Store) AddPick(pick int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := append([]int(nil), s.active.Picks...)
	if !s.insert(pick) {
		return false
	}
	if pick < MinPick || pick > MaxPick {
		// stored anyway, the server is trusted
		log.Warn().
			Int64("game_id", s.active.GameID).
			Int("pick", pick).
			Msg("pick outside board range")
	}

	s.version++
	s.active.Version = s.version

	m := Mutation{Kind: MutationPick, Snapshot: s.active.clone()}
	if h, ok := s.detector.Observe(prev, s.active.Picks); ok {
		m.Highlight = &h
	}

	log.Debug().
		Int64("game_id", s.active.GameID).
		Int("pick", pick).
		Int("picks", len(s.active.Picks)).
		Msg("pick added")

	s.feed.Publish(m)
	return true
}

func (s *Store) insert(pick int) bool {
	if _, ok := s.index[pick]; ok {
		return false
	}
	s.index[pick] = struct{}{}
	s.active.Picks = append(s.active.Picks, pick)
	return true
}

// Current returns a copy of the active game. The bool is false until the first replace.
func (s *Store) Current() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.clone(), s.hasGame
}

// LastHighlight returns the most recent detected addition
func (s *Store) LastHighlight() (Highlight, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.detector.Last()
	return h, !h.At.IsZero()
}

// Game looks up the active game or an archived one by id.
func (s *Store) Game(id int64) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.hasGame && s.active.GameID == id {
		return s.active.clone(), true
	}
	if s.history == nil {
		return Snapshot{}, false
	}
	// Peek keeps lookups from reordering eviction
	v, ok := s.history.Peek(id)
	if !ok {
		return Snapshot{}, false
	}
	return v.(Snapshot).clone(), true
}

// History returns archived games, most recently archived first.
func (s *Store) History() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.history == nil {
		return []Snapshot{}
	}
	keys := s.history.Keys()
	out := make([]Snapshot, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if v, ok := s.history.Peek(keys[i]); ok {
			out = append(out, v.(Snapshot).clone())
		}
	}
	return out
}

// Subscribe registers for mutation notifications.
func (s *Store) Subscribe(buffer int) (<-chan Mutation, func()) {
	return s.feed.Subscribe(buffer)
}

// Close ends every subscription.
func (s *Store) Close() {
	s.feed.Close()
}
