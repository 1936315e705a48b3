package display

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/kenoboard/go/internal/game"
	"github.com/mcdev12/kenoboard/go/internal/game/stream"
	"github.com/rs/zerolog/log"
)

// Service relays store mutations and connection state to board clients and serves
// the board routes.
type Service struct {
	hub          *Hub
	stateHandler *StateHandler
	store        *game.Store
	conn         ConnectionSource
	clock        clockwork.Clock
	config       Config

	mutations       <-chan game.Mutation
	cancelMutations func()
	states          <-chan stream.StateChange
	cancelStates    func()
}

// Config holds configuration for the display service
type Config struct {
	HubConfig       HubConfig
	HighlightWindow time.Duration
	// SubscribeBuffer sizes the store and connection subscriptions
	SubscribeBuffer int
}

// DefaultConfig returns default configuration for the display service
func DefaultConfig() Config {
	return Config{
		HubConfig:       DefaultHubConfig(),
		HighlightWindow: game.DefaultHighlightWindow,
		SubscribeBuffer: 64,
	}
}

// NewService creates a new display service
func NewService(config Config, store *game.Store, conn ConnectionSource, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Service{
		store:  store,
		conn:   conn,
		clock:  clock,
		config: config,
	}
	s.hub = NewHub(config.HubConfig, s.welcomeEvents)
	s.stateHandler = NewStateHandler(store, conn, s.hub, clock, config.HighlightWindow)

	// subscribe now so nothing published before Start is missed
	s.mutations, s.cancelMutations = store.Subscribe(config.SubscribeBuffer)
	s.states, s.cancelStates = conn.Subscribe(config.SubscribeBuffer)
	return s
}

// Start runs the hub and relays notifications until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting display service")

	defer s.cancelMutations()
	defer s.cancelStates()

	go s.hub.Start(ctx)

	mutations, states := s.mutations, s.states

	for mutations != nil || states != nil {
		select {
		case <-ctx.Done():
			log.Info().Msg("display service shutting down")
			return nil

		case m, ok := <-mutations:
			if !ok {
				mutations = nil
				continue
			}
			s.relayMutation(m)

		case c, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			event, err := NewEvent(EventTypeConnectionState, connectionStatePayload(c), s.clock.Now())
			if err != nil {
				log.Error().Err(err).Msg("failed to build connection state event")
				continue
			}
			s.hub.Broadcast(event)
		}
	}

	// both feeds closed; keep serving the last state until shutdown
	<-ctx.Done()
	log.Info().Msg("display service shutting down")
	return nil
}

func (s *Service) relayMutation(m game.Mutation) {
	now := s.clock.Now()

	payload := gameStatePayload(m.Kind, m.Snapshot, true, now)
	if m.Archived != nil {
		id := m.Archived.GameID
		payload.Archived = &id
	}
	event, err := NewEvent(EventTypeGameState, payload, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to build game state event")
		return
	}
	event.Version = m.Snapshot.Version
	s.hub.Broadcast(event)

	if m.Highlight == nil {
		return
	}
	event, err = NewEvent(EventTypeHighlight, HighlightPayload{
		GameID:   m.Snapshot.GameID,
		Pick:     m.Highlight.Pick,
		At:       m.Highlight.At,
		WindowMs: s.config.HighlightWindow.Milliseconds(),
	}, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to build highlight event")
		return
	}
	event.Version = m.Snapshot.Version
	s.hub.Broadcast(event)
}

// welcomeEvents is what a board receives right after connecting.
func (s *Service) welcomeEvents() []*Event {
	now := s.clock.Now()
	snap, ok := s.store.Current()

	var out []*Event
	if event, err := NewEvent(EventTypeGameState, gameStatePayload("", snap, ok, now), now); err == nil {
		event.Version = snap.Version
		out = append(out, event)
	} else {
		log.Error().Err(err).Msg("failed to build welcome game state")
	}

	status := s.conn.Status()
	conn := ConnectionStatePayload{
		State:      status.State,
		RetryCount: status.RetryCount,
		At:         status.Since,
	}
	if event, err := NewEvent(EventTypeConnectionState, conn, now); err == nil {
		out = append(out, event)
	} else {
		log.Error().Err(err).Msg("failed to build welcome connection state")
	}
	return out
}

// RegisterRoutes registers the board HTTP and websocket routes
func (s *Service) RegisterRoutes(r chi.Router) {
	s.stateHandler.RegisterRoutes(r)
	log.Info().Msg("display routes registered")
}

// Hub exposes the board hub
func (s *Service) Hub() *Hub {
	return s.hub
}
