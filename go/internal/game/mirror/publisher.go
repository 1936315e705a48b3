package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/kenoboard/go/internal/game"
	"github.com/mcdev12/kenoboard/go/internal/game/stream"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Publisher is the part of *nats.Conn the mirror needs
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Config holds configuration for the NATS mirror
type Config struct {
	URL             string // empty disables the mirror
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	SubscribeBuffer int
}

// DefaultConfig returns default mirror configuration, disabled
func DefaultConfig() Config {
	return Config{
		URL:             "",
		SubjectPrefix:   "keno.board",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		SubscribeBuffer: 64,
	}
}

// Enabled reports whether a NATS URL is configured
func (c Config) Enabled() bool {
	return c.URL != ""
}

// ConnectionSource is the notification side of the upstream connection manager.
type ConnectionSource interface {
	Subscribe(buffer int) (<-chan stream.StateChange, func())
}

// Mirror republishes store mutations and connection state on NATS subjects
// <prefix>.game, <prefix>.highlight and <prefix>.connection.
type Mirror struct {
	pub    Publisher
	nc     *nats.Conn // nil when built with NewMirror
	config Config

	mutations       <-chan game.Mutation
	cancelMutations func()
	states          <-chan stream.StateChange
	cancelStates    func()
}

// GameMessage is published on <prefix>.game
type GameMessage struct {
	Kind           game.MutationKind `json:"kind"`
	Game           game.Snapshot     `json:"game"`
	Heads          int               `json:"heads"`
	Tails          int               `json:"tails"`
	ArchivedGameID *int64            `json:"archived_game_id,omitempty"`
}

// HighlightMessage is published on <prefix>.highlight
type HighlightMessage struct {
	GameID int64     `json:"game_id"`
	Pick   int       `json:"pick"`
	At     time.Time `json:"at"`
}

// ConnectionMessage is published on <prefix>.connection
type ConnectionMessage struct {
	State      stream.ConnState `json:"state"`
	RetryCount int              `json:"retry_count"`
	DelayMs    int64            `json:"delay_ms,omitempty"`
	Error      string           `json:"error,omitempty"`
	At         time.Time        `json:"at"`
}

// Connect dials NATS and builds a mirror over the connection.
func Connect(config Config, store *game.Store, conn ConnectionSource) (*Mirror, error) {
	opts := []nats.Option{
		nats.Name("kenoboard-mirror"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	m := NewMirror(nc, config, store, conn)
	m.nc = nc

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("subject_prefix", config.SubjectPrefix).
		Msg("NATS mirror connected")
	return m, nil
}

// NewMirror builds a mirror over any publisher. Subscriptions start immediately.
func NewMirror(pub Publisher, config Config, store *game.Store, conn ConnectionSource) *Mirror {
	m := &Mirror{
		pub:    pub,
		config: config,
	}
	m.mutations, m.cancelMutations = store.Subscribe(config.SubscribeBuffer)
	m.states, m.cancelStates = conn.Subscribe(config.SubscribeBuffer)
	return m
}

// Subject returns the full subject for suffix
func (m *Mirror) Subject(suffix string) string {
	if m.config.SubjectPrefix == "" {
		return suffix
	}
	return m.config.SubjectPrefix + "." + suffix
}

// Start publishes notifications until ctx is cancelled or both feeds close.
func (m *Mirror) Start(ctx context.Context) error {
	log.Info().Str("subject_prefix", m.config.SubjectPrefix).Msg("starting NATS mirror")
	defer m.stop()

	mutations, states := m.mutations, m.states
	for mutations != nil || states != nil {
		select {
		case <-ctx.Done():
			log.Info().Msg("NATS mirror shutting down")
			return nil

		case mut, ok := <-mutations:
			if !ok {
				mutations = nil
				continue
			}
			m.publishMutation(mut)

		case c, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			m.publishState(c)
		}
	}
	return nil
}

func (m *Mirror) publishMutation(mut game.Mutation) {
	msg := GameMessage{
		Kind:  mut.Kind,
		Game:  mut.Snapshot,
		Heads: mut.Snapshot.Heads(),
		Tails: mut.Snapshot.Tails(),
	}
	if mut.Archived != nil {
		id := mut.Archived.GameID
		msg.ArchivedGameID = &id
	}
	m.publish("game", msg)

	if mut.Highlight != nil {
		m.publish("highlight", HighlightMessage{
			GameID: mut.Snapshot.GameID,
			Pick:   mut.Highlight.Pick,
			At:     mut.Highlight.At,
		})
	}
}

func (m *Mirror) publishState(c stream.StateChange) {
	msg := ConnectionMessage{
		State:      c.State,
		RetryCount: c.RetryCount,
		DelayMs:    c.Delay.Milliseconds(),
		At:         c.At,
	}
	if c.Err != nil {
		msg.Error = c.Err.Error()
	}
	m.publish("connection", msg)
}

// publish logs failures; the mirror never stops on a publish error.
func (m *Mirror) publish(suffix string, v any) {
	subject := m.Subject(suffix)

	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to marshal mirror message")
		return
	}
	if err := m.pub.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish mirror message")
		return
	}

	log.Debug().Str("subject", subject).Int("bytes", len(data)).Msg("mirror message published")
}

func (m *Mirror) stop() {
	m.cancelMutations()
	m.cancelStates()

	if m.nc != nil {
		if err := m.nc.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
			m.nc.Close()
		}
	}
	log.Info().Msg("NATS mirror stopped")
}
