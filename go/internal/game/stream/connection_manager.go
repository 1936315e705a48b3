package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/kenoboard/go/internal/game"
	"github.com/mcdev12/kenoboard/go/internal/notify"
	"github.com/rs/zerolog/log"
)

// givenUpNotifyTimeout bounds how long the loop waits for a full subscriber to take
// the ClosedGivenUp change.
const givenUpNotifyTimeout = 2 * time.Second

// Manager keeps one upstream connection alive and feeds its frames into the store.
//
// All connection state is owned by the goroutine running Start. Dial attempts and the
// read pump run in their own goroutines and report back over channels; every report
// carries the generation of the connection it belongs to so that late events from a
// replaced or closed connection are dropped.
type Manager struct {
	id     string
	config ConnectionConfig
	store  *game.Store
	dialer Dialer
	clock  clockwork.Clock

	dialCh  chan dialResult
	readCh  chan readEvent
	sendCh  chan []byte
	closeCh chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	started   atomic.Bool

	// owned by the loop goroutine
	state      ConnState
	conn       Conn
	gen        uint64
	retryCount int
	timer      clockwork.Timer
	cancelDial context.CancelFunc

	mu     sync.RWMutex
	status Status

	feed *notify.Feed[StateChange]
}

type dialResult struct {
	gen  uint64
	conn Conn
	err  error
}

type readEvent struct {
	gen  uint64
	data []byte
	err  error
}

// Option configures a Manager
type Option func(*Manager)

// WithDialer replaces the gorilla/websocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithClock sets the clock used for reconnect timers. In tests, a clockwork FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// NewManager creates a manager for config.URL that dispatches frames into store.
// Nothing happens until Start is called.
func NewManager(config ConnectionConfig, store *game.Store, opts ...Option) *Manager {
	m := &Manager{
		id:      uuid.New().String(),
		config:  config,
		store:   store,
		clock:   clockwork.NewRealClock(),
		dialCh:  make(chan dialResult),
		readCh:  make(chan readEvent),
		sendCh:  make(chan []byte),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
		state:   StateIdle,
		feed:    notify.NewFeed[StateChange]("connection_state"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = NewWebSocketDialer(config)
	}

	m.status = Status{
		ConnectionID: m.id,
		URL:          config.URL,
		State:        StateIdle,
		Since:        m.clock.Now(),
	}
	return m
}

// ID returns the id attached to this manager's log lines
func (m *Manager) ID() string {
	return m.id
}

// Start connects and runs the event loop until ctx is cancelled or Close is called.
func (m *Manager) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		log.Warn().Str("connection_id", m.id).Msg("connection manager already started")
		return
	}
	defer close(m.done)

	log.Info().
		Str("connection_id", m.id).
		Str("url", m.config.URL).
		Int("max_retries", m.config.MaxRetries).
		Dur("initial_backoff", m.config.InitialBackoff).
		Bool("retry_enabled", m.config.RetryEnabled).
		Msg("connection manager started")

	select {
	case <-m.closeCh:
		m.shutdown("closed before start")
		return
	default:
	}

	m.connect(ctx)

	for {
		var timerC <-chan time.Time
		if m.timer != nil {
			timerC = m.timer.Chan()
		}

		select {
		case <-ctx.Done():
			m.shutdown("context cancelled")
			return
		case <-m.closeCh:
			m.shutdown("closed by owner")
			return
		case res := <-m.dialCh:
			m.handleDial(res)
		case ev := <-m.readCh:
			m.handleRead(ev)
		case payload := <-m.sendCh:
			m.handleSend(payload)
		case <-timerC:
			m.timer = nil
			m.connect(ctx)
		}
	}
}

// Send JSON-encodes v and writes it when the connection is open. Otherwise it logs
// a warning and drops v; nothing is queued.
func (m *Manager) Send(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("connection_id", m.id).Msg("failed to marshal outbound message")
		return
	}

	if m.Status().State != StateOpen {
		log.Warn().
			Str("connection_id", m.id).
			RawJSON("message", payload).
			Msg("cannot send message, connection is not open")
		return
	}

	select {
	case m.sendCh <- payload:
	case <-m.done:
		log.Warn().
			Str("connection_id", m.id).
			RawJSON("message", payload).
			Msg("cannot send message, connection manager stopped")
	}
}

// Close tears down the connection and cancels any pending reconnect. It never
// triggers a reconnect and is safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.closeCh)
	})

	// never started: nobody else will close done
	if m.started.CompareAndSwap(false, true) {
		m.feed.Close()
		close(m.done)
	}
}

// Done is closed once the manager has stopped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Status returns a copy of the current connection status
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Subscribe registers for state change notifications. The channel is closed when the
// manager stops.
func (m *Manager) Subscribe(buffer int) (<-chan StateChange, func()) {
	return m.feed.Subscribe(buffer)
}

func (m *Manager) connect(ctx context.Context) {
	m.gen++
	gen := m.gen

	m.setState(StateConnecting, 0, nil)
	log.Info().
		Str("connection_id", m.id).
		Str("url", m.config.URL).
		Int("retry_count", m.retryCount).
		Msg("connecting to stream")

	dialCtx, cancel := context.WithCancel(ctx)
	m.cancelDial = cancel

	go func() {
		conn, err := m.dialer.Dial(dialCtx, m.config.URL)
		select {
		case m.dialCh <- dialResult{gen: gen, conn: conn, err: err}:
		case <-m.done:
			if conn != nil {
				conn.Close()
			}
		}
	}()
}

func (m *Manager) handleDial(res dialResult) {
	if res.gen != m.gen {
		if res.conn != nil {
			res.conn.Close()
		}
		return
	}
	m.releaseDial()

	if res.err != nil {
		log.Error().
			Err(res.err).
			Str("connection_id", m.id).
			Str("url", m.config.URL).
			Msg("failed to connect to stream")
		m.scheduleReconnect(res.err)
		return
	}

	m.conn = res.conn
	if m.config.MaxMessageSize > 0 {
		m.conn.SetReadLimit(m.config.MaxMessageSize)
	}

	log.Info().
		Str("connection_id", m.id).
		Str("url", m.config.URL).
		Int("retry_count", m.retryCount).
		Msg("stream connection opened")

	m.retryCount = 0
	m.setState(StateOpen, 0, nil)

	go m.readPump(res.gen, res.conn)
}

// readPump forwards frames from conn to the loop, in arrival order, until conn fails.
func (m *Manager) readPump(gen uint64, conn Conn) {
	for {
		if m.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(m.config.ReadTimeout))
		}
		_, data, err := conn.ReadMessage()

		select {
		case m.readCh <- readEvent{gen: gen, data: data, err: err}:
		case <-m.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (m *Manager) handleRead(ev readEvent) {
	if ev.gen != m.gen {
		return
	}

	if ev.err != nil {
		m.dropConn()
		if websocket.IsUnexpectedCloseError(ev.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			log.Error().
				Err(ev.err).
				Str("connection_id", m.id).
				Msg("unexpected stream close error")
		} else {
			log.Warn().
				Err(ev.err).
				Str("connection_id", m.id).
				Str("url", m.config.URL).
				Msg("stream connection closed")
		}
		m.scheduleReconnect(ev.err)
		return
	}

	m.handleFrame(ev.data)
}

func (m *Manager) handleFrame(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		log.Error().
			Err(err).
			Str("connection_id", m.id).
			Str("data", string(data)).
			Msg("failed to parse stream message")
		return
	}

	if err := Dispatch(m.store, msg); err != nil {
		var decodeErr *DecodeError
		switch {
		case errors.Is(err, ErrUnknownMessageType):
			log.Error().
				Str("connection_id", m.id).
				Str("type", string(msg.Type)).
				Msg("unknown message type received")
		case errors.As(err, &decodeErr):
			log.Error().
				Err(err).
				Str("connection_id", m.id).
				Str("type", string(msg.Type)).
				Str("data", string(data)).
				Msg("failed to parse stream message body")
		default:
			log.Error().
				Err(err).
				Str("connection_id", m.id).
				Str("type", string(msg.Type)).
				Msg("failed to apply stream message")
		}
		return
	}

	log.Debug().
		Str("connection_id", m.id).
		Str("type", string(msg.Type)).
		Msg("stream message applied")
}

func (m *Manager) handleSend(payload []byte) {
	if m.state != StateOpen || m.conn == nil {
		log.Warn().
			Str("connection_id", m.id).
			RawJSON("message", payload).
			Msg("cannot send message, connection is not open")
		return
	}

	if m.config.WriteTimeout > 0 {
		m.conn.SetWriteDeadline(time.Now().Add(m.config.WriteTimeout))
	}
	if err := m.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Error().
			Err(err).
			Str("connection_id", m.id).
			Msg("failed to write message to stream")
		// the read pump reports the failure and drives the reconnect
		m.conn.Close()
	}
}

// scheduleReconnect moves to CLOSED_RETRYING with a single timer, or gives up.
func (m *Manager) scheduleReconnect(cause error) {
	if !m.config.RetryEnabled {
		m.giveUp(cause, "reconnect disabled")
		return
	}
	if m.retryCount >= m.config.MaxRetries {
		m.giveUp(cause, "max reconnect attempts reached")
		return
	}

	m.retryCount++
	delay := m.config.BackoffDelay(m.retryCount)

	m.stopTimer()
	m.timer = m.clock.NewTimer(delay)

	log.Warn().
		Str("connection_id", m.id).
		Int("retry_count", m.retryCount).
		Dur("delay", delay).
		Msg("attempting to reconnect")

	m.setState(StateClosedRetrying, delay, cause)
}

func (m *Manager) giveUp(cause error, reason string) {
	m.stopTimer()

	log.Error().
		Err(cause).
		Str("connection_id", m.id).
		Str("url", m.config.URL).
		Int("retry_count", m.retryCount).
		Msg(reason + ", giving up")

	m.setState(StateClosedGivenUp, 0, fmt.Errorf("%w: %v", ErrReconnectExhausted, cause))
}

func (m *Manager) shutdown(reason string) {
	m.stopTimer()
	m.releaseDial()
	m.gen++

	if m.conn != nil {
		if m.config.WriteTimeout > 0 {
			m.conn.SetWriteDeadline(time.Now().Add(m.config.WriteTimeout))
		}
		m.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.dropConn()
	}

	m.setState(StateIdle, 0, nil)
	m.feed.Close()

	log.Info().
		Str("connection_id", m.id).
		Str("url", m.config.URL).
		Str("reason", reason).
		Msg("stream connection closed manually")
}

func (m *Manager) dropConn() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

func (m *Manager) releaseDial() {
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) setState(state ConnState, delay time.Duration, err error) {
	now := m.clock.Now()
	m.state = state

	m.mu.Lock()
	m.status.State = state
	m.status.RetryCount = m.retryCount
	m.status.Since = now
	if state == StateClosedRetrying {
		m.status.LastDelay = delay
	}
	m.mu.Unlock()

	change := StateChange{
		State:      state,
		RetryCount: m.retryCount,
		Delay:      delay,
		Err:        err,
		At:         now,
	}
	if state == StateClosedGivenUp {
		// terminal, slow subscribers get a chance to see it
		m.feed.PublishWait(change, givenUpNotifyTimeout)
		return
	}
	m.feed.Publish(change)
}
