package display

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub manages board client websocket connections
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	upgrader websocket.Upgrader
	config   HubConfig

	broadcastCh chan *Event

	// welcome builds the events a client gets right after connecting
	welcome func() []*Event

	broadcasts atomic.Int64
	dropped    atomic.Int64
}

// Client is one connected board
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	hub  *Hub

	ConnectedAt time.Time

	// store version of the last welcome; older game events are not sent
	welcomed atomic.Uint64
}

// HubConfig holds configuration for board connections
type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	BroadcastBuffer int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultHubConfig returns default board connection settings
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		BroadcastBuffer: 1000,
		CheckOrigin: func(r *http.Request) bool {
			// overlays are loaded from arbitrary local origins
			return true
		},
	}
}

// HubStats is returned by /ws/stats
type HubStats struct {
	TotalConnections int   `json:"total_connections"`
	Broadcasts       int64 `json:"broadcasts"`
	Dropped          int64 `json:"dropped"`
}

// NewHub creates a hub; welcome may be nil.
func NewHub(config HubConfig, welcome func() []*Event) *Hub {
	if config.SendBuffer < 1 {
		config.SendBuffer = 1
	}
	if config.BroadcastBuffer < 1 {
		config.BroadcastBuffer = 1
	}
	return &Hub{
		clients: make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan *Event, config.BroadcastBuffer),
		welcome:     welcome,
	}
}

// Start processes broadcasts until ctx is cancelled, then disconnects every client.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("board hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("board hub shutting down")
			h.closeAll()
			return
		case event := <-h.broadcastCh:
			h.handleBroadcast(event)
		}
	}
}

// ServeWS upgrades r and registers the new board client
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if err := h.upgradeConnection(w, r); err != nil {
		// the upgrader has already written the HTTP error
		log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade board connection")
	}
}

func (h *Hub) upgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	client := &Client{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, h.config.SendBuffer),
		hub:         h,
		ConnectedAt: time.Now(),
	}

	h.register(client)
	h.sendWelcome(client)

	go client.writePump()
	go client.readPump()

	log.Info().
		Str("connection_id", client.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("board connection established")

	return nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = true

	log.Debug().
		Str("connection_id", c.ID).
		Int("total_connections", len(h.clients)).
		Msg("board connection registered")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.Send)

	log.Info().
		Str("connection_id", c.ID).
		Dur("connected_for", time.Since(c.ConnectedAt)).
		Msg("board connection unregistered")
}

// Broadcast queues event for every client. A full queue drops it.
func (h *Hub) Broadcast(event *Event) {
	select {
	case h.broadcastCh <- event:
	default:
		h.dropped.Add(1)
		log.Warn().Str("event_type", string(event.Type)).Msg("broadcast channel full, dropping message")
	}
}

func (h *Hub) handleBroadcast(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.clients {
		if event.Version != 0 && event.Version <= c.welcomed.Load() {
			// queued before this client's welcome snapshot
			continue
		}
		select {
		case c.Send <- data:
		default:
			slow = append(slow, c)
		}
	}
	total := len(h.clients)
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().
			Str("connection_id", c.ID).
			Msg("connection send buffer full, closing connection")
		h.unregister(c)
		c.Conn.Close()
	}
	h.broadcasts.Add(1)

	log.Debug().
		Str("event_type", string(event.Type)).
		Int("connections", total-len(slow)).
		Msg("event broadcasted")
}

// sendWelcome pushes the welcome events to one client only.
func (h *Hub) sendWelcome(c *Client) {
	if h.welcome == nil {
		return
	}

	for _, event := range h.welcome() {
		if event.Version > c.welcomed.Load() {
			c.welcomed.Store(event.Version)
		}
		data, err := json.Marshal(event)
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal welcome event")
			continue
		}

		h.mu.RLock()
		if h.clients[c] {
			select {
			case c.Send <- data:
			default:
				log.Warn().Str("connection_id", c.ID).Msg("send buffer full, dropping welcome event")
			}
		}
		h.mu.RUnlock()
	}
}

// Stats returns statistics about active connections
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return HubStats{
		TotalConnections: len(h.clients),
		Broadcasts:       h.broadcasts.Load(),
		Dropped:          h.dropped.Load(),
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

// writePump handles sending messages to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to board")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump keeps the read deadline fresh and handles client requests.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected board close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}

// clientRequest is the only message a board sends: {"type":"RequestState"}
type clientRequest struct {
	Type string `json:"type"`
}

func (c *Client) handleClientMessage(message []byte) {
	var req clientRequest
	if err := json.Unmarshal(message, &req); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("ignoring malformed client message")
		return
	}

	switch req.Type {
	case "RequestState":
		c.hub.sendWelcome(c)
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", req.Type).
			Msg("ignoring client message")
	}
}
