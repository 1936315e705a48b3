package display

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/kenoboard/go/internal/game"
	"github.com/mcdev12/kenoboard/go/internal/game/stream"
)

// HealthStatus summarizes whether the board is being kept in sync
type HealthStatus struct {
	Healthy          bool             `json:"healthy"`
	ConnectionState  stream.ConnState `json:"connection_state"`
	RetryCount       int              `json:"retry_count"`
	StateSince       time.Time        `json:"state_since"`
	HasGame          bool             `json:"has_game"`
	GameID           int64            `json:"game_id"`
	Picks            int              `json:"picks"`
	BoardConnections int              `json:"board_connections"`
	Errors           []string         `json:"errors"`
}

// HealthChecker derives HealthStatus from the store, connection and hub
type HealthChecker struct {
	store *game.Store
	conn  ConnectionSource
	hub   *Hub
	clock clockwork.Clock
}

// NewHealthChecker creates a health checker
func NewHealthChecker(store *game.Store, conn ConnectionSource, hub *Hub, clock clockwork.Clock) *HealthChecker {
	return &HealthChecker{store: store, conn: conn, hub: hub, clock: clock}
}

// Check reports unhealthy once the upstream connection has given up or stopped.
func (h *HealthChecker) Check() HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	conn := h.conn.Status()
	status.ConnectionState = conn.State
	status.RetryCount = conn.RetryCount
	status.StateSince = conn.Since

	switch conn.State {
	case stream.StateClosedGivenUp:
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("upstream gave up after %d retries", conn.RetryCount))
	case stream.StateIdle:
		status.Healthy = false
		status.Errors = append(status.Errors, "upstream connection not running")
	case stream.StateClosedRetrying:
		status.Errors = append(status.Errors,
			fmt.Sprintf("upstream reconnecting, retry %d, down for %s", conn.RetryCount, h.clock.Since(conn.Since).Round(time.Second)))
	}

	if snap, ok := h.store.Current(); ok {
		status.HasGame = true
		status.GameID = snap.GameID
		status.Picks = len(snap.Picks)
	}
	status.BoardConnections = h.hub.Stats().TotalConnections

	return status
}

// ServeHTTP writes the status as JSON, with 503 when unhealthy
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check()

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// Export renders the health status and hub counters in the Prometheus text format.
func (h *HealthChecker) Export() string {
	status := h.Check()
	stats := h.hub.Stats()

	var b strings.Builder
	gauge := func(name, help string, value int64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, value)
	}
	counter := func(name, help string, value int64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, value)
	}

	gauge("kenoboard_healthy", "Whether the board is kept in sync", boolGauge(status.Healthy))
	gauge("kenoboard_connection_open", "Whether the upstream connection is open", boolGauge(status.ConnectionState == stream.StateOpen))
	gauge("kenoboard_retry_count", "Current upstream reconnect attempt", int64(status.RetryCount))
	gauge("kenoboard_game_id", "Active game id", status.GameID)
	gauge("kenoboard_picks", "Picks drawn in the active game", int64(status.Picks))
	gauge("kenoboard_board_connections", "Connected board clients", int64(stats.TotalConnections))
	counter("kenoboard_broadcasts_total", "Events broadcast to boards", stats.Broadcasts)
	counter("kenoboard_broadcasts_dropped_total", "Events dropped on a full broadcast queue", stats.Dropped)

	return b.String()
}

// ServeMetrics handles GET /metrics
func (h *HealthChecker) ServeMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.Export()))
}

func boolGauge(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
