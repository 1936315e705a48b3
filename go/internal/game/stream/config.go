package stream

import (
	"math"
	"time"
)

// ConnectionConfig holds configuration for the upstream connection
type ConnectionConfig struct {
	URL string

	// Reconnection
	RetryEnabled   bool
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration // 0 leaves the backoff uncapped

	// Transport
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration // 0 disables the read deadline
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
}

// DefaultConnectionConfig returns the defaults: 5 retries starting from a 1s base, no cap
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		URL:              "ws://localhost:8080/stream",
		RetryEnabled:     true,
		MaxRetries:       5,
		InitialBackoff:   time.Second,
		MaxBackoff:       0,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      0,
		MaxMessageSize:   64 * 1024,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
}

// BackoffDelay returns the wait before reconnect attempt number retry (1-based):
// InitialBackoff * 2^retry, clamped to MaxBackoff when one is set.
func (c ConnectionConfig) BackoffDelay(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}

	delay := c.InitialBackoff
	for i := 0; i < retry; i++ {
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64
			break
		}
		delay *= 2
	}

	if c.MaxBackoff > 0 && delay > c.MaxBackoff {
		return c.MaxBackoff
	}
	return delay
}
