package stream

import (
	"errors"
	"time"
)

// ErrReconnectExhausted is carried by the StateChange that enters StateClosedGivenUp.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// ConnState is the connection lifecycle state
type ConnState string

const (
	StateIdle           ConnState = "IDLE"
	StateConnecting     ConnState = "CONNECTING"
	StateOpen           ConnState = "OPEN"
	StateClosedRetrying ConnState = "CLOSED_RETRYING"
	StateClosedGivenUp  ConnState = "CLOSED_GIVEN_UP"
)

// Status is a point-in-time copy of the manager's state
type Status struct {
	ConnectionID string        `json:"connection_id"`
	URL          string        `json:"url"`
	State        ConnState     `json:"state"`
	RetryCount   int           `json:"retry_count"`
	LastDelay    time.Duration `json:"last_delay"`
	Since        time.Time     `json:"since"`
}

// StateChange is pushed to subscribers on every transition.
type StateChange struct {
	State      ConnState     `json:"state"`
	RetryCount int           `json:"retry_count"`
	Delay      time.Duration `json:"delay"` // only set for StateClosedRetrying
	Err        error         `json:"-"`
	At         time.Time     `json:"at"`
}

// GivenUp reports whether this change is the terminal reconnect failure
func (c StateChange) GivenUp() bool {
	return c.State == StateClosedGivenUp
}
