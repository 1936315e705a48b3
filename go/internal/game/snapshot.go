package game

import (
	"fmt"
	"time"
)

const (
	// MinPick and MaxPick bound the numbers drawn in a game.
	MinPick = 1
	MaxPick = 80

	// HeadsMax is the highest number counted as heads; everything above is tails.
	HeadsMax = 40

	// PicksPerGame is how many numbers the server draws per game.
	PicksPerGame = 20
)

// Game holds the fields of a full replace. A nil Picks starts the game empty.
type Game struct {
	ID              int64
	NextDrawAt      time.Time
	DrawWindowStart time.Time
	DrawWindowEnd   time.Time
	Picks           []int
}

// Snapshot is a read-only copy of a game's state
type Snapshot struct {
	GameID          int64     `json:"game_id"`
	NextDrawAt      time.Time `json:"next_draw_at"`
	DrawWindowStart time.Time `json:"draw_window_start"`
	DrawWindowEnd   time.Time `json:"draw_window_end"`
	Picks           []int     `json:"picks"` // draw order

	// Version increases with every store mutation; 0 before the first one.
	Version uint64 `json:"version"`
}

// Has reports whether pick has been drawn
func (s Snapshot) Has(pick int) bool {
	for _, p := range s.Picks {
		if p == pick {
			return true
		}
	}
	return false
}

// Heads counts picks in the lower half of the board
func (s Snapshot) Heads() int {
	n := 0
	for _, p := range s.Picks {
		if p <= HeadsMax {
			n++
		}
	}
	return n
}

// Tails counts picks in the upper half of the board
func (s Snapshot) Tails() int {
	n := 0
	for _, p := range s.Picks {
		if p > HeadsMax {
			n++
		}
	}
	return n
}

// TimeLeft returns the time until the next draw, never negative
func (s Snapshot) TimeLeft(now time.Time) time.Duration {
	left := s.NextDrawAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// FormatTimeLeft renders TimeLeft as MM:SS.
func (s Snapshot) FormatTimeLeft(now time.Time) string {
	left := s.TimeLeft(now)
	minutes := int(left / time.Minute)
	seconds := int((left % time.Minute) / time.Second)
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Picks = append([]int(nil), s.Picks...)
	if out.Picks == nil {
		out.Picks = []int{}
	}
	return out
}
