package game

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultHighlightWindow covers the board's 500ms hold plus 1000ms travel animation.
const DefaultHighlightWindow = 1500 * time.Millisecond

// Highlight marks a newly drawn pick
type Highlight struct {
	Pick int       `json:"pick"`
	At   time.Time `json:"at"`
}

// Active reports whether the highlight is still inside its display window at now.
func (h Highlight) Active(now time.Time, window time.Duration) bool {
	if h.At.IsZero() {
		return false
	}
	return now.Before(h.At.Add(window))
}

// Detect returns the single pick present in next but not in prev. It is only defined
// when next has exactly one more element than prev and every element of prev is kept;
// any other transition (shrink, jump by more than one, unrelated set) reports false.
func Detect(prev, next []int) (int, bool) {
	if len(next) != len(prev)+1 {
		return 0, false
	}

	seen := make(map[int]struct{}, len(prev))
	for _, p := range prev {
		seen[p] = struct{}{}
	}

	added, found := 0, false
	for _, p := range next {
		if _, ok := seen[p]; ok {
			continue
		}
		if found {
			return 0, false
		}
		added, found = p, true
	}
	return added, found
}

// Detector stamps detected additions with the time they were observed.
type Detector struct {
	clock clockwork.Clock
	last  Highlight
}

// NewDetector creates a detector reading time from clock
func NewDetector(clock clockwork.Clock) *Detector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Detector{clock: clock}
}

// Observe runs Detect and records the result as the latest highlight.
func (d *Detector) Observe(prev, next []int) (Highlight, bool) {
	pick, ok := Detect(prev, next)
	if !ok {
		return Highlight{}, false
	}
	d.last = Highlight{Pick: pick, At: d.clock.Now()}
	return d.last, true
}

// Last returns the most recent highlight, zero if none fired yet
func (d *Detector) Last() Highlight {
	return d.last
}

// Reset forgets the last highlight
func (d *Detector) Reset() {
	d.last = Highlight{}
}
