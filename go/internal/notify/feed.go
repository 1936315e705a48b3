package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Feed fans values out to any number of subscribers. Publish never blocks: a subscriber
// whose buffer is full misses that value. PublishWait blocks for a bounded time.
type Feed[T any] struct {
	name string

	mu     sync.Mutex
	nextID int
	subs   map[int]chan T
	closed bool
}

// NewFeed creates a feed; name is only used in log lines
func NewFeed[T any](name string) *Feed[T] {
	return &Feed[T]{
		name: name,
		subs: make(map[int]chan T),
	}
}

// Subscribe registers a new subscriber with the given buffer size. The returned cancel
// func unregisters it and closes the channel; calling it twice is safe.
func (f *Feed[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers v to every subscriber that has room and returns how many got it.
func (f *Feed[T]) Publish(v T) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	delivered := 0
	for id, ch := range f.subs {
		select {
		case ch <- v:
			delivered++
		default:
			log.Warn().
				Str("feed", f.name).
				Int("subscriber", id).
				Msg("subscriber buffer full, dropping notification")
		}
	}
	return delivered
}

// PublishWait is Publish for values that must not be missed: a subscriber with a full
// buffer gets until timeout to make room. The timeout is shared by all subscribers.
func (f *Feed[T]) PublishWait(v T, timeout time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	expired := false

	delivered := 0
	for id, ch := range f.subs {
		select {
		case ch <- v:
			delivered++
			continue
		default:
		}

		if !expired {
			select {
			case ch <- v:
				delivered++
				continue
			case <-deadline.C:
				expired = true
			}
		}

		log.Warn().
			Str("feed", f.name).
			Int("subscriber", id).
			Dur("timeout", timeout).
			Msg("subscriber did not make room in time, dropping notification")
	}
	return delivered
}

// Len returns the number of live subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close closes every subscriber channel. Later subscribers get an already closed channel.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
