// ABOUTME: Typed publish/subscribe feed with replay of the latest value
// ABOUTME: Delivery never blocks the publisher; slow subscribers lose their oldest values

package recorder

import "sync"

const feedBuffer = 16

// Feed broadcasts values to subscribers. When replay is on, a new
// subscriber first receives the latest published value.
type Feed[T any] struct {
	mu        sync.Mutex
	replay    bool
	latest    T
	hasLatest bool
	subs      map[*Subscription[T]]struct{}
}

// Subscription receives values from a Feed on C until it is closed.
type Subscription[T any] struct {
	C    <-chan T
	ch   chan T
	feed *Feed[T]
}

// NewFeed creates a feed.
func NewFeed[T any](replay bool) *Feed[T] {
	return &Feed[T]{
		replay: replay,
		subs:   map[*Subscription[T]]struct{}{},
	}
}

// Subscribe registers a subscriber.
func (f *Feed[T]) Subscribe() *Subscription[T] {
	ch := make(chan T, feedBuffer)
	sub := &Subscription[T]{C: ch, ch: ch, feed: f}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replay && f.hasLatest {
		ch <- f.latest
	}
	f.subs[sub] = struct{}{}
	return sub
}

// Publish records v as the latest value and delivers it to every subscriber.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.latest = v
	f.hasLatest = true
	for sub := range f.subs {
		select {
		case sub.ch <- v:
		default:
			// full: drop the oldest value to make room
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- v:
			default:
			}
		}
	}
}

// Latest returns the last published value.
func (f *Feed[T]) Latest() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.hasLatest
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription[T]) Close() {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	if _, ok := s.feed.subs[s]; !ok {
		return
	}
	delete(s.feed.subs, s)
	close(s.ch)
}
