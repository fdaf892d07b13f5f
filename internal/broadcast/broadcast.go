// Package broadcast fans newly committed events out to live subscribers of
// one spec.
//
// Delivery preserves commit order. Every subscriber owns a bounded buffer;
// when a slow subscriber falls behind, the oldest undelivered events are
// dropped and the dropped range is reported on the item that follows it, so
// a consumer always knows which sequence range it missed and can re-read it
// from the log. Publishing never blocks on a subscriber, and cancelling a
// subscription never affects the writer or other subscribers.
package broadcast

import (
	"context"
	"sync"

	"github.com/specdeck/specdeck/internal/domain"
)

// DefaultBufferSize is the per-subscriber buffer used when a subscriber
// does not ask for a specific capacity.
const DefaultBufferSize = 64

// Item is one delivery to a subscriber.
//
// When GapFrom is non-zero, the inclusive range GapFrom..GapTo was dropped
// because the subscriber's buffer overflowed. The range always ends directly
// before Event (GapTo == Event.Seq-1), so a consumer knows exactly where the
// stream resumes; the dropped events can be recovered via a log read. Event
// itself is always valid.
type Item struct {
	Event   domain.Event
	GapFrom uint64
	GapTo   uint64
}

// Broadcaster distributes committed events to the current subscribers of a
// spec. The zero value is not usable; call [New].
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New returns an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{subs: make(map[*Subscription]struct{})}
}

// Subscription is one subscriber's live event feed. Receive with
// [Subscription.Next]; call [Subscription.Close] to detach.
//
// The buffer holds raw events; the gap bookkeeping lives next to it and is
// folded into an item only at the moment the item is handed out. That keeps
// the invariant that a reported gap ends directly before the event carrying
// it, no matter how many drops happen while items sit in the buffer.
type Subscription struct {
	b *Broadcaster

	mu      sync.Mutex
	queue   []domain.Event
	cap     int
	gapFrom uint64 // dropped range directly preceding queue[0]
	gapTo   uint64
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// Subscribe registers a new subscriber with the given buffer capacity
// (DefaultBufferSize when bufferSize <= 0). It returns nil when the
// broadcaster is closed.
func (b *Broadcaster) Subscribe(bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscription{
		b:    b,
		cap:  bufferSize,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	b.subs[sub] = struct{}{}

	return sub
}

// Publish delivers events, in order, to every current subscriber. It never
// blocks: full subscriber buffers shed their oldest entries instead.
// Publish calls for one spec are serialized by the command processor, which
// is what gives subscribers a single consistent order.
func (b *Broadcaster) Publish(events []domain.Event) {
	if len(events) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for sub := range b.subs {
		for _, ev := range events {
			sub.push(ev)
		}
	}
}

// push enqueues one event, dropping the oldest buffered event when full and
// folding the dropped sequence number into the pending gap. The pending gap
// always abuts the current buffer head: drops shed contiguous sequence
// numbers from the front, and handing out the head clears the gap with it.
func (s *Subscription) push(ev domain.Event) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return
	}

	if len(s.queue) == s.cap {
		dropped := s.queue[0]
		s.queue = s.queue[1:]

		if s.gapFrom == 0 {
			s.gapFrom = dropped.Seq
		}

		s.gapTo = dropped.Seq
	}

	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next blocks until an item is available and returns it, or returns false
// when ctx ends or the subscription shuts down. Events buffered before a
// shutdown are still handed out first.
func (s *Subscription) Next(ctx context.Context) (Item, bool) {
	for {
		s.mu.Lock()

		if len(s.queue) > 0 {
			item := Item{Event: s.queue[0], GapFrom: s.gapFrom, GapTo: s.gapTo}
			s.queue = s.queue[1:]
			s.gapFrom, s.gapTo = 0, 0
			s.mu.Unlock()

			return item, true
		}

		closed := s.closed
		s.mu.Unlock()

		if closed {
			return Item{}, false
		}

		select {
		case <-s.wake:
		case <-s.done:
		case <-ctx.Done():
			return Item{}, false
		}
	}
}

// shutdown marks the subscription closed and unblocks Next.
func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.done)
}

// Close detaches the subscriber. Safe to call more than once; never blocks
// the writer or other subscribers.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	delete(s.b.subs, s)
	s.b.mu.Unlock()

	s.shutdown()
}

// Close shuts the broadcaster down and detaches every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()

		return
	}

	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))

	for sub := range b.subs {
		delete(b.subs, sub)
		subs = append(subs, sub)
	}

	b.mu.Unlock()

	for _, sub := range subs {
		sub.shutdown()
	}
}
