package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/specdeck/specdeck/internal/broadcast"
	"github.com/specdeck/specdeck/internal/domain"
)

// Subscribe streams the spec's events with sequence numbers greater than
// afterSeq: first the persisted history, then live commits, spliced with no
// gap and no duplicate at the boundary.
//
// When afterSeq predates the oldest record still on disk (compaction
// discarded the prefix), the first delivered item reports the unavailable
// range via its gap fields; history is never skipped silently. A slow
// consumer never blocks the writer; if it falls far enough behind, delivery
// skips ahead and the skipped range is likewise reported on the item that
// follows it (see [broadcast.Item]).
//
// The returned channel closes when ctx is cancelled or the store shuts down.
func (s *Store) Subscribe(ctx context.Context, specID string, afterSeq uint64) (<-chan broadcast.Item, error) {
	if ctx == nil {
		return nil, fmt.Errorf("subscribe: context is nil")
	}

	if err := domain.ValidateID(specID); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	h, err := s.handle(specID)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	h.mu.Lock()

	err = h.ensureReadyLocked(ctx, false)
	if err != nil {
		h.mu.Unlock()

		return nil, fmt.Errorf("subscribe: %w", err)
	}

	// Registering the live feed and opening the history reader under the
	// same lock is what makes the splice seamless: the reader sees exactly
	// the events up to the current sequence number, and the feed sees
	// exactly the events after it.
	sub := h.bcast.Subscribe(s.opts.SubscriberBuffer)
	if sub == nil {
		h.mu.Unlock()

		return nil, fmt.Errorf("subscribe: %w", ErrClosed)
	}

	reader, err := h.log.ReadFrom(afterSeq)
	curSeq := h.state.Seq
	h.mu.Unlock()

	if err != nil {
		sub.Close()

		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan broadcast.Item)

	go func() {
		defer close(out)
		defer sub.Close()
		defer func() { _ = reader.Close() }()

		// Records at or below the compaction point are gone from the log;
		// the unavailable prefix rides as a gap on the first delivered item.
		// When history comes up entirely empty, the first live event carries
		// it instead (gapFrom/gapTo stay pending until then).
		var gapFrom, gapTo uint64
		if curSeq > afterSeq {
			gapFrom, gapTo = afterSeq+1, curSeq
		}

		// Replay history first.
		lastDelivered := afterSeq

		for {
			ev, readErr := reader.Next()
			if errors.Is(readErr, io.EOF) {
				break
			}

			if readErr != nil {
				// Damaged history after recovery already validated it is
				// not survivable mid-stream; end the subscription so the
				// consumer re-reads instead of silently missing events.
				return
			}

			item := broadcast.Item{Event: ev}
			if gapFrom != 0 {
				if ev.Seq > gapFrom {
					item.GapFrom, item.GapTo = gapFrom, ev.Seq-1
				}

				gapFrom, gapTo = 0, 0
			}

			if !deliver(ctx, out, item) {
				return
			}

			lastDelivered = ev.Seq
		}

		// Then the live feed. Items at or below the last replayed sequence
		// number were already delivered from history.
		for {
			item, ok := sub.Next(ctx)
			if !ok {
				return
			}

			if item.Event.Seq <= lastDelivered {
				continue
			}

			// A compacted prefix the empty history could not carry lands on
			// the first live item instead.
			if gapFrom != 0 {
				if item.GapTo == 0 {
					item.GapTo = gapTo
				}

				item.GapFrom = gapFrom
				gapFrom, gapTo = 0, 0
			}

			// Clamp gap info to what this subscriber actually missed.
			if item.GapFrom != 0 && item.GapFrom <= lastDelivered {
				item.GapFrom = lastDelivered + 1
			}

			if item.GapTo <= lastDelivered {
				item.GapFrom, item.GapTo = 0, 0
			}

			if !deliver(ctx, out, item) {
				return
			}

			lastDelivered = item.Event.Seq
		}
	}()

	return out, nil
}

// deliver sends one item unless the subscriber's context ends first.
func deliver(ctx context.Context, out chan<- broadcast.Item, item broadcast.Item) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- item:
		return true
	}
}
