package store

import (
	"context"
	"fmt"

	"github.com/specdeck/specdeck/internal/domain"
	"github.com/specdeck/specdeck/internal/snapshot"
)

// maybeSnapshotLocked starts a background snapshot write when the event
// count or elapsed-time threshold is reached, whichever comes first. Must
// be called with h.mu held, on a Ready handle.
//
// The write itself runs off the lock so it never delays a command's
// durability acknowledgment. At most one snapshot write per spec is in
// flight; failures are logged and retried on the next trigger, since the
// log remains authoritative either way.
func (h *specHandle) maybeSnapshotLocked() {
	if h.snapInFlight || h.eventsSinceSnap == 0 {
		return
	}

	due := h.eventsSinceSnap >= h.store.opts.SnapshotEvery ||
		h.store.now().Sub(h.lastSnapAt) >= h.store.opts.SnapshotInterval
	if !due {
		return
	}

	go h.writeSnapshot(h.claimSnapshotLocked())
}

// claimSnapshotLocked marks a snapshot write as in flight and returns the
// state to persist, or nil when another write already holds the claim. Must
// be called with h.mu held.
//
// Every snapshot write, forced or background, goes through one claim at a
// time. Claims are taken in commit order, so the sequence number on disk
// only ever moves forward and compaction can trust its own saved sequence
// number as a lower bound of the on-disk snapshot.
func (h *specHandle) claimSnapshotLocked() *domain.SpecState {
	if h.snapInFlight {
		return nil
	}

	h.snapInFlight = true
	h.snapWG.Add(1)

	return h.state.Clone()
}

// saveSnapshot persists a claimed state and releases the claim. Runs off
// the handle lock; returns the write error for the caller to surface.
func (h *specHandle) saveSnapshot(state *domain.SpecState) error {
	defer h.snapWG.Done()

	err := snapshot.Save(h.snapshotPath(), state, state.Seq)

	h.mu.Lock()
	h.snapInFlight = false

	if err == nil {
		if delta := h.state.Seq - state.Seq; delta < uint64(h.eventsSinceSnap) {
			h.eventsSinceSnap = int(delta)
		}

		h.lastSnapAt = h.store.now()
	}
	h.mu.Unlock()

	return err
}

// writeSnapshot is the background snapshot path: it persists the claimed
// state and then compacts the log behind it.
func (h *specHandle) writeSnapshot(state *domain.SpecState) {
	seq := state.Seq

	err := h.saveSnapshot(state)
	if err != nil {
		// Retried on the next trigger; eventsSinceSnap stays as is.
		h.store.log.Warn().
			Str("spec_id", h.specID).
			Uint64("seq", seq).
			Err(err).
			Msg("snapshot write failed")

		return
	}

	h.mu.Lock()
	log := h.log
	compact := !h.store.opts.DisableCompaction && !h.closed
	h.mu.Unlock()

	if !compact {
		return
	}

	err = log.Compact(seq)
	if err != nil {
		h.store.log.Warn().
			Str("spec_id", h.specID).
			Uint64("up_to", seq).
			Err(err).
			Msg("log compaction failed")
	}
}

// Snapshot forces a snapshot of the spec's current state, regardless of the
// periodic policy, and waits for it to complete.
func (s *Store) Snapshot(ctx context.Context, specID string) error {
	if err := domain.ValidateID(specID); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	h, err := s.handle(specID)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	for {
		h.mu.Lock()

		err = h.ensureReadyLocked(ctx, false)
		if err != nil {
			h.mu.Unlock()

			return fmt.Errorf("snapshot: %w", err)
		}

		if h.state.Seq == 0 {
			h.mu.Unlock()

			return nil
		}

		state := h.claimSnapshotLocked()
		h.mu.Unlock()

		if state != nil {
			err = h.saveSnapshot(state)
			if err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}

			return nil
		}

		// An in-flight background write holds the claim; wait it out and
		// claim the then-current state instead.
		h.snapWG.Wait()

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("snapshot: %w", context.Cause(ctx))
		}
	}
}

// Compact discards log records already covered by the spec's snapshot.
func (s *Store) Compact(ctx context.Context, specID string) error {
	if err := domain.ValidateID(specID); err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	h, err := s.handle(specID)
	if err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	h.mu.Lock()

	err = h.ensureReadyLocked(ctx, false)
	if err != nil {
		h.mu.Unlock()

		return fmt.Errorf("compact: %w", err)
	}

	log := h.log
	h.mu.Unlock()

	// Compaction may only discard what the snapshot can replace.
	_, snapSeq, err := snapshot.Load(h.snapshotPath())
	if err != nil {
		return fmt.Errorf("compact: snapshot unusable: %w", err)
	}

	if snapSeq == 0 {
		return nil
	}

	err = log.Compact(snapSeq)
	if err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	return nil
}
