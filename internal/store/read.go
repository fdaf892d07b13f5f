package store

import (
	"context"
	"fmt"

	"github.com/specdeck/specdeck/internal/domain"
)

// GetState returns a deep copy of the spec's current state, triggering
// recovery on first access. The copy corresponds to an exact event boundary:
// multi-event command batches are never visible half-applied. Mutating the
// returned state has no effect on the store.
func (s *Store) GetState(ctx context.Context, specID string) (*domain.SpecState, error) {
	if ctx == nil {
		return nil, fmt.Errorf("get state: context is nil")
	}

	if err := domain.ValidateID(specID); err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}

	h, err := s.handle(specID)
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	err = h.ensureReadyLocked(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}

	return h.state.Clone(), nil
}

// Version returns the spec's current sequence number, for read-then-write
// callers that want optimistic concurrency via Submit's expectedVersion.
func (s *Store) Version(ctx context.Context, specID string) (uint64, error) {
	state, err := s.GetState(ctx, specID)
	if err != nil {
		return 0, err
	}

	return state.Seq, nil
}

// ReadEvents returns the spec's persisted events with sequence numbers
// strictly greater than afterSeq, in order. When compaction already
// discarded part of the requested range, ReadEvents fails with
// [ErrCompacted] rather than silently returning a truncated prefix. Callers
// that also need the live tail should use [Store.Subscribe], which splices
// history and live stream without gaps or duplicates.
func (s *Store) ReadEvents(ctx context.Context, specID string, afterSeq uint64) ([]domain.Event, error) {
	if ctx == nil {
		return nil, fmt.Errorf("read events: context is nil")
	}

	if err := domain.ValidateID(specID); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	h, err := s.handle(specID)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	h.mu.Lock()

	err = h.ensureReadyLocked(ctx, false)
	if err != nil {
		h.mu.Unlock()

		return nil, fmt.Errorf("read events: %w", err)
	}

	firstSeq := h.log.FirstSeq()
	curSeq := h.state.Seq

	missing := firstSeq > afterSeq+1 || (firstSeq == 0 && curSeq > afterSeq)
	if missing {
		h.mu.Unlock()

		oldest := firstSeq
		if oldest == 0 {
			oldest = curSeq + 1
		}

		return nil, fmt.Errorf("read events: records before %d discarded: %w", oldest, ErrCompacted)
	}

	reader, err := h.log.ReadFrom(afterSeq)
	h.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	events, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	return events, nil
}
