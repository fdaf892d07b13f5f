package store

import (
	"context"
	"fmt"

	"github.com/specdeck/specdeck/internal/domain"
)

// Submit is the sole mutation path: it validates cmd against the spec's
// current state, appends the derived events durably, folds them into
// in-memory state, and hands them to live subscribers, as one atomic step
// per spec.
//
// Commands for the same spec queue behind its serialization point; each
// queued caller is validated against the state as of its own turn. When
// expectedVersion is non-nil and does not match the current sequence
// number, Submit fails with [ErrVersionConflict] before any append.
//
// The returned events carry their assigned sequence numbers. A command
// whose effect already holds returns an empty slice and no error.
//
// Cancellation is checked before the durable append. Once the append
// starts, the command either becomes fully durable or fails whole; there is
// no half-applied outcome for the caller's context to interrupt.
func (s *Store) Submit(ctx context.Context, specID string, cmd domain.Command, expectedVersion *uint64) ([]domain.Event, error) {
	if ctx == nil {
		return nil, fmt.Errorf("submit: context is nil")
	}

	if err := domain.ValidateID(specID); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	if cmd == nil {
		return nil, fmt.Errorf("submit: command is nil: %w", domain.ErrInvalidPayload)
	}

	h, err := s.handle(specID)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("submit: %w", ErrClosed)
	}

	// Only spec creation may materialize a new spec directory, and only
	// after the command itself holds up: a rejected create must leave no
	// durable trace, so it is checked against empty state before any
	// directory or log file exists.
	_, creating := cmd.(domain.CreateSpec)
	if creating && !s.specExistsOnDisk(specID) {
		if expectedVersion != nil && *expectedVersion != 0 {
			return nil, fmt.Errorf("submit: expected version %d, current 0: %w",
				*expectedVersion, ErrVersionConflict)
		}

		_, err = domain.Validate(domain.NewSpecState(specID), cmd, s.now())
		if err != nil {
			return nil, fmt.Errorf("submit: %w", err)
		}
	}

	err = h.ensureReadyLocked(ctx, creating)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	if expectedVersion != nil && *expectedVersion != h.state.Seq {
		return nil, fmt.Errorf("submit: expected version %d, current %d: %w",
			*expectedVersion, h.state.Seq, ErrVersionConflict)
	}

	events, err := domain.Validate(h.state, cmd, s.now())
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	if len(events) == 0 {
		return nil, nil
	}

	// Last safe cancellation point: nothing durable has happened yet.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("submit: %w", context.Cause(ctx))
	}

	// Durable append first. An error here is surfaced verbatim; nothing
	// was applied, so the caller may safely retry the whole command.
	_, _, err = h.log.Append(events)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	// Fold into in-memory state. The events just passed validation, so a
	// failure here means memory and disk have diverged; the only safe move
	// is to fail the spec and force a re-recovery from durable state.
	for _, ev := range events {
		err = domain.Apply(h.state, ev)
		if err != nil {
			h.phase = specFailed
			h.failure = fmt.Errorf("apply committed event %d: %w", ev.Seq, err)

			return nil, fmt.Errorf("submit: %w: %w", ErrSpecFailed, h.failure)
		}
	}

	// Derived index is best effort; the log stays authoritative.
	if s.idx != nil {
		err = s.idx.UpdateSpec(ctx, h.state, events)
		if err != nil {
			s.log.Warn().
				Str("spec_id", specID).
				Err(err).
				Msg("card index update failed; reindex to repair")
		}
	}

	// Subscribers only ever see events that are already durable.
	h.bcast.Publish(events)

	h.eventsSinceSnap += len(events)
	h.maybeSnapshotLocked()

	return events, nil
}

// CreateSpec generates a spec ID and submits the initial [domain.CreateSpec]
// command. It returns the new spec's ID.
func (s *Store) CreateSpec(ctx context.Context, name string) (string, error) {
	specID, err := domain.NewID()
	if err != nil {
		return "", fmt.Errorf("create spec: %w", err)
	}

	_, err = s.Submit(ctx, specID, domain.CreateSpec{Name: name}, nil)
	if err != nil {
		return "", err
	}

	return specID, nil
}
