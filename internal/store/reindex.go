package store

import (
	"context"
	"errors"
	"fmt"
)

// Reindex rebuilds the derived SQLite card index from scratch by folding
// every spec's event history. Specs that fail recovery are skipped and
// reported; the rebuilt index covers every healthy spec.
//
// The index is derived data, so Reindex is always safe to run.
func (s *Store) Reindex(ctx context.Context) error {
	if s.idx == nil {
		return errors.New("reindex: index is disabled")
	}

	ids, err := s.ListSpecIDs()
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}

	err = s.idx.Reset(ctx)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}

	var failed []error

	for _, specID := range ids {
		state, err := s.GetState(ctx, specID)
		if err != nil {
			if errors.Is(err, ErrSpecFailed) {
				s.log.Warn().
					Str("spec_id", specID).
					Err(err).
					Msg("skipping failed spec during reindex")

				failed = append(failed, err)

				continue
			}

			return fmt.Errorf("reindex: %w", err)
		}

		err = s.idx.RebuildSpec(ctx, state)
		if err != nil {
			return fmt.Errorf("reindex spec %s: %w", specID, err)
		}
	}

	return errors.Join(failed...)
}
