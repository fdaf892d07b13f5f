package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/specdeck/specdeck/internal/broadcast"
	"github.com/specdeck/specdeck/internal/domain"
	"github.com/specdeck/specdeck/internal/eventlog"
	"github.com/specdeck/specdeck/internal/snapshot"
)

// lifecycle is the per-spec recovery state machine.
type lifecycle uint8

const (
	specUnloaded lifecycle = iota // no in-memory state yet
	specReady                     // state is authoritative
	specFailed                    // unrecoverable corruption; terminal
)

// specHandle owns one spec: its durable log, in-memory state, and live
// subscribers. All mutation funnels through the handle's mutex, which is
// the spec's single writer serialization point.
type specHandle struct {
	store  *Store
	specID string

	mu    sync.Mutex
	phase lifecycle
	state *domain.SpecState
	log   *eventlog.Log
	bcast *broadcast.Broadcaster

	// failure cause when phase == specFailed
	failure error

	// snapshot policy bookkeeping
	eventsSinceSnap int
	lastSnapAt      time.Time
	snapInFlight    bool
	snapWG          sync.WaitGroup

	closed bool
}

func newSpecHandle(s *Store, specID string) *specHandle {
	return &specHandle{
		store:  s,
		specID: specID,
		bcast:  broadcast.New(),
	}
}

func (h *specHandle) eventsPath() string {
	return filepath.Join(h.store.specDir(h.specID), eventsFileName)
}

func (h *specHandle) snapshotPath() string {
	return filepath.Join(h.store.specDir(h.specID), snapshotFileName)
}

// ensureReadyLocked drives Unloaded -> Ready by loading the latest snapshot
// and replaying the log tail. Must be called with h.mu held.
//
// Recovery is idempotent: it reads only durable inputs, so re-running it
// from the same log and snapshot always reconstructs identical state. A
// Failed handle stays failed; the durable artifacts need repair first.
func (h *specHandle) ensureReadyLocked(ctx context.Context, createIfMissing bool) error {
	switch h.phase {
	case specReady:
		return nil
	case specFailed:
		return fmt.Errorf("spec %s: %w: %w", h.specID, ErrSpecFailed, h.failure)
	case specUnloaded:
	}

	if h.closed {
		return ErrClosed
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("load spec %s: %w", h.specID, context.Cause(ctx))
	}

	if !h.store.specExistsOnDisk(h.specID) {
		if !createIfMissing {
			return fmt.Errorf("spec %s: %w", h.specID, ErrSpecNotFound)
		}

		err := os.MkdirAll(h.store.specDir(h.specID), 0o750)
		if err != nil {
			return fmt.Errorf("load spec %s: create dir: %w", h.specID, err)
		}
	}

	state, log, err := h.recover(ctx)
	if err != nil {
		if isDurableCorruption(err) {
			// Terminal for this spec only; the registry and other specs
			// keep working.
			h.phase = specFailed
			h.failure = err

			return fmt.Errorf("spec %s: %w: %w", h.specID, ErrSpecFailed, err)
		}

		return fmt.Errorf("load spec %s: %w", h.specID, err)
	}

	h.state = state
	h.log = log
	h.phase = specReady
	h.lastSnapAt = h.store.now()

	return nil
}

// recover loads the newest usable snapshot, then replays every later event.
func (h *specHandle) recover(ctx context.Context) (*domain.SpecState, *eventlog.Log, error) {
	log, report, err := eventlog.Open(h.eventsPath())
	if err != nil {
		return nil, nil, err
	}

	if report.TruncatedBytes > 0 {
		h.store.log.Warn().
			Str("spec_id", h.specID).
			Int64("bytes", report.TruncatedBytes).
			Msg("event log tail truncated during recovery")
	}

	state, snapSeq, snapErr := snapshot.Load(h.snapshotPath())
	if snapErr != nil {
		// A bad snapshot is degraded, not fatal: the log is authoritative
		// and replay rebuilds the same state.
		h.store.log.Warn().
			Str("spec_id", h.specID).
			Err(snapErr).
			Msg("snapshot unusable, replaying full log")

		state = nil
		snapSeq = 0
	}

	if state == nil {
		state = domain.NewSpecState(h.specID)
	} else {
		log.Reserve(snapSeq)
	}

	// The replay range is (state.Seq, last]. If compaction discarded
	// records past state.Seq+1 the range cannot be rebuilt: snapshot and
	// log are compromised together.
	firstSeq := log.FirstSeq()
	if firstSeq > state.Seq+1 {
		_ = log.Close()

		return nil, nil, fmt.Errorf("replay range starts at %d but log begins at %d: %w",
			state.Seq+1, firstSeq, eventlog.ErrCorrupt)
	}

	reader, err := log.ReadFrom(state.Seq)
	if err != nil {
		_ = log.Close()

		return nil, nil, err
	}

	defer func() { _ = reader.Close() }()

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			_ = log.Close()

			return nil, nil, fmt.Errorf("replay canceled: %w", context.Cause(ctx))
		}

		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			_ = log.Close()

			return nil, nil, fmt.Errorf("replay: %w", err)
		}

		err = domain.Apply(state, ev)
		if err != nil {
			_ = log.Close()

			return nil, nil, fmt.Errorf("replay event %d: %w: %w", ev.Seq, eventlog.ErrCorrupt, err)
		}
	}

	return state, log, nil
}

// isDurableCorruption classifies recovery failures that no retry can fix.
func isDurableCorruption(err error) bool {
	return errors.Is(err, eventlog.ErrCorrupt) ||
		errors.Is(err, eventlog.ErrFormat) ||
		errors.Is(err, domain.ErrUnknownEvent) ||
		errors.Is(err, domain.ErrUnknownSchema)
}

// close shuts down subscriptions, waits for any in-flight snapshot write,
// and releases the log handle.
func (h *specHandle) close() error {
	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()

		return nil
	}

	h.closed = true
	log := h.log
	h.mu.Unlock()

	h.bcast.Close()
	h.snapWG.Wait()

	if log == nil {
		return nil
	}

	err := log.Close()
	if err != nil {
		return fmt.Errorf("close spec %s: %w", h.specID, err)
	}

	return nil
}
