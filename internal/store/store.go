package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/specdeck/specdeck/internal/domain"
	"github.com/specdeck/specdeck/internal/index"
)

const (
	specsDirName     = "specs"
	eventsFileName   = "events.log"
	snapshotFileName = "snapshot.json"
	indexFileName    = "index.sqlite"
)

// Options configures a [Store]. The zero value of every field selects a
// sensible default.
type Options struct {
	// Logger receives degraded-recovery warnings and background
	// snapshot/compaction/index failures. Defaults to a no-op logger.
	Logger zerolog.Logger

	// SnapshotEvery triggers a snapshot after this many events since the
	// last one. Default 100.
	SnapshotEvery int

	// SnapshotInterval triggers a snapshot when this much time has passed
	// since the last one, even below the event threshold. Default 5m.
	SnapshotInterval time.Duration

	// DisableCompaction keeps the full log instead of discarding records
	// already covered by a successful snapshot.
	DisableCompaction bool

	// SubscriberBuffer is the per-subscriber channel capacity for
	// [Store.Subscribe]. Default broadcast.DefaultBufferSize.
	SubscriberBuffer int

	// DisableIndex skips the derived SQLite card index.
	DisableIndex bool

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Store owns every spec handle in one data directory. It is safe for
// concurrent use; per-spec writes are serialized internally.
type Store struct {
	dir  string
	opts Options
	log  zerolog.Logger
	idx  *index.Index
	lock *dirLock

	mu     sync.Mutex
	specs  map[string]*specHandle
	closed bool
}

// Open initializes a store rooted at dir, creating the layout when absent.
// Spec state is not loaded eagerly; each spec is recovered on first access.
func Open(ctx context.Context, dir string, opts Options) (*Store, error) {
	if ctx == nil {
		return nil, errors.New("open store: context is nil")
	}

	if dir == "" {
		return nil, errors.New("open store: directory is empty")
	}

	dir = filepath.Clean(dir)

	err := os.MkdirAll(filepath.Join(dir, specsDirName), 0o750)
	if err != nil {
		return nil, fmt.Errorf("open store: create layout: %w", err)
	}

	if opts.SnapshotEvery <= 0 {
		opts.SnapshotEvery = 100
	}

	if opts.SnapshotInterval <= 0 {
		opts.SnapshotInterval = 5 * time.Minute
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	lock, err := acquireDirLock(dir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Store{
		dir:   dir,
		opts:  opts,
		log:   opts.Logger,
		lock:  lock,
		specs: make(map[string]*specHandle),
	}

	if !opts.DisableIndex {
		idx, err := index.Open(ctx, filepath.Join(dir, indexFileName))
		if err != nil {
			_ = lock.release()

			return nil, fmt.Errorf("open store: %w", err)
		}

		s.idx = idx
	}

	return s, nil
}

// Close releases every loaded spec handle and the index. In-flight
// background snapshot writes are allowed to finish.
func (s *Store) Close() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true
	handles := make([]*specHandle, 0, len(s.specs))

	for _, h := range s.specs {
		handles = append(handles, h)
	}

	s.mu.Unlock()

	var errs []error

	for _, h := range handles {
		err := h.close()
		if err != nil {
			errs = append(errs, err)
		}
	}

	if s.idx != nil {
		err := s.idx.Close()
		if err != nil {
			errs = append(errs, err)
		}
	}

	err := s.lock.release()
	if err != nil {
		errs = append(errs, fmt.Errorf("release dir lock: %w", err))
	}

	return errors.Join(errs...)
}

// specDir returns the directory owning one spec's artifacts.
func (s *Store) specDir(specID string) string {
	return filepath.Join(s.dir, specsDirName, specID)
}

// handle returns the registry entry for specID, creating an unloaded one if
// needed. Recovery happens lazily under the handle's own lock, never under
// the registry lock, so loading one spec cannot stall access to another.
func (s *Store) handle(specID string) (*specHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	h, ok := s.specs[specID]
	if !ok {
		h = newSpecHandle(s, specID)
		s.specs[specID] = h
	}

	return h, nil
}

// ListSpecIDs returns the IDs of every spec with on-disk state, loaded or
// not, in directory order.
func (s *Store) ListSpecIDs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, specsDirName))
	if err != nil {
		return nil, fmt.Errorf("list specs: %w", err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if domain.ValidateID(entry.Name()) != nil {
			continue
		}

		ids = append(ids, entry.Name())
	}

	return ids, nil
}

// specExistsOnDisk reports whether a spec directory is present.
func (s *Store) specExistsOnDisk(specID string) bool {
	info, err := os.Stat(s.specDir(specID))

	return err == nil && info.IsDir()
}

// Index exposes the derived card index for queries, or nil when disabled.
func (s *Store) Index() *index.Index {
	return s.idx
}

// now returns the store clock's current time.
func (s *Store) now() time.Time {
	return s.opts.Clock()
}
