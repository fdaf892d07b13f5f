// Package index maintains a derived SQLite view of cards across all specs
// for list/query operations.
//
// The index never participates in durability: the event log is always
// authoritative, the index is rebuilt from replayed state on demand, and an
// out-of-date index affects only queries, never stored data.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/specdeck/specdeck/internal/domain"
)

// currentSchemaVersion is stored in SQLite's user_version pragma.
// Increment whenever the schema changes; a mismatch resets the index, and
// the next reindex repopulates it.
const currentSchemaVersion = 1

// sqliteBusyTimeout is how long SQLite waits on a locked database before
// returning SQLITE_BUSY, in milliseconds.
const sqliteBusyTimeout = 10000

// Index is the derived card view. It is safe for concurrent use.
type Index struct {
	db *sql.DB
}

// Open opens (or creates) the index database at path. A schema version
// mismatch drops and recreates the tables; the caller repopulates via
// rebuilds or write-through updates.
func Open(ctx context.Context, path string) (*Index, error) {
	if ctx == nil {
		return nil, errors.New("open index: context is nil")
	}

	if path == "" {
		return nil, errors.New("open index: path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("open index: ping: %w", err)
	}

	err = applyPragmas(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	version, err := storedSchemaVersion(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	if version != currentSchemaVersion {
		err = recreateSchema(ctx, db)
		if err != nil {
			_ = db.Close()

			return nil, err
		}
	}

	return &Index{db: db}, nil
}

// applyPragmas configures the connection. The index is derived, so NORMAL
// synchronous is enough; losing it costs a reindex, not data.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA temp_store = MEMORY;
	`, sqliteBusyTimeout))
	if err != nil {
		return fmt.Errorf("apply pragmas: %w", err)
	}

	return nil
}

func storedSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	row := db.QueryRowContext(ctx, "PRAGMA user_version")

	var version int

	err := row.Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}

	return version, nil
}

func recreateSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		DROP TABLE IF EXISTS cards;
		DROP TABLE IF EXISTS specs;

		CREATE TABLE specs (
			spec_id    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			seq        INTEGER NOT NULL
		);

		CREATE TABLE cards (
			spec_id    TEXT NOT NULL,
			card_id    TEXT NOT NULL,
			title      TEXT NOT NULL,
			status     TEXT NOT NULL,
			parent     TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (spec_id, card_id)
		);

		CREATE INDEX cards_status ON cards(status);
		CREATE INDEX cards_parent ON cards(spec_id, parent);

		PRAGMA user_version = %d;
	`, currentSchemaVersion))
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// UpdateSpec applies the effect of one committed event batch to the index,
// write-through style. state must already reflect the batch. The update
// runs in a single transaction so queries never see a half-applied batch.
func (ix *Index) UpdateSpec(ctx context.Context, state *domain.SpecState, events []domain.Event) error {
	if state == nil {
		return errors.New("index update: state is nil")
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index update: begin: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	err = upsertSpecRow(ctx, tx, state)
	if err != nil {
		return err
	}

	for _, cardID := range affectedCardIDs(events) {
		card := state.Card(cardID)
		if card == nil {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM cards WHERE spec_id = ? AND card_id = ?`,
				state.SpecID, cardID)
			if err != nil {
				return fmt.Errorf("index update: delete card %s: %w", cardID, err)
			}

			continue
		}

		err = upsertCardRow(ctx, tx, state.SpecID, card)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("index update: commit: %w", err)
	}

	committed = true

	return nil
}

// RebuildSpec replaces every indexed row of one spec with rows derived from
// state.
func (ix *Index) RebuildSpec(ctx context.Context, state *domain.SpecState) error {
	if state == nil {
		return errors.New("index rebuild: state is nil")
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index rebuild: begin: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `DELETE FROM cards WHERE spec_id = ?`, state.SpecID)
	if err != nil {
		return fmt.Errorf("index rebuild: clear cards: %w", err)
	}

	err = upsertSpecRow(ctx, tx, state)
	if err != nil {
		return err
	}

	for _, card := range state.Cards {
		err = upsertCardRow(ctx, tx, state.SpecID, card)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("index rebuild: commit: %w", err)
	}

	committed = true

	return nil
}

// Reset drops every row. Used before a full reindex.
func (ix *Index) Reset(ctx context.Context) error {
	_, err := ix.db.ExecContext(ctx, `DELETE FROM cards; DELETE FROM specs;`)
	if err != nil {
		return fmt.Errorf("index reset: %w", err)
	}

	return nil
}

// Close releases the database handle.
func (ix *Index) Close() error {
	if ix == nil || ix.db == nil {
		return nil
	}

	err := ix.db.Close()
	if err != nil {
		return fmt.Errorf("close index: %w", err)
	}

	return nil
}

func upsertSpecRow(ctx context.Context, tx *sql.Tx, state *domain.SpecState) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO specs (spec_id, name, created_at, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(spec_id) DO UPDATE SET name = excluded.name, seq = excluded.seq`,
		state.SpecID, state.Name, state.CreatedAt.UnixNano(), int64(state.Seq))
	if err != nil {
		return fmt.Errorf("index: upsert spec %s: %w", state.SpecID, err)
	}

	return nil
}

func upsertCardRow(ctx context.Context, tx *sql.Tx, specID string, card *domain.Card) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cards (spec_id, card_id, title, status, parent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(spec_id, card_id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			parent = excluded.parent,
			updated_at = excluded.updated_at`,
		specID, card.ID, card.Title, string(card.Status), card.Parent,
		card.CreatedAt.UnixNano(), card.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("index: upsert card %s: %w", card.ID, err)
	}

	return nil
}

// affectedCardIDs extracts the distinct card IDs touched by an event batch,
// in first-touched order.
func affectedCardIDs(events []domain.Event) []string {
	seen := make(map[string]struct{}, len(events))

	var ids []string

	for _, ev := range events {
		cardID, ok := domain.EventCardID(ev)
		if !ok {
			continue
		}

		if _, dup := seen[cardID]; dup {
			continue
		}

		seen[cardID] = struct{}{}
		ids = append(ids, cardID)
	}

	return ids
}

// unixNanoTime converts a stored nanosecond timestamp back to time.Time.
func unixNanoTime(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
