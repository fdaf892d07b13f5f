package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/specdeck/specdeck/internal/domain"
)

// CardRow is the denormalized per-card view returned by queries.
type CardRow struct {
	SpecID    string
	CardID    string
	Title     string
	Status    domain.CardStatus
	Parent    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SpecRow is the per-spec summary returned by [Index.ListSpecs].
type SpecRow struct {
	SpecID    string
	Name      string
	CreatedAt time.Time
	Seq       uint64
}

// QueryOptions filters card queries; zero values mean "no filter".
type QueryOptions struct {
	SpecID string
	Status domain.CardStatus
	Parent string
	Limit  int
	Offset int
}

// QueryCards returns indexed cards matching opts, ordered by creation time
// then card ID for a stable listing.
func (ix *Index) QueryCards(ctx context.Context, opts QueryOptions) ([]CardRow, error) {
	var (
		where []string
		args  []any
	)

	if opts.SpecID != "" {
		where = append(where, "spec_id = ?")
		args = append(args, opts.SpecID)
	}

	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}

	if opts.Parent != "" {
		where = append(where, "parent = ?")
		args = append(args, opts.Parent)
	}

	query := `SELECT spec_id, card_id, title, status, parent, created_at, updated_at FROM cards`

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY created_at, card_id"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)

		if opts.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", opts.Offset)
		}
	}

	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var out []CardRow

	for rows.Next() {
		var (
			row                  CardRow
			status               string
			createdNS, updatedNS int64
		)

		err = rows.Scan(&row.SpecID, &row.CardID, &row.Title, &status, &row.Parent, &createdNS, &updatedNS)
		if err != nil {
			return nil, fmt.Errorf("query cards: scan: %w", err)
		}

		row.Status = domain.CardStatus(status)
		row.CreatedAt = unixNanoTime(createdNS)
		row.UpdatedAt = unixNanoTime(updatedNS)
		out = append(out, row)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}

	return out, nil
}

// ListSpecs returns every indexed spec ordered by creation time.
func (ix *Index) ListSpecs(ctx context.Context) ([]SpecRow, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT spec_id, name, created_at, seq FROM specs ORDER BY created_at, spec_id`)
	if err != nil {
		return nil, fmt.Errorf("list specs: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var out []SpecRow

	for rows.Next() {
		var (
			row       SpecRow
			createdNS int64
			seq       int64
		)

		err = rows.Scan(&row.SpecID, &row.Name, &createdNS, &seq)
		if err != nil {
			return nil, fmt.Errorf("list specs: scan: %w", err)
		}

		row.CreatedAt = unixNanoTime(createdNS)
		row.Seq = uint64(seq)
		out = append(out, row)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("list specs: %w", err)
	}

	return out, nil
}
