package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trademgr/internal/domain"
)

// JournalStore implements domain.AdjustmentJournal using PostgreSQL.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a new JournalStore backed by the given connection pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

const adjustmentSelectCols = `id, order_id, account_id, symbol, side, field,
	old_value, new_value, price, reason, created_at`

func scanAdjustmentRows(rows pgx.Rows) ([]domain.AdjustmentEvent, error) {
	var events []domain.AdjustmentEvent
	for rows.Next() {
		var ev domain.AdjustmentEvent
		if err := rows.Scan(
			&ev.ID, &ev.OrderID, &ev.AccountID, &ev.Symbol,
			&ev.Side, &ev.Field, &ev.OldValue, &ev.NewValue,
			&ev.Price, &ev.Reason, &ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Record inserts one committed adjustment. Duplicate event IDs are silently
// skipped via ON CONFLICT DO NOTHING.
func (s *JournalStore) Record(ctx context.Context, ev domain.AdjustmentEvent) error {
	const query = `
		INSERT INTO adjustments (
			id, order_id, account_id, symbol, side, field,
			old_value, new_value, price, reason, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		ev.ID, ev.OrderID, ev.AccountID, ev.Symbol, ev.Side, ev.Field,
		ev.OldValue, ev.NewValue, ev.Price, ev.Reason, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record adjustment %s: %w", ev.ID, err)
	}
	return nil
}

// ListBefore returns up to limit adjustments created before cutoff, oldest
// first.
func (s *JournalStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.AdjustmentEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM adjustments
		WHERE created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`, adjustmentSelectCols)

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list adjustments before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()

	events, err := scanAdjustmentRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan adjustments: %w", err)
	}
	return events, nil
}

// DeleteBefore removes adjustments created before cutoff and returns how many
// rows were deleted.
func (s *JournalStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM adjustments WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete adjustments before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.AdjustmentJournal = (*JournalStore)(nil)
