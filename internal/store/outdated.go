package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/wikisearch/internal/source"
)

// AddOutdated appends one outdated record owned by generationID.
func (s *SQLiteStore) AddOutdated(ctx context.Context, generationID int64, ref source.Ref, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO outdated_records
		(generation_id, entity_kind, entity_id, created_at) VALUES (?, ?, ?, ?)`,
		generationID, ref.Kind, ref.ID, toNanos(at))
	if err != nil {
		return fmt.Errorf("failed to record outdated %s: %w", ref, err)
	}
	return nil
}

// ListOutdated returns the records owned by any of the given generations,
// oldest first.
func (s *SQLiteStore) ListOutdated(ctx context.Context, generationIDs ...int64) ([]OutdatedRecord, error) {
	if len(generationIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(generationIDs))
	for i, id := range generationIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, generation_id, entity_kind, entity_id, created_at
		FROM outdated_records WHERE generation_id IN (`+placeholders(len(args))+`)
		ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outdated records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []OutdatedRecord
	for rows.Next() {
		var (
			r  OutdatedRecord
			at int64
		)
		if err := rows.Scan(&r.ID, &r.GenerationID, &r.Ref.Kind, &r.Ref.ID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan outdated record: %w", err)
		}
		r.CreatedAt = fromNanos(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountOutdated returns how many records generationID owns.
func (s *SQLiteStore) CountOutdated(ctx context.Context, generationID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outdated_records WHERE generation_id = ?`, generationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count outdated records: %w", err)
	}
	return n, nil
}

// DeleteOutdated removes records by id in a single transaction.
func (s *SQLiteStore) DeleteOutdated(ctx context.Context, recordIDs []int64) error {
	if len(recordIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const batch = 500
	for start := 0; start < len(recordIDs); start += batch {
		end := min(start+batch, len(recordIDs))
		args := make([]any, 0, end-start)
		for _, id := range recordIDs[start:end] {
			args = append(args, id)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM outdated_records WHERE id IN (`+placeholders(len(args))+`)`, args...); err != nil {
			return fmt.Errorf("failed to delete outdated records: %w", err)
		}
	}
	return tx.Commit()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
