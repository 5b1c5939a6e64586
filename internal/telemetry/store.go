package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MaxZeroResultRows bounds the persisted zero-result history.
const MaxZeroResultRows = 100

// SQLiteMetricsStore persists statistics in the metadata database. The
// tables are created by the metadata store migrations.
type SQLiteMetricsStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteMetricsStore)(nil)

// NewSQLiteMetricsStore wraps a shared metadata database handle.
func NewSQLiteMetricsStore(db *sql.DB) (*SQLiteMetricsStore, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	return &SQLiteMetricsStore{db: db}, nil
}

// Save adds a flushed batch in one transaction.
func (s *SQLiteMetricsStore) Save(ctx context.Context, b Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for kind, count := range b.Kinds {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO search_kind_stats (date, kind, count)
			VALUES (?, ?, ?)
			ON CONFLICT(date, kind) DO UPDATE SET count = count + excluded.count
		`, b.Date, string(kind), count); err != nil {
			return fmt.Errorf("upsert kind count: %w", err)
		}
	}

	seen := b.Seen.Unix()
	for term, count := range b.Terms {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO search_terms (term, count, last_seen)
			VALUES (?, ?, ?)
			ON CONFLICT(term) DO UPDATE SET
				count = count + excluded.count,
				last_seen = excluded.last_seen
		`, term, count, seen); err != nil {
			return fmt.Errorf("upsert term count: %w", err)
		}
	}

	for bucket, count := range b.Latencies {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO search_latency_stats (date, bucket, count)
			VALUES (?, ?, ?)
			ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count
		`, b.Date, string(bucket), count); err != nil {
			return fmt.Errorf("upsert latency count: %w", err)
		}
	}

	if len(b.ZeroResults) > 0 {
		for _, z := range b.ZeroResults {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO zero_result_searches (query, searched_at) VALUES (?, ?)`,
				z.Query, z.SearchedAt.Unix()); err != nil {
				return fmt.Errorf("insert zero-result query: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM zero_result_searches
			WHERE id NOT IN (
				SELECT id FROM zero_result_searches
				ORDER BY id DESC
				LIMIT ?
			)
		`, MaxZeroResultRows); err != nil {
			return fmt.Errorf("trim zero-result queries: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// KindCounts sums query kinds over an inclusive date range.
func (s *SQLiteMetricsStore) KindCounts(ctx context.Context, from, to string) (map[QueryKind]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, SUM(count)
		FROM search_kind_stats
		WHERE date >= ? AND date <= ?
		GROUP BY kind
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query kind counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[QueryKind]int64)
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[QueryKind(kind)] = count
	}
	return counts, rows.Err()
}

// TopTerms returns the most frequent terms.
func (s *SQLiteMetricsStore) TopTerms(ctx context.Context, limit int) ([]TermCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT term, count
		FROM search_terms
		ORDER BY count DESC, term
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	terms := []TermCount{}
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// ZeroResults returns the newest zero-result queries first.
func (s *SQLiteMetricsStore) ZeroResults(ctx context.Context, limit int) ([]ZeroResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT query, searched_at
		FROM zero_result_searches
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer rows.Close()

	out := []ZeroResult{}
	for rows.Next() {
		var z ZeroResult
		var at int64
		if err := rows.Scan(&z.Query, &at); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		z.SearchedAt = time.Unix(at, 0).UTC()
		out = append(out, z)
	}
	return out, rows.Err()
}

// LatencyCounts sums the latency histogram over an inclusive date range.
func (s *SQLiteMetricsStore) LatencyCounts(ctx context.Context, from, to string) (map[LatencyBucket]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket, SUM(count)
		FROM search_latency_stats
		WHERE date >= ? AND date <= ?
		GROUP BY bucket
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[LatencyBucket]int64)
	for rows.Next() {
		var bucket string
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[LatencyBucket(bucket)] = count
	}
	return counts, rows.Err()
}
