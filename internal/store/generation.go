package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const generationColumns = `id, name, created_at, promoted, populated, populating_at, demoted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row rowScanner) (*Generation, error) {
	var (
		g                   Generation
		createdAt           int64
		promoted, populated int
		populating, demoted sql.NullInt64
	)
	if err := row.Scan(&g.ID, &g.Name, &createdAt, &promoted, &populated, &populating, &demoted); err != nil {
		return nil, err
	}
	g.CreatedAt = fromNanos(createdAt)
	g.Promoted = promoted != 0
	g.Populated = populated != 0
	g.PopulatingAt = timePtr(populating)
	g.DemotedAt = timePtr(demoted)
	return &g, nil
}

// CreateGeneration inserts a new generation. Name must be non-empty.
func (s *SQLiteStore) CreateGeneration(ctx context.Context, name string, createdAt time.Time) (*Generation, error) {
	if name == "" {
		return nil, fmt.Errorf("generation name is required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO generations (name, created_at) VALUES (?, ?)`,
		name, toNanos(createdAt))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert generation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Generation{ID: id, Name: name, CreatedAt: createdAt.UTC()}, nil
}

// GetGeneration loads a generation by id.
func (s *SQLiteStore) GetGeneration(ctx context.Context, id int64) (*Generation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+generationColumns+` FROM generations WHERE id = ?`, id)
	return s.one(row, fmt.Sprintf("generation %d", id))
}

// GetGenerationByName loads a generation by name.
func (s *SQLiteStore) GetGenerationByName(ctx context.Context, name string) (*Generation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+generationColumns+` FROM generations WHERE name = ?`, name)
	return s.one(row, fmt.Sprintf("generation %q", name))
}

func (s *SQLiteStore) one(row *sql.Row, what string) (*Generation, error) {
	g, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", what, err)
	}
	return g, nil
}

// ListGenerations returns all generations, oldest first.
func (s *SQLiteStore) ListGenerations(ctx context.Context) ([]*Generation, error) {
	return s.list(ctx, `SELECT `+generationColumns+` FROM generations ORDER BY created_at, id`)
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]*Generation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CurrentGeneration returns the newest promoted and populated generation.
// Returns nil, nil when there is none.
func (s *SQLiteStore) CurrentGeneration(ctx context.Context) (*Generation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+generationColumns+` FROM generations
		WHERE promoted = 1 AND populated = 1
		ORDER BY created_at DESC, id DESC LIMIT 1`)
	g, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current generation: %w", err)
	}
	return g, nil
}

// Successor returns the generation created right after g, or nil.
func (s *SQLiteStore) Successor(ctx context.Context, g *Generation) (*Generation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+generationColumns+` FROM generations
		WHERE created_at > ? OR (created_at = ? AND id > ?)
		ORDER BY created_at, id LIMIT 1`,
		toNanos(g.CreatedAt), toNanos(g.CreatedAt), g.ID)
	next, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load successor of %s: %w", g.Name, err)
	}
	return next, nil
}

// Predecessors returns generations created before g, oldest first.
func (s *SQLiteStore) Predecessors(ctx context.Context, g *Generation) ([]*Generation, error) {
	return s.list(ctx, `SELECT `+generationColumns+` FROM generations
		WHERE created_at < ? OR (created_at = ? AND id < ?)
		ORDER BY created_at, id`,
		toNanos(g.CreatedAt), toNanos(g.CreatedAt), g.ID)
}

// UpdateGeneration persists flags and timestamps. Name and creation time are immutable.
func (s *SQLiteStore) UpdateGeneration(ctx context.Context, g *Generation) error {
	res, err := s.db.ExecContext(ctx, `UPDATE generations
		SET promoted = ?, populated = ?, populating_at = ?, demoted_at = ?
		WHERE id = ?`,
		boolInt(g.Promoted), boolInt(g.Populated), nullTime(g.PopulatingAt), nullTime(g.DemotedAt), g.ID)
	if err != nil {
		return fmt.Errorf("failed to update generation %d: %w", g.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("generation %d: %w", g.ID, ErrNotFound)
	}
	return nil
}

// DeleteGeneration removes a generation and, by cascade, its outdated records.
func (s *SQLiteStore) DeleteGeneration(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM generations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete generation %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("generation %d: %w", id, ErrNotFound)
	}
	return nil
}
