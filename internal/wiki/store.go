package wiki

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Hook observes committed document writes.
type Hook func(ctx context.Context, d *Document)

// Store persists wiki documents in the shared SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu       sync.RWMutex
	onSave   []Hook
	onDelete []Hook
}

// NewStore wraps db, which must already carry the documents schema.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// OnSave registers h to run after every committed Save.
func (s *Store) OnSave(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSave = append(s.onSave, h)
}

// OnDelete registers h to run after every committed Delete.
func (s *Store) OnDelete(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDelete = append(s.onDelete, h)
}

func (s *Store) run(ctx context.Context, hooks []Hook, d *Document) {
	s.mu.RLock()
	hs := append([]Hook(nil), hooks...)
	s.mu.RUnlock()
	for _, h := range hs {
		h(ctx, d)
	}
}

const documentColumns = `d.id, d.slug, d.locale, d.title, d.summary, d.html, d.parent_id,
	d.is_template, d.is_redirect, d.deleted, d.modified,
	p.id, p.title, p.slug, p.locale`

const documentFrom = ` FROM documents d LEFT JOIN documents p ON p.id = d.parent_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		d                           Document
		parentID                    sql.NullInt64
		template, redirect, deleted int
		modified                    int64
		pID                         sql.NullInt64
		pTitle, pSlug, pLocale      sql.NullString
	)
	err := row.Scan(&d.ID, &d.Slug, &d.Locale, &d.Title, &d.Summary, &d.HTML, &parentID,
		&template, &redirect, &deleted, &modified,
		&pID, &pTitle, &pSlug, &pLocale)
	if err != nil {
		return nil, err
	}
	d.ParentID = parentID.Int64
	d.IsTemplate = template != 0
	d.IsRedirect = redirect != 0
	d.Deleted = deleted != 0
	d.Modified = time.Unix(0, modified).UTC()
	if pID.Valid {
		d.Parent = &Parent{ID: pID.Int64, Title: pTitle.String, Slug: pSlug.String, Locale: pLocale.String}
	}
	return &d, nil
}

// Get loads one document with its tags.
func (s *Store) Get(ctx context.Context, id int64) (*Document, error) {
	docs, err := s.Fetch(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return docs[0], nil
}

// GetBySlug loads one document by locale and slug.
func (s *Store) GetBySlug(ctx context.Context, locale, slug string) (*Document, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM documents WHERE locale = ? AND slug = ?`, locale, slug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s/%s: %w", locale, slug, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up document %s/%s: %w", locale, slug, err)
	}
	return s.Get(ctx, id)
}

// Fetch loads documents by id in ascending id order. Missing ids are skipped.
func (s *Store) Fetch(ctx context.Context, ids []int64) ([]*Document, error) {
	const batch = 500

	var out []*Document
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		args := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			args = append(args, id)
		}

		rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+documentFrom+
			` WHERE d.id IN (`+placeholders(len(args))+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query documents: %w", err)
		}
		for rows.Next() {
			d, err := scanDocument(rows)
			if err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan document: %w", err)
			}
			out = append(out, d)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}

	if err := s.loadTags(ctx, out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) loadTags(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	byID := make(map[int64]*Document, len(docs))
	args := make([]any, 0, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
		args = append(args, d.ID)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT document_id, tag FROM document_tags
		WHERE document_id IN (`+placeholders(len(args))+`) ORDER BY tag`, args...)
	if err != nil {
		return fmt.Errorf("failed to query document tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id  int64
			tag string
		)
		if err := rows.Scan(&id, &tag); err != nil {
			return fmt.Errorf("failed to scan document tag: %w", err)
		}
		if d, ok := byID[id]; ok {
			d.Tags = append(d.Tags, tag)
		}
	}
	return rows.Err()
}

// Save inserts or updates d, matching on ID or else on (locale, slug), and
// replaces its tags. Save hooks run after commit.
func (s *Store) Save(ctx context.Context, d *Document) error {
	if d.Slug == "" {
		return fmt.Errorf("document slug is required")
	}
	if d.Locale == "" {
		d.Locale = "en-US"
	}
	d.Modified = s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if d.ID == 0 {
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM documents WHERE locale = ? AND slug = ?`, d.Locale, d.Slug).Scan(&d.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up document: %w", err)
		}
	}

	parent := sql.NullInt64{Int64: d.ParentID, Valid: d.ParentID != 0}
	if d.ID == 0 {
		res, err := tx.ExecContext(ctx, `INSERT INTO documents
			(slug, locale, title, summary, html, parent_id, is_template, is_redirect, deleted, modified)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.Slug, d.Locale, d.Title, d.Summary, d.HTML, parent,
			boolInt(d.IsTemplate), boolInt(d.IsRedirect), boolInt(d.Deleted), d.Modified.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert document %s: %w", d.Slug, err)
		}
		if d.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	} else {
		res, err := tx.ExecContext(ctx, `UPDATE documents SET slug = ?, locale = ?, title = ?,
			summary = ?, html = ?, parent_id = ?, is_template = ?, is_redirect = ?, deleted = ?,
			modified = ? WHERE id = ?`,
			d.Slug, d.Locale, d.Title, d.Summary, d.HTML, parent,
			boolInt(d.IsTemplate), boolInt(d.IsRedirect), boolInt(d.Deleted), d.Modified.UnixNano(), d.ID)
		if err != nil {
			return fmt.Errorf("failed to update document %d: %w", d.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("document %d: %w", d.ID, ErrNotFound)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_tags WHERE document_id = ?`, d.ID); err != nil {
		return fmt.Errorf("failed to clear tags: %w", err)
	}
	for _, tag := range uniqueTags(d.Tags) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_tags (document_id, tag) VALUES (?, ?)`, d.ID, tag); err != nil {
			return fmt.Errorf("failed to insert tag %q: %w", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document %s: %w", d.Slug, err)
	}
	s.run(ctx, s.onSave, d)
	return nil
}

// Delete removes a document. Delete hooks receive the last stored state.
func (s *Store) Delete(ctx context.Context, id int64) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	s.run(ctx, s.onDelete, d)
	return nil
}

// IndexableIDs returns, ascending, the ids of documents that are not
// templates, redirects or deleted and whose slug is not excluded.
func (s *Store) IndexableIDs(ctx context.Context, excludePrefixes []string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, slug FROM documents
		WHERE is_template = 0 AND is_redirect = 0 AND deleted = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexable documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var (
			id   int64
			slug string
		)
		if err := rows.Scan(&id, &slug); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if !Excluded(slug, excludePrefixes) {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func uniqueTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
