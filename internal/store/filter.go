package store

import (
	"context"
	"fmt"
	"sort"
)

// ListFilterGroups returns groups with their filters and tags.
// Groups with no matching filters are omitted when q narrows the set.
func (s *SQLiteStore) ListFilterGroups(ctx context.Context, q FilterQuery) ([]FilterGroup, error) {
	groups, err := s.loadGroups(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := s.loadFilterTags(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, group_id, name, slug, shortcut, operator, enabled, visible FROM filters WHERE 1 = 1`
	if q.EnabledOnly {
		query += ` AND enabled = 1`
	}
	if q.VisibleOnly {
		query += ` AND visible = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query filters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[int64]*FilterGroup, len(groups))
	for i := range groups {
		byID[groups[i].ID] = &groups[i]
	}
	for rows.Next() {
		var (
			f                Filter
			op               string
			enabled, visible int
		)
		if err := rows.Scan(&f.ID, &f.GroupID, &f.Name, &f.Slug, &f.Shortcut, &op, &enabled, &visible); err != nil {
			return nil, fmt.Errorf("failed to scan filter: %w", err)
		}
		f.Operator = Operator(op)
		f.Enabled = enabled != 0
		f.Visible = visible != 0
		f.Tags = tags[f.ID]
		if g, ok := byID[f.GroupID]; ok {
			g.Filters = append(g.Filters, f)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !q.EnabledOnly && !q.VisibleOnly {
		return groups, nil
	}
	out := groups[:0]
	for _, g := range groups {
		if len(g.Filters) > 0 {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *SQLiteStore) loadGroups(ctx context.Context) ([]FilterGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, slug, order_index FROM filter_groups ORDER BY order_index DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query filter groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []FilterGroup
	for rows.Next() {
		var g FilterGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Slug, &g.Order); err != nil {
			return nil, fmt.Errorf("failed to scan filter group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *SQLiteStore) loadFilterTags(ctx context.Context) (map[int64][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT filter_id, tag FROM filter_tags`)
	if err != nil {
		return nil, fmt.Errorf("failed to query filter tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tags := make(map[int64][]string)
	for rows.Next() {
		var (
			id  int64
			tag string
		)
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, fmt.Errorf("failed to scan filter tag: %w", err)
		}
		tags[id] = append(tags[id], tag)
	}
	for _, t := range tags {
		sort.Strings(t)
	}
	return tags, rows.Err()
}

// ReplaceFilterSet atomically replaces all facet configuration.
func (s *SQLiteStore) ReplaceFilterSet(ctx context.Context, groups []FilterGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM filter_groups`); err != nil {
		return fmt.Errorf("failed to clear filter groups: %w", err)
	}

	for _, g := range groups {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO filter_groups (name, slug, order_index) VALUES (?, ?, ?)`,
			g.Name, g.Slug, g.Order)
		if err != nil {
			return fmt.Errorf("failed to insert filter group %q: %w", g.Slug, err)
		}
		groupID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		for _, f := range g.Filters {
			op := f.Operator
			if op == "" {
				op = OperatorOr
			}
			res, err := tx.ExecContext(ctx, `INSERT INTO filters
				(group_id, name, slug, shortcut, operator, enabled, visible)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				groupID, f.Name, f.Slug, f.Shortcut, string(op), boolInt(f.Enabled), boolInt(f.Visible))
			if err != nil {
				return fmt.Errorf("failed to insert filter %q: %w", f.Slug, err)
			}
			filterID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			for _, tag := range f.Tags {
				if _, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO filter_tags (filter_id, tag) VALUES (?, ?)`, filterID, tag); err != nil {
					return fmt.Errorf("failed to insert tag %q: %w", tag, err)
				}
			}
		}
	}
	return tx.Commit()
}
