package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/wikisearch/internal/source"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSQLiteStore_GenerationCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: a new generation
	g, err := s.CreateGeneration(ctx, "2024-03-01-12-00-00", t0)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, g.State())

	// When: it starts populating and is persisted
	now := t0.Add(time.Minute)
	g.PopulatingAt = &now
	require.NoError(t, s.UpdateGeneration(ctx, g))

	// Then: reloading by id and name returns the same state
	byID, err := s.GetGeneration(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePopulating, byID.State())
	assert.True(t, byID.PopulatingAt.Equal(now))
	assert.True(t, byID.CreatedAt.Equal(t0))

	byName, err := s.GetGenerationByName(ctx, g.Name)
	require.NoError(t, err)
	assert.Equal(t, g.ID, byName.ID)
	assert.Equal(t, "wiki-2024-03-01-12-00-00", byName.PrefixedName("wiki"))

	// And: deleting removes it
	require.NoError(t, s.DeleteGeneration(ctx, g.ID))
	_, err = s.GetGeneration(ctx, g.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteGeneration(ctx, g.ID), ErrNotFound)
}

func TestSQLiteStore_CreateGeneration_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateGeneration(ctx, "main_index", t0)
	require.NoError(t, err)

	_, err = s.CreateGeneration(ctx, "main_index", t0)
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = s.CreateGeneration(ctx, "", t0)
	assert.Error(t, err)
}

func TestSQLiteStore_CurrentGeneration_NewestPromotedAndPopulated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: no generations
	cur, err := s.CurrentGeneration(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)

	// And: three generations with different flags
	old, _ := s.CreateGeneration(ctx, "old", t0)
	mid, _ := s.CreateGeneration(ctx, "mid", t0.Add(time.Hour))
	fresh, _ := s.CreateGeneration(ctx, "fresh", t0.Add(2*time.Hour))

	old.Promoted, old.Populated = true, true
	mid.Promoted, mid.Populated = true, true
	fresh.Promoted = true // not populated
	for _, g := range []*Generation{old, mid, fresh} {
		require.NoError(t, s.UpdateGeneration(ctx, g))
	}

	// When: asking for current
	cur, err = s.CurrentGeneration(ctx)

	// Then: the newest generation satisfying both flags wins
	require.NoError(t, err)
	assert.Equal(t, mid.ID, cur.ID)
}

func TestSQLiteStore_SuccessorAndPredecessors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.CreateGeneration(ctx, "a", t0)
	// same timestamp: id breaks the tie
	b, _ := s.CreateGeneration(ctx, "b", t0)
	c, _ := s.CreateGeneration(ctx, "c", t0.Add(time.Second))

	next, err := s.Successor(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, b.ID, next.ID)

	next, err = s.Successor(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, c.ID, next.ID)

	next, err = s.Successor(ctx, c)
	require.NoError(t, err)
	assert.Nil(t, next)

	prev, err := s.Predecessors(ctx, c)
	require.NoError(t, err)
	require.Len(t, prev, 2)
	assert.Equal(t, a.ID, prev[0].ID)
	assert.Equal(t, b.ID, prev[1].ID)
}

func TestSQLiteStore_OutdatedRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g1, _ := s.CreateGeneration(ctx, "g1", t0)
	g2, _ := s.CreateGeneration(ctx, "g2", t0.Add(time.Hour))

	doc := source.Ref{Kind: "wiki.document", ID: 7}
	require.NoError(t, s.AddOutdated(ctx, g2.ID, doc, t0))
	require.NoError(t, s.AddOutdated(ctx, g2.ID, doc, t0.Add(time.Second)))
	require.NoError(t, s.AddOutdated(ctx, g1.ID, source.Ref{Kind: "wiki.document", ID: 8}, t0))

	recs, err := s.ListOutdated(ctx, g2.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, doc, recs[0].Ref)

	both, err := s.ListOutdated(ctx, g1.ID, g2.ID)
	require.NoError(t, err)
	assert.Len(t, both, 3)

	none, err := s.ListOutdated(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, s.DeleteOutdated(ctx, []int64{recs[0].ID}))
	n, err := s.CountOutdated(ctx, g2.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Deleting the generation cascades its records
	require.NoError(t, s.DeleteGeneration(ctx, g2.ID))
	n, err = s.CountOutdated(ctx, g2.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteStore_FilterSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: a filter set with two groups
	set := []FilterGroup{
		{Name: "Topics", Slug: "topic", Order: 2, Filters: []Filter{
			{Name: "HTML", Slug: "html", Tags: []string{"html", "html5"}, Enabled: true, Visible: true},
			{Name: "CSS", Slug: "css", Tags: []string{"css"}, Operator: OperatorAnd, Enabled: true, Visible: false},
			{Name: "Old", Slug: "old", Tags: []string{"obsolete"}, Enabled: false, Visible: true},
		}},
		{Name: "Skill level", Slug: "skill", Order: 1, Filters: []Filter{
			{Name: "Beginner", Slug: "beginner", Tags: []string{"beginner"}, Enabled: true, Visible: true},
		}},
	}

	// When: replacing the configuration
	require.NoError(t, s.ReplaceFilterSet(ctx, set))

	// Then: groups come back by order descending, filters by name
	all, err := s.ListFilterGroups(ctx, FilterQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "topic", all[0].Slug)
	require.Len(t, all[0].Filters, 3)
	assert.Equal(t, "CSS", all[0].Filters[0].Name)
	assert.Equal(t, OperatorAnd, all[0].Filters[0].Operator)
	assert.Equal(t, OperatorOr, all[0].Filters[1].Operator)
	assert.Equal(t, []string{"html", "html5"}, all[0].Filters[1].Tags)

	visible, err := s.ListFilterGroups(ctx, FilterQuery{EnabledOnly: true, VisibleOnly: true})
	require.NoError(t, err)
	require.Len(t, visible, 2)
	require.Len(t, visible[0].Filters, 1)
	assert.Equal(t, "html", visible[0].Filters[0].Slug)

	// And: a second replace drops the old rows
	require.NoError(t, s.ReplaceFilterSet(ctx, set[1:]))
	all, err = s.ListFilterGroups(ctx, FilterQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta", "wikisearch.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = s.CreateGeneration(ctx, "kept", t0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// migrations are not re-applied on reopen
	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	g, err := s.GetGenerationByName(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, "kept", g.Name)
}

func TestOpen_CgoDriver(t *testing.T) {
	// Given: the cgo sqlite3 driver
	s, err := Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	// When: exercising the same schema
	g, err := s.CreateGeneration(ctx, "cgo", t0)
	require.NoError(t, err)
	require.NoError(t, s.AddOutdated(ctx, g.ID, source.Ref{Kind: "wiki.document", ID: 1}, t0))

	// Then: both drivers agree on behaviour
	n, err := s.CountOutdated(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
