package reindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/wikisearch/internal/engine"
	apperrors "github.com/Aman-CERP/wikisearch/internal/errors"
	"github.com/Aman-CERP/wikisearch/internal/logging"
)

func (e *env) titleHits(t *testing.T, index, text string) uint64 {
	t.Helper()
	res, err := e.svc.Search(context.Background(), index, engine.SearchRequest{
		Text:       text,
		TextFields: map[string]float64{"title": 1},
		Size:       10,
	})
	require.NoError(t, err)
	return res.Total
}

func TestLiveIndexer_EditDuringRebuildReachesPromotedGeneration(t *testing.T) {
	e := newEnv(t)
	e.seed(t, 5)
	ctx := context.Background()
	live := NewLiveIndexer(e.coord, e.loader, logging.Discard())
	live.Attach(e.docs)

	// Given: a served generation and a newer one that has been fully built
	current, err := e.coord.Current(ctx)
	require.NoError(t, err)
	_, err = e.job(t, 0).Run(ctx, Options{InPlace: true}, nil)
	require.NoError(t, err)
	res, err := e.job(t, 0).Run(ctx, Options{}, nil)
	require.NoError(t, err)
	next := res.Generation

	// When: a document is edited after the new generation read it
	d, err := e.docs.GetBySlug(ctx, "en-US", "Web/Page_3")
	require.NoError(t, err)
	d.Title = "Zeppelin"
	require.NoError(t, e.docs.Save(ctx, d))

	// Then: the served generation sees the edit right away, the new one does not yet
	assert.Equal(t, uint64(1), e.titleHits(t, e.coord.IndexName(current), "zeppelin"))
	assert.Zero(t, e.titleHits(t, res.Index, "zeppelin"))
	pending, err := e.coord.Tracker().Pending(ctx, next)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// When: the new generation is promoted
	_, err = e.coord.Promote(ctx, next.ID)
	require.NoError(t, err)

	// Then: the edit was reindexed into it and the record consumed
	assert.Equal(t, uint64(1), e.titleHits(t, res.Index, "zeppelin"))
	pending, err = e.coord.Tracker().Pending(ctx, next)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestLiveIndexer_ExclusionAndDelete(t *testing.T) {
	e := newEnv(t)
	e.seed(t, 3)
	ctx := context.Background()
	live := NewLiveIndexer(e.coord, e.loader, logging.Discard())
	live.Attach(e.docs)

	current, err := e.coord.Current(ctx)
	require.NoError(t, err)
	index := e.coord.IndexName(current)
	_, err = e.job(t, 0).Run(ctx, Options{InPlace: true}, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(3), e.count(t, index))

	// moving a page into a talk namespace takes it out of the index
	d, err := e.docs.GetBySlug(ctx, "en-US", "Web/Page_1")
	require.NoError(t, err)
	d.Slug = "Talk:Web/Page_1_old"
	require.NoError(t, e.docs.Save(ctx, d))
	assert.Equal(t, uint64(2), e.count(t, index))

	d, err = e.docs.GetBySlug(ctx, "en-US", "Web/Page_2")
	require.NoError(t, err)
	require.NoError(t, e.docs.Delete(ctx, d.ID))
	assert.Equal(t, uint64(1), e.count(t, index))
}

func TestLiveIndexer_RecordsOutdatedWhenIndexIsDown(t *testing.T) {
	e := newEnv(t)
	e.seed(t, 1)
	ctx := context.Background()
	live := NewLiveIndexer(e.coord, e.loader, logging.Discard())

	// Given: a generation building after the current one
	_, err := e.coord.Current(ctx)
	require.NoError(t, err)
	next, err := e.coord.Create(ctx, "")
	require.NoError(t, err)
	d, err := e.docs.GetBySlug(ctx, "en-US", "Web/Page_1")
	require.NoError(t, err)

	// When: the index service is unavailable
	require.NoError(t, e.svc.Close())
	err = live.Sync(ctx, d.Ref())

	// Then: the write is reported but still tracked for the next generation
	assert.ErrorIs(t, err, engine.ErrClosed)
	pending, err := e.coord.Tracker().Pending(ctx, next)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestLiveIndexer_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	e := newEnv(t)
	e.seed(t, 1)
	ctx := context.Background()
	live := NewLiveIndexer(e.coord, e.loader, logging.Discard())
	_, err := e.coord.Current(ctx)
	require.NoError(t, err)
	d, err := e.docs.GetBySlug(ctx, "en-US", "Web/Page_1")
	require.NoError(t, err)
	require.NoError(t, e.svc.Close())

	for range 3 {
		assert.ErrorIs(t, live.Sync(ctx, d.Ref()), engine.ErrClosed)
	}

	assert.ErrorIs(t, live.Sync(ctx, d.Ref()), apperrors.ErrCircuitOpen)
}
