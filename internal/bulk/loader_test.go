package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Aman-CERP/wikisearch/internal/engine"
	"github.com/Aman-CERP/wikisearch/internal/logging"
	"github.com/Aman-CERP/wikisearch/internal/source"
)

const testKind = "test.page"

type page struct {
	id       int64
	title    string
	broken   bool
	excluded bool
}

func (p *page) Ref() source.Ref { return source.Ref{Kind: testKind, ID: p.id} }

type pageType struct {
	pages map[int64]*page
}

func newPageType(n int) *pageType {
	t := &pageType{pages: make(map[int64]*page)}
	for i := 1; i <= n; i++ {
		t.pages[int64(i)] = &page{id: int64(i), title: fmt.Sprintf("page %d", i)}
	}
	return t
}

func (t *pageType) Kind() string    { return testKind }
func (t *pageType) DocType() string { return "test_page" }

func (t *pageType) Fetch(_ context.Context, ids []int64) ([]source.Entity, error) {
	var out []source.Entity
	for _, id := range ids {
		if p, ok := t.pages[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *pageType) IndexableIDs(context.Context) ([]int64, error) { return nil, nil }

func (t *pageType) ShouldIndex(e source.Entity) bool { return !e.(*page).excluded }

func (t *pageType) Transform(e source.Entity) (source.Document, error) {
	p := e.(*page)
	if p.broken {
		return nil, errors.New("malformed page")
	}
	return source.Document{"title": p.title}, nil
}

// spyEngine wraps a real service and records or fails selected calls.
type spyEngine struct {
	engine.Service

	mu          sync.Mutex
	bulkSizes   []int
	failBulkAt  int
	failGetSets bool
}

func (s *spyEngine) Bulk(ctx context.Context, actions []engine.Action) (*engine.BulkResponse, error) {
	s.mu.Lock()
	s.bulkSizes = append(s.bulkSizes, len(actions))
	call := len(s.bulkSizes)
	s.mu.Unlock()
	if s.failBulkAt > 0 && call == s.failBulkAt {
		return nil, errors.New("bulk rejected by cluster")
	}
	return s.Service.Bulk(ctx, actions)
}

func (s *spyEngine) GetSettings(ctx context.Context, name string) (engine.Settings, error) {
	if s.failGetSets {
		return engine.Settings{}, errors.New("settings endpoint unavailable")
	}
	return s.Service.GetSettings(ctx, name)
}

var original = engine.Settings{RefreshInterval: "1s", NumberOfReplicas: 2}

func setup(t *testing.T, pages int) (*spyEngine, *pageType, *source.Registry) {
	t.Helper()
	svc, err := engine.NewBleveService(engine.Options{Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	require.NoError(t, svc.CreateIndex(context.Background(), "wiki-g", bleve.NewIndexMapping(), original))

	typ := newPageType(pages)
	return &spyEngine{Service: svc}, typ, source.NewRegistry(typ)
}

func ids(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i + 1)
	}
	return out
}

// fakeClock advances by step on every reading.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func TestLoad_ThreeChunksOfFiveHundred(t *testing.T) {
	// Given: 1500 documents and a chunk size of 500
	spy, _, reg := setup(t, 1500)
	clock := &fakeClock{now: time.Unix(0, 0), step: time.Second}
	loader := NewLoader(spy, reg, Options{ChunkSize: 500, Logger: logging.Discard(), Now: clock.Now})

	// When: loading
	var reports []Progress
	res, err := loader.Load(context.Background(), "wiki-g", testKind, ids(1500), func(p Progress) {
		reports = append(reports, p)
	})

	// Then: exactly three bulk calls of 500 documents
	require.NoError(t, err)
	assert.Equal(t, []int{500, 500, 500}, spy.bulkSizes)
	assert.Equal(t, 1500, res.Indexed)
	assert.Equal(t, 3, res.Chunks)

	// And: progress after each chunk with a non-increasing estimate
	require.Len(t, reports, 3)
	for i, p := range reports {
		assert.Equal(t, (i+1)*500, p.Done)
		assert.Equal(t, 1500, p.Total)
		assert.Equal(t, i+1, p.Chunk)
		assert.Equal(t, 3, p.Chunks)
		if i > 0 {
			assert.LessOrEqual(t, p.Remaining, reports[i-1].Remaining)
		}
	}
	assert.Zero(t, reports[2].Remaining)
	assert.InDelta(t, 100.0, reports[2].Percent(), 0.001)

	n, err := spy.DocCount(context.Background(), "wiki-g")
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), n)
}

func TestLoad_RestoresSettings(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(*spyEngine, *pageType)
		ctx     func() context.Context
		wantErr bool
	}{
		{"success", func(*spyEngine, *pageType) {}, context.Background, false},
		{"bulk failure", func(s *spyEngine, _ *pageType) { s.failBulkAt = 2 }, context.Background, true},
		{"strict transform failure", func(_ *spyEngine, p *pageType) { p.pages[3].broken = true }, context.Background, true},
		{"cancelled", func(*spyEngine, *pageType) {}, func() context.Context {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			return ctx
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy, typ, reg := setup(t, 10)
			tt.prepare(spy, typ)
			// a cancelled context may not even read the settings; the defaults match
			loader := NewLoader(spy, reg, Options{ChunkSize: 4, Strict: true, Defaults: original, Logger: logging.Discard()})

			_, err := loader.Load(tt.ctx(), "wiki-g", testKind, ids(10), nil)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			got, err := spy.GetSettings(context.Background(), "wiki-g")
			require.NoError(t, err)
			assert.Equal(t, original, got)
		})
	}
}

func TestLoad_BulkSettingsAppliedDuringLoad(t *testing.T) {
	spy, _, reg := setup(t, 3)
	loader := NewLoader(spy, reg, Options{ChunkSize: 1, Logger: logging.Discard()})

	var during []engine.Settings
	_, err := loader.Load(context.Background(), "wiki-g", testKind, ids(3), func(Progress) {
		s, err := spy.GetSettings(context.Background(), "wiki-g")
		require.NoError(t, err)
		during = append(during, s)
	})

	require.NoError(t, err)
	for _, s := range during {
		assert.Equal(t, engine.BulkSettings, s)
	}
}

func TestLoad_SettingsReadFailureUsesDefaults(t *testing.T) {
	spy, _, reg := setup(t, 2)
	spy.failGetSets = true
	defaults := engine.Settings{RefreshInterval: "5s", NumberOfReplicas: 1}
	loader := NewLoader(spy, reg, Options{Defaults: defaults, Logger: logging.Discard()})

	_, err := loader.Load(context.Background(), "wiki-g", testKind, ids(2), nil)
	require.NoError(t, err)

	spy.failGetSets = false
	got, err := spy.GetSettings(context.Background(), "wiki-g")
	require.NoError(t, err)
	assert.Equal(t, defaults, got)
}

func TestLoad_BrokenDocumentIsSkippedInLenientMode(t *testing.T) {
	// Given: a chunk where one page cannot be transformed
	spy, typ, reg := setup(t, 5)
	typ.pages[3].broken = true
	loader := NewLoader(spy, reg, Options{ChunkSize: 5, Logger: logging.Discard()})

	// When: loading leniently
	res, err := loader.Load(context.Background(), "wiki-g", testKind, ids(5), nil)

	// Then: the other four are indexed in one bulk call
	require.NoError(t, err)
	assert.Equal(t, 4, res.Indexed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []int{4}, spy.bulkSizes)
}

func TestLoad_StrictModeAborts(t *testing.T) {
	spy, typ, reg := setup(t, 10)
	typ.pages[6].broken = true
	loader := NewLoader(spy, reg, Options{ChunkSize: 5, Logger: logging.Discard()})

	res, err := loader.WithStrict(true).Load(context.Background(), "wiki-g", testKind, ids(10), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 2/2")
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, []int{5}, spy.bulkSizes)
}

func TestLoad_EmptyListStillRestoresSettings(t *testing.T) {
	spy, _, reg := setup(t, 0)
	loader := NewLoader(spy, reg, Options{Logger: logging.Discard()})
	called := false

	res, err := loader.Load(context.Background(), "wiki-g", testKind, nil, func(Progress) { called = true })

	require.NoError(t, err)
	assert.False(t, called)
	assert.Zero(t, res.Chunks)
	assert.Empty(t, spy.bulkSizes)
	got, err := spy.GetSettings(context.Background(), "wiki-g")
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestLoad_MissingIDsAndUnknownKind(t *testing.T) {
	spy, _, reg := setup(t, 2)
	loader := NewLoader(spy, reg, Options{Logger: logging.Discard()})

	res, err := loader.Load(context.Background(), "wiki-g", testKind, []int64{1, 2, 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Missing)

	_, err = loader.Load(context.Background(), "wiki-g", "nope", nil, nil)
	assert.ErrorIs(t, err, source.ErrUnknownKind)
}

func TestLoad_RateLimited(t *testing.T) {
	spy, _, reg := setup(t, 3)
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	loader := NewLoader(spy, reg, Options{ChunkSize: 1, Limiter: limiter, Logger: logging.Discard()})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := loader.Load(ctx, "wiki-g", testKind, ids(3), nil)

	// the burst admits one chunk; the next wait cannot be satisfied before the deadline
	require.Error(t, err)
	assert.Equal(t, 1, res.Chunks)
}

func TestIndexRefs_IndexesAndRemoves(t *testing.T) {
	// Given: an index holding pages 1..3
	spy, typ, reg := setup(t, 3)
	loader := NewLoader(spy, reg, Options{Logger: logging.Discard()})
	ctx := context.Background()
	_, err := loader.Load(ctx, "wiki-g", testKind, ids(3), nil)
	require.NoError(t, err)

	// When: page 2 becomes excluded, page 3 disappears and page 1 changes
	typ.pages[2].excluded = true
	delete(typ.pages, 3)
	typ.pages[1].title = "renamed"
	refs := []source.Ref{{Kind: testKind, ID: 1}, {Kind: testKind, ID: 1}, {Kind: testKind, ID: 2}, {Kind: testKind, ID: 3}}
	res, err := loader.IndexRefs(ctx, "wiki-g", refs)

	// Then: 1 is reindexed once, 2 and 3 are removed
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, 1, res.Missing)
	n, err := spy.DocCount(ctx, "wiki-g")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	// And: the settings were not touched
	got, err := spy.GetSettings(ctx, "wiki-g")
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestUnindex(t *testing.T) {
	spy, _, reg := setup(t, 2)
	loader := NewLoader(spy, reg, Options{Logger: logging.Discard()})
	ctx := context.Background()
	_, err := loader.Load(ctx, "wiki-g", testKind, ids(2), nil)
	require.NoError(t, err)

	require.NoError(t, loader.Unindex(ctx, "wiki-g", []source.Ref{{Kind: testKind, ID: 2}}))

	n, err := spy.DocCount(ctx, "wiki-g")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestChunk(t *testing.T) {
	assert.Equal(t, [][]int64{{1, 2}, {3, 4}, {5}}, chunk([]int64{1, 2, 3, 4, 5}, 2))
	assert.Nil(t, chunk(nil, 3))
	assert.Equal(t, [][]int64{{1, 2}}, chunk([]int64{1, 2}, 0))
}

func TestETA_NeverIncreases(t *testing.T) {
	e := &eta{}
	first := e.next(100, 1000, 10*time.Second)
	// a slow chunk would push the estimate up; it is clamped
	second := e.next(200, 1000, 60*time.Second)

	assert.Equal(t, 90*time.Second, first)
	assert.Equal(t, first, second)
	assert.Zero(t, e.next(1000, 1000, 70*time.Second))
}
