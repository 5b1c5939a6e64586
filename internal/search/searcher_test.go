package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/wikisearch/internal/bulk"
	"github.com/Aman-CERP/wikisearch/internal/engine"
	apperrors "github.com/Aman-CERP/wikisearch/internal/errors"
	"github.com/Aman-CERP/wikisearch/internal/lifecycle"
	"github.com/Aman-CERP/wikisearch/internal/logging"
	"github.com/Aman-CERP/wikisearch/internal/source"
	"github.com/Aman-CERP/wikisearch/internal/store"
	"github.com/Aman-CERP/wikisearch/internal/wiki"
)

type fixture struct {
	meta     *store.SQLiteStore
	docs     *wiki.Store
	coord    *lifecycle.Coordinator
	loader   *bulk.Loader
	searcher *Searcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	meta, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	svc, err := engine.NewBleveService(engine.Options{Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	m, err := wiki.Mapping()
	require.NoError(t, err)

	docs := wiki.NewStore(meta.DB())
	reg := source.NewRegistry(wiki.NewDocType(docs, nil))
	loader := bulk.NewLoader(svc, reg, bulk.Options{Logger: logging.Discard()})
	coord := lifecycle.NewCoordinator(meta, svc, nil, lifecycle.Options{
		Prefix:  "wiki",
		Mapping: m,
		Logger:  logging.Discard(),
	})
	return &fixture{
		meta:     meta,
		docs:     docs,
		coord:    coord,
		loader:   loader,
		searcher: NewSearcher(coord, svc, meta, logging.Discard()),
	}
}

// index saves docs and indexes them into the current generation.
func (f *fixture) index(t *testing.T, docs ...*wiki.Document) {
	t.Helper()
	ctx := context.Background()
	refs := make([]source.Ref, 0, len(docs))
	for _, d := range docs {
		require.NoError(t, f.docs.Save(ctx, d))
		refs = append(refs, d.Ref())
	}
	gen, err := f.coord.Current(ctx)
	require.NoError(t, err)
	_, err = f.loader.IndexRefs(ctx, f.coord.IndexName(gen), refs)
	require.NoError(t, err)
}

func (f *fixture) filters(t *testing.T, yaml string) {
	t.Helper()
	groups, err := ParseFilterSet(stringReader(yaml))
	require.NoError(t, err)
	require.NoError(t, f.meta.ReplaceFilterSet(context.Background(), groups))
}

const topicFilters = `
groups:
  - name: Topics
    order: 2
    filters:
      - name: CSS
        tags: [CSS]
      - name: HTML
        tags: [HTML]
      - name: Open Web Apps
        slug: owa
        tags: [Apps, Firefox OS]
        operator: AND
      - name: Retired
        tags: [Obsolete]
        enabled: false
  - name: Document type
    order: 1
    filters:
      - name: Guides
        tags: [Guide]
      - name: Hidden
        tags: [Reference]
        visible: false
`

func corpus() []*wiki.Document {
	return []*wiki.Document{
		{Slug: "Web/CSS/color", Title: "color", HTML: "<p>The color property sets text color</p>", Tags: []string{"CSS", "Reference"}},
		{Slug: "Web/CSS/Guide", Title: "CSS color guide", HTML: "<p>Learn about color</p>", Tags: []string{"CSS", "Guide"}},
		{Slug: "Web/HTML/font", Title: "font", HTML: "<p>Obsolete color element</p>", Tags: []string{"HTML", "Obsolete"}},
		{Slug: "Apps/Manifest", Title: "App manifest", HTML: "<p>Manifest color theme</p>", Tags: []string{"Apps", "Firefox OS"}},
		{Slug: "Apps/Web", Title: "Web apps", HTML: "<p>Install web apps</p>", Tags: []string{"Apps"}},
		{Slug: "Web/CSS/color", Locale: "fr", Title: "color", HTML: "<p>La propriété color</p>", Tags: []string{"CSS"}},
	}
}

func facet(t *testing.T, res *Result, group, slug string) FacetOption {
	t.Helper()
	for _, g := range res.Facets {
		if g.Slug != group {
			continue
		}
		for _, o := range g.Options {
			if o.Slug == slug {
				return o
			}
		}
	}
	t.Fatalf("facet %s/%s not found", group, slug)
	return FacetOption{}
}

func TestSearch_BootstrapsEmptyIndex(t *testing.T) {
	f := newFixture(t)

	// Given: no generation exists yet
	// When: searching
	res, err := f.searcher.Search(context.Background(), Query{Text: "anything"})

	// Then: the default generation serves an empty result
	require.NoError(t, err)
	assert.Equal(t, "main_index", res.Generation)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Hits)
	assert.Empty(t, res.Facets)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, DefaultPerPage, res.PerPage)
}

func TestSearch_TextAndLocale(t *testing.T) {
	f := newFixture(t)
	f.index(t, corpus()...)
	ctx := context.Background()

	res, err := f.searcher.Search(ctx, Query{Text: "color", Locale: "en-US"})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), res.Total)
	for _, h := range res.Hits {
		assert.Equal(t, "en-US", h.Locale)
		assert.NotEmpty(t, h.Title)
	}

	res, err = f.searcher.Search(ctx, Query{Text: "color", Locale: "fr"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "Web/CSS/color", res.Hits[0].Slug)
	assert.Equal(t, "fr", res.Hits[0].Locale)

	res, err = f.searcher.Search(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, uint64(6), res.Total)
}

func TestSearch_FacetSelection(t *testing.T) {
	f := newFixture(t)
	f.index(t, corpus()...)
	f.filters(t, topicFilters)
	ctx := context.Background()

	// Given: the CSS topic selected
	res, err := f.searcher.Search(ctx, Query{
		Locale: "en-US",
		Facets: map[string][]string{"topics": {"css"}},
	})
	require.NoError(t, err)

	// Then: only CSS documents match
	assert.Equal(t, uint64(2), res.Total)
	for _, h := range res.Hits {
		assert.Contains(t, h.Slug, "Web/CSS")
	}

	// And: counts ignore the selection but mark it active
	css := facet(t, res, "topics", "css")
	assert.Equal(t, uint64(2), css.Count)
	assert.True(t, css.Active)
	html := facet(t, res, "topics", "html")
	assert.Equal(t, uint64(1), html.Count)
	assert.False(t, html.Active)

	// And: an AND filter needs every tag
	assert.Equal(t, uint64(1), facet(t, res, "topics", "owa").Count)
}

func TestSearch_FacetOrderingAndFlags(t *testing.T) {
	f := newFixture(t)
	f.index(t, corpus()...)
	f.filters(t, topicFilters)

	res, err := f.searcher.Search(context.Background(), Query{Locale: "en-US"})
	require.NoError(t, err)

	require.Len(t, res.Facets, 2)
	assert.Equal(t, "topics", res.Facets[0].Slug)
	assert.Equal(t, "document-type", res.Facets[1].Slug)

	var names []string
	for _, o := range res.Facets[0].Options {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"CSS", "HTML", "Open Web Apps"}, names)

	hidden := facet(t, res, "document-type", "hidden")
	assert.False(t, hidden.Visible)
	assert.Equal(t, uint64(1), hidden.Count)
}

func TestSearch_OrFilterAcrossSelections(t *testing.T) {
	f := newFixture(t)
	f.index(t, corpus()...)
	f.filters(t, topicFilters)

	// Selecting two filters requires both
	res, err := f.searcher.Search(context.Background(), Query{
		Locale: "en-US",
		Facets: map[string][]string{"topics": {"css"}, "document-type": {"guides"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "Web/CSS/Guide", res.Hits[0].Slug)

	// Unknown slugs are ignored
	res, err = f.searcher.Search(context.Background(), Query{
		Locale: "en-US",
		Facets: map[string][]string{"topics": {"nope"}},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.Total)
}

func TestSearch_Paging(t *testing.T) {
	f := newFixture(t)
	f.index(t, corpus()...)
	ctx := context.Background()

	res, err := f.searcher.Search(ctx, Query{Locale: "en-US", Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.Total)
	assert.Len(t, res.Hits, 2)

	res, err = f.searcher.Search(ctx, Query{Locale: "en-US", Page: 3, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 1)

	tests := []struct {
		name string
		q    Query
	}{
		{"negative page", Query{Page: -1}},
		{"negative per page", Query{PerPage: -5}},
		{"per page too large", Query{PerPage: MaxPerPage + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.searcher.Search(ctx, tt.q)
			assert.Equal(t, apperrors.ErrCodeInvalidQuery, apperrors.GetCode(err))
		})
	}
}

func TestSearch_Highlights(t *testing.T) {
	f := newFixture(t)
	f.index(t, &wiki.Document{Slug: "Web/API/Zeppelin", Title: "Zeppelin API", HTML: "<p>Airships float on zeppelin gas</p>"})

	res, err := f.searcher.Search(context.Background(), Query{Text: "zeppelin"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "Zeppelin API", res.Hits[0].Title)
	require.NotEmpty(t, res.Hits[0].Fragments)
	assert.Contains(t, res.Hits[0].Fragments[0], "<mark>")
}
