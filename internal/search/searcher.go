package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Aman-CERP/wikisearch/internal/engine"
	apperrors "github.com/Aman-CERP/wikisearch/internal/errors"
	"github.com/Aman-CERP/wikisearch/internal/logging"
	"github.com/Aman-CERP/wikisearch/internal/store"
	"github.com/Aman-CERP/wikisearch/internal/wiki"
)

const (
	// DefaultPerPage is used when Query.PerPage is zero.
	DefaultPerPage = 10
	// MaxPerPage caps Query.PerPage.
	MaxPerPage = 100

	tagsField = "tags"
)

// Query is a free-text search narrowed by facet selections.
type Query struct {
	Text string `json:"text"`
	// Facets maps a group slug to the selected filter slugs of that group.
	Facets  map[string][]string `json:"facets,omitempty"`
	Locale  string              `json:"locale,omitempty"`
	Page    int                 `json:"page,omitempty"`
	PerPage int                 `json:"per_page,omitempty"`
}

// Hit is one matching document.
type Hit struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Slug      string   `json:"slug"`
	Locale    string   `json:"locale"`
	Summary   string   `json:"summary,omitempty"`
	Score     float64  `json:"score"`
	Fragments []string `json:"fragments,omitempty"`
}

// FacetOption is one filter with the number of matching documents.
type FacetOption struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Count   uint64 `json:"count"`
	Active  bool   `json:"active"`
	Visible bool   `json:"visible"`
}

// FacetGroup holds the options of one filter group.
type FacetGroup struct {
	Name    string        `json:"name"`
	Slug    string        `json:"slug"`
	Order   int           `json:"order"`
	Options []FacetOption `json:"options"`
}

// Result is a page of hits plus facet counts.
type Result struct {
	Total      uint64       `json:"total"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
	Hits       []Hit        `json:"hits"`
	Facets     []FacetGroup `json:"facets"`
	Generation string       `json:"generation"`
}

// CurrentResolver resolves the generation reads are served from.
type CurrentResolver interface {
	Current(ctx context.Context) (*store.Generation, error)
	IndexName(gen *store.Generation) string
}

// Searcher queries the current generation.
type Searcher struct {
	current CurrentResolver
	engine  engine.Service
	filters store.FilterStore
	fields  map[string]float64
	logger  *slog.Logger
}

// NewSearcher creates a Searcher over the wiki search fields.
func NewSearcher(current CurrentResolver, svc engine.Service, filters store.FilterStore, logger *slog.Logger) *Searcher {
	return &Searcher{
		current: current,
		engine:  svc,
		filters: filters,
		fields:  wiki.SearchFields,
		logger:  logging.Default(logger).With("component", "search"),
	}
}

// Search runs q against the current generation. Facet counts ignore the
// selected facets so that every option shows what selecting it would add;
// they do honour the text and locale.
func (s *Searcher) Search(ctx context.Context, q Query) (*Result, error) {
	page, perPage, err := paging(q.Page, q.PerPage)
	if err != nil {
		return nil, err
	}

	gen, err := s.current.Current(ctx)
	if err != nil {
		return nil, err
	}
	index := s.current.IndexName(gen)

	groups, err := s.filters.ListFilterGroups(ctx, store.FilterQuery{EnabledOnly: true})
	if err != nil {
		return nil, apperrors.StoreError("failed to load filters", err)
	}

	base := engine.SearchRequest{
		Text:       strings.TrimSpace(q.Text),
		TextFields: s.fields,
	}
	if q.Locale != "" {
		base.Terms = map[string]string{"locale": q.Locale}
	}

	req := base
	req.Filters = s.selected(groups, q.Facets)
	req.From = (page - 1) * perPage
	req.Size = perPage
	req.Fields = []string{"title", "slug", "locale", "summary"}
	req.Highlight = []string{"content"}

	res, err := s.engine.Search(ctx, index, req)
	if err != nil {
		return nil, err
	}

	out := &Result{
		Total:      res.Total,
		Page:       page,
		PerPage:    perPage,
		Hits:       make([]Hit, 0, len(res.Hits)),
		Generation: gen.Name,
	}
	for _, h := range res.Hits {
		out.Hits = append(out.Hits, toHit(h))
	}

	out.Facets, err = s.facets(ctx, index, base, groups, q.Facets)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("search",
		slog.String("generation", gen.Name),
		slog.String("text", base.Text),
		slog.Uint64("total", res.Total))
	return out, nil
}

func paging(page, perPage int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if perPage == 0 {
		perPage = DefaultPerPage
	}
	if page < 1 {
		return 0, 0, apperrors.New(apperrors.ErrCodeInvalidQuery, fmt.Sprintf("page must be positive, got %d", page), nil)
	}
	if perPage < 1 || perPage > MaxPerPage {
		return 0, 0, apperrors.New(apperrors.ErrCodeInvalidQuery,
			fmt.Sprintf("per_page must be between 1 and %d, got %d", MaxPerPage, perPage), nil)
	}
	return page, perPage, nil
}

// selected turns facet selections into tag filters. Unknown slugs are ignored.
func (s *Searcher) selected(groups []store.FilterGroup, facets map[string][]string) []engine.TagFilter {
	var out []engine.TagFilter
	for _, g := range groups {
		chosen := facets[g.Slug]
		for _, f := range g.Filters {
			if slices.Contains(chosen, f.Slug) {
				out = append(out, tagFilter(f))
			}
		}
	}
	return out
}

func tagFilter(f store.Filter) engine.TagFilter {
	op := engine.Or
	if f.Operator == store.OperatorAnd {
		op = engine.And
	}
	return engine.TagFilter{Field: tagsField, Values: f.Tags, Operator: op}
}

// facets counts every enabled filter. Groups come ordered by order
// descending then name; options are sorted by name.
func (s *Searcher) facets(ctx context.Context, index string, base engine.SearchRequest, groups []store.FilterGroup, facets map[string][]string) ([]FacetGroup, error) {
	out := make([]FacetGroup, 0, len(groups))
	for _, g := range groups {
		fg := FacetGroup{Name: g.Name, Slug: g.Slug, Order: g.Order, Options: make([]FacetOption, 0, len(g.Filters))}
		for _, f := range g.Filters {
			var count uint64
			if len(f.Tags) > 0 {
				req := base
				req.Filters = []engine.TagFilter{tagFilter(f)}
				req.Size = 0
				res, err := s.engine.Search(ctx, index, req)
				if err != nil {
					return nil, err
				}
				count = res.Total
			}
			fg.Options = append(fg.Options, FacetOption{
				Name:    f.Name,
				Slug:    f.Slug,
				Count:   count,
				Active:  slices.Contains(facets[g.Slug], f.Slug),
				Visible: f.Visible,
			})
		}
		slices.SortStableFunc(fg.Options, func(a, b FacetOption) int { return strings.Compare(a.Name, b.Name) })
		out = append(out, fg)
	}
	slices.SortStableFunc(out, func(a, b FacetGroup) int {
		if a.Order != b.Order {
			return b.Order - a.Order
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func toHit(h engine.Hit) Hit {
	str := func(k string) string {
		v, _ := h.Fields[k].(string)
		return v
	}
	hit := Hit{
		ID:      h.ID,
		Title:   str("title"),
		Slug:    str("slug"),
		Locale:  str("locale"),
		Summary: str("summary"),
		Score:   h.Score,
	}
	if frags := h.Fragments["content"]; len(frags) > 0 {
		hit.Fragments = frags
	}
	return hit
}
