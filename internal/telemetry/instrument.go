package telemetry

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/Aman-CERP/wikisearch/internal/search"
)

// Searcher runs queries against the current generation.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

// InstrumentedSearcher records every successful search.
type InstrumentedSearcher struct {
	next    Searcher
	metrics *QueryMetrics
	now     func() time.Time
}

// Instrument wraps next so its searches are recorded in m.
func Instrument(next Searcher, m *QueryMetrics) *InstrumentedSearcher {
	return &InstrumentedSearcher{next: next, metrics: m, now: time.Now}
}

// Search delegates to the wrapped searcher. Failed searches are not
// recorded.
func (s *InstrumentedSearcher) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	start := s.now()
	res, err := s.next.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	s.metrics.Record(QueryEvent{
		Query:     DescribeQuery(q),
		Text:      q.Text,
		Kind:      Classify(q),
		Results:   res.Total,
		Latency:   s.now().Sub(start),
		Timestamp: start,
	})
	return res, nil
}

// Classify reports what narrowed q.
func Classify(q search.Query) QueryKind {
	text := strings.TrimSpace(q.Text) != ""
	facets := selectionCount(q.Facets) > 0
	switch {
	case text && facets:
		return KindMixed
	case text:
		return KindText
	case facets:
		return KindFacet
	default:
		return KindBrowse
	}
}

func selectionCount(facets map[string][]string) int {
	n := 0
	for _, slugs := range facets {
		n += len(slugs)
	}
	return n
}

// DescribeQuery renders q as `text [group=a,b group2=c]` with groups and
// filters sorted, so equal selections describe identically.
func DescribeQuery(q search.Query) string {
	text := strings.TrimSpace(q.Text)
	if selectionCount(q.Facets) == 0 {
		return text
	}

	groups := make([]string, 0, len(q.Facets))
	for g, slugs := range q.Facets {
		if len(slugs) > 0 {
			groups = append(groups, g)
		}
	}
	slices.Sort(groups)

	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		slugs := slices.Clone(q.Facets[g])
		slices.Sort(slugs)
		parts = append(parts, g+"="+strings.Join(slugs, ","))
	}
	sel := "[" + strings.Join(parts, " ") + "]"
	if text == "" {
		return sel
	}
	return text + " " + sel
}
