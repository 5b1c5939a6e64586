package telemetry

import (
	"context"
	"time"
)

// Report summarizes persisted statistics over a range of days.
type Report struct {
	From                string                  `json:"from"`
	To                  string                  `json:"to"`
	TotalQueries        int64                   `json:"total_queries"`
	KindCounts          map[QueryKind]int64     `json:"kind_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResults         []ZeroResult            `json:"zero_results"`
}

// Buckets lists latency buckets fastest first.
var Buckets = []LatencyBucket{BucketP10, BucketP50, BucketP100, BucketP500, BucketP1000}

// Kinds lists query kinds in display order.
var Kinds = []QueryKind{KindText, KindMixed, KindFacet, KindBrowse}

// LoadReport reads the last days days ending at now. Top terms and
// zero-result queries are not date bound.
func LoadReport(ctx context.Context, s Store, now time.Time, days, limit int) (*Report, error) {
	if days < 1 {
		days = 1
	}
	to := now.Format(time.DateOnly)
	from := now.AddDate(0, 0, -(days - 1)).Format(time.DateOnly)

	kinds, err := s.KindCounts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	latencies, err := s.LatencyCounts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	terms, err := s.TopTerms(ctx, limit)
	if err != nil {
		return nil, err
	}
	zero, err := s.ZeroResults(ctx, limit)
	if err != nil {
		return nil, err
	}

	r := &Report{
		From:                from,
		To:                  to,
		KindCounts:          kinds,
		LatencyDistribution: latencies,
		TopTerms:            terms,
		ZeroResults:         zero,
	}
	for _, n := range kinds {
		r.TotalQueries += n
	}
	return r, nil
}
