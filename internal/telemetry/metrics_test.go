package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency  time.Duration
		expected LatencyBucket
	}{
		{0, BucketP10},
		{9 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{50 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP500},
		{499 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{3 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, LatencyToBucket(tt.latency))
		})
	}
}

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{"empty", "   ", nil},
		{"short words dropped", "a to css", []string{"css"}},
		{"lowercased", "FlexBox Grid", []string{"flexbox", "grid"}},
		{"punctuation trimmed", `"border-radius", (color)?`, []string{"border-radius", "color"}},
		{"runes counted", "été", []string{"été"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractTerms(tt.query))
		})
	}
}

func TestQueryMetrics_Record_Aggregates(t *testing.T) {
	m := New(nil)
	defer func() { _ = m.Close() }()

	// Given: a mix of searches
	m.Record(QueryEvent{Query: "flexbox", Text: "flexbox", Kind: KindText, Results: 5, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "flexbox [topics=css]", Text: "flexbox", Kind: KindMixed, Results: 2, Latency: 25 * time.Millisecond})
	m.Record(QueryEvent{Query: "[topics=svg]", Kind: KindFacet, Results: 0, Latency: 200 * time.Millisecond})
	m.Record(QueryEvent{Query: "flexbox", Text: "flexbox", Kind: KindText, Results: 5, Latency: time.Second})

	// When: taking a snapshot
	s := m.Snapshot()

	// Then: every dimension is counted
	assert.Equal(t, int64(4), s.TotalQueries)
	assert.Equal(t, int64(2), s.KindCounts[KindText])
	assert.Equal(t, int64(1), s.KindCounts[KindMixed])
	assert.Equal(t, int64(1), s.KindCounts[KindFacet])
	assert.Equal(t, []TermCount{{Term: "flexbox", Count: 3}}, s.TopTerms)
	assert.Equal(t, []string{"[topics=svg]"}, s.ZeroResultQueries)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.InDelta(t, 25.0, s.ZeroResultPercentage(), 0.001)
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP500])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP1000])

	// And: the repeated "flexbox" is an exact repeat
	assert.Equal(t, int64(1), s.ExactRepeatCount)
	assert.Equal(t, int64(3), s.UniqueQueryCount)
	assert.Equal(t, "exact=25.0%, unique=3", s.RepetitionSummary())
}

func TestQueryMetrics_ExactRepetition_Normalized(t *testing.T) {
	m := New(nil)
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Query: "CSS Grid", Kind: KindText, Results: 1})
	m.Record(QueryEvent{Query: "  css grid ", Kind: KindText, Results: 1})

	assert.Equal(t, int64(1), m.Snapshot().ExactRepeatCount)
}

func TestQueryMetrics_EmptySnapshot(t *testing.T) {
	m := New(nil)
	defer func() { _ = m.Close() }()

	s := m.Snapshot()
	assert.Zero(t, s.ZeroResultPercentage())
	assert.Equal(t, "No queries recorded", s.RepetitionSummary())
	assert.NotNil(t, s.TopTerms)
	assert.NotNil(t, s.ZeroResultQueries)
}

func TestQueryMetrics_TopTerms_LRUEviction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopTermsCapacity = 2
	m := NewWithConfig(nil, cfg)
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Text: "alpha", Kind: KindText, Results: 1})
	m.Record(QueryEvent{Text: "beta", Kind: KindText, Results: 1})
	m.Record(QueryEvent{Text: "gamma", Kind: KindText, Results: 1})

	terms := m.Snapshot().TopTerms
	require.Len(t, terms, 2)
	assert.Equal(t, "beta", terms[0].Term)
	assert.Equal(t, "gamma", terms[1].Term)
}

func TestQueryMetrics_Concurrent(t *testing.T) {
	m := New(nil)
	defer func() { _ = m.Close() }()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				m.Record(QueryEvent{Query: "q", Text: "query", Kind: KindText, Results: 1})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5000), m.Snapshot().TotalQueries)
}

func TestQueryMetrics_RecordAfterClose_Ignored(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.Record(QueryEvent{Query: "late", Kind: KindText})
	assert.Zero(t, m.Snapshot().TotalQueries)
}

// fakeStore collects saved batches and can fail on demand.
type fakeStore struct {
	Store
	mu      sync.Mutex
	batches []Batch
	err     error
}

func (f *fakeStore) Save(_ context.Context, b Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, b)
	return nil
}

func noFlushConfig() Config {
	cfg := DefaultConfig()
	cfg.FlushInterval = 0
	return cfg
}

func TestQueryMetrics_Flush_WritesIncrementsOnce(t *testing.T) {
	fs := &fakeStore{}
	m := NewWithConfig(fs, noFlushConfig())
	m.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	// Given: two searches, one without results
	m.Record(QueryEvent{Query: "grid", Text: "grid", Kind: KindText, Results: 3, Latency: time.Millisecond})
	m.Record(QueryEvent{Query: "nothing here", Text: "nothing here", Kind: KindText, Results: 0, Latency: time.Millisecond})

	// When: flushing twice
	require.NoError(t, m.Flush(ctx))
	require.NoError(t, m.Flush(ctx))

	// Then: one batch with the increments, the second flush has nothing to do
	require.Len(t, fs.batches, 1)
	b := fs.batches[0]
	assert.Equal(t, "2026-03-01", b.Date)
	assert.Equal(t, int64(2), b.Kinds[KindText])
	assert.Equal(t, map[string]int64{"grid": 1, "nothing": 1, "here": 1}, b.Terms)
	assert.Equal(t, int64(2), b.Latencies[BucketP10])
	require.Len(t, b.ZeroResults, 1)
	assert.Equal(t, "nothing here", b.ZeroResults[0].Query)

	// And: the in-memory totals are untouched
	assert.Equal(t, int64(2), m.Snapshot().TotalQueries)
	require.NoError(t, m.Close())
}

func TestQueryMetrics_Flush_FailureKeepsIncrements(t *testing.T) {
	fs := &fakeStore{err: errors.New("database is locked")}
	m := NewWithConfig(fs, noFlushConfig())
	ctx := context.Background()

	m.Record(QueryEvent{Query: "a", Text: "table", Kind: KindText, Results: 0})
	require.Error(t, m.Flush(ctx))

	m.Record(QueryEvent{Query: "b", Text: "table", Kind: KindText, Results: 0})
	fs.err = nil

	// Close writes everything that is still pending
	require.NoError(t, m.Close())
	require.Len(t, fs.batches, 1)
	b := fs.batches[0]
	assert.Equal(t, int64(2), b.Kinds[KindText])
	assert.Equal(t, int64(2), b.Terms["table"])
	require.Len(t, b.ZeroResults, 2)
	assert.Equal(t, "a", b.ZeroResults[0].Query)
	assert.Equal(t, "b", b.ZeroResults[1].Query)
}

func TestQueryMetrics_PendingZeroResultsBounded(t *testing.T) {
	fs := &fakeStore{}
	cfg := noFlushConfig()
	cfg.ZeroResultsCapacity = 2
	m := NewWithConfig(fs, cfg)

	for _, q := range []string{"one", "two", "three"} {
		m.Record(QueryEvent{Query: q, Kind: KindText})
	}
	require.NoError(t, m.Close())

	require.Len(t, fs.batches, 1)
	require.Len(t, fs.batches[0].ZeroResults, 2)
	assert.Equal(t, "two", fs.batches[0].ZeroResults[0].Query)
}

func TestQueryMetrics_BackgroundFlush(t *testing.T) {
	fs := &fakeStore{}
	cfg := DefaultConfig()
	cfg.FlushInterval = 10 * time.Millisecond
	m := NewWithConfig(fs, cfg)
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Query: "svg", Text: "svg", Kind: KindText, Results: 1})

	assert.Eventually(t, func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		return len(fs.batches) == 1
	}, time.Second, 5*time.Millisecond)
}
