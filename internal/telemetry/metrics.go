// Package telemetry records search query statistics for tuning facets and
// content. All data stays in the local metadata database.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/wikisearch/internal/logging"
)

// QueryKind classifies a search by what narrowed it.
type QueryKind string

const (
	KindText   QueryKind = "text"   // free text only
	KindFacet  QueryKind = "facet"  // facet selections without text
	KindMixed  QueryKind = "mixed"  // text narrowed by facets
	KindBrowse QueryKind = "browse" // neither
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one completed search.
type QueryEvent struct {
	// Query identifies the search for repetition and zero-result tracking.
	// It includes the facet selection.
	Query string
	// Text is the free-text part terms are extracted from.
	Text      string
	Kind      QueryKind
	Results   uint64
	Latency   time.Duration
	Timestamp time.Time
}

// IsZeroResult reports whether the search matched nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.Results == 0
}

const minTermLength = 3

// ExtractTerms lowercases the query and keeps words of at least three
// characters, stripped of surrounding punctuation.
func ExtractTerms(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var terms []string
	for _, w := range strings.Fields(query) {
		w = strings.Trim(w, `"'.,;:!?()[]{}`)
		if utf8.RuneCountInString(w) >= minTermLength {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the in-process statistics.
type Snapshot struct {
	KindCounts          map[QueryKind]int64     `json:"kind_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	ExactRepeatRate     float64                 `json:"exact_repeat_rate"`
	UniqueQueryCount    int64                   `json:"unique_query_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// RepetitionSummary returns a human-readable summary of repetition metrics.
func (s *Snapshot) RepetitionSummary() string {
	if s.TotalQueries == 0 {
		return "No queries recorded"
	}
	return fmt.Sprintf("exact=%.1f%%, unique=%d", s.ExactRepeatRate*100, s.UniqueQueryCount)
}

// ZeroResult is a persisted search that matched nothing.
type ZeroResult struct {
	Query      string    `json:"query"`
	SearchedAt time.Time `json:"searched_at"`
}

// Batch is the set of increments written by one flush.
type Batch struct {
	Date        string // YYYY-MM-DD the daily counts are added to
	Seen        time.Time
	Kinds       map[QueryKind]int64
	Terms       map[string]int64
	Latencies   map[LatencyBucket]int64
	ZeroResults []ZeroResult
}

// Store persists flushed statistics. Save adds a batch atomically.
type Store interface {
	Save(ctx context.Context, b Batch) error
	KindCounts(ctx context.Context, from, to string) (map[QueryKind]int64, error)
	TopTerms(ctx context.Context, limit int) ([]TermCount, error)
	ZeroResults(ctx context.Context, limit int) ([]ZeroResult, error)
	LatencyCounts(ctx context.Context, from, to string) (map[LatencyBucket]int64, error)
}

// Config configures the collector.
type Config struct {
	TopTermsCapacity      int           // terms tracked in memory (default: 100)
	ZeroResultsCapacity   int           // zero-result queries kept (default: 100)
	RecentQueriesCapacity int           // queries remembered for repeat detection (default: 500)
	FlushInterval         time.Duration // 0 disables the background flush
	Logger                *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         time.Minute,
	}
}

// pending holds what was recorded since the last flush.
type pending struct {
	kinds     map[QueryKind]int64
	terms     map[string]int64
	latencies map[LatencyBucket]int64
	zero      []ZeroResult
}

func newPending() pending {
	return pending{
		kinds:     make(map[QueryKind]int64),
		terms:     make(map[string]int64),
		latencies: make(map[LatencyBucket]int64),
	}
}

func (p pending) empty() bool {
	return len(p.kinds) == 0 && len(p.terms) == 0 && len(p.latencies) == 0 && len(p.zero) == 0
}

// merge folds o back into p after a failed flush, keeping at most limit
// zero-result entries.
func (p *pending) merge(o pending, limit int) {
	for k, v := range o.kinds {
		p.kinds[k] += v
	}
	for k, v := range o.terms {
		p.terms[k] += v
	}
	for k, v := range o.latencies {
		p.latencies[k] += v
	}
	p.zero = append(o.zero, p.zero...)
	if len(p.zero) > limit {
		p.zero = slices.Clone(p.zero[len(p.zero)-limit:])
	}
}

// addZero appends z, dropping the oldest entries beyond limit.
func (p *pending) addZero(z ZeroResult, limit int) {
	p.zero = append(p.zero, z)
	if len(p.zero) > limit {
		p.zero = slices.Clone(p.zero[len(p.zero)-limit:])
	}
}

// QueryMetrics aggregates search statistics in memory and flushes the
// increments to a Store. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	kinds           map[QueryKind]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	startTime       time.Time

	recentQueries    *lru.Cache[string, struct{}]
	exactRepeatCount int64

	pending pending

	store  Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	stopCh chan struct{}
	doneCh chan struct{}
	closed bool
}

// New creates a collector with default configuration. A nil store keeps
// statistics in memory only.
func New(store Store) *QueryMetrics {
	return NewWithConfig(store, DefaultConfig())
}

// NewWithConfig creates a collector with custom configuration.
func NewWithConfig(store Store, cfg Config) *QueryMetrics {
	defaults := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = defaults.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = defaults.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = defaults.RecentQueriesCapacity
	}

	// lru.New only fails on a non-positive size.
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recentQueries, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		kinds:         make(map[QueryKind]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:     make(map[LatencyBucket]int64),
		startTime:     time.Now(),
		recentQueries: recentQueries,
		pending:       newPending(),
		store:         store,
		cfg:           cfg,
		logger:        logging.Default(cfg.Logger).With("component", "telemetry"),
		now:           time.Now,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		go m.flushLoop(cfg.FlushInterval)
	} else {
		close(m.doneCh)
	}
	return m
}

func (m *QueryMetrics) flushLoop(interval time.Duration) {
	defer close(m.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.Flush(context.Background()); err != nil {
				m.logger.Warn("search_stats_flush_failed", slog.String("error", err.Error()))
			}
		case <-m.stopCh:
			return
		}
	}
}

// Record captures one search.
func (m *QueryMetrics) Record(event QueryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	persist := m.store != nil
	m.kinds[event.Kind]++
	m.totalQueries++
	if persist {
		m.pending.kinds[event.Kind]++
	}

	for _, term := range ExtractTerms(event.Text) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		if persist {
			m.pending.terms[term]++
		}
	}

	if event.IsZeroResult() {
		m.zeroResults.Add(event.Query)
		m.zeroResultCount++
		if persist {
			m.pending.addZero(ZeroResult{Query: event.Query, SearchedAt: event.Timestamp}, m.cfg.ZeroResultsCapacity)
		}
	}

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++
	if persist {
		m.pending.latencies[bucket]++
	}

	key := hashQuery(event.Query)
	if _, seen := m.recentQueries.Get(key); seen {
		m.exactRepeatCount++
	}
	m.recentQueries.Add(key, struct{}{})
}

// hashQuery normalizes the query for repetition detection.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

// Snapshot returns the statistics recorded by this process.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	kinds := make(map[QueryKind]int64, len(m.kinds))
	for k, v := range m.kinds {
		kinds[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	topTerms := []TermCount{}
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sortTerms(topTerms)

	var repeatRate float64
	if m.totalQueries > 0 {
		repeatRate = float64(m.exactRepeatCount) / float64(m.totalQueries)
	}

	return &Snapshot{
		KindCounts:          kinds,
		TopTerms:            topTerms,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		ExactRepeatCount:    m.exactRepeatCount,
		ExactRepeatRate:     repeatRate,
		UniqueQueryCount:    int64(m.recentQueries.Len()),
		Since:               m.startTime,
	}
}

// sortTerms orders by count descending, then term.
func sortTerms(terms []TermCount) {
	slices.SortFunc(terms, func(a, b TermCount) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Term, b.Term)
	})
}

// Flush writes the increments recorded since the last flush. Without a
// store it is a no-op. Increments that fail to persist are kept for the
// next flush.
func (m *QueryMetrics) Flush(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	p := m.pending
	m.pending = newPending()
	m.mu.Unlock()

	if p.empty() {
		return nil
	}
	now := m.now()
	err := m.store.Save(ctx, Batch{
		Date:        now.Format(time.DateOnly),
		Seen:        now,
		Kinds:       p.kinds,
		Terms:       p.terms,
		Latencies:   p.latencies,
		ZeroResults: p.zero,
	})
	if err != nil {
		m.mu.Lock()
		m.pending.merge(p, m.cfg.ZeroResultsCapacity)
		m.mu.Unlock()
		return err
	}
	return nil
}

// Close stops the background flush and writes what is pending.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh

	return m.Flush(context.Background())
}
