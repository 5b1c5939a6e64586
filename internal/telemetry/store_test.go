package telemetry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/wikisearch/internal/store"
)

func newTestStore(t *testing.T) *SQLiteMetricsStore {
	t.Helper()

	meta, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	s, err := NewSQLiteMetricsStore(meta.DB())
	require.NoError(t, err)
	return s
}

func TestNewSQLiteMetricsStore_NilDB(t *testing.T) {
	_, err := NewSQLiteMetricsStore(nil)
	assert.Error(t, err)
}

func TestSQLiteMetricsStore_Save_Incremental(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Given: two flushes on the same day
	for range 2 {
		require.NoError(t, s.Save(ctx, Batch{
			Date:      "2026-03-01",
			Seen:      seen,
			Kinds:     map[QueryKind]int64{KindText: 3, KindFacet: 1},
			Terms:     map[string]int64{"flexbox": 2, "grid": 1},
			Latencies: map[LatencyBucket]int64{BucketP10: 4},
		}))
	}

	// Then: counts add up
	kinds, err := s.KindCounts(ctx, "2026-03-01", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(6), kinds[KindText])
	assert.Equal(t, int64(2), kinds[KindFacet])

	terms, err := s.TopTerms(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []TermCount{{Term: "flexbox", Count: 4}, {Term: "grid", Count: 2}}, terms)

	latencies, err := s.LatencyCounts(ctx, "2026-03-01", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(8), latencies[BucketP10])
}

func TestSQLiteMetricsStore_DateRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, day := range []string{"2026-03-01", "2026-03-02", "2026-03-05"} {
		require.NoError(t, s.Save(ctx, Batch{
			Date:      day,
			Kinds:     map[QueryKind]int64{KindMixed: 1},
			Latencies: map[LatencyBucket]int64{BucketP500: 2},
		}))
	}

	kinds, err := s.KindCounts(ctx, "2026-03-01", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, int64(2), kinds[KindMixed])

	latencies, err := s.LatencyCounts(ctx, "2026-03-03", "2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, int64(2), latencies[BucketP500])
}

func TestSQLiteMetricsStore_ZeroResults_Trimmed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Given: more zero-result queries than are kept
	var batch Batch
	for i := range MaxZeroResultRows + 20 {
		batch.ZeroResults = append(batch.ZeroResults, ZeroResult{
			Query:      fmt.Sprintf("miss %d", i),
			SearchedAt: at.Add(time.Duration(i) * time.Second),
		})
	}
	require.NoError(t, s.Save(ctx, batch))

	// Then: only the newest survive, newest first
	got, err := s.ZeroResults(ctx, 1000)
	require.NoError(t, err)
	require.Len(t, got, MaxZeroResultRows)
	assert.Equal(t, fmt.Sprintf("miss %d", MaxZeroResultRows+19), got[0].Query)
	assert.Equal(t, at.Add(time.Duration(MaxZeroResultRows+19)*time.Second), got[0].SearchedAt)
	assert.Equal(t, "miss 20", got[len(got)-1].Query)
}

func TestSQLiteMetricsStore_EmptyReads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Batch{Date: "2026-03-01"}))

	terms, err := s.TopTerms(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, terms)
	assert.NotNil(t, terms)

	zero, err := s.ZeroResults(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, zero)
}
