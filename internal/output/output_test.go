package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/wikisearch/internal/search"
	"github.com/Aman-CERP/wikisearch/internal/telemetry"
)

func TestWriter_StatusLines(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Success("Promoted 2024-03-01")
	w.Warningf("%d documents skipped", 3)
	w.Errorf("generation %s not found", "x")
	w.Status("", "indented")

	assert.Equal(t, "✓ Promoted 2024-03-01\n⚠ 3 documents skipped\n✗ generation x not found\n  indented\n", buf.String())
}

func TestWriter_SearchResult(t *testing.T) {
	// Given: the second page of a faceted result
	res := &search.Result{
		Total: 12, Page: 2, PerPage: 10, Generation: "main_index",
		Hits: []search.Hit{
			{Title: "color", Slug: "Web/CSS/color", Locale: "en-US", Summary: "Sets the text color.", Fragments: []string{"the <mark>color</mark> value"}},
			{Title: "Colors", Slug: "Web/HTML/Colors", Locale: "en-US"},
		},
		Facets: []search.FacetGroup{
			{Name: "Topics", Slug: "topics", Options: []search.FacetOption{
				{Name: "CSS", Slug: "css", Count: 2, Active: true, Visible: true},
				{Name: "Hidden", Slug: "hidden", Count: 1},
			}},
		},
	}
	buf := &bytes.Buffer{}

	// When: printing it
	New(buf).SearchResult(res)

	// Then: numbering follows the page and marks are stripped
	out := buf.String()
	assert.Contains(t, out, "11-12 of 12 documents (generation main_index)")
	assert.Contains(t, out, "11. color  [en-US/docs/Web/CSS/color]")
	assert.Contains(t, out, "    Sets the text color.\n")
	assert.Contains(t, out, "… the color value")
	assert.Contains(t, out, "12. Colors")
	assert.Contains(t, out, "Topics: *topics=css (2)")
	assert.NotContains(t, out, "hidden")
}

func TestWriter_SearchResultEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).SearchResult(&search.Result{Page: 1, PerPage: 10})
	assert.Equal(t, "  No matching documents.\n", buf.String())
}

func TestWriter_SearchStats(t *testing.T) {
	r := &telemetry.Report{
		From:                "2026-03-04",
		To:                  "2026-03-10",
		TotalQueries:        5,
		KindCounts:          map[telemetry.QueryKind]int64{telemetry.KindText: 3, telemetry.KindFacet: 2},
		LatencyDistribution: map[telemetry.LatencyBucket]int64{telemetry.BucketP10: 5},
		TopTerms:            []telemetry.TermCount{{Term: "grid", Count: 3}},
		ZeroResults:         []telemetry.ZeroResult{{Query: "[topics=svg]", SearchedAt: time.Now()}},
	}
	buf := &bytes.Buffer{}

	New(buf).SearchStats(r)

	out := buf.String()
	assert.Contains(t, out, "Searches 2026-03-04 to 2026-03-10: 5\n")
	assert.Contains(t, out, "by kind: text 3, facet 2\n")
	assert.Contains(t, out, "latency: p10 5, p50 0, p100 0, p500 0, p1000 0\n")
	assert.Contains(t, out, "Top terms:\n  grid")
	assert.Contains(t, out, "[topics=svg]")
}

func TestWriter_SearchStatsEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).SearchStats(&telemetry.Report{From: "2026-03-10", To: "2026-03-10"})
	assert.Equal(t, "Searches 2026-03-10 to 2026-03-10: 0\n", buf.String())
}
