package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/wikisearch/internal/async"
	"github.com/Aman-CERP/wikisearch/internal/search"
)

func TestFormatSearchResults_Empty(t *testing.T) {
	assert.Equal(t, `No results found for "flexbox"`, FormatSearchResults("flexbox", &search.Result{}))
	assert.Equal(t, "No documents match the selected filters", FormatSearchResults("", nil))
}

func TestFormatSearchResults_HitsAndFacets(t *testing.T) {
	// Given: the second page of a result with facets
	res := &search.Result{
		Total:   12,
		Page:    2,
		PerPage: 10,
		Hits: []search.Hit{
			{
				Title:     "CSS color",
				Slug:      "Web/CSS/color",
				Locale:    "en-US",
				Summary:   "Sets the foreground color.",
				Score:     1.234,
				Fragments: []string{" the <mark>color</mark> property "},
			},
		},
		Facets: []search.FacetGroup{
			{Name: "Topics", Slug: "topics", Options: []search.FacetOption{
				{Name: "CSS", Slug: "css", Count: 2, Active: true, Visible: true},
				{Name: "HTML", Slug: "html", Count: 1, Visible: true},
				{Name: "Secret", Slug: "secret", Count: 9},
			}},
			{Name: "Hidden only", Slug: "hidden", Options: []search.FacetOption{
				{Name: "Nope", Slug: "nope"},
			}},
		},
	}

	// When: formatting
	md := FormatSearchResults("color", res)

	// Then: numbering continues from the page offset
	assert.Contains(t, md, `## Search Results for "color"`)
	assert.Contains(t, md, "Found 12 results (page 2 of 2)")
	assert.Contains(t, md, "### 11. CSS color (score: 1.23)")
	assert.Contains(t, md, "`en-US/docs/Web/CSS/color`")
	assert.Contains(t, md, "Sets the foreground color.")
	assert.Contains(t, md, "> the <mark>color</mark> property\n")

	// And: hidden options and empty groups are left out
	assert.Contains(t, md, "- Topics `topics`: **CSS (2)** `css`, HTML (1) `html`")
	assert.NotContains(t, md, "Secret")
	assert.NotContains(t, md, "Hidden only")
}

func TestFormatSearchResults_SingleResult(t *testing.T) {
	md := FormatSearchResults("", &search.Result{Total: 1, Page: 1, PerPage: 10, Hits: []search.Hit{{Title: "A"}}})
	assert.Contains(t, md, "## Search Results\n")
	assert.Contains(t, md, "Found 1 result\n")
}

func TestFormatJob(t *testing.T) {
	running := async.JobSnapshot{
		ID: "j1", Status: string(async.StatusRunning),
		Done: 50, Total: 200, ProgressPct: 25, Chunk: 1, Chunks: 4, RemainingSeconds: 90,
	}
	assert.Equal(t, "Reindex job j1 is running: 50/200 documents (25.0%), chunk 1/4. About 90s to go.", FormatJob(running))

	failed := async.JobSnapshot{ID: "j2", Status: string(async.StatusFailed), Note: "generation g", ErrorMessage: "bulk rejected"}
	assert.Equal(t, "Reindex job j2 is failed. generation g. Error: bulk rejected", FormatJob(failed))
}
