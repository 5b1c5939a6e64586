package mcp

import (
	"time"

	"github.com/Aman-CERP/wikisearch/internal/async"
	"github.com/Aman-CERP/wikisearch/internal/search"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query   string              `json:"query,omitempty" jsonschema:"free text to match against title, summary and content"`
	Facets  map[string][]string `json:"facets,omitempty" jsonschema:"selected filter slugs keyed by filter group slug"`
	Locale  string              `json:"locale,omitempty" jsonschema:"restrict to one locale, e.g. en-US"`
	Page    int                 `json:"page,omitempty" jsonschema:"1-based page number, default 1"`
	PerPage int                 `json:"per_page,omitempty" jsonschema:"results per page, default 10, max 100"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Total      uint64              `json:"total" jsonschema:"number of matching documents"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"per_page"`
	Generation string              `json:"generation" jsonschema:"index generation that served the query"`
	Results    []search.Hit        `json:"results" jsonschema:"matching documents for this page"`
	Facets     []search.FacetGroup `json:"facets" jsonschema:"filter groups with per-option counts"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Current     GenerationInfo     `json:"current"`
	DocCount    uint64             `json:"doc_count"`
	Generations []GenerationInfo   `json:"generations"`
	Reindex     *async.JobSnapshot `json:"reindex,omitempty"` // Latest rebuild, if any
}

// GenerationInfo describes one index generation.
type GenerationInfo struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Index     string    `json:"index"`
	State     string    `json:"state"`
	Current   bool      `json:"current"`
	Outdated  int       `json:"outdated"`
	CreatedAt time.Time `json:"created_at"`
}

// StartReindexInput defines the input schema for the start_reindex tool.
type StartReindexInput struct {
	Percent    int   `json:"percent,omitempty" jsonschema:"percentage of documents to index, 1-100, default all"`
	InPlace    bool  `json:"in_place,omitempty" jsonschema:"rebuild the current generation instead of creating a new one"`
	Generation int64 `json:"generation,omitempty" jsonschema:"id of an existing unpromoted generation to populate"`
	ChunkSize  int   `json:"chunk_size,omitempty" jsonschema:"documents per bulk request"`
}

// StartReindexOutput defines the output schema for the start_reindex tool.
type StartReindexOutput struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ReindexStatusInput defines the input schema for the reindex_status tool.
type ReindexStatusInput struct {
	JobID string `json:"job_id,omitempty" jsonschema:"job id returned by start_reindex, default the latest rebuild"`
}
