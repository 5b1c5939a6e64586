// Package engine is the index service: physical search indexes addressed by
// name, with settings, bulk writes and tag-filtered search.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/blevesearch/bleve/v2/mapping"
)

var (
	// ErrIndexNotFound is returned for operations on a missing index.
	ErrIndexNotFound = errors.New("index not found")
	// ErrIndexExists is returned when creating an index that already exists.
	ErrIndexExists = errors.New("index already exists")
	// ErrTimeout is returned when a call exceeds the service timeout.
	ErrTimeout = errors.New("index service call timed out")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("index service is closed")
)

// Settings are the tunables adjusted around bulk loads.
type Settings struct {
	RefreshInterval  string `json:"refresh_interval"`
	NumberOfReplicas int    `json:"number_of_replicas"`
}

// BulkSettings disable refresh and replication for the duration of a load.
var BulkSettings = Settings{RefreshInterval: "-1", NumberOfReplicas: 0}

// Action is one bulk operation against a named index.
type Action struct {
	Index  string
	Type   string
	ID     string
	Source map[string]any
	// Delete removes the document instead of indexing Source.
	Delete bool
}

// ItemError reports a document the service rejected.
type ItemError struct {
	Index string
	ID    string
	Err   error
}

// BulkResponse summarises a bulk call. Rejected items do not fail the call.
type BulkResponse struct {
	Indexed int
	Deleted int
	Failed  []ItemError
}

// Operator combines the values of a TagFilter.
type Operator string

const (
	And Operator = "AND"
	Or  Operator = "OR"
)

// TagFilter restricts results to documents whose Field holds the Values.
type TagFilter struct {
	Field    string
	Values   []string
	Operator Operator
}

// SearchRequest is an engine-neutral query.
type SearchRequest struct {
	// Text is matched against TextFields; empty matches everything.
	Text string
	// TextFields maps field name to boost.
	TextFields map[string]float64
	Filters    []TagFilter
	// Terms are exact single-value restrictions, e.g. locale.
	Terms     map[string]string
	From      int
	Size      int
	Fields    []string
	Highlight []string
}

// Hit is one search result.
type Hit struct {
	ID        string              `json:"id"`
	Score     float64             `json:"score"`
	Fields    map[string]any      `json:"fields,omitempty"`
	Fragments map[string][]string `json:"fragments,omitempty"`
}

// SearchResult is the outcome of Search.
type SearchResult struct {
	Total uint64        `json:"total"`
	Hits  []Hit         `json:"hits"`
	Took  time.Duration `json:"took"`
}

// Service is the index service contract. Every call is bounded by the
// service timeout in addition to ctx.
type Service interface {
	CreateIndex(ctx context.Context, name string, m mapping.IndexMapping, s Settings) error
	DeleteIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	GetSettings(ctx context.Context, name string) (Settings, error)
	PutSettings(ctx context.Context, name string, s Settings) error
	Bulk(ctx context.Context, actions []Action) (*BulkResponse, error)
	DeleteDocument(ctx context.Context, index, id string) error
	DocCount(ctx context.Context, name string) (uint64, error)
	Search(ctx context.Context, name string, req SearchRequest) (*SearchResult, error)
	Close() error
}

// RecreateIndex deletes name if present and creates it with m and s.
// A concurrent creator winning the race is not an error.
func RecreateIndex(ctx context.Context, svc Service, name string, m mapping.IndexMapping, s Settings) error {
	if err := svc.DeleteIndex(ctx, name); err != nil && !errors.Is(err, ErrIndexNotFound) {
		return err
	}
	if err := svc.CreateIndex(ctx, name, m, s); err != nil && !errors.Is(err, ErrIndexExists) {
		return err
	}
	return nil
}

// EnsureIndex creates name if it does not exist yet.
func EnsureIndex(ctx context.Context, svc Service, name string, m mapping.IndexMapping, s Settings) error {
	err := svc.CreateIndex(ctx, name, m, s)
	if err != nil && !errors.Is(err, ErrIndexExists) {
		return err
	}
	return nil
}
