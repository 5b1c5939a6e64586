// Package store persists index generation metadata, outdated-record
// bookkeeping and facet filter configuration in SQLite.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Aman-CERP/wikisearch/internal/source"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName is returned when a generation name is already taken.
	ErrDuplicateName = errors.New("duplicate generation name")
)

// GenerationState is derived from a generation's flags and timestamps.
type GenerationState string

const (
	StateCreated    GenerationState = "created"
	StatePopulating GenerationState = "populating"
	StatePopulated  GenerationState = "populated"
	StatePromoted   GenerationState = "promoted"
	StateDemoted    GenerationState = "demoted"
)

// NameLayout formats a creation timestamp into a default generation name.
const NameLayout = "2006-01-02-15-04-05"

// Generation is one versioned build of the search index.
type Generation struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	CreatedAt    time.Time  `json:"created_at"`
	Promoted     bool       `json:"promoted"`
	Populated    bool       `json:"populated"`
	PopulatingAt *time.Time `json:"populating_at,omitempty"`
	DemotedAt    *time.Time `json:"demoted_at,omitempty"`
}

// PrefixedName returns the physical index name for this generation.
func (g *Generation) PrefixedName(prefix string) string {
	return prefix + "-" + g.Name
}

// State reports the lifecycle state.
func (g *Generation) State() GenerationState {
	switch {
	case g.Promoted:
		return StatePromoted
	case g.DemotedAt != nil:
		return StateDemoted
	case g.Populated:
		return StatePopulated
	case g.PopulatingAt != nil:
		return StatePopulating
	default:
		return StateCreated
	}
}

// IsCurrentCandidate reports whether reads may be served from g.
func (g *Generation) IsCurrentCandidate() bool {
	return g.Promoted && g.Populated
}

// OutdatedRecord marks an entity that changed while a generation was building.
type OutdatedRecord struct {
	ID           int64      `json:"id"`
	GenerationID int64      `json:"generation_id"`
	Ref          source.Ref `json:"ref"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Operator combines a filter's tags.
type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

// FilterGroup groups facet filters for display.
type FilterGroup struct {
	ID      int64    `json:"id" yaml:"-"`
	Name    string   `json:"name" yaml:"name"`
	Slug    string   `json:"slug" yaml:"slug"`
	Order   int      `json:"order" yaml:"order"`
	Filters []Filter `json:"filters" yaml:"filters"`
}

// Filter maps a facet option to a set of document tags.
type Filter struct {
	ID       int64    `json:"id" yaml:"-"`
	GroupID  int64    `json:"group_id" yaml:"-"`
	Name     string   `json:"name" yaml:"name"`
	Slug     string   `json:"slug" yaml:"slug"`
	Shortcut string   `json:"shortcut,omitempty" yaml:"shortcut"`
	Tags     []string `json:"tags" yaml:"tags"`
	Operator Operator `json:"operator" yaml:"operator"`
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	Visible  bool     `json:"visible" yaml:"visible"`
}

// FilterQuery narrows ListFilterGroups.
type FilterQuery struct {
	EnabledOnly bool
	VisibleOnly bool
}

// GenerationStore persists generation metadata.
type GenerationStore interface {
	CreateGeneration(ctx context.Context, name string, createdAt time.Time) (*Generation, error)
	GetGeneration(ctx context.Context, id int64) (*Generation, error)
	GetGenerationByName(ctx context.Context, name string) (*Generation, error)
	ListGenerations(ctx context.Context) ([]*Generation, error)
	// CurrentGeneration returns the newest promoted and populated generation, or nil.
	CurrentGeneration(ctx context.Context) (*Generation, error)
	// Successor returns the next generation by creation order, or nil.
	Successor(ctx context.Context, g *Generation) (*Generation, error)
	// Predecessors returns generations created before g, oldest first.
	Predecessors(ctx context.Context, g *Generation) ([]*Generation, error)
	UpdateGeneration(ctx context.Context, g *Generation) error
	DeleteGeneration(ctx context.Context, id int64) error
}

// OutdatedStore persists outdated records.
type OutdatedStore interface {
	AddOutdated(ctx context.Context, generationID int64, ref source.Ref, at time.Time) error
	ListOutdated(ctx context.Context, generationIDs ...int64) ([]OutdatedRecord, error)
	CountOutdated(ctx context.Context, generationID int64) (int, error)
	DeleteOutdated(ctx context.Context, recordIDs []int64) error
}

// FilterStore persists facet configuration.
type FilterStore interface {
	ListFilterGroups(ctx context.Context, q FilterQuery) ([]FilterGroup, error)
	ReplaceFilterSet(ctx context.Context, groups []FilterGroup) error
}

// MetadataStore is everything the lifecycle and query layers need.
type MetadataStore interface {
	GenerationStore
	OutdatedStore
	FilterStore
	Close() error
}
