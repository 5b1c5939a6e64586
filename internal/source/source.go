// Package source defines tagged references to indexable entities and the
// registry that maps an entity kind to the code that loads and transforms it.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrUnknownKind is returned when no Type is registered for a kind.
var ErrUnknownKind = errors.New("unknown entity kind")

// Ref points at one source entity.
type Ref struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

// String renders the ref as "kind:id".
func (r Ref) String() string {
	return r.Kind + ":" + strconv.FormatInt(r.ID, 10)
}

// ParseRef parses the "kind:id" form produced by String.
func ParseRef(s string) (Ref, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 {
		return Ref{}, fmt.Errorf("invalid ref %q", s)
	}
	id, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return Ref{}, fmt.Errorf("invalid ref %q: %w", s, err)
	}
	return Ref{Kind: s[:i], ID: id}, nil
}

// Entity is a loaded source record.
type Entity interface {
	Ref() Ref
}

// Document is the field map submitted to the index service.
type Document map[string]any

// Type loads, filters and transforms one kind of entity.
type Type interface {
	// Kind is the stable tag stored in outdated records.
	Kind() string
	// DocType is the document type written alongside each indexed document.
	DocType() string
	// Fetch loads entities by id. Missing ids are omitted from the result.
	Fetch(ctx context.Context, ids []int64) ([]Entity, error)
	// IndexableIDs enumerates ids eligible for indexing, ascending.
	IndexableIDs(ctx context.Context) ([]int64, error)
	// ShouldIndex mirrors the IndexableIDs policy for a single entity.
	ShouldIndex(e Entity) bool
	// Transform turns an entity into an index document.
	Transform(e Entity) (Document, error)
}

// Registry maps entity kinds to their Type.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
}

// NewRegistry creates a registry holding the given types.
func NewRegistry(types ...Type) *Registry {
	r := &Registry{types: make(map[string]Type)}
	for _, t := range types {
		r.Register(t)
	}
	return r
}

// Register adds or replaces the Type for t.Kind().
func (r *Registry) Register(t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.Kind()] = t
}

// Lookup returns the Type for kind.
func (r *Registry) Lookup(kind string) (Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return t, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.types))
	for k := range r.types {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Dedup removes repeated refs, keeping first-seen order.
func Dedup(refs []Ref) []Ref {
	seen := make(map[Ref]struct{}, len(refs))
	out := make([]Ref, 0, len(refs))
	for _, r := range refs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// GroupByKind splits refs into per-kind id lists, preserving order within a kind.
func GroupByKind(refs []Ref) map[string][]int64 {
	out := make(map[string][]int64)
	for _, r := range refs {
		out[r.Kind] = append(out[r.Kind], r.ID)
	}
	return out
}
