package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/wikisearch/internal/store"
)

// Resource URIs.
const (
	GenerationsURI = "wikisearch://generations"
	FiltersURI     = "wikisearch://filters"
	StatsURI       = "wikisearch://search-stats"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "generations",
			URI:         GenerationsURI,
			Description: "Index generations with lifecycle state and pending outdated records",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readGenerations(ctx)
		},
	)

	if s.deps.Filters != nil {
		s.mcp.AddResource(
			&mcp.Resource{
				Name:        "filters",
				URI:         FiltersURI,
				Description: "Facet filter groups, including disabled and hidden filters",
				MIMEType:    "application/json",
			},
			func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
				return s.readFilters(ctx)
			},
		)
	}

	if s.deps.Stats != nil {
		s.mcp.AddResource(
			&mcp.Resource{
				Name:        "search-stats",
				URI:         StatsURI,
				Description: "Search statistics since the server started: query kinds, top terms, zero-result queries and latency",
				MIMEType:    "application/json",
			},
			func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
				return jsonResource(StatsURI, s.deps.Stats.Snapshot())
			},
		)
	}
}

func (s *Server) readGenerations(ctx context.Context) (*mcp.ReadResourceResult, error) {
	status, err := s.indexStatus(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	return jsonResource(GenerationsURI, status.Generations)
}

func (s *Server) readFilters(ctx context.Context) (*mcp.ReadResourceResult, error) {
	groups, err := s.deps.Filters.ListFilterGroups(ctx, store.FilterQuery{})
	if err != nil {
		return nil, MapError(err)
	}
	if groups == nil {
		groups = []store.FilterGroup{}
	}
	return jsonResource(FiltersURI, groups)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
