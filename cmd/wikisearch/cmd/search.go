package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/wikisearch/internal/output"
	"github.com/Aman-CERP/wikisearch/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	facets  []string // group=filter selections
	locale  string
	page    int
	perPage int
	format  string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the current generation",
		Long: `Search the current generation with optional facet filters.

Facet counts reflect the text query only, so every option shows how many
documents it would match on its own.

Examples:
  wikisearch search "flexbox"
  wikisearch search "color" --facet topics=css --facet topics=html
  wikisearch search --facet topics=css --locale fr --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.facets, "facet", "f", nil, "Facet selection as group=filter (repeatable)")
	cmd.Flags().StringVarP(&opts.locale, "locale", "l", "", "Restrict to one locale")
	cmd.Flags().IntVarP(&opts.page, "page", "p", 1, "Result page")
	cmd.Flags().IntVarP(&opts.perPage, "per-page", "n", search.DefaultPerPage, "Results per page")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q: must be text or json", opts.format)
	}
	facets, err := parseFacets(opts.facets)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	slog.Info("search_started", slog.String("query", query), slog.Int("facets", len(facets)))
	res, err := a.searcher.Search(ctx, search.Query{
		Text:    query,
		Facets:  facets,
		Locale:  opts.locale,
		Page:    opts.page,
		PerPage: opts.perPage,
	})
	if err != nil {
		return err
	}
	slog.Info("search_complete", slog.Uint64("total", res.Total), slog.Int("hits", len(res.Hits)))

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	output.New(cmd.OutOrStdout()).SearchResult(res)
	return nil
}

// parseFacets turns group=filter pairs into a selection map. Repeated
// groups accumulate filters.
func parseFacets(pairs []string) (map[string][]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(pairs))
	for _, p := range pairs {
		group, filter, ok := strings.Cut(p, "=")
		group, filter = strings.TrimSpace(group), strings.TrimSpace(filter)
		if !ok || group == "" || filter == "" {
			return nil, fmt.Errorf("invalid facet %q: expected group=filter", p)
		}
		out[group] = append(out[group], filter)
	}
	return out, nil
}
