package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/wikisearch/internal/async"
	"github.com/Aman-CERP/wikisearch/internal/search"
)

// FormatSearchResults formats a result page and its facets as markdown.
func FormatSearchResults(query string, res *search.Result) string {
	if res == nil || len(res.Hits) == 0 {
		if query == "" {
			return "No documents match the selected filters"
		}
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	if query != "" {
		fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	} else {
		sb.WriteString("## Search Results\n\n")
	}
	fmt.Fprintf(&sb, "Found %d result", res.Total)
	if res.Total != 1 {
		sb.WriteString("s")
	}
	if pages := pageCount(res.Total, res.PerPage); pages > 1 {
		fmt.Fprintf(&sb, " (page %d of %d)", res.Page, pages)
	}
	sb.WriteString("\n\n")

	offset := (res.Page - 1) * res.PerPage
	for i, h := range res.Hits {
		formatHit(&sb, offset+i+1, h)
	}

	formatFacets(&sb, res.Facets)
	return sb.String()
}

func pageCount(total uint64, perPage int) int {
	if perPage <= 0 {
		return 1
	}
	return int((total + uint64(perPage) - 1) / uint64(perPage))
}

func formatHit(sb *strings.Builder, num int, h search.Hit) {
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", num, h.Title, h.Score)
	fmt.Fprintf(sb, "`%s/docs/%s`\n\n", h.Locale, h.Slug)
	if h.Summary != "" {
		sb.WriteString(h.Summary)
		sb.WriteString("\n\n")
	}
	for _, f := range h.Fragments {
		fmt.Fprintf(sb, "> %s\n", strings.TrimSpace(f))
	}
	if len(h.Fragments) > 0 {
		sb.WriteString("\n")
	}
}

// formatFacets lists visible options, and hidden ones that are selected.
func formatFacets(sb *strings.Builder, groups []search.FacetGroup) {
	if len(groups) == 0 {
		return
	}
	sb.WriteString("---\n\n**Filters**\n\n")
	for _, g := range groups {
		var opts []string
		for _, o := range g.Options {
			if !o.Visible && !o.Active {
				continue
			}
			label := fmt.Sprintf("%s (%d)", o.Name, o.Count)
			if o.Active {
				label = "**" + label + "**"
			}
			opts = append(opts, fmt.Sprintf("%s `%s`", label, o.Slug))
		}
		if len(opts) == 0 {
			continue
		}
		fmt.Fprintf(sb, "- %s `%s`: %s\n", g.Name, g.Slug, strings.Join(opts, ", "))
	}
}

// FormatJob formats a job snapshot as a one-paragraph summary.
func FormatJob(s async.JobSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reindex job %s is %s", s.ID, s.Status)
	if s.Total > 0 {
		fmt.Fprintf(&sb, ": %d/%d documents (%.1f%%), chunk %d/%d", s.Done, s.Total, s.ProgressPct, s.Chunk, s.Chunks)
	}
	sb.WriteString(".")
	if s.RemainingSeconds > 0 && s.Status == string(async.StatusRunning) {
		fmt.Fprintf(&sb, " About %ds to go.", s.RemainingSeconds)
	}
	if s.Note != "" {
		fmt.Fprintf(&sb, " %s.", s.Note)
	}
	if s.ErrorMessage != "" {
		fmt.Fprintf(&sb, " Error: %s", s.ErrorMessage)
	}
	return sb.String()
}
