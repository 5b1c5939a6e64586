package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Aman-CERP/wikisearch/internal/store"
)

// GenerationRow is one line of the generations listing.
type GenerationRow struct {
	*store.Generation
	State    store.GenerationState `json:"state"`
	Index    string                `json:"index"`
	Current  bool                  `json:"current"`
	Outdated int                   `json:"outdated"`
}

// GenerationRenderer prints generation listings.
type GenerationRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewGenerationRenderer creates a renderer writing to out.
func NewGenerationRenderer(out io.Writer, noColor bool) *GenerationRenderer {
	return &GenerationRenderer{out: out, styles: GetStyles(noColor || !IsTTY(out)), now: time.Now}
}

// Render prints a table in the order given. The state column is last so
// color codes do not disturb alignment.
func (r *GenerationRenderer) Render(rows []GenerationRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(r.out, "No generations.")
		return err
	}
	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tCREATED\tOUTDATED\tSTATE")
	for _, row := range rows {
		marker := " "
		if row.Current {
			marker = "*"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s %s\t%s\t%d\t%s\n",
			row.ID, marker, row.Name, r.formatTime(row.CreatedAt), row.Outdated, r.renderState(row.State))
	}
	return tw.Flush()
}

// RenderJSON prints rows as indented JSON.
func (r *GenerationRenderer) RenderJSON(rows []GenerationRow) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func (r *GenerationRenderer) renderState(s store.GenerationState) string {
	switch s {
	case store.StatePromoted:
		return r.styles.Success.Render(string(s))
	case store.StatePopulating:
		return r.styles.Warning.Render(string(s))
	case store.StateDemoted:
		return r.styles.Dim.Render(string(s))
	default:
		return string(s)
	}
}

// formatTime renders t relative to now for the last week.
func (r *GenerationRenderer) formatTime(t time.Time) string {
	diff := r.now().Sub(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}
