// Package output provides consistent CLI status lines and search listings.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/wikisearch/internal/search"
	"github.com/Aman-CERP/wikisearch/internal/telemetry"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✓", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("✗", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// SearchResult prints a result page followed by facet counts. Hidden
// options are shown only while selected.
func (w *Writer) SearchResult(res *search.Result) {
	if len(res.Hits) == 0 {
		w.Status("", "No matching documents.")
		return
	}

	first := (res.Page-1)*res.PerPage + 1
	_, _ = fmt.Fprintf(w.out, "%d-%d of %d documents (generation %s)\n\n",
		first, first+len(res.Hits)-1, res.Total, res.Generation)

	for i, h := range res.Hits {
		_, _ = fmt.Fprintf(w.out, "%2d. %s  [%s/docs/%s]\n", first+i, h.Title, h.Locale, h.Slug)
		if h.Summary != "" {
			_, _ = fmt.Fprintf(w.out, "    %s\n", h.Summary)
		}
		for _, f := range h.Fragments {
			_, _ = fmt.Fprintf(w.out, "    … %s\n", stripMarks(strings.TrimSpace(f)))
		}
	}

	for _, g := range res.Facets {
		var opts []string
		for _, o := range g.Options {
			if !o.Visible && !o.Active {
				continue
			}
			mark := ""
			if o.Active {
				mark = "*"
			}
			opts = append(opts, fmt.Sprintf("%s%s=%s (%d)", mark, g.Slug, o.Slug, o.Count))
		}
		if len(opts) > 0 {
			_, _ = fmt.Fprintf(w.out, "\n%s: %s", g.Name, strings.Join(opts, "  "))
		}
	}
	if len(res.Facets) > 0 {
		w.Newline()
	}
}

// SearchStats prints a search statistics report.
func (w *Writer) SearchStats(r *telemetry.Report) {
	_, _ = fmt.Fprintf(w.out, "Searches %s to %s: %d\n", r.From, r.To, r.TotalQueries)
	if r.TotalQueries > 0 {
		var kinds []string
		for _, k := range telemetry.Kinds {
			if n := r.KindCounts[k]; n > 0 {
				kinds = append(kinds, fmt.Sprintf("%s %d", k, n))
			}
		}
		w.Status("", "by kind: "+strings.Join(kinds, ", "))

		var buckets []string
		for _, b := range telemetry.Buckets {
			buckets = append(buckets, fmt.Sprintf("%s %d", b, r.LatencyDistribution[b]))
		}
		w.Status("", "latency: "+strings.Join(buckets, ", "))
	}

	if len(r.TopTerms) > 0 {
		_, _ = fmt.Fprintln(w.out, "\nTop terms:")
		for _, t := range r.TopTerms {
			_, _ = fmt.Fprintf(w.out, "  %-24s %d\n", t.Term, t.Count)
		}
	}

	if len(r.ZeroResults) > 0 {
		_, _ = fmt.Fprintln(w.out, "\nRecent searches without results:")
		for _, z := range r.ZeroResults {
			_, _ = fmt.Fprintf(w.out, "  %s  %s\n", z.SearchedAt.Local().Format("2006-01-02 15:04"), z.Query)
		}
	}
}

var markReplacer = strings.NewReplacer("<mark>", "", "</mark>", "")

func stripMarks(s string) string {
	return markReplacer.Replace(s)
}
