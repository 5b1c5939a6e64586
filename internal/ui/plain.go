package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per update (for CI and pipes).
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// UpdateProgress implements Renderer. Loading lines look like
// "[LOAD] wiki.document 500/1500 (33.3%) chunk 1/3, 2m0s to go".
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := event.Progress
	if event.Stage == StageLoading && p.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %s %d/%d (%.1f%%) chunk %d/%d, %s to go\n",
			event.Stage.Icon(), event.Kind, p.Done, p.Total, p.Percent(), p.Chunk, p.Chunks,
			p.Remaining.Round(time.Second))
		return
	}
	if event.Message != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)
	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.Ref != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Ref, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case stats.TimedOut:
		_, _ = fmt.Fprintf(r.out, "Timed out: %s left unpopulated after %s (%d documents indexed)\n",
			stats.Generation, formatDuration(stats.Duration), stats.Indexed)
	case stats.Err != nil:
		_, _ = fmt.Fprintf(r.out, "Failed: %s: %v\n", stats.Generation, stats.Err)
	default:
		_, _ = fmt.Fprintf(r.out, "Complete: %s populated with %d documents in %d chunks in %s",
			stats.Generation, stats.Indexed, stats.Chunks, formatDuration(stats.Duration))
		if stats.Skipped > 0 || stats.Missing > 0 {
			_, _ = fmt.Fprintf(r.out, " (%d skipped, %d missing)", stats.Skipped, stats.Missing)
		}
		_, _ = fmt.Fprintln(r.out)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
