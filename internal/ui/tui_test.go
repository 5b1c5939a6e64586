package ui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/wikisearch/internal/bulk"
)

func newTestModel() (*reindexModel, *ProgressTracker) {
	tracker := NewProgressTracker()
	m := newReindexModel(tracker, "2024-01-01-00-00-00")
	m.styles = GetStyles(true)
	return m, tracker
}

func TestReindexModel_PreparingView(t *testing.T) {
	m, _ := newTestModel()

	view := m.View()

	assert.Contains(t, view, "wikisearch reindex • 2024-01-01-00-00-00")
	assert.Contains(t, view, "Preparing")
	assert.Contains(t, view, "○ Loading")
}

func TestReindexModel_LoadingView(t *testing.T) {
	m, tracker := newTestModel()

	// Given: half of the documents loaded
	tracker.SetStage(StageLoading, "wiki.document")
	tracker.Update(bulk.Progress{
		Done: 750, Total: 1500, Chunk: 3, Chunks: 6,
		Elapsed: 30 * time.Second, Remaining: 30 * time.Second, PerChunk: 10 * time.Second,
	})
	tracker.AddError(ErrorEvent{IsWarn: true})

	view := m.View()

	// Then: the bar, counts, speed and ETA are shown
	assert.Contains(t, view, "● Preparing")
	assert.Contains(t, view, " 50%")
	assert.Contains(t, view, "wiki.document  750 / 1500 documents")
	assert.Contains(t, view, "chunk 3 / 6")
	assert.Contains(t, view, "Speed: 25/s")
	assert.Contains(t, view, "ETA: 30s")
	assert.Contains(t, view, "⚠ 1 skipped")
}

func TestReindexModel_Update(t *testing.T) {
	m, _ := newTestModel()

	_, cmd := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Nil(t, cmd)
	assert.Equal(t, 120, m.width)
	assert.Equal(t, 100, m.bar.Width)

	_, cmd = m.Update(completeMsg(CompletionStats{Generation: "g", Indexed: 3, Chunks: 1, Duration: time.Second}))
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "✓ Generation populated")
	assert.Contains(t, m.View(), "3 in 1 chunks")
}

func TestReindexModel_CompleteVariants(t *testing.T) {
	m, _ := newTestModel()
	m.Update(completeMsg(CompletionStats{Generation: "g", TimedOut: true}))
	assert.Contains(t, m.View(), "Population timed out")

	m, _ = newTestModel()
	m.Update(completeMsg(CompletionStats{Generation: "g", Err: errors.New("bulk rejected")}))
	assert.Contains(t, m.View(), "Population failed: bulk rejected")
}

func TestReindexModel_CtrlCQuits(t *testing.T) {
	m, _ := newTestModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Cancelled")
}
