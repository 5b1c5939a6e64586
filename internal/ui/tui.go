package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws a live bubbletea view of a rebuild.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *reindexModel
	tracker *ProgressTracker
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	tracker := NewProgressTracker()
	model := newReindexModel(tracker, cfg.Title)
	model.styles = GetStyles(cfg.NoColor || DetectNoColor())
	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.SetStage(event.Stage, event.Kind)
	if event.Stage == StageLoading {
		r.tracker.Update(event.Progress)
	}
	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.AddError(event)
	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.SetStage(StageComplete, "")
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer. It waits briefly for the final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()

	if program == nil {
		return nil
	}
	program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

type (
	progressMsg ProgressEvent
	errorMsg    ErrorEvent
	completeMsg CompletionStats
	tickMsg     time.Time
)

type reindexModel struct {
	tracker  *ProgressTracker
	title    string
	width    int
	quitting bool
	complete bool
	stats    CompletionStats
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
}

func newReindexModel(tracker *ProgressTracker, title string) *reindexModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	return &reindexModel{
		tracker: tracker,
		title:   title,
		width:   80,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
		styles: DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *reindexModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *reindexModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case tickMsg:
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *reindexModel) View() string {
	if m.quitting {
		return "Cancelled. The job keeps running until its time limit.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	width := max(m.width-4, 40)
	divider := m.styles.Border.Render(strings.Repeat("─", width))
	sections := []string{
		m.renderStages(),
		divider,
		m.renderProgress(),
		m.renderSpeed(),
		divider,
		m.styles.Sparkline.Render(m.tracker.RenderSparkline(max(width-14, 10))) + " " + m.styles.Dim.Render("docs/sec"),
	}

	title := "wikisearch reindex"
	if m.title != "" {
		title += " • " + m.title
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(strings.Join(sections, "\n")),
	) + "\n" + m.renderStatusBar()
}

func (m *reindexModel) renderStages() string {
	current := m.tracker.Stats().Stage
	var parts []string
	for _, s := range []Stage{StagePreparing, StageLoading} {
		switch {
		case s < current:
			parts = append(parts, m.styles.Success.Render("● "+s.String()))
		case s == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *reindexModel) renderProgress() string {
	stats := m.tracker.Stats()
	p := stats.Progress
	if p.Total == 0 {
		return fmt.Sprintf("%s %s...", m.spinner.View(), stats.Stage)
	}
	bar := m.bar.ViewAs(stats.Fraction)
	pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Fraction*100))
	count := m.styles.Label.Render(fmt.Sprintf("%s  %d / %d documents  •  chunk %d / %d",
		stats.Kind, p.Done, p.Total, p.Chunk, p.Chunks))
	return fmt.Sprintf("%s  %s\n%s", bar, pct, count)
}

func (m *reindexModel) renderSpeed() string {
	stats := m.tracker.Stats()
	speed := fmt.Sprintf("Speed: %.0f/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		speed += fmt.Sprintf(" (avg: %.0f, peak: %.0f)", stats.Speed.Avg, stats.Speed.Peak)
	}
	parts := []string{m.styles.Label.Render(speed)}
	if r := stats.Progress.Remaining; r > 0 {
		parts = append(parts, m.styles.Label.Render("ETA: "+formatDuration(r)))
	}
	if c := stats.Progress.PerChunk; c > 0 {
		parts = append(parts, m.styles.Label.Render("per chunk: "+formatDuration(c)))
	}
	return strings.Join(parts, m.styles.Dim.Render("  •  "))
}

func (m *reindexModel) renderStatusBar() string {
	stats := m.tracker.Stats()
	var parts []string
	if stats.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d skipped", stats.WarnCount)))
	}
	if stats.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", stats.ErrorCount)))
	}
	parts = append(parts, m.styles.Dim.Render("ctrl+c to detach"))
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

func (m *reindexModel) renderComplete() string {
	s := m.stats
	var header string
	switch {
	case s.TimedOut:
		header = m.styles.Warning.Render("⚠ Population timed out")
	case s.Err != nil:
		header = m.styles.Error.Render("✗ Population failed: " + s.Err.Error())
	default:
		header = m.styles.Success.Render("✓ Generation populated")
	}
	label := m.styles.Label.Render
	lines := []string{
		header,
		"",
		fmt.Sprintf("%s %s", label("Generation:"), m.styles.Active.Render(s.Generation)),
		fmt.Sprintf("%s      %s", label("Index:"), s.Index),
		fmt.Sprintf("%s  %d in %d chunks", label("Documents:"), s.Indexed, s.Chunks),
		fmt.Sprintf("%s   %s", label("Duration:"), formatDuration(s.Duration)),
	}
	if s.Skipped > 0 || s.Missing > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("%d skipped, %d missing", s.Skipped, s.Missing)))
	}
	border := ColorGreen
	if s.TimedOut || s.Err != nil {
		border = ColorYellow
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(border)).
		Padding(1, 2).
		Width(max(m.width-4, 40)).
		Render(strings.Join(lines, "\n")) + "\n"
}

var _ Renderer = (*TUIRenderer)(nil)
