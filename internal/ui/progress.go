package ui

import (
	"sync"
	"time"

	"github.com/Aman-CERP/wikisearch/internal/bulk"
)

// speedSmoothing weights the newest sample in the rolling average.
const speedSmoothing = 0.2

// ProgressTracker accumulates chunk reports. It is safe for concurrent use.
type ProgressTracker struct {
	mu       sync.RWMutex
	stage    Stage
	kind     string
	progress bulk.Progress
	warnings int
	errors   int

	lastDone    int
	lastElapsed time.Duration
	speed       SpeedStats
	samples     int
	sparkline   *Sparkline
}

// SpeedStats holds documents per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Stage      Stage
	Kind       string
	Progress   bulk.Progress
	Fraction   float64
	ErrorCount int
	WarnCount  int
	Speed      SpeedStats
}

// NewProgressTracker creates a tracker in the preparing stage.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{sparkline: NewSparkline(60)}
}

// SetStage moves to stage. Entering loading for a new kind resets speed.
func (p *ProgressTracker) SetStage(stage Stage, kind string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if stage == p.stage && kind == p.kind {
		return
	}
	p.stage = stage
	p.kind = kind
	p.progress = bulk.Progress{}
	p.lastDone, p.lastElapsed = 0, 0
	p.speed = SpeedStats{}
	p.samples = 0
	p.sparkline.Clear()
}

// Update records one chunk report. Speed is derived from the report's own
// elapsed time so results do not depend on when Update is called.
func (p *ProgressTracker) Update(pr bulk.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.progress = pr
	delta := pr.Done - p.lastDone
	dt := pr.Elapsed - p.lastElapsed
	if delta > 0 && dt > 0 {
		speed := float64(delta) / dt.Seconds()
		p.speed.Current = speed
		p.samples++
		if p.samples == 1 {
			p.speed.Avg = speed
		} else {
			p.speed.Avg = speedSmoothing*speed + (1-speedSmoothing)*p.speed.Avg
		}
		p.speed.Peak = max(p.speed.Peak, speed)
		p.sparkline.Add(speed)
	}
	p.lastDone, p.lastElapsed = pr.Done, pr.Elapsed
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var fraction float64
	if p.progress.Total > 0 {
		fraction = min(float64(p.progress.Done)/float64(p.progress.Total), 1)
	}
	return ProgressStats{
		Stage:      p.stage,
		Kind:       p.kind,
		Progress:   p.progress,
		Fraction:   fraction,
		ErrorCount: p.errors,
		WarnCount:  p.warnings,
		Speed:      p.speed,
	}
}

// RenderSparkline renders the throughput history at width.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sparkline.Render(width)
}
