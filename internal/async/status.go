// Package async runs long jobs such as full rebuilds in the background, at
// most one per job type, and schedules them periodically.
package async

import (
	"sync"
	"time"

	"github.com/Aman-CERP/wikisearch/internal/bulk"
)

// JobStatus is the state of a submitted job.
type JobStatus string

const (
	// StatusQueued means the job waits for a worker.
	StatusQueued JobStatus = "queued"
	// StatusRunning means a worker is executing the job.
	StatusRunning JobStatus = "running"
	// StatusSucceeded means the job returned without error.
	StatusSucceeded JobStatus = "succeeded"
	// StatusFailed means the job returned an error.
	StatusFailed JobStatus = "failed"
)

// JobSnapshot is an immutable copy of a job's progress.
type JobSnapshot struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	Status           string    `json:"status"`
	Done             int       `json:"done"`
	Total            int       `json:"total"`
	Chunk            int       `json:"chunk"`
	Chunks           int       `json:"chunks"`
	ProgressPct      float64   `json:"progress_pct"`
	ElapsedSeconds   int       `json:"elapsed_seconds"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Note             string    `json:"note,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	SubmittedAt      time.Time `json:"submitted_at"`
	FinishedAt       time.Time `json:"finished_at,omitzero"`
}

// JobProgress is the thread-safe progress record of one job.
type JobProgress struct {
	mu sync.RWMutex

	id          string
	jobType     string
	status      JobStatus
	last        bulk.Progress
	note        string
	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time
	errorMsg    string
	now         func() time.Time
}

func newJobProgress(id, jobType string, now func() time.Time) *JobProgress {
	return &JobProgress{
		id:          id,
		jobType:     jobType,
		status:      StatusQueued,
		submittedAt: now(),
		now:         now,
	}
}

// Report records the latest chunk progress.
func (p *JobProgress) Report(pr bulk.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = pr
}

// SetNote attaches a short description, e.g. the target generation.
func (p *JobProgress) SetNote(note string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.note = note
}

func (p *JobProgress) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusRunning
	p.startedAt = p.now()
}

func (p *JobProgress) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishedAt = p.now()
	if err != nil {
		p.status = StatusFailed
		p.errorMsg = err.Error()
		return
	}
	p.status = StatusSucceeded
}

// Status returns the current status.
func (p *JobProgress) Status() JobStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Snapshot returns an immutable copy of the current state.
func (p *JobProgress) Snapshot() JobSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var elapsed time.Duration
	switch {
	case !p.finishedAt.IsZero() && !p.startedAt.IsZero():
		elapsed = p.finishedAt.Sub(p.startedAt)
	case !p.startedAt.IsZero():
		elapsed = p.now().Sub(p.startedAt)
	}

	var pct float64
	if p.last.Total > 0 {
		pct = p.last.Percent()
	}
	if p.status == StatusSucceeded {
		pct = 100
	}

	return JobSnapshot{
		ID:               p.id,
		Type:             p.jobType,
		Status:           string(p.status),
		Done:             p.last.Done,
		Total:            p.last.Total,
		Chunk:            p.last.Chunk,
		Chunks:           p.last.Chunks,
		ProgressPct:      pct,
		ElapsedSeconds:   int(elapsed.Seconds()),
		RemainingSeconds: int(p.last.Remaining.Seconds()),
		Note:             p.note,
		ErrorMessage:     p.errorMsg,
		SubmittedAt:      p.submittedAt,
		FinishedAt:       p.finishedAt,
	}
}
