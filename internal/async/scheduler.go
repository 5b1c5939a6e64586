package async

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/Aman-CERP/wikisearch/internal/logging"
)

// ScheduledJob describes a registered periodic job.
type ScheduledJob struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	LastRun  time.Time `json:"last_run,omitzero"`
	NextRun  time.Time `json:"next_run,omitzero"`
}

// Scheduler runs named tasks on cron schedules (5-field syntax).
type Scheduler struct {
	mu        sync.Mutex
	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job
	schedules map[string]string
	logger    *slog.Logger
}

// NewScheduler creates an idle scheduler.
func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create cron scheduler: %w", err)
	}
	return &Scheduler{
		scheduler: s,
		jobs:      make(map[string]gocron.Job),
		schedules: make(map[string]string),
		logger:    logging.Default(logger).With("component", "scheduler"),
	}, nil
}

// ValidateCron reports whether expr is a valid 5-field cron expression.
func ValidateCron(expr string) error {
	if err := gocron.NewDefaultCron(false).IsValid(expr, time.UTC, time.Now()); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Add registers task under a unique name. Runs of the same task never overlap.
func (s *Scheduler) Add(name, cronExpr string, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduled job already exists: %s", name)
	}
	j, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("create scheduled job %s: %w", name, err)
	}
	s.jobs[name] = j
	s.schedules[name] = cronExpr
	s.logger.Info("scheduled_job_added", slog.String("name", name), slog.String("cron", cronExpr))
	return nil
}

// Remove unregisters name. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return
	}
	if err := s.scheduler.RemoveJob(j.ID()); err != nil {
		s.logger.Warn("scheduled_job_remove_failed", slog.String("name", name), slog.String("error", err.Error()))
	}
	delete(s.jobs, name)
	delete(s.schedules, name)
}

// Jobs lists the registered jobs sorted by name.
func (s *Scheduler) Jobs() []ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledJob, 0, len(s.jobs))
	for name, j := range s.jobs {
		info := ScheduledJob{Name: name, Schedule: s.schedules[name]}
		if lr, err := j.LastRun(); err == nil {
			info.LastRun = lr
		}
		if nr, err := j.NextRun(); err == nil {
			info.NextRun = nr
		}
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b ScheduledJob) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Info("scheduler_started", slog.Int("jobs", len(s.jobs)))
}

// Stop shuts the scheduler down and waits for running tasks.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
