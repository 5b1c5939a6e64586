package async

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Aman-CERP/wikisearch/internal/errors"
	"github.com/Aman-CERP/wikisearch/internal/logging"
)

// JobReindex is the job type of full rebuilds.
const JobReindex = "reindex"

// RunFunc is the work of one job.
type RunFunc func(ctx context.Context, progress *JobProgress) error

// HardLimitFunc is called when a job outlives the hard limit.
type HardLimitFunc func(snapshot JobSnapshot)

// ExitOnHardLimit terminates the process. A job past its hard limit may be
// stuck inside a call that ignores cancellation.
func ExitOnHardLimit(logger *slog.Logger) HardLimitFunc {
	logger = logging.Default(logger)
	return func(s JobSnapshot) {
		logger.Error("job_hard_limit_exceeded",
			slog.String("job", s.ID),
			slog.String("type", s.Type),
			slog.Int("elapsed_seconds", s.ElapsedSeconds))
		os.Exit(3)
	}
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	// Workers is the number of jobs run concurrently. Zero means 1.
	Workers int
	// LockDir, when set, adds a cross-process FileGuard per job type.
	LockDir string
	// HardLimit bounds a job's run time. Zero disables it.
	HardLimit time.Duration
	// OnHardLimit defaults to ExitOnHardLimit.
	OnHardLimit HardLimitFunc
	// History caps the number of finished jobs kept for status queries.
	History int
	Logger  *slog.Logger
	Now     func() time.Time
}

type job struct {
	id       string
	jobType  string
	run      RunFunc
	progress *JobProgress
	guard    *FileGuard
	done     chan struct{}
}

// Queue is an explicit job queue with single-flight per job type: while a
// job of a type is queued or running, further submissions of that type are
// refused.
type Queue struct {
	opts   QueueOptions
	logger *slog.Logger

	pending chan *job

	mu      sync.Mutex
	active  map[string]*job // job type -> queued or running job
	jobs    map[string]*job
	order   []string
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewQueue creates a queue. Call Start before submitting.
func NewQueue(opts QueueOptions) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.History <= 0 {
		opts.History = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := logging.Default(opts.Logger).With("component", "queue")
	if opts.OnHardLimit == nil {
		opts.OnHardLimit = ExitOnHardLimit(logger)
	}
	return &Queue{
		opts:    opts,
		logger:  logger,
		pending: make(chan *job, 64),
		active:  make(map[string]*job),
		jobs:    make(map[string]*job),
	}
}

// Start launches the workers. Jobs run under ctx.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	ctx, q.cancel = context.WithCancel(ctx)
	for range q.opts.Workers {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

// Stop cancels running jobs and waits for the workers to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.started = false
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
	q.drain(context.Canceled)
}

// Submit enqueues fn as a job of jobType and returns its id. It fails with
// ErrCodeJobRunning if a job of that type is already queued or running,
// in this process or, with LockDir set, in another one.
func (q *Queue) Submit(jobType string, fn RunFunc) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return "", apperrors.InternalError("job queue is not started", nil)
	}
	if other, ok := q.active[jobType]; ok {
		return "", running(jobType, other.id)
	}

	var guard *FileGuard
	if q.opts.LockDir != "" {
		guard = NewFileGuard(q.opts.LockDir, jobType)
		ok, err := guard.TryLock()
		if err != nil {
			return "", apperrors.InternalError("failed to take job lock", err)
		}
		if !ok {
			return "", running(jobType, "held by "+guard.Path())
		}
	}

	j := &job{
		id:       uuid.NewString(),
		jobType:  jobType,
		run:      fn,
		progress: newJobProgress("", jobType, q.opts.Now),
		guard:    guard,
		done:     make(chan struct{}),
	}
	j.progress.id = j.id

	select {
	case q.pending <- j:
	default:
		_ = guard.release()
		return "", apperrors.InternalError("job queue is full", nil)
	}

	q.active[jobType] = j
	q.jobs[j.id] = j
	q.order = append(q.order, j.id)
	q.trim()
	q.logger.Info("job_submitted", slog.String("job", j.id), slog.String("type", jobType))
	return j.id, nil
}

func running(jobType, holder string) error {
	return apperrors.New(apperrors.ErrCodeJobRunning,
		fmt.Sprintf("a %s job is already running (%s)", jobType, holder), nil)
}

// trim drops the oldest finished jobs beyond History. Called with q.mu held.
func (q *Queue) trim() {
	for len(q.order) > q.opts.History {
		id := q.order[0]
		if j := q.jobs[id]; j != nil {
			select {
			case <-j.done:
			default:
				return
			}
		}
		delete(q.jobs, id)
		q.order = q.order[1:]
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			q.drain(ctx.Err())
			return
		case j := <-q.pending:
			q.execute(ctx, j)
		}
	}
}

// drain fails jobs that never started.
func (q *Queue) drain(cause error) {
	for {
		select {
		case j := <-q.pending:
			q.complete(j, cause)
		default:
			return
		}
	}
}

func (q *Queue) execute(ctx context.Context, j *job) {
	j.progress.start()
	q.logger.Info("job_started", slog.String("job", j.id), slog.String("type", j.jobType))

	if q.opts.HardLimit > 0 {
		timer := time.AfterFunc(q.opts.HardLimit, func() {
			q.opts.OnHardLimit(j.progress.Snapshot())
		})
		defer timer.Stop()
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = apperrors.InternalError(fmt.Sprintf("job panicked: %v", r), nil)
			}
		}()
		return j.run(ctx, j.progress)
	}()
	q.complete(j, err)
}

func (q *Queue) complete(j *job, err error) {
	j.progress.finish(err)

	q.mu.Lock()
	if q.active[j.jobType] == j {
		delete(q.active, j.jobType)
	}
	q.mu.Unlock()

	if uerr := j.guard.release(); uerr != nil {
		q.logger.Warn("job_unlock_failed", slog.String("job", j.id), slog.String("error", uerr.Error()))
	}
	close(j.done)

	if err != nil {
		q.logger.Error("job_failed",
			slog.String("job", j.id),
			slog.String("type", j.jobType),
			slog.String("error", err.Error()))
		return
	}
	q.logger.Info("job_succeeded", slog.String("job", j.id), slog.String("type", j.jobType))
}

// Wait blocks until job id finishes or ctx ends.
func (q *Queue) Wait(ctx context.Context, id string) (JobSnapshot, error) {
	q.mu.Lock()
	j, ok := q.jobs[id]
	q.mu.Unlock()
	if !ok {
		return JobSnapshot{}, apperrors.ValidationError(fmt.Sprintf("unknown job %s", id), nil)
	}
	select {
	case <-j.done:
		return j.progress.Snapshot(), nil
	case <-ctx.Done():
		return j.progress.Snapshot(), ctx.Err()
	}
}

// Status returns the snapshot of job id.
func (q *Queue) Status(id string) (JobSnapshot, bool) {
	q.mu.Lock()
	j, ok := q.jobs[id]
	q.mu.Unlock()
	if !ok {
		return JobSnapshot{}, false
	}
	return j.progress.Snapshot(), true
}

// Latest returns the most recently submitted job of jobType.
func (q *Queue) Latest(jobType string) (JobSnapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.order) - 1; i >= 0; i-- {
		if j := q.jobs[q.order[i]]; j != nil && j.jobType == jobType {
			return j.progress.Snapshot(), true
		}
	}
	return JobSnapshot{}, false
}

// List returns every known job, newest first.
func (q *Queue) List() []JobSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]JobSnapshot, 0, len(q.order))
	for i := len(q.order) - 1; i >= 0; i-- {
		if j := q.jobs[q.order[i]]; j != nil {
			out = append(out, j.progress.Snapshot())
		}
	}
	return out
}
