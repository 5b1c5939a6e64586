// Package reindex drives full rebuilds of a search index generation and
// keeps the current generation in step with live document writes.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Aman-CERP/wikisearch/internal/bulk"
	apperrors "github.com/Aman-CERP/wikisearch/internal/errors"
	"github.com/Aman-CERP/wikisearch/internal/lifecycle"
	"github.com/Aman-CERP/wikisearch/internal/logging"
	"github.com/Aman-CERP/wikisearch/internal/notify"
	"github.com/Aman-CERP/wikisearch/internal/source"
	"github.com/Aman-CERP/wikisearch/internal/store"
)

// ErrSoftTimeLimit is returned when a rebuild outlives its soft limit. The
// target generation stays populating.
var ErrSoftTimeLimit = apperrors.New(apperrors.ErrCodeSoftTimeLimit, "reindex exceeded its soft time limit", nil)

// Options selects what a rebuild does.
type Options struct {
	// GenerationID targets an existing generation. Zero creates a new one.
	GenerationID int64 `json:"generation_id,omitempty"`
	// InPlace rebuilds the current generation without recreating its index.
	InPlace   bool `json:"in_place,omitempty"`
	ChunkSize int  `json:"chunk_size,omitempty"`
	// Percent samples the indexable ids. Zero means all of them.
	Percent int  `json:"percent,omitempty"`
	Strict  bool `json:"strict,omitempty"`
}

// Result describes a finished or aborted rebuild.
type Result struct {
	Generation *store.Generation `json:"generation"`
	Index      string            `json:"index"`
	Selected   int               `json:"selected"`
	Load       bulk.Result       `json:"load"`
	Elapsed    time.Duration     `json:"elapsed"`
	TimedOut   bool              `json:"timed_out"`
}

// Dependencies are the collaborators of a Job.
type Dependencies struct {
	Coordinator *lifecycle.Coordinator
	Registry    *source.Registry
	Loader      *bulk.Loader
	// Notifier receives the outcome of every rebuild. Optional.
	Notifier notify.Sink
	SiteName string
	// SoftLimit aborts the load gracefully. Zero disables it.
	SoftLimit time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

// Job runs rebuilds.
type Job struct {
	coord     *lifecycle.Coordinator
	registry  *source.Registry
	loader    *bulk.Loader
	notifier  notify.Sink
	site      string
	softLimit time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewJob creates a Job with injected dependencies.
func NewJob(deps Dependencies) (*Job, error) {
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("source registry is required")
	}
	if deps.Loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Multi{}
	}
	if deps.SiteName == "" {
		deps.SiteName = "wiki"
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Job{
		coord:     deps.Coordinator,
		registry:  deps.Registry,
		loader:    deps.Loader,
		notifier:  deps.Notifier,
		site:      deps.SiteName,
		softLimit: deps.SoftLimit,
		logger:    logging.Default(deps.Logger).With("component", "reindex"),
		now:       deps.Now,
	}, nil
}

// Run rebuilds one generation. On success it is marked populated and a
// notification with timing figures is sent. A load that outlives the soft
// limit leaves the generation populating and returns ErrSoftTimeLimit;
// any other failure leaves it unpopulated and is returned.
func (j *Job) Run(ctx context.Context, opts Options, onProgress func(bulk.Progress)) (*Result, error) {
	percent := opts.Percent
	if percent == 0 {
		percent = 100
	}
	if err := validatePercent(percent); err != nil {
		return nil, err
	}

	gen, err := j.target(ctx, opts)
	if err != nil {
		return nil, err
	}
	if opts.InPlace {
		err = j.coord.BeginRepopulating(ctx, gen)
	} else {
		err = j.coord.BeginPopulating(ctx, gen)
	}
	if err != nil {
		return nil, err
	}

	start := j.now()
	res := &Result{Generation: gen, Index: j.coord.IndexName(gen)}
	j.logger.Info("reindex_started",
		slog.String("generation", gen.Name),
		slog.Bool("in_place", opts.InPlace),
		slog.Int("percent", percent))

	runCtx, cancel := j.withSoftLimit(ctx)
	defer cancel()

	loader := j.loader.WithChunkSize(opts.ChunkSize).WithStrict(opts.Strict)
	loadErr := j.load(runCtx, loader, res, percent, onProgress)
	res.Elapsed = j.now().Sub(start)

	stats := notify.Stats{
		Documents: res.Load.Indexed,
		Chunks:    res.Load.Chunks,
		Skipped:   res.Load.Skipped,
		Elapsed:   res.Elapsed,
	}

	switch {
	case loadErr == nil:
		if err := j.coord.MarkPopulated(ctx, gen); err != nil {
			return res, err
		}
		j.logger.Info("reindex_completed",
			slog.String("generation", gen.Name),
			slog.Int("indexed", res.Load.Indexed),
			slog.Int("skipped", res.Load.Skipped),
			slog.Duration("elapsed", res.Elapsed))
		j.notify(ctx, notify.Populated(j.site, res.Index, stats))
		return res, nil

	case errors.Is(context.Cause(runCtx), ErrSoftTimeLimit) && ctx.Err() == nil:
		res.TimedOut = true
		j.logger.Warn("reindex_timed_out",
			slog.String("generation", gen.Name),
			slog.Int("indexed", res.Load.Indexed),
			slog.Duration("limit", j.softLimit))
		j.notify(ctx, notify.TimedOut(j.site, res.Index, j.softLimit, stats))
		return res, ErrSoftTimeLimit

	default:
		j.logger.Error("reindex_failed",
			slog.String("generation", gen.Name),
			slog.String("error", loadErr.Error()))
		j.notify(ctx, notify.Failed(j.site, res.Index, loadErr, stats))
		return res, loadErr
	}
}

func (j *Job) target(ctx context.Context, opts Options) (*store.Generation, error) {
	switch {
	case opts.InPlace:
		return j.coord.Current(ctx)
	case opts.GenerationID != 0:
		return j.coord.Get(ctx, opts.GenerationID)
	default:
		return j.coord.Create(ctx, "")
	}
}

func (j *Job) withSoftLimit(ctx context.Context) (context.Context, context.CancelFunc) {
	if j.softLimit <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, j.softLimit, ErrSoftTimeLimit)
}

func (j *Job) load(ctx context.Context, loader *bulk.Loader, res *Result, percent int, onProgress func(bulk.Progress)) error {
	for _, kind := range j.registry.Kinds() {
		typ, err := j.registry.Lookup(kind)
		if err != nil {
			return err
		}
		ids, err := typ.IndexableIDs(ctx)
		if err != nil {
			return apperrors.StoreError(fmt.Sprintf("failed to enumerate %s entities", kind), err)
		}
		ids, err = SelectPercent(ids, percent)
		if err != nil {
			return err
		}
		res.Selected += len(ids)

		r, err := loader.Load(ctx, res.Index, kind, ids, onProgress)
		if r != nil {
			res.Load.Indexed += r.Indexed
			res.Load.Deleted += r.Deleted
			res.Load.Skipped += r.Skipped
			res.Load.Rejected += r.Rejected
			res.Load.Missing += r.Missing
			res.Load.Chunks += r.Chunks
			res.Load.Elapsed += r.Elapsed
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (j *Job) notify(ctx context.Context, msg notify.Message) {
	if err := j.notifier.Notify(context.WithoutCancel(ctx), msg); err != nil {
		j.logger.Warn("notification_failed",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()))
	}
}

// SelectPercent returns the lowest percent% of ids, ascending. The input is
// not modified. The result is the same for the same set of ids.
func SelectPercent(ids []int64, percent int) ([]int64, error) {
	if err := validatePercent(percent); err != nil {
		return nil, err
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	n := len(sorted) * percent / 100
	return sorted[:n], nil
}

func validatePercent(percent int) error {
	if percent < 0 || percent > 100 {
		return apperrors.New(apperrors.ErrCodeInvalidPercent,
			fmt.Sprintf("percent must be between 0 and 100, got %d", percent), nil)
	}
	return nil
}
