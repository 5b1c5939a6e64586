package reindex

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/wikisearch/internal/bulk"
	apperrors "github.com/Aman-CERP/wikisearch/internal/errors"
	"github.com/Aman-CERP/wikisearch/internal/lifecycle"
	"github.com/Aman-CERP/wikisearch/internal/logging"
	"github.com/Aman-CERP/wikisearch/internal/source"
	"github.com/Aman-CERP/wikisearch/internal/store"
	"github.com/Aman-CERP/wikisearch/internal/wiki"
)

// Rescheduler reindexes outdated entities into the generation being
// promoted. It implements lifecycle.Rescheduler.
type Rescheduler struct {
	loader *bulk.Loader
	prefix string
}

var _ lifecycle.Rescheduler = (*Rescheduler)(nil)

// NewRescheduler writes into <prefix>-<generation> indexes through loader.
func NewRescheduler(loader *bulk.Loader, prefix string) *Rescheduler {
	return &Rescheduler{loader: loader, prefix: prefix}
}

// Reschedule implements lifecycle.Rescheduler.
func (r *Rescheduler) Reschedule(ctx context.Context, gen *store.Generation, refs []source.Ref) error {
	_, err := r.loader.IndexRefs(ctx, gen.PrefixedName(r.prefix), refs)
	return err
}

// LiveIndexer applies document writes to the current generation as they
// happen and records them as outdated for the generation that follows it.
type LiveIndexer struct {
	coord   *lifecycle.Coordinator
	loader  *bulk.Loader
	breaker *apperrors.CircuitBreaker
	timeout time.Duration
	logger  *slog.Logger
}

// NewLiveIndexer creates a LiveIndexer. Index writes fail fast once the
// index service has failed repeatedly.
func NewLiveIndexer(coord *lifecycle.Coordinator, loader *bulk.Loader, logger *slog.Logger) *LiveIndexer {
	return &LiveIndexer{
		coord:   coord,
		loader:  loader,
		breaker: apperrors.NewCircuitBreaker("live-index", apperrors.WithMaxFailures(3)),
		timeout: 10 * time.Second,
		logger:  logging.Default(logger).With("component", "live_index"),
	}
}

// Attach registers the indexer on the document store's write hooks.
func (l *LiveIndexer) Attach(s *wiki.Store) {
	s.OnSave(l.hook)
	s.OnDelete(l.hook)
}

func (l *LiveIndexer) hook(ctx context.Context, d *wiki.Document) {
	if err := l.Sync(ctx, d.Ref()); err != nil {
		l.logger.Warn("live_index_failed",
			slog.String("ref", d.Ref().String()),
			slog.String("error", err.Error()))
	}
}

// Sync brings ref up to date in the current generation, then records it as
// outdated so a generation building alongside picks it up on promotion.
// The outdated record is written even when the index write fails.
func (l *LiveIndexer) Sync(ctx context.Context, ref source.Ref) error {
	gen, err := l.coord.Current(ctx)
	if err != nil {
		return err
	}

	indexErr := l.breaker.Execute(func() error {
		wctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()
		_, err := l.loader.IndexRefs(wctx, l.coord.IndexName(gen), []source.Ref{ref})
		return err
	})

	if err := l.coord.RecordOutdated(ctx, gen, ref); err != nil {
		return err
	}
	return indexErr
}
