package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/wikisearch/internal/logging"
	"github.com/Aman-CERP/wikisearch/internal/source"
	"github.com/Aman-CERP/wikisearch/internal/store"
)

// Store is the persistence the lifecycle package needs.
type Store interface {
	store.GenerationStore
	store.OutdatedStore
}

// Tracker records entities that changed while a generation was building.
type Tracker struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewTracker creates a tracker over st.
func NewTracker(st Store, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  st,
		now:    time.Now,
		logger: logging.Default(logger).With("component", "tracker"),
	}
}

// Record attributes ref to the successor of gen. When gen is the newest
// generation nothing is recorded: the next full rebuild picks the change up.
func (t *Tracker) Record(ctx context.Context, gen *store.Generation, ref source.Ref) error {
	next, err := t.store.Successor(ctx, gen)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	if err := t.store.AddOutdated(ctx, next.ID, ref, t.now()); err != nil {
		return err
	}
	t.logger.Debug("outdated_recorded",
		slog.String("ref", ref.String()),
		slog.String("generation", next.Name))
	return nil
}

// Pending returns the records owned by gen.
func (t *Tracker) Pending(ctx context.Context, gen *store.Generation) ([]store.OutdatedRecord, error) {
	return t.store.ListOutdated(ctx, gen.ID)
}

// Consume hands the distinct refs owned by gens to fn and deletes the
// consumed records once fn succeeds. Records added while fn runs are kept.
// It returns the number of distinct refs.
func (t *Tracker) Consume(ctx context.Context, gens []*store.Generation, fn func(ctx context.Context, refs []source.Ref) error) (int, error) {
	ids := make([]int64, len(gens))
	for i, g := range gens {
		ids[i] = g.ID
	}
	records, err := t.store.ListOutdated(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	refs := make([]source.Ref, len(records))
	recordIDs := make([]int64, len(records))
	for i, r := range records {
		refs[i] = r.Ref
		recordIDs[i] = r.ID
	}
	refs = source.Dedup(refs)

	if err := fn(ctx, refs); err != nil {
		return 0, fmt.Errorf("failed to reschedule %d outdated entities: %w", len(refs), err)
	}
	if err := t.store.DeleteOutdated(ctx, recordIDs); err != nil {
		return len(refs), err
	}
	return len(refs), nil
}
