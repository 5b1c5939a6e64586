// Package lifecycle manages search index generations: creation, population
// state, promotion to current and the outdated-entity bookkeeping that keeps
// a promoted generation consistent with writes made while it was building.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2/mapping"
	"golang.org/x/sync/singleflight"

	"github.com/Aman-CERP/wikisearch/internal/engine"
	apperrors "github.com/Aman-CERP/wikisearch/internal/errors"
	"github.com/Aman-CERP/wikisearch/internal/logging"
	"github.com/Aman-CERP/wikisearch/internal/source"
	"github.com/Aman-CERP/wikisearch/internal/store"
)

// maxNameSuffix bounds the search for a free derived name.
const maxNameSuffix = 100

// Rescheduler reindexes entities into a generation.
type Rescheduler interface {
	Reschedule(ctx context.Context, gen *store.Generation, refs []source.Ref) error
}

// RescheduleFunc adapts a function to Rescheduler.
type RescheduleFunc func(ctx context.Context, gen *store.Generation, refs []source.Ref) error

// Reschedule implements Rescheduler.
func (f RescheduleFunc) Reschedule(ctx context.Context, gen *store.Generation, refs []source.Ref) error {
	return f(ctx, gen, refs)
}

// Options configures a Coordinator.
type Options struct {
	// Prefix is prepended to generation names to form physical index names.
	Prefix string
	// DefaultName names the bootstrap generation.
	DefaultName string
	// Settings are applied when a physical index is created.
	Settings engine.Settings
	// Mapping is the schema of every physical index.
	Mapping mapping.IndexMapping
	Logger  *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Coordinator drives generation state transitions.
type Coordinator struct {
	store       Store
	engine      engine.Service
	tracker     *Tracker
	rescheduler Rescheduler

	prefix      string
	defaultName string
	settings    engine.Settings
	mapping     mapping.IndexMapping
	now         func() time.Time
	logger      *slog.Logger

	bootstrap singleflight.Group
}

// NewCoordinator wires a coordinator. r may be nil until SetRescheduler is called.
func NewCoordinator(st Store, svc engine.Service, r Rescheduler, opts Options) *Coordinator {
	if opts.Prefix == "" {
		opts.Prefix = "wiki"
	}
	if opts.DefaultName == "" {
		opts.DefaultName = "main_index"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := logging.Default(opts.Logger)
	tracker := NewTracker(st, logger)
	tracker.now = opts.Now
	return &Coordinator{
		store:       st,
		engine:      svc,
		tracker:     tracker,
		rescheduler: r,
		prefix:      opts.Prefix,
		defaultName: opts.DefaultName,
		settings:    opts.Settings,
		mapping:     opts.Mapping,
		now:         opts.Now,
		logger:      logger.With("component", "lifecycle"),
	}
}

// SetRescheduler replaces the rescheduler used on promotion.
func (c *Coordinator) SetRescheduler(r Rescheduler) {
	c.rescheduler = r
}

// Tracker exposes the outdated-record tracker.
func (c *Coordinator) Tracker() *Tracker {
	return c.tracker
}

// IndexName returns the physical index name of gen.
func (c *Coordinator) IndexName(gen *store.Generation) string {
	return gen.PrefixedName(c.prefix)
}

// Current returns the newest promoted and populated generation. When there
// is none, the default generation is bootstrapped so readers always have
// an index to query.
func (c *Coordinator) Current(ctx context.Context) (*store.Generation, error) {
	g, err := c.store.CurrentGeneration(ctx)
	if err != nil {
		return nil, apperrors.StoreError("failed to load current generation", err)
	}
	if g != nil {
		return g, nil
	}

	v, err, _ := c.bootstrap.Do("current", func() (any, error) {
		return c.bootstrapCurrent(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*store.Generation), nil
}

func (c *Coordinator) bootstrapCurrent(ctx context.Context) (*store.Generation, error) {
	// another caller may have finished while we waited
	if g, err := c.store.CurrentGeneration(ctx); err != nil || g != nil {
		return g, err
	}

	g, err := c.store.GetGenerationByName(ctx, c.defaultName)
	if errors.Is(err, store.ErrNotFound) {
		g, err = c.store.CreateGeneration(ctx, c.defaultName, c.now())
		if errors.Is(err, store.ErrDuplicateName) {
			g, err = c.store.GetGenerationByName(ctx, c.defaultName)
		}
	}
	if err != nil {
		return nil, apperrors.StoreError("failed to bootstrap default generation", err)
	}

	if err := engine.EnsureIndex(ctx, c.engine, c.IndexName(g), c.mapping, c.settings); err != nil {
		return nil, err
	}

	g.Promoted = true
	g.Populated = true
	g.DemotedAt = nil
	if err := c.store.UpdateGeneration(ctx, g); err != nil {
		return nil, apperrors.StoreError("failed to promote default generation", err)
	}
	c.logger.Info("generation_bootstrapped", slog.String("generation", g.Name))
	return g, nil
}

// Create persists a new generation. An empty name is derived from the
// creation time, with a -N suffix when that name is taken.
//
// The current generation is bootstrapped first, so the new generation is
// always a successor that outdated records can be written to.
func (c *Coordinator) Create(ctx context.Context, name string) (*store.Generation, error) {
	if name != c.defaultName {
		if _, err := c.Current(ctx); err != nil {
			return nil, err
		}
	}

	now := c.now()
	if name != "" {
		g, err := c.store.CreateGeneration(ctx, name, now)
		if errors.Is(err, store.ErrDuplicateName) {
			return nil, apperrors.ValidationError(fmt.Sprintf("generation %q already exists", name), err)
		}
		if err != nil {
			return nil, apperrors.StoreError("failed to create generation", err)
		}
		c.logger.Info("generation_created", slog.String("generation", g.Name))
		return g, nil
	}

	base := now.UTC().Format(store.NameLayout)
	candidate := base
	for i := 1; i <= maxNameSuffix; i++ {
		g, err := c.store.CreateGeneration(ctx, candidate, now)
		if err == nil {
			c.logger.Info("generation_created", slog.String("generation", g.Name))
			return g, nil
		}
		if !errors.Is(err, store.ErrDuplicateName) {
			return nil, apperrors.StoreError("failed to create generation", err)
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
	return nil, apperrors.InternalError(fmt.Sprintf("no free generation name for %s", base), nil)
}

// BeginPopulating recreates the physical index of gen and marks it populating.
func (c *Coordinator) BeginPopulating(ctx context.Context, gen *store.Generation) error {
	if gen.Promoted {
		return apperrors.New(apperrors.ErrCodeGenerationInUse,
			fmt.Sprintf("generation %s is promoted", gen.Name), nil).
			WithSuggestion("use --in-place to rebuild the current generation")
	}
	if err := engine.RecreateIndex(ctx, c.engine, c.IndexName(gen), c.mapping, c.settings); err != nil {
		return err
	}
	now := c.now()
	gen.PopulatingAt = &now
	gen.Populated = false
	if err := c.store.UpdateGeneration(ctx, gen); err != nil {
		return apperrors.StoreError("failed to mark generation populating", err)
	}
	c.logger.Info("generation_populating", slog.String("generation", gen.Name))
	return nil
}

// BeginRepopulating is BeginPopulating for a promoted generation rebuilt in place.
// Its physical index is not recreated, so readers keep seeing documents.
func (c *Coordinator) BeginRepopulating(ctx context.Context, gen *store.Generation) error {
	if err := engine.EnsureIndex(ctx, c.engine, c.IndexName(gen), c.mapping, c.settings); err != nil {
		return err
	}
	now := c.now()
	gen.PopulatingAt = &now
	if err := c.store.UpdateGeneration(ctx, gen); err != nil {
		return apperrors.StoreError("failed to mark generation populating", err)
	}
	c.logger.Info("generation_repopulating", slog.String("generation", gen.Name))
	return nil
}

// MarkPopulated records that a full load of gen completed.
func (c *Coordinator) MarkPopulated(ctx context.Context, gen *store.Generation) error {
	gen.Populated = true
	if err := c.store.UpdateGeneration(ctx, gen); err != nil {
		return apperrors.StoreError("failed to mark generation populated", err)
	}
	c.logger.Info("generation_populated", slog.String("generation", gen.Name))
	return nil
}

// Promote makes id current. Outdated entities owned by it, and by older
// generations that were superseded without ever being promoted, are
// reindexed into it once each before the flag is set. The previous current
// generation is left promoted; demoting it is a separate step.
func (c *Coordinator) Promote(ctx context.Context, id int64) (*store.Generation, error) {
	gen, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !gen.Populated {
		return nil, apperrors.ValidationError(fmt.Sprintf("generation %s is not populated", gen.Name), nil).
			WithSuggestion("run a reindex into it first")
	}

	owners := []*store.Generation{gen}
	preds, err := c.store.Predecessors(ctx, gen)
	if err != nil {
		return nil, apperrors.StoreError("failed to list predecessors", err)
	}
	for _, p := range preds {
		if !p.Promoted && p.DemotedAt == nil {
			owners = append(owners, p)
		}
	}

	n, err := c.tracker.Consume(ctx, owners, func(ctx context.Context, refs []source.Ref) error {
		if c.rescheduler == nil {
			return fmt.Errorf("no rescheduler configured")
		}
		return c.rescheduler.Reschedule(ctx, gen, refs)
	})
	if err != nil {
		return nil, err
	}

	gen.Promoted = true
	gen.DemotedAt = nil
	if err := c.store.UpdateGeneration(ctx, gen); err != nil {
		return nil, apperrors.StoreError("failed to promote generation", err)
	}
	c.logger.Info("generation_promoted",
		slog.String("generation", gen.Name),
		slog.Int("rescheduled", n))
	return gen, nil
}

// Demote stops serving reads from id.
func (c *Coordinator) Demote(ctx context.Context, id int64) (*store.Generation, error) {
	gen, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := c.now()
	gen.Promoted = false
	gen.DemotedAt = &now
	if err := c.store.UpdateGeneration(ctx, gen); err != nil {
		return nil, apperrors.StoreError("failed to demote generation", err)
	}
	c.logger.Info("generation_demoted", slog.String("generation", gen.Name))
	return gen, nil
}

// RecordOutdated notes that ref changed while gen was current.
func (c *Coordinator) RecordOutdated(ctx context.Context, gen *store.Generation, ref source.Ref) error {
	return c.tracker.Record(ctx, gen, ref)
}

// RecordOutdatedForCurrent is RecordOutdated against the current generation.
func (c *Coordinator) RecordOutdatedForCurrent(ctx context.Context, ref source.Ref) error {
	gen, err := c.Current(ctx)
	if err != nil {
		return err
	}
	return c.tracker.Record(ctx, gen, ref)
}

// List returns every generation, oldest first.
func (c *Coordinator) List(ctx context.Context) ([]*store.Generation, error) {
	gens, err := c.store.ListGenerations(ctx)
	if err != nil {
		return nil, apperrors.StoreError("failed to list generations", err)
	}
	return gens, nil
}

// Get loads a generation by id.
func (c *Coordinator) Get(ctx context.Context, id int64) (*store.Generation, error) {
	gen, err := c.store.GetGeneration(ctx, id)
	return gen, notFound(err, strconv.FormatInt(id, 10))
}

// GetByName loads a generation by name.
func (c *Coordinator) GetByName(ctx context.Context, name string) (*store.Generation, error) {
	gen, err := c.store.GetGenerationByName(ctx, name)
	return gen, notFound(err, name)
}

// Resolve accepts a numeric id or a name.
func (c *Coordinator) Resolve(ctx context.Context, ref string) (*store.Generation, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		gen, err := c.Get(ctx, id)
		if err == nil || !errors.Is(err, store.ErrNotFound) {
			return gen, err
		}
	}
	return c.GetByName(ctx, ref)
}

func notFound(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.New(apperrors.ErrCodeGenerationNotFound,
			fmt.Sprintf("generation %s not found", what), err)
	}
	return apperrors.StoreError("failed to load generation", err)
}

// Delete removes a generation and its physical index. Promoted generations
// are refused; so are generations with pending outdated records unless force.
func (c *Coordinator) Delete(ctx context.Context, id int64, force bool) error {
	gen, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if gen.Promoted {
		return apperrors.New(apperrors.ErrCodeGenerationInUse,
			fmt.Sprintf("generation %s is promoted", gen.Name), nil).
			WithSuggestion("demote it first")
	}
	if !force {
		n, err := c.store.CountOutdated(ctx, gen.ID)
		if err != nil {
			return apperrors.StoreError("failed to count outdated records", err)
		}
		if n > 0 {
			return apperrors.New(apperrors.ErrCodeGenerationInUse,
				fmt.Sprintf("generation %s has %d pending outdated records", gen.Name, n), nil).
				WithSuggestion("promote it or pass --force")
		}
	}

	if err := c.engine.DeleteIndex(ctx, c.IndexName(gen)); err != nil && !errors.Is(err, engine.ErrIndexNotFound) {
		return err
	}
	if err := c.store.DeleteGeneration(ctx, gen.ID); err != nil {
		return apperrors.StoreError("failed to delete generation", err)
	}
	c.logger.Info("generation_deleted", slog.String("generation", gen.Name))
	return nil
}

// Stale lists garbage-collection candidates: generations older than the
// current one that are not promoted.
func (c *Coordinator) Stale(ctx context.Context) ([]*store.Generation, error) {
	current, err := c.Current(ctx)
	if err != nil {
		return nil, err
	}
	preds, err := c.store.Predecessors(ctx, current)
	if err != nil {
		return nil, apperrors.StoreError("failed to list predecessors", err)
	}
	var out []*store.Generation
	for _, g := range preds {
		if !g.Promoted {
			out = append(out, g)
		}
	}
	return out, nil
}
