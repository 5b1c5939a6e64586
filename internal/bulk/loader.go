// Package bulk loads source entities into a physical index in sequential
// chunks, with index settings tuned for bulk writes for the duration.
package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/Aman-CERP/wikisearch/internal/engine"
	apperrors "github.com/Aman-CERP/wikisearch/internal/errors"
	"github.com/Aman-CERP/wikisearch/internal/logging"
	"github.com/Aman-CERP/wikisearch/internal/source"
)

const (
	// DefaultChunkSize is used when Options.ChunkSize is zero.
	DefaultChunkSize = 1000

	restoreTimeout = 30 * time.Second
)

// Options configures a Loader.
type Options struct {
	ChunkSize int
	// Strict aborts the load on the first transform error.
	Strict bool
	// Defaults are restored when the index settings cannot be read.
	Defaults engine.Settings
	// Limiter, when set, is waited on before every chunk.
	Limiter *rate.Limiter
	Logger  *slog.Logger
	Now     func() time.Time
}

// Result summarises a load.
type Result struct {
	Indexed int `json:"indexed"`
	Deleted int `json:"deleted"`
	// Skipped counts entities whose transform failed.
	Skipped int `json:"skipped"`
	// Rejected counts documents the index service refused.
	Rejected int `json:"rejected"`
	// Missing counts ids the source no longer has.
	Missing int           `json:"missing"`
	Chunks  int           `json:"chunks"`
	Elapsed time.Duration `json:"elapsed"`
}

// Loader writes entities into an index.
type Loader struct {
	engine   engine.Service
	registry *source.Registry
	opts     Options
	logger   *slog.Logger
}

// NewLoader creates a loader.
func NewLoader(svc engine.Service, registry *source.Registry, opts Options) *Loader {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Loader{
		engine:   svc,
		registry: registry,
		opts:     opts,
		logger:   logging.Default(opts.Logger).With("component", "bulk"),
	}
}

// WithChunkSize returns a copy of l using size, or l itself when size is zero.
func (l *Loader) WithChunkSize(size int) *Loader {
	if size <= 0 || size == l.opts.ChunkSize {
		return l
	}
	cp := *l
	cp.opts.ChunkSize = size
	return &cp
}

// WithStrict returns a copy of l with strict mode set.
func (l *Loader) WithStrict(strict bool) *Loader {
	if strict == l.opts.Strict {
		return l
	}
	cp := *l
	cp.opts.Strict = strict
	return &cp
}

// Load indexes ids of kind into index, one bulk call per chunk. The index
// settings are switched to engine.BulkSettings for the duration and restored
// on every exit path. If the load itself succeeded, a restore failure is
// returned instead.
func (l *Loader) Load(ctx context.Context, index, kind string, ids []int64, onProgress func(Progress)) (res *Result, err error) {
	typ, err := l.registry.Lookup(kind)
	if err != nil {
		return nil, err
	}

	start := l.opts.Now()
	res = &Result{}

	previous := l.captureSettings(ctx, index)
	if perr := l.engine.PutSettings(ctx, index, engine.BulkSettings); perr != nil {
		l.logger.Warn("bulk_settings_failed", slog.String("index", index), slog.String("error", perr.Error()))
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
		defer cancel()
		if rerr := l.engine.PutSettings(rctx, index, previous); rerr != nil {
			l.logger.Error("settings_restore_failed", slog.String("index", index), slog.String("error", rerr.Error()))
			if err == nil {
				err = rerr
			}
		}
		res.Elapsed = l.opts.Now().Sub(start)
	}()

	chunks := chunk(ids, l.opts.ChunkSize)
	est := &eta{}
	done := 0

	for i, part := range chunks {
		if l.opts.Limiter != nil {
			if err := l.opts.Limiter.Wait(ctx); err != nil {
				return res, err
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if err := l.loadChunk(ctx, index, typ, part, res); err != nil {
			return res, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		res.Chunks++
		done += len(part)

		elapsed := l.opts.Now().Sub(start)
		p := Progress{
			Done:      done,
			Total:     len(ids),
			Chunk:     i + 1,
			Chunks:    len(chunks),
			Elapsed:   elapsed,
			PerChunk:  elapsed / time.Duration(i+1),
			Remaining: est.next(done, len(ids), elapsed),
		}

		l.logger.Info("chunk_indexed",
			slog.String("index", index),
			slog.Int("chunk", p.Chunk),
			slog.Int("chunks", p.Chunks),
			slog.Int("done", p.Done),
			slog.Int("total", p.Total),
			slog.Duration("remaining", p.Remaining))
		if onProgress != nil {
			onProgress(p)
		}
	}
	return res, nil
}

// captureSettings reads the current settings, falling back to the
// configured defaults when the index service cannot answer.
func (l *Loader) captureSettings(ctx context.Context, index string) engine.Settings {
	s, err := l.engine.GetSettings(ctx, index)
	if err != nil {
		l.logger.Warn("settings_read_failed",
			slog.String("index", index),
			slog.String("error", err.Error()))
		return l.opts.Defaults
	}
	if s.RefreshInterval == "" {
		s.RefreshInterval = l.opts.Defaults.RefreshInterval
	}
	return s
}

func (l *Loader) loadChunk(ctx context.Context, index string, typ source.Type, ids []int64, res *Result) error {
	entities, err := typ.Fetch(ctx, ids)
	if err != nil {
		return apperrors.StoreError(fmt.Sprintf("failed to fetch %d %s entities", len(ids), typ.Kind()), err)
	}
	res.Missing += len(ids) - len(entities)

	actions := make([]engine.Action, 0, len(entities))
	for _, e := range entities {
		a, err := l.action(index, typ, e)
		if err != nil {
			if l.opts.Strict {
				return err
			}
			res.Skipped++
			l.logger.Warn("transform_failed",
				slog.String("ref", e.Ref().String()),
				slog.String("error", err.Error()))
			continue
		}
		actions = append(actions, a)
	}
	return l.submit(ctx, actions, res)
}

func (l *Loader) action(index string, typ source.Type, e source.Entity) (a engine.Action, err error) {
	defer func() {
		// a panic counts as a transform error
		if r := recover(); r != nil {
			err = fmt.Errorf("transform panicked: %v", r)
		}
	}()
	doc, err := typ.Transform(e)
	if err != nil {
		return engine.Action{}, apperrors.New(apperrors.ErrCodeTransformFailed,
			fmt.Sprintf("failed to transform %s", e.Ref()), err)
	}
	return engine.Action{
		Index:  index,
		Type:   typ.DocType(),
		ID:     docID(e.Ref()),
		Source: doc,
	}, nil
}

func (l *Loader) submit(ctx context.Context, actions []engine.Action, res *Result) error {
	if len(actions) == 0 {
		return nil
	}
	resp, err := l.engine.Bulk(ctx, actions)
	if err != nil {
		return err
	}
	res.Indexed += resp.Indexed
	res.Deleted += resp.Deleted
	res.Rejected += len(resp.Failed)
	for _, f := range resp.Failed {
		l.logger.Warn("document_rejected",
			slog.String("index", f.Index),
			slog.String("id", f.ID),
			slog.String("error", f.Err.Error()))
	}
	return nil
}

// IndexRefs brings refs in index up to date: indexable entities are
// (re)indexed, the rest are removed. Settings are left alone.
func (l *Loader) IndexRefs(ctx context.Context, index string, refs []source.Ref) (*Result, error) {
	start := l.opts.Now()
	res := &Result{}
	refs = source.Dedup(refs)

	for _, kind := range kindsInOrder(refs) {
		typ, err := l.registry.Lookup(kind)
		if err != nil {
			return res, err
		}
		ids := source.GroupByKind(refs)[kind]
		for _, part := range chunk(ids, l.opts.ChunkSize) {
			entities, err := typ.Fetch(ctx, part)
			if err != nil {
				return res, apperrors.StoreError(fmt.Sprintf("failed to fetch %s entities", kind), err)
			}

			found := make(map[int64]struct{}, len(entities))
			actions := make([]engine.Action, 0, len(part))
			for _, e := range entities {
				found[e.Ref().ID] = struct{}{}
				if !typ.ShouldIndex(e) {
					actions = append(actions, engine.Action{Index: index, ID: docID(e.Ref()), Delete: true})
					continue
				}
				a, err := l.action(index, typ, e)
				if err != nil {
					if l.opts.Strict {
						return res, err
					}
					res.Skipped++
					l.logger.Warn("transform_failed", slog.String("ref", e.Ref().String()), slog.String("error", err.Error()))
					continue
				}
				actions = append(actions, a)
			}
			for _, id := range part {
				if _, ok := found[id]; !ok {
					res.Missing++
					actions = append(actions, engine.Action{Index: index, ID: docID(source.Ref{Kind: kind, ID: id}), Delete: true})
				}
			}

			if err := l.submit(ctx, actions, res); err != nil {
				return res, err
			}
			res.Chunks++
		}
	}
	res.Elapsed = l.opts.Now().Sub(start)
	return res, nil
}

// Unindex removes refs from index.
func (l *Loader) Unindex(ctx context.Context, index string, refs []source.Ref) error {
	refs = source.Dedup(refs)
	actions := make([]engine.Action, len(refs))
	for i, r := range refs {
		actions[i] = engine.Action{Index: index, ID: docID(r), Delete: true}
	}
	return l.submit(ctx, actions, &Result{})
}

func docID(r source.Ref) string {
	return strconv.FormatInt(r.ID, 10)
}

func kindsInOrder(refs []source.Ref) []string {
	seen := make(map[string]struct{})
	var kinds []string
	for _, r := range refs {
		if _, ok := seen[r.Kind]; !ok {
			seen[r.Kind] = struct{}{}
			kinds = append(kinds, r.Kind)
		}
	}
	return kinds
}
