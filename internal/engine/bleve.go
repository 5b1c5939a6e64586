package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	lru "github.com/hashicorp/golang-lru/v2"

	apperrors "github.com/Aman-CERP/wikisearch/internal/errors"
	"github.com/Aman-CERP/wikisearch/internal/logging"
)

// TypeField carries the document type inside every indexed document.
const TypeField = "_type"

var settingsKey = []byte("_wikisearch_settings")

// Options configures a BleveService.
type Options struct {
	// Dir holds one <name>.bleve directory per index. Empty keeps every
	// index in memory.
	Dir string
	// Timeout bounds each call. Zero means 30s.
	Timeout time.Duration
	// MaxOpen caps the number of indexes held open on disk. Zero means 8.
	MaxOpen int
	Logger  *slog.Logger
}

type handle struct {
	name    string
	idx     bleve.Index
	refs    int
	evicted bool
}

// BleveService implements Service on local bleve indexes.
type BleveService struct {
	dir     string
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	memory map[string]*handle
	open   *lru.Cache[string, *handle]
	closed bool
}

var _ Service = (*BleveService)(nil)

// NewBleveService creates the service. Nothing is opened until first use.
func NewBleveService(opts Options) (*BleveService, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxOpen <= 0 {
		opts.MaxOpen = 8
	}
	s := &BleveService{
		dir:     opts.Dir,
		timeout: opts.Timeout,
		logger:  logging.Default(opts.Logger).With("component", "engine"),
		memory:  make(map[string]*handle),
	}

	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory %s: %w", s.dir, err)
		}
		cache, err := lru.NewWithEvict(opts.MaxOpen, s.onEvict)
		if err != nil {
			return nil, err
		}
		s.open = cache
	}
	return s, nil
}

// onEvict runs with s.mu held.
func (s *BleveService) onEvict(_ string, h *handle) {
	h.evicted = true
	if h.refs == 0 {
		s.closeHandle(h)
	}
}

func (s *BleveService) closeHandle(h *handle) {
	if err := h.idx.Close(); err != nil {
		s.logger.Warn("index_close_failed", slog.String("index", h.name), slog.String("error", err.Error()))
	}
}

func (s *BleveService) path(name string) string {
	return filepath.Join(s.dir, name+".bleve")
}

// call runs fn with the service timeout applied. fn keeps running in the
// background if the deadline fires first; its handle is released when it returns.
func (s *BleveService) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return apperrors.New(apperrors.ErrCodeIndexTimeout,
				fmt.Sprintf("%s exceeded %s", op, s.timeout), ErrTimeout)
		}
		return ctx.Err()
	}
}

// withIndex acquires name, runs fn under the timeout and releases the handle.
func (s *BleveService) withIndex(ctx context.Context, op, name string, fn func(ctx context.Context, idx bleve.Index) error) error {
	h, err := s.acquire(name)
	if err != nil {
		return err
	}
	return s.call(ctx, op, func(ctx context.Context) error {
		defer s.release(h)
		return fn(ctx, h.idx)
	})
}

func (s *BleveService) acquire(name string) (*handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if s.dir == "" {
		h, ok := s.memory[name]
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, ErrIndexNotFound)
		}
		h.refs++
		return h, nil
	}

	if h, ok := s.open.Get(name); ok {
		h.refs++
		return h, nil
	}

	path := s.path(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", name, ErrIndexNotFound)
	}
	if err := checkIndexDir(path); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCorruptIndex,
			fmt.Sprintf("index %s is corrupted", name), err).
			WithSuggestion("delete the generation and run a full reindex")
	}
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", name, err)
	}
	h := &handle{name: name, idx: idx, refs: 1}
	s.open.Add(name, h)
	return h, nil
}

func (s *BleveService) release(h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.refs--
	if h.evicted && h.refs == 0 {
		s.closeHandle(h)
	}
}

// checkIndexDir rejects index directories left half-written.
func checkIndexDir(path string) error {
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// CreateIndex creates name with mapping m and initial settings.
func (s *BleveService) CreateIndex(ctx context.Context, name string, m mapping.IndexMapping, settings Settings) error {
	return s.call(ctx, "create_index", func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return ErrClosed
		}

		var (
			idx bleve.Index
			err error
		)
		if s.dir == "" {
			if _, ok := s.memory[name]; ok {
				return fmt.Errorf("%s: %w", name, ErrIndexExists)
			}
			idx, err = bleve.NewMemOnly(m)
		} else {
			idx, err = bleve.New(s.path(name), m)
			if errors.Is(err, bleve.ErrorIndexPathExists) {
				return fmt.Errorf("%s: %w", name, ErrIndexExists)
			}
		}
		if err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}

		if err := writeSettings(idx, settings); err != nil {
			_ = idx.Close()
			return err
		}

		h := &handle{name: name, idx: idx}
		if s.dir == "" {
			s.memory[name] = h
		} else {
			s.open.Add(name, h)
		}
		s.logger.Debug("index_created", slog.String("index", name))
		return nil
	})
}

// DeleteIndex removes name and its data.
func (s *BleveService) DeleteIndex(ctx context.Context, name string) error {
	return s.call(ctx, "delete_index", func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return ErrClosed
		}

		if s.dir == "" {
			h, ok := s.memory[name]
			if !ok {
				return fmt.Errorf("%s: %w", name, ErrIndexNotFound)
			}
			delete(s.memory, name)
			s.onEvict(name, h)
			return nil
		}

		s.open.Remove(name)
		path := s.path(name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", name, ErrIndexNotFound)
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove index %s: %w", name, err)
		}
		s.logger.Debug("index_deleted", slog.String("index", name))
		return nil
	})
}

// IndexExists reports whether name exists.
func (s *BleveService) IndexExists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if s.dir == "" {
		_, ok := s.memory[name]
		return ok, nil
	}
	_, err := os.Stat(s.path(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// GetSettings returns the stored settings of name.
func (s *BleveService) GetSettings(ctx context.Context, name string) (Settings, error) {
	var out Settings
	err := s.withIndex(ctx, "get_settings", name, func(_ context.Context, idx bleve.Index) error {
		data, err := idx.GetInternal(settingsKey)
		if err != nil {
			return fmt.Errorf("failed to read settings of %s: %w", name, err)
		}
		if len(data) == 0 {
			return nil
		}
		return json.Unmarshal(data, &out)
	})
	if err != nil {
		return Settings{}, err
	}
	return out, nil
}

// PutSettings replaces the stored settings of name.
func (s *BleveService) PutSettings(ctx context.Context, name string, settings Settings) error {
	return s.withIndex(ctx, "put_settings", name, func(_ context.Context, idx bleve.Index) error {
		return writeSettings(idx, settings)
	})
}

func writeSettings(idx bleve.Index, settings Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	if err := idx.SetInternal(settingsKey, data); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Bulk applies actions, grouped per index in first-seen order.
// Documents the mapping rejects are reported in Failed; a failed batch
// commit fails the whole call.
func (s *BleveService) Bulk(ctx context.Context, actions []Action) (*BulkResponse, error) {
	resp := &BulkResponse{}
	if len(actions) == 0 {
		return resp, nil
	}

	var order []string
	groups := make(map[string][]Action)
	for _, a := range actions {
		if _, ok := groups[a.Index]; !ok {
			order = append(order, a.Index)
		}
		groups[a.Index] = append(groups[a.Index], a)
	}

	for _, name := range order {
		var (
			indexed, deleted int
			failed           []ItemError
		)
		err := s.withIndex(ctx, "bulk", name, func(_ context.Context, idx bleve.Index) error {
			batch := idx.NewBatch()
			for _, a := range groups[name] {
				if a.Delete {
					batch.Delete(a.ID)
					deleted++
					continue
				}
				doc := make(map[string]any, len(a.Source)+1)
				for k, v := range a.Source {
					doc[k] = v
				}
				doc[TypeField] = a.Type
				if err := batch.Index(a.ID, doc); err != nil {
					failed = append(failed, ItemError{Index: name, ID: a.ID, Err: err})
					continue
				}
				indexed++
			}
			return idx.Batch(batch)
		})
		if err != nil {
			if apperrors.GetCode(err) != "" || errors.Is(err, ErrIndexNotFound) {
				return resp, err
			}
			return resp, apperrors.New(apperrors.ErrCodeBulkWriteFailed,
				fmt.Sprintf("bulk write to %s failed", name), err)
		}
		resp.Indexed += indexed
		resp.Deleted += deleted
		resp.Failed = append(resp.Failed, failed...)
	}
	return resp, nil
}

// DeleteDocument removes one document. Missing documents are not an error.
func (s *BleveService) DeleteDocument(ctx context.Context, index, id string) error {
	return s.withIndex(ctx, "delete_document", index, func(_ context.Context, idx bleve.Index) error {
		return idx.Delete(id)
	})
}

// DocCount returns the number of documents in name.
func (s *BleveService) DocCount(ctx context.Context, name string) (uint64, error) {
	var n uint64
	err := s.withIndex(ctx, "doc_count", name, func(_ context.Context, idx bleve.Index) error {
		var err error
		n, err = idx.DocCount()
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Search runs req against name.
func (s *BleveService) Search(ctx context.Context, name string, req SearchRequest) (*SearchResult, error) {
	var out *SearchResult
	err := s.withIndex(ctx, "search", name, func(ctx context.Context, idx bleve.Index) error {
		sr := bleve.NewSearchRequestOptions(buildQuery(req), req.Size, req.From, false)
		sr.Fields = req.Fields
		if len(req.Highlight) > 0 {
			sr.Highlight = bleve.NewHighlight()
			for _, f := range req.Highlight {
				sr.Highlight.AddField(f)
			}
		}

		res, err := idx.SearchInContext(ctx, sr)
		if err != nil {
			return fmt.Errorf("search on %s failed: %w", name, err)
		}

		out = &SearchResult{Total: res.Total, Took: res.Took, Hits: make([]Hit, 0, len(res.Hits))}
		for _, h := range res.Hits {
			out.Hits = append(out.Hits, Hit{
				ID:        h.ID,
				Score:     h.Score,
				Fields:    h.Fields,
				Fragments: h.Fragments,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func buildQuery(req SearchRequest) query.Query {
	var must []query.Query

	if req.Text != "" {
		fields := make([]string, 0, len(req.TextFields))
		for f := range req.TextFields {
			fields = append(fields, f)
		}
		sort.Strings(fields)

		var should []query.Query
		for _, f := range fields {
			mq := bleve.NewMatchQuery(req.Text)
			mq.SetField(f)
			mq.SetBoost(req.TextFields[f])
			should = append(should, mq)
		}
		if len(should) == 0 {
			should = append(should, bleve.NewMatchQuery(req.Text))
		}
		must = append(must, bleve.NewDisjunctionQuery(should...))
	}

	for _, f := range req.Filters {
		if len(f.Values) == 0 {
			continue
		}
		terms := make([]query.Query, 0, len(f.Values))
		for _, v := range f.Values {
			tq := bleve.NewTermQuery(v)
			tq.SetField(f.Field)
			terms = append(terms, tq)
		}
		if f.Operator == And {
			must = append(must, bleve.NewConjunctionQuery(terms...))
		} else {
			must = append(must, bleve.NewDisjunctionQuery(terms...))
		}
	}

	termFields := make([]string, 0, len(req.Terms))
	for f := range req.Terms {
		termFields = append(termFields, f)
	}
	sort.Strings(termFields)
	for _, f := range termFields {
		tq := bleve.NewTermQuery(req.Terms[f])
		tq.SetField(f)
		must = append(must, tq)
	}

	if len(must) == 0 {
		return bleve.NewMatchAllQuery()
	}
	return bleve.NewConjunctionQuery(must...)
}

// Close closes every open index.
func (s *BleveService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	for name, h := range s.memory {
		delete(s.memory, name)
		s.onEvict(name, h)
	}
	if s.open != nil {
		s.open.Purge()
	}
	return nil
}
