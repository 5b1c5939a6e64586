package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/wikisearch/internal/logging"
)

// Handler reacts to one debounced change.
type Handler func(ctx context.Context, ev FileEvent) error

// FileWatcher reports changes to a fixed set of files.
type FileWatcher struct {
	files     map[string]struct{}
	dirs      []string
	opts      Options
	logger    *slog.Logger
	debouncer *Debouncer
	fsw       *fsnotify.Watcher

	events   chan []FileEvent
	errors   chan error
	ready    chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once

	snapshots map[string]fileSnapshot
}

type fileSnapshot struct {
	exists  bool
	modTime time.Time
	size    int64
}

// NewFileWatcher creates a watcher for paths. Files need not exist yet.
func NewFileWatcher(paths []string, opts Options) (*FileWatcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}
	opts = opts.WithDefaults()
	logger := logging.Default(opts.Logger).With("component", "watcher")

	w := &FileWatcher{
		files:     make(map[string]struct{}, len(paths)),
		opts:      opts,
		logger:    logger,
		debouncer: NewDebouncer(opts.DebounceWindow, logger),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		ready:     make(chan struct{}),
		stopCh:    make(chan struct{}),
		snapshots: make(map[string]fileSnapshot, len(paths)),
	}
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve absolute path: %w", err)
		}
		w.files[abs] = struct{}{}
		if dir := filepath.Dir(abs); !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			logger.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
		} else {
			w.fsw = fsw
		}
	}
	return w, nil
}

// Mode reports "fsnotify" or "polling".
func (w *FileWatcher) Mode() string {
	if w.fsw != nil {
		return "fsnotify"
	}
	return "polling"
}

// Start watches until ctx is done or Stop is called.
func (w *FileWatcher) Start(ctx context.Context) error {
	if w.fsw != nil {
		for _, dir := range w.dirs {
			if err := w.fsw.Add(dir); err != nil {
				w.logger.Warn("fsnotify_add_failed", slog.String("dir", dir), slog.String("error", err.Error()))
				_ = w.fsw.Close()
				w.fsw = nil
				break
			}
		}
	}
	for path := range w.files {
		w.snapshots[path] = stat(path)
	}

	go w.forward()
	close(w.ready)
	w.logger.Info("watcher_started", slog.String("mode", w.Mode()), slog.Int("files", len(w.files)))

	if w.fsw != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *FileWatcher) runFsnotify(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *FileWatcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if _, ok := w.files[path]; !ok {
		return
	}
	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}
	w.debouncer.Add(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
}

func (w *FileWatcher) runPolling(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *FileWatcher) poll() {
	for path := range w.files {
		prev := w.snapshots[path]
		cur := stat(path)
		w.snapshots[path] = cur

		var op Operation
		switch {
		case !prev.exists && cur.exists:
			op = OpCreate
		case prev.exists && !cur.exists:
			op = OpDelete
		case cur.exists && (!cur.modTime.Equal(prev.modTime) || cur.size != prev.size):
			op = OpModify
		default:
			continue
		}
		w.debouncer.Add(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
	}
}

func stat(path string) fileSnapshot {
	info, err := os.Stat(path)
	if err != nil {
		return fileSnapshot{}
	}
	return fileSnapshot{exists: true, modTime: info.ModTime(), size: info.Size()}
}

// forward moves debounced batches to Events and closes it on Stop.
func (w *FileWatcher) forward() {
	defer close(w.events)
	for batch := range w.debouncer.Output() {
		select {
		case w.events <- batch:
		default:
			w.logger.Warn("watcher_events_full", slog.Int("batch_size", len(batch)))
		}
	}
}

func (w *FileWatcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		w.logger.Warn("watcher_error_dropped", slog.String("error", err.Error()))
	}
}

// Ready is closed once watches are in place.
func (w *FileWatcher) Ready() <-chan struct{} {
	return w.ready
}

// Events returns debounced batches. Closed after Stop.
func (w *FileWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors. Never closed.
func (w *FileWatcher) Errors() <-chan error {
	return w.errors
}

// Stop stops watching. Safe to call multiple times.
func (w *FileWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.debouncer.Stop()
	})
}

// Serve starts the watcher and calls h for each change until ctx is done.
// Handler failures are logged and do not stop the watcher.
func (w *FileWatcher) Serve(ctx context.Context, h Handler) error {
	errc := make(chan error, 1)
	go func() { errc <- w.Start(ctx) }()

	for {
		select {
		case batch, ok := <-w.Events():
			if !ok {
				return <-errc
			}
			for _, ev := range batch {
				if err := h(ctx, ev); err != nil {
					w.logger.Error("watch_handler_failed",
						slog.String("path", ev.Path),
						slog.String("op", ev.Operation.String()),
						slog.String("error", err.Error()))
					continue
				}
				w.logger.Info("watch_handled", slog.String("path", ev.Path), slog.String("op", ev.Operation.String()))
			}
		case err := <-w.Errors():
			w.logger.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}
