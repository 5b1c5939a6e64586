package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/wikisearch/internal/async"
	"github.com/Aman-CERP/wikisearch/internal/mcp"
	"github.com/Aman-CERP/wikisearch/internal/reindex"
	"github.com/Aman-CERP/wikisearch/internal/search"
	"github.com/Aman-CERP/wikisearch/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var transport string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP (Model Context Protocol) server.

Besides answering search and index status requests, serve runs rebuilds
on a background queue, starts the scheduled rebuild when
schedule.enabled is set, and keeps the facet filters in sync with
server.filters_file.

Transports:
  stdio - Standard input/output (default)
  http  - Streamable HTTP on --addr`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport, addr)
		},
	}

	cmd.Flags().StringVarP(&transport, "transport", "t", "stdio", "Transport type (stdio, http)")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "Listen address for the http transport")

	return cmd
}

func runServe(ctx context.Context, transport, addr string) error {
	// stdout belongs to JSON-RPC on stdio: nothing else may be printed there.
	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := async.NewQueue(async.QueueOptions{
		Workers:   a.cfg.Server.Workers,
		LockDir:   a.cfg.LockDir(),
		HardLimit: a.cfg.Reindex.HardLimit,
		History:   20,
		Logger:    a.logger,
	})
	queue.Start(ctx)
	defer queue.Stop()

	if a.cfg.Schedule.Enabled {
		sched, err := startSchedule(a, queue)
		if err != nil {
			return err
		}
		defer func() { _ = sched.Stop() }()
	}

	srv, err := mcp.NewServer(mcp.Dependencies{
		Searcher:    a.searcher,
		Generations: a.coord,
		Docs:        a.engine,
		Outdated:    a.meta,
		Filters:     a.meta,
		Jobs:        queue,
		Reindex:     a.job.Task,
		Stats:       a.stats,
		Logger:      a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if path := a.cfg.Server.FiltersFile; path != "" {
		w, err := watchFilters(gctx, a, path)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer w.Stop()
			err := w.Serve(gctx, func(ctx context.Context, ev watcher.FileEvent) error {
				return reloadFilters(ctx, a, ev)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return srv.Serve(gctx, transport, addr)
	})
	return g.Wait()
}

// startSchedule submits a rebuild with the configured defaults on every
// tick of schedule.cron. A tick while a rebuild runs is skipped.
func startSchedule(a *app, queue *async.Queue) (*async.Scheduler, error) {
	sched, err := async.NewScheduler(a.logger)
	if err != nil {
		return nil, err
	}
	opts := reindex.Options{
		ChunkSize: a.cfg.Reindex.ChunkSize,
		Percent:   a.cfg.Reindex.Percent,
		Strict:    a.cfg.Reindex.Strict,
	}
	err = sched.Add("scheduled-reindex", a.cfg.Schedule.Cron, func() {
		id, err := reindex.Submit(queue, a.job, opts)
		if err != nil {
			a.logger.Warn("scheduled_reindex_skipped", slog.String("error", err.Error()))
			return
		}
		a.logger.Info("scheduled_reindex_submitted", slog.String("job", id))
	})
	if err != nil {
		_ = sched.Stop()
		return nil, err
	}
	sched.Start()
	return sched, nil
}

// watchFilters imports the filter file once, then returns a watcher for it.
// A missing or invalid file at startup is logged and left to the watcher.
func watchFilters(ctx context.Context, a *app, path string) (*watcher.FileWatcher, error) {
	if n, err := search.ImportFilterFile(ctx, a.meta, path); err != nil {
		a.logger.Warn("filters_import_failed", slog.String("path", path), slog.String("error", err.Error()))
	} else {
		a.logger.Info("filters_imported", slog.String("path", path), slog.Int("filters", n))
	}
	return watcher.NewFileWatcher([]string{path}, watcher.Options{Logger: a.logger})
}

// reloadFilters re-imports the filter file after a change. A deleted file
// keeps the last imported filters.
func reloadFilters(ctx context.Context, a *app, ev watcher.FileEvent) error {
	if !ev.Exists() {
		a.logger.Warn("filters_file_removed", slog.String("path", ev.Path))
		return nil
	}
	n, err := search.ImportFilterFile(ctx, a.meta, ev.Path)
	if err != nil {
		return err
	}
	a.logger.Info("filters_imported", slog.String("path", ev.Path), slog.Int("filters", n))
	return nil
}
