package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/wikisearch/internal/async"
	"github.com/Aman-CERP/wikisearch/internal/bulk"
	"github.com/Aman-CERP/wikisearch/internal/preflight"
	"github.com/Aman-CERP/wikisearch/internal/reindex"
	"github.com/Aman-CERP/wikisearch/internal/ui"
	"github.com/Aman-CERP/wikisearch/internal/wiki"
)

// reindexOptions holds CLI flags for reindex.
type reindexOptions struct {
	chunkSize  int
	percent    int
	generation string
	inPlace    bool
	strict     bool
	plain      bool
	noColor    bool
}

func newReindexCmd() *cobra.Command {
	var opts reindexOptions

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index into a generation",
		Long: `Rebuild the search index.

By default a new generation is created and populated while the current
generation keeps serving searches. Promote it afterwards with
'wikisearch promote'.

Examples:
  wikisearch reindex
  wikisearch reindex --percent 10 --chunk-size 200
  wikisearch reindex --generation 2026-10-17-03-00-00
  wikisearch reindex --in-place`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReindex(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 0, "Documents per bulk request (default: reindex.chunk_size)")
	cmd.Flags().IntVar(&opts.percent, "percent", 0, "Index only this percentage of documents, 1-100 (default: reindex.percent)")
	cmd.Flags().StringVarP(&opts.generation, "generation", "g", "", "Populate an existing generation (id or name) instead of creating one")
	cmd.Flags().BoolVar(&opts.inPlace, "in-place", false, "Rebuild the current generation without recreating its index")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Abort on the first document that fails to transform")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain text progress output")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")

	return cmd
}

func runReindex(ctx context.Context, cmd *cobra.Command, flags reindexOptions) error {
	if flags.inPlace && flags.generation != "" {
		return fmt.Errorf("--in-place and --generation cannot be combined")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	checker := preflight.New(preflight.WithOutput(cmd.ErrOrStderr()))
	results := checker.RunAll(ctx, preflight.Target{DataDir: a.cfg.Paths.DataDir, IndexDir: a.cfg.IndexDir()})
	if checker.HasCriticalFailures(results) {
		checker.PrintResults(results)
		return fmt.Errorf("system check failed, see 'wikisearch doctor'")
	}

	opts := reindex.Options{
		InPlace:   flags.inPlace,
		ChunkSize: a.cfg.Reindex.ChunkSize,
		Percent:   a.cfg.Reindex.Percent,
		Strict:    a.cfg.Reindex.Strict || flags.strict,
	}
	if cmd.Flags().Changed("chunk-size") {
		if flags.chunkSize <= 0 {
			return fmt.Errorf("--chunk-size must be positive, got %d", flags.chunkSize)
		}
		opts.ChunkSize = flags.chunkSize
	}
	if cmd.Flags().Changed("percent") {
		opts.Percent = flags.percent
	}
	if flags.generation != "" {
		gen, err := a.coord.Resolve(ctx, flags.generation)
		if err != nil {
			return err
		}
		opts.GenerationID = gen.ID
	}

	queue := async.NewQueue(async.QueueOptions{
		Workers:   1,
		LockDir:   a.cfg.LockDir(),
		HardLimit: a.cfg.Reindex.HardLimit,
		Logger:    a.logger,
	})
	queue.Start(ctx)
	defer queue.Stop()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(flags.plain),
		ui.WithNoColor(flags.noColor),
		ui.WithTitle(fmt.Sprintf("Reindexing %s", a.cfg.Notify.SiteName)),
	))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	var (
		result *reindex.Result
		runErr error
	)
	task := func(ctx context.Context, p *async.JobProgress) error {
		renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StagePreparing, Message: "Preparing generation"})
		result, runErr = a.job.Run(ctx, opts, func(pr bulk.Progress) {
			p.Report(pr)
			renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageLoading, Kind: wiki.Kind, Progress: pr})
		})
		return runErr
	}

	id, err := queue.Submit(async.JobReindex, task)
	if err != nil {
		return err
	}
	if _, err := queue.Wait(ctx, id); err != nil {
		return err
	}

	stats := ui.CompletionStats{Err: runErr}
	if result != nil {
		stats.Index = result.Index
		stats.Indexed = result.Load.Indexed
		stats.Chunks = result.Load.Chunks
		stats.Skipped = result.Load.Skipped
		stats.Missing = result.Load.Missing
		stats.Duration = result.Elapsed
		stats.TimedOut = result.TimedOut
		if result.Generation != nil {
			stats.Generation = result.Generation.Name
		}
	}
	renderer.Complete(stats)
	return runErr
}
