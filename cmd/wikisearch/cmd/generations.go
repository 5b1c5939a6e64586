package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/wikisearch/internal/output"
	"github.com/Aman-CERP/wikisearch/internal/store"
	"github.com/Aman-CERP/wikisearch/internal/ui"
)

func newGenerationsCmd() *cobra.Command {
	var jsonOutput bool
	var noColor bool

	cmd := &cobra.Command{
		Use:     "generations",
		Aliases: []string{"ls"},
		Short:   "List index generations, newest first",
		Long: `List index generations, newest first.

The current generation (the newest one that is promoted and populated)
is marked with '*'. OUTDATED counts documents edited while the generation
was current that the generation after it still has to pick up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rows, err := generationRows(cmd.Context(), a)
			if err != nil {
				return err
			}
			r := ui.NewGenerationRenderer(cmd.OutOrStdout(), noColor)
			if jsonOutput {
				return r.RenderJSON(rows)
			}
			return r.Render(rows)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")

	return cmd
}

// generationRows lists generations newest first. Listing bootstraps the
// default generation when nothing is current yet.
func generationRows(ctx context.Context, a *app) ([]ui.GenerationRow, error) {
	current, err := a.coord.Current(ctx)
	if err != nil {
		return nil, err
	}
	gens, err := a.coord.List(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]ui.GenerationRow, 0, len(gens))
	for i := len(gens) - 1; i >= 0; i-- {
		g := gens[i]
		n, err := a.meta.CountOutdated(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count outdated records: %w", err)
		}
		rows = append(rows, ui.GenerationRow{
			Generation: g,
			State:      g.State(),
			Index:      a.coord.IndexName(g),
			Current:    current != nil && g.ID == current.ID,
			Outdated:   n,
		})
	}
	return rows, nil
}

func newPromoteCmd() *cobra.Command {
	var demotePrevious bool

	cmd := &cobra.Command{
		Use:   "promote <generation>",
		Short: "Promote a populated generation so it serves searches",
		Long: `Promote a populated generation.

Documents edited while the generation was being built are reindexed
into it before it starts serving. The previously current generation
stays promoted unless --demote-previous is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			target, err := a.coord.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			gen, err := a.coord.Promote(ctx, target.ID)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.Successf("Promoted %s (%s)", gen.Name, a.coord.IndexName(gen))

			if !demotePrevious {
				return nil
			}
			gens, err := a.coord.List(ctx)
			if err != nil {
				return err
			}
			for _, g := range gens {
				if g.ID == gen.ID || !g.Promoted {
					continue
				}
				if _, err := a.coord.Demote(ctx, g.ID); err != nil {
					return err
				}
				out.Statusf("↓", "Demoted %s", g.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&demotePrevious, "demote-previous", false, "Demote every other promoted generation")

	return cmd
}

func newDemoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demote <generation>",
		Short: "Stop serving searches from a generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			target, err := a.coord.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			gen, err := a.coord.Demote(ctx, target.ID)
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Demoted %s", gen.Name)
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <generation>",
		Short: "Delete a generation and its physical index",
		Long: `Delete a generation and its physical index.

Promoted generations cannot be deleted. Generations with pending
outdated records are refused unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			gen, err := a.coord.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.coord.Delete(ctx, gen.ID, force); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Deleted %s", gen.Name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Delete even when outdated records are pending")

	return cmd
}

func newGCCmd() *cobra.Command {
	var dryRun bool
	var force bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete generations older than the current one that are not promoted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			stale, err := a.coord.Stale(ctx)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if len(stale) == 0 {
				out.Status("✓", "Nothing to collect")
				return nil
			}

			failed := 0
			for _, g := range stale {
				if dryRun {
					out.Statusf("·", "Would delete %s (%s)", g.Name, a.coord.IndexName(g))
					continue
				}
				if err := a.coord.Delete(ctx, g.ID, force); err != nil {
					out.Warningf("Skipped %s: %v", g.Name, err)
					failed++
					continue
				}
				out.Successf("Deleted %s", g.Name)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d generations could not be deleted", failed, len(stale))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List candidates without deleting")
	cmd.Flags().BoolVar(&force, "force", false, "Delete even when outdated records are pending")

	return cmd
}

func newOutdatedCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "outdated <generation>",
		Short: "List documents edited while a generation was current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			gen, err := a.coord.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			records, err := a.meta.ListOutdated(ctx, gen.ID)
			if err != nil {
				return fmt.Errorf("failed to list outdated records: %w", err)
			}
			if records == nil {
				records = []store.OutdatedRecord{}
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			out := output.New(cmd.OutOrStdout())
			if len(records) == 0 {
				out.Statusf("✓", "No outdated records for %s", gen.Name)
				return nil
			}
			for _, r := range records {
				out.Statusf("·", "%s  %s", r.Ref, r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
