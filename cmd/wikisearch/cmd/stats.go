package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/wikisearch/internal/output"
	"github.com/Aman-CERP/wikisearch/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var (
		days       int
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show search statistics",
		Long: `Show what has been searched for: query kinds, latency, the most
frequent terms and recent searches that matched nothing.

Kind and latency counts cover the last --days days. Terms and
zero-result searches are kept across days.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			r, err := telemetry.LoadReport(cmd.Context(), a.statsDB, time.Now(), days, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			output.New(cmd.OutOrStdout()).SearchStats(r)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Days of kind and latency counts to include")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Terms and zero-result searches to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
