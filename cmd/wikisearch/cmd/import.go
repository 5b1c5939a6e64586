package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/wikisearch/internal/output"
	"github.com/Aman-CERP/wikisearch/internal/search"
)

func newFiltersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Manage facet filter groups",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Replace the facet filter groups with a YAML definition",
		Long: `Replace the facet filter groups with the contents of a YAML file.

Example file:
  groups:
    - name: Topics
      order: 1
      filters:
        - name: CSS
          tags: [CSS]
        - name: HTML
          tags: [HTML, HTML5]
          operator: OR`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := search.ImportFilterFile(cmd.Context(), a.meta, args[0])
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Imported %d filters from %s", n, args[0])
			return nil
		},
	})
	return cmd
}

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage wiki documents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.jsonl|->",
		Short: "Import documents from JSON lines",
		Long: `Import documents from a JSON lines file, one document per line.

Each saved document is written to the current generation right away and
recorded as outdated so a rebuild running alongside picks it up on
promotion.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				r = f
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.docs.ImportJSONL(cmd.Context(), r)
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Imported %d documents", n)
			return nil
		},
	})
	return cmd
}
