package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/wikisearch/configs"
	"github.com/Aman-CERP/wikisearch/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool
	var withFilters bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter .wikisearch.yaml",
		Long: `Write a starter .wikisearch.yaml listing every setting with its default.

With --filters, a starter filters.yaml facet definition is written too.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			out := output.New(cmd.OutOrStdout())

			path := filepath.Join(dir, ".wikisearch.yaml")
			if err := writeTemplate(path, configs.ConfigTemplate, force); err != nil {
				return err
			}
			out.Successf("Wrote %s", path)

			if withFilters {
				path := filepath.Join(dir, "filters.yaml")
				if err := writeTemplate(path, configs.FiltersTemplate, force); err != nil {
					return err
				}
				out.Successf("Wrote %s", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.Flags().BoolVar(&withFilters, "filters", false, "Also write filters.yaml")

	return cmd
}

func writeTemplate(path, content string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
