package main

import (
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Download and process in one go",
		Long: `Match products for the configured region, download every archive the
jobs reference, then collocate, crop and tile each job. Equivalent to
'senprep download' followed by 'senprep process' over the same matching
result, without querying the catalogue twice.`,
		Example: `  senprep run --config region.yaml
  senprep run --config region.yaml --multitemporal --non-interactive`,
		RunE: runRunE,
	}

	cmd.Flags().BoolVar(&fullCollocation, "full-collocation", false, "collocate whole products instead of the region subset")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "reprocess pairs whose outputs already exist")

	return cmd
}

func runRunE(cmd *cobra.Command, args []string) error {
	jobs, err := findJobs(cmd.Context())
	if err != nil {
		return err
	}

	if err := downloadJobs(cmd.Context(), jobs); err != nil {
		return err
	}
	return processJobs(cmd.Context(), jobs)
}
