package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/match"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the product pairs a run would process",
		Long: `List the product pairs matched for the configured region and date
span, without downloading or processing anything. One row per job: the
period, the within-period sequence number, the products involved, and
the coverage the period achieved.`,
		Example: `  senprep list --config region.yaml
  senprep list --config region.yaml --primary S1 --skip-secondary`,
		RunE: listRun,
	}
}

func listRun(cmd *cobra.Command, args []string) error {
	jobs, err := findJobs(cmd.Context())
	if err != nil {
		return err
	}

	printJobs(jobs)
	logger.Info("matching complete", "jobs", len(jobs))
	return nil
}

func printJobs(jobs []match.Job) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PERIOD\t#\tPRIMARY\tSECONDARY\tHISTORICAL\tCOVERAGE")
	for _, job := range jobs {
		secondary, historical := "-", "-"
		if job.Secondary != nil {
			secondary = job.Secondary.Title
		}
		if job.Historical != nil {
			historical = job.Historical.Title
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%.1f%%\n",
			job.Period.Start.Format("2006-01-02"),
			job.ROINumber,
			job.Primary.Title,
			secondary,
			historical,
			job.PercentCovered,
		)
	}
	w.Flush()
}
