package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/download"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/match"
)

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download the product archives a run needs",
		Long: `Match products for the configured region and download every archive
the resulting jobs reference. Archives already present and matching
their checksum are skipped. With --external-bucket, Sentinel-2 products
are fetched from the public bucket instead of the catalogue.`,
		Example: `  senprep download --config region.yaml
  senprep download --config region.yaml --external-bucket`,
		RunE: downloadRun,
	}
}

func downloadRun(cmd *cobra.Command, args []string) error {
	jobs, err := findJobs(cmd.Context())
	if err != nil {
		return err
	}
	return downloadJobs(cmd.Context(), jobs)
}

// downloadJobs fetches every product archive the jobs reference into
// the sentinel root.
func downloadJobs(ctx context.Context, jobs []match.Job) error {
	if err := os.MkdirAll(globalCfg.Storage.SentinelRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", globalCfg.Storage.SentinelRoot, err)
	}

	opts := []download.Option{
		download.WithLogger(logger),
		download.WithToken(globalCfg.Download.Token),
		download.WithProgress(!nonInteractive),
	}
	if externalBucket {
		opts = append(opts, download.WithExternalBucket(globalCfg.Download.ExternalBucket))
	}
	downloader := download.New(globalCfg.Download.Timeout, opts...)

	fetched := map[string]bool{}
	for _, job := range jobs {
		for _, product := range jobProducts(job) {
			if fetched[product.Footprint.UUID] {
				continue
			}
			if _, err := downloader.Fetch(ctx, product.Footprint, globalCfg.Storage.SentinelRoot); err != nil {
				return fmt.Errorf("failed to download %s: %w", product.Footprint.Title, err)
			}
			fetched[product.Footprint.UUID] = true
		}
	}

	logger.Info("downloads complete", "products", len(fetched))
	return nil
}
