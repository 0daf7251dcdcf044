package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/cache"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/collocate"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/match"
)

func newProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Collocate, crop and tile matched products",
		Long: `Match products for the configured region and run each job through the
gpt processing graphs: paired jobs are collocated onto a shared grid,
unpaired primaries go through the standalone graph. The collocated
rasters are cropped to each job's region subset with gdalwarp and tiled
into fixed-size patches with gdal_translate.

Product archives must already be present in the sentinel root; use
'senprep download' or 'senprep run' to fetch them.`,
		Example: `  senprep process --config region.yaml
  senprep process --config region.yaml --multitemporal --s1-slc
  senprep process --config region.yaml --full-collocation --rebuild`,
		RunE: processRunE,
	}

	cmd.Flags().BoolVar(&fullCollocation, "full-collocation", false, "collocate whole products instead of the region subset")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "reprocess pairs whose outputs already exist")

	return cmd
}

func processRunE(cmd *cobra.Command, args []string) error {
	jobs, err := findJobs(cmd.Context())
	if err != nil {
		return err
	}
	return processJobs(cmd.Context(), jobs)
}

// processJobs runs every job through collocation, cropping and patch
// tiling, recording used products in the cache ledger as it goes.
func processJobs(ctx context.Context, jobs []match.Job) error {
	if _, err := globalStore.SaveRunConfig(globalRegion.Name, globalRegion); err != nil {
		return fmt.Errorf("failed to record run config: %w", err)
	}

	runner := collocate.NewRunner(
		globalCfg.Processing.GPTPath,
		globalCfg.Processing.GraphDir,
		globalCfg.Storage.SentinelRoot,
		collocate.WithLogger(logger),
		collocate.WithBands(globalRegion.BandsS1, globalRegion.BandsS2),
		collocate.WithFullCollocation(fullCollocation),
		collocate.WithRebuild(rebuild),
	)

	outDir := filepath.Join(globalCfg.Storage.OutputDir, globalRegion.Name)
	processed := 0
	for _, job := range jobs {
		if err := processJob(ctx, runner, job, outDir); err != nil {
			if errors.Is(err, collocate.ErrCoordinateOutOfBounds) {
				logger.Warn("subset outside product raster, skipping job",
					"primary", job.Primary.Title,
					"period", job.Period.Start.Format("2006-01-02"),
				)
				continue
			}
			return err
		}

		if err := markJobUsed(job); err != nil {
			return err
		}
		processed++
	}

	logger.Info("processing complete", "jobs", processed, "skipped", len(jobs)-processed)
	return nil
}

func processJob(ctx context.Context, runner *collocate.Runner, job match.Job, outDir string) error {
	if job.Secondary == nil {
		out, err := runner.Snap(ctx, job, outDir)
		if err != nil {
			return err
		}
		side := "S2"
		if job.Primary.Platform == catalog.Sentinel1 {
			side = "S1"
		}
		return cropAndTile(ctx, runner, job, out, side, outDir)
	}

	result, err := runner.Collocate(ctx, job, outDir)
	if err != nil {
		return err
	}

	s1 := job.Primary
	if job.Primary.Platform != catalog.Sentinel1 {
		s1 = *job.Secondary
	}
	s2 := job.Primary
	if job.Primary.Platform == catalog.Sentinel1 {
		s2 = *job.Secondary
	}
	rec := &cache.Collocation{S1UUID: s1.UUID, S2UUID: s2.UUID, ROI: globalRegion.Name, OutputDir: outDir}
	if err := globalStore.RecordCollocation(rec); err != nil {
		return fmt.Errorf("failed to record collocation: %w", err)
	}

	if err := cropAndTile(ctx, runner, job, result.S1Path, "S1", outDir); err != nil {
		return err
	}
	return cropAndTile(ctx, runner, job, result.S2Path, "S2", outDir)
}

// cropAndTile clips one collocated raster to the job's subset and cuts
// it into patches. Full-product collocations keep the whole raster, so
// cropping is skipped and tiling runs on the collocated output.
func cropAndTile(ctx context.Context, runner *collocate.Runner, job match.Job, raster, side, outDir string) error {
	name := strings.TrimSuffix(filepath.Base(raster), ".tif")

	clipped := raster
	if !fullCollocation {
		var err error
		clipped, err = runner.Crop(ctx, raster, job.Subset, filepath.Join(outDir, side, "Clipped"), name)
		if err != nil {
			return err
		}
	}

	height, width, err := runner.RasterSize(ctx, clipped)
	if err != nil {
		return err
	}

	patchDir := filepath.Join(outDir, side, "Patches", name)
	return runner.MakePatches(ctx, clipped, height, width, globalRegion.Size, globalRegion.Overlap, patchDir, name)
}

// markJobUsed records the job's products in the used-products ledger so
// later runs never pair the same secondary twice.
func markJobUsed(job match.Job) error {
	for _, product := range jobProducts(job) {
		rec := &cache.UsedProduct{
			ProductUUID: product.Footprint.UUID,
			Title:       product.Footprint.Title,
			Platform:    string(product.Footprint.Platform),
			Role:        product.Role,
			ROI:         globalRegion.Name,
			PeriodStart: job.Period.Start,
		}
		if err := globalStore.MarkUsed(rec); err != nil {
			return fmt.Errorf("failed to record used product %s: %w", product.Footprint.Title, err)
		}
	}
	return nil
}
