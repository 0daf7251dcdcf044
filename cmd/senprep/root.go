package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/cache"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog/odata"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog/stacapi"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/config"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/match"
)

var (
	// Global flags
	cfgPath        string
	logLevel       string
	logFormat      string
	nonInteractive bool

	// Matching flags
	primaryFlag        string
	skipSecondary      bool
	multitemporal      bool
	s1SLC              bool
	skipWeek           bool
	availableArea      bool
	externalBucket     bool
	secondaryTimeDelta int
	primaryFrequency   int

	// Processing flags
	fullCollocation bool
	rebuild         bool

	// Global components
	globalCfg    *config.Config
	globalRegion *config.Region
	globalStore  *cache.Store
	logger       *slog.Logger
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "senprep",
		Short: "Prepare collocated Sentinel-1/Sentinel-2 data for a region of interest",
		Long: `senprep matches Sentinel-1 radar and Sentinel-2 optical products over a
region of interest, selects a minimal covering set per period, pairs
primary products with close-in-time secondary products, downloads the
archives, and collocates each pair onto a shared grid with SNAP's gpt
tool before cropping and tiling the result into training patches.

Process-level settings (catalog endpoints, credentials, storage paths)
come from SENPREP_* environment variables; the per-run region file names
the region, its geometry, the date span and the patch parameters.`,
		Example: `  senprep list --config region.yaml
  senprep download --config region.yaml
  senprep process --config region.yaml --multitemporal
  senprep run --config region.yaml --primary S2 --non-interactive`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			if shouldSkipSetup(cmd.Name()) {
				return nil
			}

			var err error
			globalCfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if cfgPath == "" {
				return fmt.Errorf("a region config file is required (--config)")
			}
			globalRegion, err = config.LoadRegion(cfgPath)
			if err != nil {
				return err
			}

			globalStore, err = cache.New(globalCfg.Storage.CacheDB, logger)
			if err != nil {
				return fmt.Errorf("failed to open cache: %w", err)
			}

			logger.Debug("configuration loaded",
				slog.String("region", globalRegion.Name),
				slog.String("backend", globalCfg.Backend.Type),
			)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeStore()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to the region config file (yaml or json)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; skip periods that fall short")

	cmd.PersistentFlags().StringVar(&primaryFlag, "primary", "S2", "anchor platform each period is selected on (S1 or S2)")
	cmd.PersistentFlags().BoolVar(&skipSecondary, "skip-secondary", false, "select primary products only, without pairing")
	cmd.PersistentFlags().BoolVar(&multitemporal, "multitemporal", false, "chase a same-orbit radar acquisition one repeat cycle earlier")
	cmd.PersistentFlags().BoolVar(&s1SLC, "s1-slc", false, "use SLC radar products instead of GRD")
	cmd.PersistentFlags().BoolVar(&skipWeek, "skip-week", false, "skip every period that falls short of full coverage")
	cmd.PersistentFlags().BoolVar(&availableArea, "available-area", false, "process whatever part of the region is covered")
	cmd.PersistentFlags().BoolVar(&externalBucket, "external-bucket", false, "fetch Sentinel-2 products from the public bucket")
	cmd.PersistentFlags().IntVar(&secondaryTimeDelta, "secondary-time-delta", 3, "secondary search window around the primary, in days")
	cmd.PersistentFlags().IntVar(&primaryFrequency, "primary-frequency", 7, "period length in days")

	cmd.AddCommand(
		newListCmd(),
		newDownloadCmd(),
		newProcessCmd(),
		newRunCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags.
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipSetup checks if a command can run without config and cache.
func shouldSkipSetup(cmdName string) bool {
	skipCmds := map[string]bool{
		"help":       true,
		"version":    true,
		"completion": true,
	}
	return skipCmds[cmdName]
}

func closeStore() {
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close cache", "error", err)
		}
		globalStore = nil
	}
}

// newSearcher creates the configured catalog backend.
func newSearcher() catalog.Searcher {
	switch globalCfg.Backend.Type {
	case "stac":
		logger.Debug("using STAC backend", "base_url", globalCfg.STAC.BaseURL)
		return stacapi.NewClient(globalCfg.STAC.BaseURL, globalCfg.STAC.Timeout).WithLogger(logger)
	default:
		logger.Debug("using OData backend", "base_url", globalCfg.OData.BaseURL)
		return odata.NewClient(globalCfg.OData.BaseURL, globalCfg.OData.DownloadURL, globalCfg.OData.Timeout).WithLogger(logger)
	}
}

// newResolver builds the shortfall policy from the flags: pre-set
// sticky answers when given, a terminal prompt otherwise.
func newResolver() match.Resolver {
	switch {
	case skipWeek:
		return match.Static{Action: match.ActionSkipAll}
	case availableArea:
		return match.Static{Action: match.ActionAcceptPartial}
	case nonInteractive:
		return match.Static{Action: match.ActionSkip}
	default:
		return &match.Prompt{In: os.Stdin, Out: os.Stdout}
	}
}

func primaryPlatform() (catalog.Platform, error) {
	switch strings.ToUpper(primaryFlag) {
	case "S1":
		return catalog.Sentinel1, nil
	case "S2":
		return catalog.Sentinel2, nil
	}
	return "", fmt.Errorf("primary must be S1 or S2, got %q", primaryFlag)
}

// findJobs runs the full matching process for the configured region and
// returns the period-ordered job list.
func findJobs(ctx context.Context) ([]match.Job, error) {
	roi, err := globalRegion.ROI()
	if err != nil {
		return nil, err
	}
	dates, err := globalRegion.DateRange()
	if err != nil {
		return nil, err
	}
	primary, err := primaryPlatform()
	if err != nil {
		return nil, err
	}

	productType := "GRD"
	if s1SLC {
		productType = "SLC"
	}

	opts := match.Options{
		Primary:            primary,
		SkipSecondary:      skipSecondary,
		Multitemporal:      multitemporal,
		S1ProductType:      productType,
		CloudCover:         globalRegion.CloudCoverRange(),
		FrequencyDays:      primaryFrequency,
		SecondaryDeltaDays: secondaryTimeDelta,
	}

	used, err := globalStore.UsedSet(globalRegion.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load used products: %w", err)
	}

	orch := match.New(newSearcher(), newResolver(), opts).
		WithLogger(logger).
		WithUsedSecondary(used)

	return orch.Run(ctx, roi, dates)
}

// jobProduct is one of a job's products alongside its cache role.
type jobProduct struct {
	Footprint catalog.Footprint
	Role      cache.Role
}

// jobProducts lists a job's products in download order.
func jobProducts(job match.Job) []jobProduct {
	products := []jobProduct{{job.Primary, cache.RolePrimary}}
	if job.Secondary != nil {
		products = append(products, jobProduct{*job.Secondary, cache.RoleSecondary})
	}
	if job.Historical != nil {
		products = append(products, jobProduct{*job.Historical, cache.RoleHistorical})
	}
	return products
}
