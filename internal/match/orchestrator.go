package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/window"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/pkg/geo"
)

// ErrAborted is returned when a policy decision halts the run.
var ErrAborted = errors.New("matching aborted")

// ErrAmbiguousHistorical is returned when a historical lookback finds
// candidates with differing acquisition times. Picking one silently
// would corrupt the change-detection stack, so this is fatal.
var ErrAmbiguousHistorical = errors.New("ambiguous historical match")

// DefaultCoverageThreshold is the percent coverage below which the
// partial-coverage policy kicks in.
const DefaultCoverageThreshold = 99.0

// Options configures a matching run.
type Options struct {
	// Primary is the anchor platform each period is selected on. The
	// other platform supplies the paired secondary products.
	Primary catalog.Platform

	// SkipSecondary disables pairing entirely.
	SkipSecondary bool

	// Multitemporal chases a same-orbit acquisition from one repeat
	// cycle before each selected radar product.
	Multitemporal bool

	// S1ProductType selects GRD or SLC radar products.
	S1ProductType string
	SensorMode    string
	CloudCover    *catalog.CloudCoverRange

	// FrequencyDays is the period length; see window.Sequence.
	FrequencyDays int

	// SecondaryDeltaDays bounds the secondary search window around the
	// primary's acquisition time.
	SecondaryDeltaDays int

	// HistoricalOffsetDays and HistoricalSpanDays shape the lookback
	// window. The offset should match the satellite's repeat cycle.
	HistoricalOffsetDays int
	HistoricalSpanDays   int

	CoverageThreshold float64
}

func (o Options) withDefaults() Options {
	if o.Primary == "" {
		o.Primary = catalog.Sentinel2
	}
	if o.S1ProductType == "" {
		o.S1ProductType = "GRD"
	}
	if o.SensorMode == "" {
		o.SensorMode = "IW"
	}
	if o.FrequencyDays <= 0 {
		o.FrequencyDays = window.DefaultFrequencyDays
	}
	if o.SecondaryDeltaDays <= 0 {
		o.SecondaryDeltaDays = 3
	}
	if o.HistoricalOffsetDays <= 0 {
		o.HistoricalOffsetDays = 12
	}
	if o.HistoricalSpanDays <= 0 {
		o.HistoricalSpanDays = 1
	}
	if o.CoverageThreshold <= 0 {
		o.CoverageThreshold = DefaultCoverageThreshold
	}
	return o
}

// Orchestrator drives the full multi-period matching process. It owns
// all its working state per run: the sticky policy flags and the set of
// radar products already consumed by earlier pairings.
type Orchestrator struct {
	searcher catalog.Searcher
	resolver Resolver
	logger   *slog.Logger
	opts     Options

	primaryRules   []SortRule
	secondaryRules []SortRule

	// Sticky policy state, set once a skip-all or accept-partial answer
	// is given. skipAll wins when both are set.
	skipAll       bool
	acceptPartial bool

	usedSecondary map[string]bool
}

// New creates an orchestrator. The resolver decides empty-period and
// partial-coverage shortfalls; pass Static{ActionSkip} for unattended
// runs.
func New(searcher catalog.Searcher, resolver Resolver, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		searcher:       searcher,
		resolver:       resolver,
		logger:         slog.Default(),
		opts:           opts,
		primaryRules:   DefaultPrimaryRules(opts.Primary),
		secondaryRules: DefaultSecondaryRules(),
		usedSecondary:  make(map[string]bool),
	}
}

// WithLogger sets a custom logger for the orchestrator.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger
	return o
}

// WithPrimaryRules overrides the default primary sort order.
func (o *Orchestrator) WithPrimaryRules(rules []SortRule) *Orchestrator {
	o.primaryRules = rules
	return o
}

// WithSecondaryRules overrides the default secondary sort order.
func (o *Orchestrator) WithSecondaryRules(rules []SortRule) *Orchestrator {
	o.secondaryRules = rules
	return o
}

// WithUsedSecondary pre-seeds the exclusion set with secondary products
// consumed by earlier runs, so re-running a region never pairs the same
// radar product twice.
func (o *Orchestrator) WithUsedSecondary(uuids map[string]bool) *Orchestrator {
	for uuid, used := range uuids {
		if used {
			o.usedSecondary[uuid] = true
		}
	}
	return o
}

// Run matches the region over the date range and returns the
// concatenated, period-ordered job list.
func (o *Orchestrator) Run(ctx context.Context, roi geo.ROI, dates catalog.DateRange) ([]Job, error) {
	periods := window.Sequence(dates.Start, dates.End, o.opts.FrequencyDays)
	o.logger.InfoContext(ctx, "starting matching run",
		slog.String("roi", roi.Name),
		slog.Int("period_count", len(periods)),
		slog.String("primary", string(o.opts.Primary)),
	)

	var jobs []Job
	for _, period := range periods {
		periodJobs, err := o.matchPeriod(ctx, roi, period)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, periodJobs...)
	}

	o.logger.InfoContext(ctx, "matching run completed", slog.Int("job_count", len(jobs)))
	return jobs, nil
}

func (o *Orchestrator) matchPeriod(ctx context.Context, roi geo.ROI, period window.Period) ([]Job, error) {
	logger := o.logger.With(
		slog.Int("period", period.Index),
		slog.String("start", period.Start.Format("2006-01-02")),
	)

	primaries, err := o.searcher.Query(ctx, o.primaryParams(roi, period))
	if err != nil {
		return nil, fmt.Errorf("primary query failed: %w", err)
	}

	if len(primaries) == 0 {
		logger.InfoContext(ctx, "no primary products in period")
		proceed, err := o.resolveShortfall(ctx, Shortfall{Period: period, Empty: true})
		if err != nil || !proceed {
			return nil, err
		}
		return nil, nil
	}

	cover, err := Select(roi.Geometry, primaries, time.Time{}, o.primaryRules)
	if err != nil {
		return nil, fmt.Errorf("primary selection failed: %w", err)
	}
	logger.DebugContext(ctx, "primary selection done",
		slog.Int("candidate_count", len(primaries)),
		slog.Int("selected_count", len(cover.Selections)),
		slog.Float64("percent_covered", cover.Percent),
	)

	if cover.Percent < o.opts.CoverageThreshold {
		proceed, err := o.resolveShortfall(ctx, Shortfall{Period: period, Percent: cover.Percent})
		if err != nil {
			return nil, err
		}
		if !proceed {
			logger.InfoContext(ctx, "skipping under-covered period",
				slog.Float64("percent_covered", cover.Percent))
			return nil, nil
		}
	}

	var jobs []Job
	for _, sel := range cover.Selections {
		job := Job{
			Period:         period,
			Primary:        sel.Footprint,
			Subset:         sel.Contribution,
			Area:           sel.Area,
			PercentCovered: cover.Percent,
		}

		if !o.opts.SkipSecondary {
			keep, err := o.pairSecondary(ctx, period, &job)
			if err != nil {
				return nil, err
			}
			if !keep {
				continue
			}
		}
		jobs = append(jobs, job)
	}

	return numberJobs(jobs), nil
}

// pairSecondary finds the companion product for one primary selection.
// It reports whether the job should be kept.
func (o *Orchestrator) pairSecondary(ctx context.Context, period window.Period, job *Job) (bool, error) {
	start, end := window.Secondary(job.Primary.Acquired, o.opts.SecondaryDeltaDays)
	candidates, err := o.searcher.Query(ctx, o.secondaryParams(job.Subset, start, end))
	if err != nil {
		var qerr *catalog.QueryError
		if errors.As(err, &qerr) {
			o.logger.WarnContext(ctx, "secondary query failed, skipping pairing",
				slog.String("primary", job.Primary.Title),
				slog.String("error", qerr.Error()),
			)
			return false, nil
		}
		return false, fmt.Errorf("secondary query failed: %w", err)
	}

	fresh := candidates[:0]
	for _, c := range candidates {
		if !o.usedSecondary[c.UUID] {
			fresh = append(fresh, c)
		}
	}

	cover, err := Select(job.Subset, fresh, job.Primary.Acquired, o.secondaryRules)
	if err != nil {
		return false, fmt.Errorf("secondary selection failed: %w", err)
	}
	if len(cover.Selections) == 0 {
		proceed, err := o.resolveShortfall(ctx, Shortfall{Period: period, Empty: true})
		if err != nil {
			return false, err
		}
		// Accept-partial keeps the primary unpaired; any skip answer
		// drops this pairing.
		return proceed, nil
	}

	secondary := cover.Selections[0].Footprint
	o.usedSecondary[secondary.UUID] = true
	job.Secondary = &secondary

	if o.opts.Multitemporal {
		historical, err := o.findHistorical(ctx, secondary)
		if err != nil {
			return false, err
		}
		job.Historical = historical
	}
	return true, nil
}

// findHistorical locates the same relative-orbit acquisition from the
// previous repeat cycle. External query failures are recovered as an
// empty result; disagreeing candidates abort the run.
func (o *Orchestrator) findHistorical(ctx context.Context, secondary catalog.Footprint) (*catalog.Footprint, error) {
	start, end := window.Historical(secondary.Acquired, o.opts.HistoricalOffsetDays, o.opts.HistoricalSpanDays)
	candidates, err := o.searcher.QueryHistorical(ctx, catalog.HistoricalParams{
		Range:         catalog.DateRange{Start: start, End: end},
		Platform:      catalog.Sentinel1,
		ProductType:   secondary.ProductType,
		SensorMode:    secondary.SensorMode,
		Polarisation:  secondary.Polarisation,
		RelativeOrbit: secondary.RelativeOrbit,
		SliceNumber:   secondary.SliceNumber,
	})
	if err != nil {
		var qerr *catalog.QueryError
		if errors.As(err, &qerr) {
			o.logger.WarnContext(ctx, "historical query failed, continuing without",
				slog.String("secondary", secondary.Title),
				slog.String("error", qerr.Error()),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("historical query failed: %w", err)
	}
	if len(candidates) == 0 {
		o.logger.InfoContext(ctx, "no historical acquisition found",
			slog.String("secondary", secondary.Title))
		return nil, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if !c.Acquired.Equal(best.Acquired) {
			return nil, fmt.Errorf("%w: %s vs %s acquired at different times",
				ErrAmbiguousHistorical, best.Title, c.Title)
		}
		// Same acquisition reprocessed more than once; keep the latest
		// ingestion.
		if c.Ingested.After(best.Ingested) {
			best = c
		}
	}
	return &best, nil
}

// resolveShortfall applies the sticky policy state, consulting the
// resolver only when no prior skip-all or accept-partial answer covers
// the situation. It reports whether the caller should proceed with what
// it has.
func (o *Orchestrator) resolveShortfall(ctx context.Context, s Shortfall) (bool, error) {
	// Skip-all outranks accept-partial when both have been chosen.
	if o.skipAll {
		return false, nil
	}
	if o.acceptPartial {
		return true, nil
	}

	action, err := o.resolver.Resolve(ctx, s)
	if err != nil {
		return false, err
	}
	switch action {
	case ActionSkip:
		return false, nil
	case ActionSkipAll:
		o.skipAll = true
		return false, nil
	case ActionAcceptPartial:
		o.acceptPartial = true
		return true, nil
	case ActionAbort:
		if s.Empty {
			return false, fmt.Errorf("%w: no products for %s to %s", ErrAborted,
				s.Period.Start.Format("2006-01-02"), s.Period.End.Format("2006-01-02"))
		}
		return false, fmt.Errorf("%w: only %.2f%% covered for %s to %s", ErrAborted,
			s.Percent, s.Period.Start.Format("2006-01-02"), s.Period.End.Format("2006-01-02"))
	}
	return false, fmt.Errorf("unknown policy action %v", action)
}

func (o *Orchestrator) primaryParams(roi geo.ROI, period window.Period) catalog.SearchParams {
	params := catalog.SearchParams{
		AOI:      roi.Geometry,
		Platform: o.opts.Primary,
		Range: catalog.DateRange{
			Start: period.Start,
			End:   period.End.AddDate(0, 0, 1).Add(-time.Second),
		},
	}
	o.applyPlatformFilters(&params)
	return params
}

func (o *Orchestrator) secondaryParams(subset geom.Geometry, start, end time.Time) catalog.SearchParams {
	params := catalog.SearchParams{
		AOI:      subset,
		Platform: o.secondaryPlatform(),
		Range:    catalog.DateRange{Start: start, End: end},
	}
	o.applyPlatformFilters(&params)
	return params
}

func (o *Orchestrator) secondaryPlatform() catalog.Platform {
	if o.opts.Primary == catalog.Sentinel2 {
		return catalog.Sentinel1
	}
	return catalog.Sentinel2
}

func (o *Orchestrator) applyPlatformFilters(params *catalog.SearchParams) {
	switch params.Platform {
	case catalog.Sentinel1:
		params.ProductType = o.opts.S1ProductType
		params.SensorMode = o.opts.SensorMode
	case catalog.Sentinel2:
		params.CloudCover = o.opts.CloudCover
	}
}
