// Package collocate drives the external SNAP graph processing tool
// (gpt) to co-register matched product pairs onto a shared grid, and
// the GDAL tools to crop and tile the result.
package collocate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/match"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/pkg/geo"
)

// ErrCoordinateOutOfBounds marks the known gpt failure mode where the
// requested subset falls outside the product raster. Callers skip the
// pairing rather than abort.
var ErrCoordinateOutOfBounds = errors.New("coordinate out of bounds")

// Processing graph files, resolved relative to the runner's graph
// directory.
const (
	graphPairSubset = "gpt_cloud_masks_bands_specified_subset_without_reprojection.xml"
	graphPairFull   = "gpt_cloud_masks_bands_specified.xml"
	graphS1Subset   = "gpt_cloud_masks_bands_specified_subset_without_reprojection_S1.xml"
	graphS1Full     = "gpt_cloud_masks_bands_specified_S1.xml"
	graphS2Subset   = "gpt_cloud_masks_bands_specified_subset_without_reprojection_S2.xml"
	graphS2Full     = "gpt_cloud_masks_bands_specified_S2.xml"
	graphGRDMulti   = "GRD_S1_multitemporal.xml"
	graphSLCMulti   = "SLC_S1_multitemporal.xml"
)

// commandFunc runs an external tool and returns its combined output.
type commandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Runner invokes the processing graphs for assembled jobs.
type Runner struct {
	gptPath  string
	graphDir string

	// sentinelRoot is where downloaded product archives live.
	sentinelRoot string

	bandsS1 []string
	bandsS2 []string

	// fullCollocation processes whole products instead of the job's
	// region subset.
	fullCollocation bool

	// rebuild reprocesses pairs whose outputs already exist.
	rebuild bool

	logger *slog.Logger
	run    commandFunc
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithBands overrides the default band selections.
func WithBands(s1, s2 []string) RunnerOption {
	return func(r *Runner) {
		if len(s1) > 0 {
			r.bandsS1 = s1
		}
		if len(s2) > 0 {
			r.bandsS2 = s2
		}
	}
}

// WithFullCollocation processes whole products instead of subsets.
func WithFullCollocation(full bool) RunnerOption {
	return func(r *Runner) { r.fullCollocation = full }
}

// WithRebuild forces reprocessing of existing outputs.
func WithRebuild(rebuild bool) RunnerOption {
	return func(r *Runner) { r.rebuild = rebuild }
}

// NewRunner creates a Runner. gptPath is the gpt executable, graphDir
// the directory holding the graph XML files, and sentinelRoot the
// product archive directory.
func NewRunner(gptPath, graphDir, sentinelRoot string, opts ...RunnerOption) *Runner {
	r := &Runner{
		gptPath:      gptPath,
		graphDir:     graphDir,
		sentinelRoot: sentinelRoot,
		bandsS1:      DefaultBandsS1,
		bandsS2:      DefaultBandsS2,
		logger:       slog.Default(),
		run:          runCommand,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result holds the output raster paths of one collocation.
type Result struct {
	S1Path string
	S2Path string
}

// Collocate co-registers a job's primary and secondary products. Jobs
// with a historical companion run the two-date graph matching the radar
// product type. Existing outputs are reused unless rebuilding.
func (r *Runner) Collocate(ctx context.Context, job match.Job, outDir string) (Result, error) {
	if job.Secondary == nil {
		return Result{}, fmt.Errorf("job for %s has no secondary to collocate", job.Primary.Title)
	}
	s1, s2 := radarAndOptical(job)

	imageName := fmt.Sprintf("S1_%s_S2_%s.tif", s1.UUID, s2.UUID)
	result := Result{
		S1Path: filepath.Join(outDir, "S1", "Collocated", imageName),
		S2Path: filepath.Join(outDir, "S2", "Collocated", imageName),
	}
	if !r.rebuild && exists(result.S1Path) && exists(result.S2Path) {
		r.logger.InfoContext(ctx, "collocation already done",
			slog.String("s1", s1.Title), slog.String("s2", s2.Title))
		return result, nil
	}
	for _, p := range []string{result.S1Path, result.S2Path} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return Result{}, fmt.Errorf("failed to create %s: %w", filepath.Dir(p), err)
		}
	}

	args, err := r.pairArgs(job, result)
	if err != nil {
		return Result{}, err
	}

	r.logger.InfoContext(ctx, "collocating products",
		slog.String("s1", s1.Title),
		slog.String("s2", s2.Title),
		slog.Bool("multitemporal", job.Historical != nil),
	)
	if err := r.gpt(ctx, args); err != nil {
		return Result{}, err
	}
	return result, nil
}

// pairArgs assembles the gpt argument list for a primary/secondary job.
func (r *Runner) pairArgs(job match.Job, result Result) ([]string, error) {
	s1, s2 := radarAndOptical(job)

	common := []string{
		"-PS1=" + r.productPath(s1.Title),
		"-PS2=" + r.productPath(s2.Title),
	}

	var graph, bandsS1 string
	if job.Historical != nil {
		if r.fullCollocation {
			return nil, errors.New("full collocation is not supported for multitemporal jobs")
		}
		switch s1.ProductType {
		case "SLC":
			graph = graphSLCMulti
			bandsS1 = MultitemporalSLCBands(r.bandsS1, s1.Acquired, job.Historical.Acquired)
		default:
			graph = graphGRDMulti
			bandsS1 = MultitemporalGRDBands(r.bandsS1)
		}
		common = append(common, "-PS1_old="+r.productPath(job.Historical.Title))
	} else {
		graph = graphPairSubset
		if r.fullCollocation {
			graph = graphPairFull
		}
		bandsS1 = JoinBands(r.bandsS1)
	}

	args := []string{filepath.Join(r.graphDir, graph)}
	args = append(args, common...)
	args = append(args,
		"-PCollocate_master="+s2.Title,
		"-PS1_write_path="+result.S1Path,
		"-PS2_write_path="+result.S2Path,
		"-Pbands_S1="+bandsS1,
		"-Pbands_S2="+JoinBands(r.bandsS2),
	)
	if !r.fullCollocation {
		args = append(args, "-PROI="+roiParameter(job))
	}
	return args, nil
}

// Snap processes a single unpaired product through its standalone
// graph.
func (r *Runner) Snap(ctx context.Context, job match.Job, outDir string) (string, error) {
	var graph, out, bands, inputFlag, bandsFlag, writeFlag string
	switch {
	case job.Primary.Platform == catalog.Sentinel1:
		graph = graphS1Subset
		if r.fullCollocation {
			graph = graphS1Full
		}
		out = filepath.Join(outDir, "S1", "Collocated", fmt.Sprintf("S1_%s.tif", job.Primary.UUID))
		bands = SingleBandsS1(r.bandsS1)
		inputFlag, bandsFlag, writeFlag = "-PS1=", "-Pbands_S1=", "-PS1_write_path="
	default:
		graph = graphS2Subset
		if r.fullCollocation {
			graph = graphS2Full
		}
		out = filepath.Join(outDir, "S2", "Collocated", fmt.Sprintf("S2_%s.tif", job.Primary.UUID))
		bands = SingleBandsS2(r.bandsS2)
		inputFlag, bandsFlag, writeFlag = "-PS2=", "-Pbands_S2=", "-PS2_write_path="
	}

	if !r.rebuild && exists(out) {
		r.logger.InfoContext(ctx, "processing already done", slog.String("title", job.Primary.Title))
		return out, nil
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(out), err)
	}

	args := []string{
		filepath.Join(r.graphDir, graph),
		inputFlag + r.productPath(job.Primary.Title),
		writeFlag + out,
		bandsFlag + bands,
	}
	if !r.fullCollocation {
		args = append(args, "-PROI="+roiParameter(job))
	}

	if err := r.gpt(ctx, args); err != nil {
		return "", err
	}
	return out, nil
}

func (r *Runner) gpt(ctx context.Context, args []string) error {
	output, err := r.run(ctx, r.gptPath, args...)
	if err != nil {
		if strings.Contains(string(output), "out of bounds") {
			return fmt.Errorf("%w: %v", ErrCoordinateOutOfBounds, err)
		}
		return fmt.Errorf("gpt failed: %v: %s", err, truncate(string(output), 512))
	}
	return nil
}

// productPath resolves a product title to its archive on disk: the zip
// if present, otherwise the unpacked SAFE directory.
func (r *Runner) productPath(title string) string {
	zip := filepath.Join(r.sentinelRoot, title+".zip")
	if exists(zip) {
		return zip
	}
	return filepath.Join(r.sentinelRoot, title+".SAFE")
}

// radarAndOptical splits a job's pair by platform regardless of which
// side was the primary.
func radarAndOptical(job match.Job) (s1, s2 catalog.Footprint) {
	if job.Primary.Platform == catalog.Sentinel1 {
		return job.Primary, *job.Secondary
	}
	return *job.Secondary, job.Primary
}

// roiParameter renders the job subset the way the graphs expect:
// WKT without the space after the geometry tag.
func roiParameter(job match.Job) string {
	return strings.Replace(geo.ToWKT(job.Subset), "POLYGON ", "POLYGON", 1)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
