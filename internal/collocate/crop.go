package collocate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/pkg/geo"
)

// Crop clips a collocated raster to the job's region subset with
// gdalwarp, writing the cutline as a GeoJSON sidecar next to the
// output. Pixels touched by the cutline edge are kept.
func (r *Runner) Crop(ctx context.Context, rasterPath string, subset geom.Geometry, outDir, name string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	cutline := filepath.Join(outDir, name+"_roi.geojson")
	raw, err := geo.ToGeoJSON(subset)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(cutline, raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to write cutline: %w", err)
	}

	clipped := filepath.Join(outDir, name+"_clipped.tif")
	if !r.rebuild && exists(clipped) {
		return clipped, nil
	}

	output, err := r.run(ctx, "gdalwarp",
		"-cutline", cutline,
		"-crop_to_cutline",
		"-dstnodata", "999999999.0",
		"-wo", "CUTLINE_ALL_TOUCHED=TRUE",
		rasterPath, clipped,
	)
	if err != nil {
		return "", fmt.Errorf("gdalwarp failed: %v: %s", err, truncate(string(output), 512))
	}

	r.logger.DebugContext(ctx, "cropped raster",
		slog.String("input", rasterPath),
		slog.String("output", clipped),
	)
	return clipped, nil
}

// RasterSize reads a raster's pixel dimensions with gdalinfo.
func (r *Runner) RasterSize(ctx context.Context, path string) (height, width int, err error) {
	output, err := r.run(ctx, "gdalinfo", "-json", path)
	if err != nil {
		return 0, 0, fmt.Errorf("gdalinfo failed for %s: %v: %s", path, err, truncate(string(output), 512))
	}

	var info struct {
		Size [2]int `json:"size"` // width, height
	}
	if err := json.Unmarshal(output, &info); err != nil {
		return 0, 0, fmt.Errorf("failed to parse gdalinfo output for %s: %w", path, err)
	}
	return info.Size[1], info.Size[0], nil
}

// Patch is one tile window in pixel coordinates.
type Patch struct {
	Row    int
	Col    int
	Width  int
	Height int
}

// PatchGrid computes the tile windows for a raster of the given pixel
// dimensions. size is (height, width); overlap is the fraction of each
// dimension shared between neighbouring tiles. Windows that would run
// past the raster edge are dropped rather than padded.
func PatchGrid(rasterHeight, rasterWidth int, size [2]int, overlap [2]float64) []Patch {
	rowStride := int(float64(size[0]) * (1 - overlap[0]))
	colStride := int(float64(size[1]) * (1 - overlap[1]))
	if rowStride < 1 {
		rowStride = 1
	}
	if colStride < 1 {
		colStride = 1
	}

	var patches []Patch
	for row := 0; row <= rasterHeight-size[0]; row += rowStride {
		for col := 0; col <= rasterWidth-size[1]; col += colStride {
			patches = append(patches, Patch{
				Row:    row,
				Col:    col,
				Width:  size[1],
				Height: size[0],
			})
		}
	}
	return patches
}

// PatchName renders the output filename for one tile. The displayed
// dimensions are width x height.
func PatchName(prefix string, p Patch) string {
	return fmt.Sprintf("%s_%d_%d_%dx%d.tif", prefix, p.Row, p.Col, p.Width, p.Height)
}

// MakePatches tiles a clipped raster with gdal_translate. prefix names
// the product combination, e.g. "S1_<uuid>_S2_<uuid>".
func (r *Runner) MakePatches(ctx context.Context, clippedPath string, rasterHeight, rasterWidth int, size [2]int, overlap [2]float64, outDir, prefix string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	patches := PatchGrid(rasterHeight, rasterWidth, size, overlap)
	for _, p := range patches {
		out := filepath.Join(outDir, PatchName(prefix, p))
		output, err := r.run(ctx, "gdal_translate",
			"-of", "GTiff",
			"-srcwin",
			strconv.Itoa(p.Col), strconv.Itoa(p.Row),
			strconv.Itoa(p.Width), strconv.Itoa(p.Height),
			clippedPath, out,
		)
		if err != nil {
			return fmt.Errorf("gdal_translate failed for %s: %v: %s", out, err, truncate(string(output), 512))
		}
	}

	r.logger.InfoContext(ctx, "tiled raster",
		slog.String("input", clippedPath),
		slog.Int("patch_count", len(patches)),
	)
	return nil
}
