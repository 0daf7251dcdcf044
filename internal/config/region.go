package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/pkg/geo"
)

// dateLayout is the compact date form used in region files, e.g.
// 20200601.
const dateLayout = "20060102"

// Region is a per-run region configuration, loaded from a YAML or JSON
// file. It names the region of interest, the date span to cover, and
// the patch and band parameters for processing.
type Region struct {
	Name string `yaml:"name" json:"name"`

	// GeoJSON is the region geometry inline; GeoJSONPath points at a
	// file instead. Exactly one must be set.
	GeoJSON     string `yaml:"geojson,omitempty" json:"geojson,omitempty"`
	GeoJSONPath string `yaml:"geojson_path,omitempty" json:"geojson_path,omitempty"`

	// Dates are the inclusive start and end dates, yyyymmdd.
	Dates [2]string `yaml:"dates" json:"dates"`

	// Size is the patch height and width in pixels; Overlap the
	// fraction of each dimension shared between neighbouring patches.
	Size    [2]int     `yaml:"size" json:"size"`
	Overlap [2]float64 `yaml:"overlap" json:"overlap"`

	CloudCover CloudCover `yaml:"cloudcover" json:"cloudcover"`

	// BandsS1 and BandsS2 override the default band selections passed
	// to the processing graphs.
	BandsS1 []string `yaml:"bands_S1,omitempty" json:"bands_S1,omitempty"`
	BandsS2 []string `yaml:"bands_S2,omitempty" json:"bands_S2,omitempty"`
}

// CloudCover bounds acceptable optical cloud cover percentages.
type CloudCover struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// LoadRegion loads a region configuration from a YAML (.yaml/.yml) or
// JSON file and validates it.
func LoadRegion(path string) (*Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read region config: %w", err)
	}

	region := &Region{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, region); err != nil {
			return nil, fmt.Errorf("failed to parse region config %q: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, region); err != nil {
			return nil, fmt.Errorf("failed to parse region config %q: %w", path, err)
		}
	}

	if err := region.Validate(); err != nil {
		return nil, fmt.Errorf("invalid region config %q: %w", path, err)
	}
	return region, nil
}

// Validate checks that the region configuration is complete and
// internally consistent.
func (r *Region) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("region name is required")
	}

	if r.GeoJSON == "" && r.GeoJSONPath == "" {
		return fmt.Errorf("either geojson or geojson_path is required")
	}
	if r.GeoJSON != "" && r.GeoJSONPath != "" {
		return fmt.Errorf("geojson and geojson_path are mutually exclusive")
	}

	dates, err := r.DateRange()
	if err != nil {
		return err
	}
	if dates.End.Before(dates.Start) {
		return fmt.Errorf("end date %s is before start date %s", r.Dates[1], r.Dates[0])
	}

	if r.Size[0] <= 0 || r.Size[1] <= 0 {
		return fmt.Errorf("patch size must be positive, got %dx%d", r.Size[0], r.Size[1])
	}
	for _, o := range r.Overlap {
		if o < 0 || o >= 1 {
			return fmt.Errorf("overlap must be in [0, 1), got %g", o)
		}
	}

	cc := r.CloudCover
	if cc.Min < 0 || cc.Max > 100 || cc.Min > cc.Max {
		return fmt.Errorf("cloud cover range must satisfy 0 <= min <= max <= 100, got [%g, %g]", cc.Min, cc.Max)
	}

	return nil
}

// DateRange parses the configured yyyymmdd date pair.
func (r *Region) DateRange() (catalog.DateRange, error) {
	start, err := time.Parse(dateLayout, r.Dates[0])
	if err != nil {
		return catalog.DateRange{}, fmt.Errorf("invalid start date %q: %w", r.Dates[0], err)
	}
	end, err := time.Parse(dateLayout, r.Dates[1])
	if err != nil {
		return catalog.DateRange{}, fmt.Errorf("invalid end date %q: %w", r.Dates[1], err)
	}
	return catalog.DateRange{Start: start, End: end}, nil
}

// CloudCoverRange converts the configured bounds to the catalog filter
// form.
func (r *Region) CloudCoverRange() *catalog.CloudCoverRange {
	return &catalog.CloudCoverRange{Min: r.CloudCover.Min, Max: r.CloudCover.Max}
}

// ROI resolves and parses the region geometry.
func (r *Region) ROI() (geo.ROI, error) {
	data := []byte(r.GeoJSON)
	if r.GeoJSONPath != "" {
		var err error
		data, err = os.ReadFile(r.GeoJSONPath)
		if err != nil {
			return geo.ROI{}, fmt.Errorf("failed to read region geometry: %w", err)
		}
	}
	return geo.ParseROI(r.Name, data)
}
