package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testGeoJSON = `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}]}`

func writeRegionFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadRegionYAML(t *testing.T) {
	path := writeRegionFile(t, "region.yaml", `
name: test-region
geojson: '`+testGeoJSON+`'
dates: ["20200601", "20200630"]
size: [256, 256]
overlap: [0.5, 0.5]
cloudcover:
  min: 0
  max: 20
bands_S1: ["Sigma0_VV_S"]
`)

	region, err := LoadRegion(path)
	if err != nil {
		t.Fatalf("LoadRegion() error = %v", err)
	}

	if region.Name != "test-region" {
		t.Errorf("Name = %q, want test-region", region.Name)
	}
	if region.Size != [2]int{256, 256} {
		t.Errorf("Size = %v", region.Size)
	}
	if region.CloudCover.Max != 20 {
		t.Errorf("CloudCover.Max = %g, want 20", region.CloudCover.Max)
	}
	if len(region.BandsS1) != 1 || region.BandsS1[0] != "Sigma0_VV_S" {
		t.Errorf("BandsS1 = %v", region.BandsS1)
	}

	dates, err := region.DateRange()
	if err != nil {
		t.Fatalf("DateRange() error = %v", err)
	}
	want := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	if !dates.Start.Equal(want) {
		t.Errorf("Start = %s, want %s", dates.Start, want)
	}

	roi, err := region.ROI()
	if err != nil {
		t.Fatalf("ROI() error = %v", err)
	}
	if roi.Name != "test-region" {
		t.Errorf("ROI.Name = %q", roi.Name)
	}
	if roi.Geometry.IsEmpty() {
		t.Error("ROI geometry is empty")
	}
}

func TestLoadRegionJSON(t *testing.T) {
	path := writeRegionFile(t, "region.json", `{
  "name": "test-region",
  "geojson": "{\"type\":\"Polygon\",\"coordinates\":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}",
  "dates": ["20200601", "20200630"],
  "size": [256, 256],
  "overlap": [0, 0],
  "cloudcover": {"min": 0, "max": 100}
}`)

	region, err := LoadRegion(path)
	if err != nil {
		t.Fatalf("LoadRegion() error = %v", err)
	}
	if region.Name != "test-region" {
		t.Errorf("Name = %q", region.Name)
	}
}

func TestLoadRegionGeoJSONPath(t *testing.T) {
	dir := t.TempDir()
	geoPath := filepath.Join(dir, "roi.geojson")
	if err := os.WriteFile(geoPath, []byte(testGeoJSON), 0o644); err != nil {
		t.Fatalf("failed to write geojson: %v", err)
	}

	path := writeRegionFile(t, "region.json", `{
  "name": "test-region",
  "geojson_path": "`+geoPath+`",
  "dates": ["20200601", "20200630"],
  "size": [256, 256],
  "overlap": [0, 0],
  "cloudcover": {"min": 0, "max": 100}
}`)

	region, err := LoadRegion(path)
	if err != nil {
		t.Fatalf("LoadRegion() error = %v", err)
	}
	roi, err := region.ROI()
	if err != nil {
		t.Fatalf("ROI() error = %v", err)
	}
	if roi.Geometry.IsEmpty() {
		t.Error("ROI geometry is empty")
	}
}

func TestRegionValidate(t *testing.T) {
	valid := func() *Region {
		return &Region{
			Name:       "r",
			GeoJSON:    testGeoJSON,
			Dates:      [2]string{"20200601", "20200630"},
			Size:       [2]int{256, 256},
			Overlap:    [2]float64{0.5, 0.5},
			CloudCover: CloudCover{Min: 0, Max: 20},
		}
	}

	tests := []struct {
		name    string
		modify  func(*Region)
		wantErr string
	}{
		{name: "valid", modify: func(r *Region) {}},
		{
			name:    "missing name",
			modify:  func(r *Region) { r.Name = "" },
			wantErr: "name is required",
		},
		{
			name:    "missing geometry",
			modify:  func(r *Region) { r.GeoJSON = "" },
			wantErr: "geojson",
		},
		{
			name: "both geometry sources",
			modify: func(r *Region) {
				r.GeoJSONPath = "roi.geojson"
			},
			wantErr: "mutually exclusive",
		},
		{
			name:    "bad date",
			modify:  func(r *Region) { r.Dates[0] = "2020-06-01" },
			wantErr: "invalid start date",
		},
		{
			name: "reversed dates",
			modify: func(r *Region) {
				r.Dates = [2]string{"20200630", "20200601"}
			},
			wantErr: "before start date",
		},
		{
			name:    "zero size",
			modify:  func(r *Region) { r.Size = [2]int{0, 256} },
			wantErr: "patch size",
		},
		{
			name:    "overlap out of range",
			modify:  func(r *Region) { r.Overlap = [2]float64{1.0, 0} },
			wantErr: "overlap",
		},
		{
			name: "inverted cloud cover",
			modify: func(r *Region) {
				r.CloudCover = CloudCover{Min: 30, Max: 20}
			},
			wantErr: "cloud cover",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			region := valid()
			tt.modify(region)

			err := region.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
