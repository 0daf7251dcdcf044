// Package geo provides ROI parsing and the geometry operations used by
// product matching: intersection, difference, and planar area in EPSG:4326.
package geo

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/peterstace/simplefeatures/geom"
)

// ROI is a region of interest: a named polygon or multipolygon in
// geographic coordinates.
type ROI struct {
	Name     string
	Geometry geom.Geometry
}

// ParseROI decodes a GeoJSON document into an ROI. The document may be a
// FeatureCollection, a single Feature, or a bare geometry. When a
// collection holds several features, the last feature's geometry wins.
// Invalid geometry is repaired where possible; empty geometry is rejected.
func ParseROI(name string, data []byte) (ROI, error) {
	raw, err := featureGeometry(data)
	if err != nil {
		return ROI{}, fmt.Errorf("failed to decode ROI geojson: %w", err)
	}

	g, err := FromGeoJSON(raw)
	if err != nil {
		return ROI{}, err
	}

	if g.IsEmpty() {
		return ROI{}, fmt.Errorf("ROI geometry is empty")
	}

	switch g.Type() {
	case geom.TypePolygon, geom.TypeMultiPolygon:
	default:
		return ROI{}, fmt.Errorf("ROI must be a Polygon or MultiPolygon, got %s", g.Type())
	}

	return ROI{Name: name, Geometry: g}, nil
}

// featureGeometry extracts the raw GeoJSON geometry from a
// FeatureCollection, Feature, or bare geometry document.
func featureGeometry(data []byte) (json.RawMessage, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		if len(fc.Features) == 0 {
			return nil, fmt.Errorf("feature collection has no features")
		}
		last := fc.Features[len(fc.Features)-1]
		return json.Marshal(geojson.NewGeometry(last.Geometry))
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		return json.Marshal(geojson.NewGeometry(f.Geometry))
	default:
		return data, nil
	}
}

// FromGeoJSON decodes a GeoJSON geometry object, repairing invalid
// geometry (the zero-buffer trick) before returning it.
func FromGeoJSON(raw []byte) (geom.Geometry, error) {
	g, err := geom.UnmarshalGeoJSON(raw, geom.NoValidate{})
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("failed to unmarshal geometry: %w", err)
	}
	return Repair(g)
}

// Repair returns a valid version of g. Self-intersecting rings are
// rebuilt by unioning the geometry with an empty geometry, which runs
// the overlay noding machinery without changing the covered area.
func Repair(g geom.Geometry) (geom.Geometry, error) {
	if err := g.Validate(); err == nil {
		return g, nil
	}
	fixed, err := geom.Union(g, geom.Geometry{})
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("failed to repair invalid geometry: %w", err)
	}
	return fixed, nil
}

// Intersection computes a ∩ b.
func Intersection(a, b geom.Geometry) (geom.Geometry, error) {
	out, err := geom.Intersection(a, b)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("intersection failed: %w", err)
	}
	return out, nil
}

// Difference computes a \ b.
func Difference(a, b geom.Geometry) (geom.Geometry, error) {
	out, err := geom.Difference(a, b)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("difference failed: %w", err)
	}
	return out, nil
}

// OverlapArea returns area(a ∩ b), or zero when the geometries are
// disjoint. The area is recomputed fresh on every call so that shrinking
// targets are always scored against their current extent.
func OverlapArea(a, b geom.Geometry) (float64, error) {
	if !geom.Intersects(a, b) {
		return 0, nil
	}
	overlap, err := Intersection(a, b)
	if err != nil {
		return 0, err
	}
	return overlap.Area(), nil
}

// ToWKT renders the geometry as WKT, the format catalog spatial filters
// expect.
func ToWKT(g geom.Geometry) string {
	return g.AsText()
}

// ToGeoJSON renders the geometry as a GeoJSON geometry object.
func ToGeoJSON(g geom.Geometry) ([]byte, error) {
	out, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal geometry: %w", err)
	}
	return out, nil
}
