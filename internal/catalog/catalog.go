// Package catalog defines the product catalog model and the search
// interface implemented by the OData and STAC backends.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/peterstace/simplefeatures/geom"
)

// Platform identifies the satellite constellation a product belongs to.
type Platform string

const (
	Sentinel1 Platform = "Sentinel-1"
	Sentinel2 Platform = "Sentinel-2"
)

// Footprint is one candidate product: its coverage geometry plus the
// metadata the matching algorithm sorts and filters on. Immutable once
// fetched.
type Footprint struct {
	UUID     string
	Title    string
	Platform Platform

	// Acquired is the sensing start; Ingested is when the product
	// entered the archive (used to break historical-candidate ties).
	Acquired time.Time
	Ingested time.Time

	Geometry geom.Geometry

	// Optical attributes.
	CloudCover float64

	// Radar attributes.
	ProductType   string
	SensorMode    string
	Polarisation  string
	OrbitNumber   int
	RelativeOrbit int
	SliceNumber   int

	// Download metadata.
	Size   int64
	Href   string
	Online bool
	MD5    string
}

// DateRange is an inclusive sensing-time window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// CloudCoverRange bounds acceptable cloud cover percentages for optical
// queries.
type CloudCoverRange struct {
	Min float64
	Max float64
}

// SearchParams describes a spatially filtered catalog query.
type SearchParams struct {
	AOI      geom.Geometry
	Range    DateRange
	Platform Platform

	// Optional filters.
	ProductType string
	SensorMode  string
	CloudCover  *CloudCoverRange
}

// HistoricalParams describes an orbit-matched lookback query. There is
// no spatial filter: the repeat orbit constraint pins the geometry.
type HistoricalParams struct {
	Range         DateRange
	Platform      Platform
	ProductType   string
	SensorMode    string
	Polarisation  string
	RelativeOrbit int
	SliceNumber   int
}

// Searcher is the catalog query interface the matching core consumes.
type Searcher interface {
	// Query returns candidate footprints intersecting the AOI within
	// the date range, newest metadata included. An empty result is not
	// an error.
	Query(ctx context.Context, params SearchParams) ([]Footprint, error)

	// QueryHistorical returns acquisitions matching the orbital
	// constraints within the lookback window.
	QueryHistorical(ctx context.Context, params HistoricalParams) ([]Footprint, error)
}

// QueryError marks a failure of the external search API, as opposed to a
// local programming error. The orchestrator recovers from these during
// historical lookback and aborts on everything else.
type QueryError struct {
	Backend string
	Status  int
	Err     error
}

func (e *QueryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s query failed with status %d: %v", e.Backend, e.Status, e.Err)
	}
	return fmt.Sprintf("%s query failed: %v", e.Backend, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
