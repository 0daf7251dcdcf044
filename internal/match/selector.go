package match

import (
	"time"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/pkg/geo"
)

// Epsilon is the area below which a remainder counts as geometrically
// exhausted, in square degrees.
const Epsilon = 1e-10

// Selection is one footprint chosen by the greedy selector, together
// with the slice of the target it covered at selection time.
type Selection struct {
	Footprint catalog.Footprint

	// Contribution is the intersection with the remainder as it stood
	// when this footprint was picked, not the footprint's full geometry.
	Contribution geom.Geometry
	Area         float64
}

// Coverage is the outcome of one greedy selection pass.
type Coverage struct {
	Selections []Selection

	// Percent is sum(contribution areas) / area(target) * 100. Not
	// guaranteed to reach 100; the caller owns the threshold policy.
	Percent float64
}

// Select runs a greedy set-cover pass: repeatedly take the best
// candidate per the sort rules, subtract its geometry from the
// remainder, and re-sort the survivors against what is left. The re-sort
// matters: a candidate ranked second against the full target can rank
// first once the top pick's area is gone.
//
// An empty candidate set, or one with no overlap at all, yields an empty
// Coverage rather than an error. The anchor is the primary acquisition
// time for secondary selection; pass the zero time otherwise.
func Select(target geom.Geometry, footprints []catalog.Footprint, anchor time.Time, rules []SortRule) (Coverage, error) {
	targetArea := target.Area()
	if targetArea <= 0 {
		return Coverage{}, nil
	}

	candidates, err := CoverageSort(footprints, target, anchor, rules)
	if err != nil {
		return Coverage{}, err
	}

	remaining := target
	var selections []Selection
	var covered float64

	for remaining.Area() >= Epsilon && len(candidates) > 0 {
		best := candidates[0]
		candidates = candidates[1:]

		contribution, err := geo.Intersection(best.Footprint.Geometry, remaining)
		if err != nil {
			return Coverage{}, err
		}
		area := contribution.Area()
		selections = append(selections, Selection{
			Footprint:    best.Footprint,
			Contribution: contribution,
			Area:         area,
		})
		covered += area

		remaining, err = geo.Difference(remaining, best.Footprint.Geometry)
		if err != nil {
			return Coverage{}, err
		}
		if remaining.Area() >= Epsilon {
			candidates, err = Resort(candidates, remaining, rules)
			if err != nil {
				return Coverage{}, err
			}
		}
	}

	return Coverage{
		Selections: selections,
		Percent:    covered / targetArea * 100,
	}, nil
}
