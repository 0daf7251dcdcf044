// Package match implements the product matching core: coverage-based
// sorting, the greedy coverage selector, partial-coverage policies, and
// the primary/secondary pairing orchestrator.
package match

import (
	"fmt"
	"sort"
	"time"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/pkg/geo"
)

// SortKey names a metric a candidate set can be ordered by.
type SortKey string

const (
	// KeyOverlapArea is the area of intersection between the candidate
	// footprint and the current target polygon.
	KeyOverlapArea SortKey = "overlap_area"

	// KeyCloudCover is the optical cloud cover percentage.
	KeyCloudCover SortKey = "cloud_cover"

	// KeyAcquired is the sensing start as seconds since the epoch.
	KeyAcquired SortKey = "acquired"

	// KeyTimeDelta is the absolute distance in hours between a secondary
	// candidate's sensing start and the primary it would be paired with.
	KeyTimeDelta SortKey = "time_delta"
)

// SortRule is one key of a multi-key sort with its direction.
type SortRule struct {
	Key       SortKey
	Ascending bool
}

// DefaultPrimaryRules returns the default sort order for primary
// selection on the given platform: largest overlap first, then least
// cloudy (optical only), then earliest acquisition.
func DefaultPrimaryRules(p catalog.Platform) []SortRule {
	if p == catalog.Sentinel2 {
		return []SortRule{
			{Key: KeyOverlapArea, Ascending: false},
			{Key: KeyCloudCover, Ascending: true},
			{Key: KeyAcquired, Ascending: true},
		}
	}
	return []SortRule{
		{Key: KeyOverlapArea, Ascending: false},
		{Key: KeyAcquired, Ascending: true},
	}
}

// DefaultSecondaryRules returns the default sort order for pairing a
// secondary product with an already chosen primary: largest overlap
// first, then temporally closest to the primary.
func DefaultSecondaryRules() []SortRule {
	return []SortRule{
		{Key: KeyOverlapArea, Ascending: false},
		{Key: KeyTimeDelta, Ascending: true},
	}
}

// ScoredCandidate pairs a footprint with its metric values, computed
// once per sort invocation against a specific target. The metrics map is
// never mutated after construction.
type ScoredCandidate struct {
	Footprint catalog.Footprint
	Metrics   map[SortKey]float64
}

// Score computes a candidate's metrics against the target polygon. The
// anchor is the primary acquisition time for secondary sorts; pass the
// zero time when no primary applies.
func Score(fp catalog.Footprint, target geom.Geometry, anchor time.Time) (ScoredCandidate, error) {
	overlap, err := geo.OverlapArea(fp.Geometry, target)
	if err != nil {
		return ScoredCandidate{}, fmt.Errorf("failed to score %s: %w", fp.Title, err)
	}
	metrics := map[SortKey]float64{
		KeyOverlapArea: overlap,
		KeyCloudCover:  fp.CloudCover,
		KeyAcquired:    float64(fp.Acquired.Unix()),
	}
	if !anchor.IsZero() {
		metrics[KeyTimeDelta] = abs(fp.Acquired.Sub(anchor).Hours())
	}
	return ScoredCandidate{Footprint: fp, Metrics: metrics}, nil
}

// CoverageSort scores every footprint against the target, drops the ones
// with no overlap, and stably sorts the survivors by the given rules.
// Candidates with equal keys keep their input order.
func CoverageSort(footprints []catalog.Footprint, target geom.Geometry, anchor time.Time, rules []SortRule) ([]ScoredCandidate, error) {
	scored := make([]ScoredCandidate, 0, len(footprints))
	for _, fp := range footprints {
		sc, err := Score(fp, target, anchor)
		if err != nil {
			return nil, err
		}
		if sc.Metrics[KeyOverlapArea] <= 0 {
			continue
		}
		scored = append(scored, sc)
	}
	sortScored(scored, rules)
	return scored, nil
}

// Resort reorders already scored candidates against a new target,
// refreshing only the overlap metric. Used by the greedy selector when
// the remainder shrinks.
func Resort(scored []ScoredCandidate, target geom.Geometry, rules []SortRule) ([]ScoredCandidate, error) {
	kept := make([]ScoredCandidate, 0, len(scored))
	for _, sc := range scored {
		overlap, err := geo.OverlapArea(sc.Footprint.Geometry, target)
		if err != nil {
			return nil, fmt.Errorf("failed to rescore %s: %w", sc.Footprint.Title, err)
		}
		if overlap <= 0 {
			continue
		}
		metrics := make(map[SortKey]float64, len(sc.Metrics))
		for k, v := range sc.Metrics {
			metrics[k] = v
		}
		metrics[KeyOverlapArea] = overlap
		kept = append(kept, ScoredCandidate{Footprint: sc.Footprint, Metrics: metrics})
	}
	sortScored(kept, rules)
	return kept, nil
}

func sortScored(scored []ScoredCandidate, rules []SortRule) {
	sort.SliceStable(scored, func(i, j int) bool {
		for _, rule := range rules {
			a, b := scored[i].Metrics[rule.Key], scored[j].Metrics[rule.Key]
			if a == b {
				continue
			}
			if rule.Ascending {
				return a < b
			}
			return a > b
		}
		return false
	})
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
