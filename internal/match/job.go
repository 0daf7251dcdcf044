package match

import (
	"sort"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/window"
)

// Job is the unit handed to the download and collocation stages: one
// primary product, its optional secondary and historical companions, and
// the slice of the region the pairing covers. Never mutated after
// assembly.
type Job struct {
	Period    window.Period
	ROINumber int

	Primary    catalog.Footprint
	Secondary  *catalog.Footprint
	Historical *catalog.Footprint

	// Subset is the region slice the primary contributed; secondary
	// selection and cropping both operate on it, not the full region.
	Subset geom.Geometry
	Area   float64

	// PercentCovered is the whole period's achieved coverage.
	PercentCovered float64
}

// numberJobs orders a period's jobs by contribution area, largest first,
// and assigns the within-period sequence numbers. Ties keep selection
// order.
func numberJobs(jobs []Job) []Job {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].Area > jobs[j].Area
	})
	for i := range jobs {
		jobs[i].ROINumber = i + 1
	}
	return jobs
}
