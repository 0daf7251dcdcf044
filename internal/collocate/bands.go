package collocate

import (
	"strings"
	"time"
)

// Default band selections passed to the processing graphs.
var (
	DefaultBandsS1 = []string{"Sigma0_VV_S", "Sigma0_VH_S", "collocationFlags"}
	DefaultBandsS2 = []string{
		"B2_M", "B3_M", "B4_M", "B8_M",
		"opaque_clouds_10m", "cirrus_clouds_10m", "scl_cloud_shadow_10m",
		"scl_cloud_medium_proba_10m", "scl_cloud_high_proba_10m", "scl_thin_cirrus_10m",
	}
)

// bandDateLayout renders acquisition dates the way the graph variables
// expect them, e.g. 03Jun2020.
const bandDateLayout = "02Jan2006"

// JoinBands renders a band list as the comma separated string the
// graphs take.
func JoinBands(bands []string) string {
	return strings.Join(bands, ",")
}

// SingleBandsS1 renders the radar band list for a standalone product,
// where the collocation suffix and flags band do not apply.
func SingleBandsS1(bands []string) string {
	kept := make([]string, 0, len(bands))
	for _, b := range bands {
		if b == "collocationFlags" {
			continue
		}
		kept = append(kept, strings.ReplaceAll(b, "_S", ""))
	}
	return strings.Join(kept, ",")
}

// SingleBandsS2 renders the optical band list for a standalone product,
// dropping the master suffix.
func SingleBandsS2(bands []string) string {
	return strings.ReplaceAll(strings.Join(bands, ","), "_M", "")
}

// dropCollocationFlags removes the flags band, which the two-date and
// standalone graphs do not produce.
func dropCollocationFlags(bands []string) []string {
	kept := make([]string, 0, len(bands))
	for _, b := range bands {
		if b != "collocationFlags" {
			kept = append(kept, b)
		}
	}
	return kept
}

// MultitemporalGRDBands renders the radar band string for the GRD
// two-date graph: the current acquisition's bands carry an _S0 suffix
// and the historical acquisition's an _S1 suffix.
func MultitemporalGRDBands(bands []string) string {
	joined := strings.Join(dropCollocationFlags(bands), ",")
	current := strings.ReplaceAll(joined, "_S", "_S0")
	historical := strings.ReplaceAll(joined, "_S", "_S1")
	return current + "," + historical
}

// MultitemporalSLCBands renders the radar band string for the SLC
// two-date graph. Coregistration renames the sigma bands per slave
// image and date, and the graph additionally produces coherence bands
// for both polarisations.
func MultitemporalSLCBands(bands []string, current, historical time.Time) string {
	cur := current.Format(bandDateLayout)
	old := historical.Format(bandDateLayout)

	joined := strings.Join(dropCollocationFlags(bands), ",")
	currentBands := strings.ReplaceAll(joined, "Sigma0_VH", "Sigma0_VH_slv1_"+cur)
	currentBands = strings.ReplaceAll(currentBands, "Sigma0_VV", "Sigma0_VV_slv2_"+cur)
	historicalBands := strings.ReplaceAll(joined, "Sigma0_VH", "Sigma0_VH_slv3_"+old)
	historicalBands = strings.ReplaceAll(historicalBands, "Sigma0_VV", "Sigma0_VV_slv4_"+old)

	coherence := "coh_VH_" + cur + "_" + old + "_S,coh_VV_" + cur + "_" + old + "_S"
	return currentBands + "," + historicalBands + "," + coherence
}
