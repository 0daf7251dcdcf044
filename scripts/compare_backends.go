// Script to compare OData and STAC API search results for Sentinel data
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog/odata"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog/stacapi"
)

const (
	odataBaseURL    = "https://catalogue.dataspace.copernicus.eu"
	odataZipperURL  = "https://zipper.dataspace.copernicus.eu"
	stacBaseURL     = "https://stac.dataspace.copernicus.eu"
	scotlandCentral = "POLYGON((-4.5 55.5,-3.5 55.5,-3.5 56.2,-4.5 56.2,-4.5 55.5))"
)

func main() {
	ctx := context.Background()

	aoi, err := geom.UnmarshalWKT(scotlandCentral)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad AOI: %v\n", err)
		os.Exit(1)
	}

	end := time.Now()
	start := end.AddDate(0, -1, 0)

	fmt.Println("=== Backend Comparison: Sentinel-1 GRD over central Scotland ===")
	fmt.Printf("Date range: %s to %s\n\n", start.Format("2006-01-02"), end.Format("2006-01-02"))

	params := catalog.SearchParams{
		AOI:         aoi,
		Range:       catalog.DateRange{Start: start, End: end},
		Platform:    catalog.Sentinel1,
		ProductType: "GRD",
		SensorMode:  "IW",
	}

	fmt.Println("Querying OData catalogue...")
	odataClient := odata.NewClient(odataBaseURL, odataZipperURL, 60*time.Second)
	odataResults, err := odataClient.Query(ctx, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "OData query failed: %v\n", err)
	} else {
		fmt.Printf("OData count: %d\n\n", len(odataResults))
	}

	fmt.Println("Querying STAC API...")
	stacClient := stacapi.NewClient(stacBaseURL, 60*time.Second)
	stacResults, err := stacClient.Query(ctx, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "STAC query failed: %v\n", err)
	} else {
		fmt.Printf("STAC count: %d\n\n", len(stacResults))
	}

	fmt.Println("=== Differences ===")
	printMissing("in OData but not STAC", odataResults, stacResults)
	printMissing("in STAC but not OData", stacResults, odataResults)
}

func printMissing(label string, a, b []catalog.Footprint) {
	have := make(map[string]bool, len(b))
	for _, fp := range b {
		have[fp.Title] = true
	}

	var missing []string
	for _, fp := range a {
		if !have[fp.Title] {
			missing = append(missing, fp.Title)
		}
	}

	fmt.Printf("%s: %d\n", label, len(missing))
	for i, title := range missing {
		if i >= 10 {
			fmt.Printf("  ... and %d more\n", len(missing)-10)
			break
		}
		fmt.Printf("  %s\n", title)
	}
	fmt.Println()
}
