package stacapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/planetlabs/go-stac"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/pkg/geo"
)

// translateItem converts a STAC item into a catalog footprint.
func translateItem(item *stac.Item) (catalog.Footprint, error) {
	if item.Geometry == nil {
		return catalog.Footprint{}, fmt.Errorf("item %s has no geometry", item.Id)
	}
	raw, err := json.Marshal(item.Geometry)
	if err != nil {
		return catalog.Footprint{}, fmt.Errorf("failed to marshal geometry for %s: %w", item.Id, err)
	}
	g, err := geo.FromGeoJSON(raw)
	if err != nil {
		return catalog.Footprint{}, fmt.Errorf("failed to parse geometry for %s: %w", item.Id, err)
	}

	acquired, err := propTime(item.Properties, "datetime")
	if err != nil {
		return catalog.Footprint{}, fmt.Errorf("item %s: %w", item.Id, err)
	}
	// Not every catalogue publishes the ingestion timestamp; fall back
	// to the acquisition time so tie-breaking stays deterministic.
	ingested, err := propTime(item.Properties, "created")
	if err != nil {
		ingested = acquired
	}

	fp := catalog.Footprint{
		UUID:          item.Id,
		Title:         strings.TrimSuffix(item.Id, ".SAFE"),
		Platform:      platformOf(item),
		Acquired:      acquired,
		Ingested:      ingested,
		Geometry:      g,
		ProductType:   propString(item.Properties, "product:type"),
		SensorMode:    propString(item.Properties, "sar:instrument_mode"),
		Polarisation:  strings.Join(propStrings(item.Properties, "sar:polarizations"), " "),
		OrbitNumber:   propInt(item.Properties, "sat:absolute_orbit"),
		RelativeOrbit: propInt(item.Properties, "sat:relative_orbit"),
		SliceNumber:   propInt(item.Properties, "s1:slice_number"),
	}
	if cc, ok := item.Properties["eo:cloud_cover"].(float64); ok {
		fp.CloudCover = cc
	}
	if asset, ok := item.Assets["product"]; ok && asset != nil {
		fp.Href = asset.Href
		fp.Online = true
	}
	return fp, nil
}

func platformOf(item *stac.Item) catalog.Platform {
	platform := strings.ToLower(propString(item.Properties, "platform"))
	switch {
	case strings.HasPrefix(platform, "sentinel-1"):
		return catalog.Sentinel1
	case strings.HasPrefix(platform, "sentinel-2"):
		return catalog.Sentinel2
	}
	switch {
	case strings.HasPrefix(item.Collection, "sentinel-1"):
		return catalog.Sentinel1
	case strings.HasPrefix(item.Collection, "sentinel-2"):
		return catalog.Sentinel2
	}
	return ""
}

func propString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func propStrings(props map[string]any, key string) []string {
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func propInt(props map[string]any, key string) int {
	f, _ := props[key].(float64)
	return int(f)
}

func propTime(props map[string]any, key string) (time.Time, error) {
	s, ok := props[key].(string)
	if !ok || s == "" {
		return time.Time{}, fmt.Errorf("missing %s property", key)
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000000Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable %s property: %q", key, s)
}
