// Package odata implements the catalog.Searcher interface against the
// Copernicus Data Space OData products API.
package odata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/pkg/geo"
)

// pageSize is the $top value per request; further pages are fetched by
// following @odata.nextLink.
const pageSize = 1000

// Client queries the Copernicus OData catalogue.
type Client struct {
	baseURL     string
	downloadURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates an OData catalogue client.
func NewClient(baseURL, downloadURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:     baseURL,
		downloadURL: downloadURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// Query implements catalog.Searcher.
func (c *Client) Query(ctx context.Context, params catalog.SearchParams) ([]catalog.Footprint, error) {
	f := &Filter{}
	f.Collection(collectionName(params.Platform))
	if !params.AOI.IsEmpty() {
		f.Intersects(geo.ToWKT(params.AOI))
	}
	f.SensingBetween(params.Range.Start, params.Range.End)
	if params.ProductType != "" {
		f.StringAttr("productType", params.ProductType)
	}
	if params.SensorMode != "" {
		f.StringAttr("operationalMode", params.SensorMode)
	}
	if params.CloudCover != nil {
		f.CloudCoverBetween(params.CloudCover.Min, params.CloudCover.Max)
	}
	return c.search(ctx, f)
}

// QueryHistorical implements catalog.Searcher.
func (c *Client) QueryHistorical(ctx context.Context, params catalog.HistoricalParams) ([]catalog.Footprint, error) {
	f := &Filter{}
	f.Collection(collectionName(params.Platform))
	f.SensingBetween(params.Range.Start, params.Range.End)
	if params.ProductType != "" {
		f.StringAttr("productType", params.ProductType)
	}
	if params.SensorMode != "" {
		f.StringAttr("operationalMode", params.SensorMode)
	}
	if params.Polarisation != "" {
		f.StringAttr("polarisationChannels", params.Polarisation)
	}
	if params.RelativeOrbit != 0 {
		f.IntAttr("relativeOrbitNumber", params.RelativeOrbit)
	}
	if params.SliceNumber != 0 {
		f.IntAttr("sliceNumber", params.SliceNumber)
	}
	return c.search(ctx, f)
}

// search executes a filtered products query, following pagination links
// until the result set is exhausted.
func (c *Client) search(ctx context.Context, f *Filter) ([]catalog.Footprint, error) {
	query := url.Values{}
	query.Set("$filter", f.String())
	query.Set("$orderby", "ContentDate/Start asc")
	query.Set("$top", strconv.Itoa(pageSize))
	query.Set("$expand", "Attributes")

	next := c.baseURL + "/odata/v1/Products?" + query.Encode()

	var footprints []catalog.Footprint
	for next != "" {
		c.logger.DebugContext(ctx, "executing catalogue query", slog.String("url", next))

		page, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		for i := range page.Value {
			fp, err := c.translate(&page.Value[i])
			if err != nil {
				c.logger.WarnContext(ctx, "skipping untranslatable product",
					slog.String("id", page.Value[i].ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			footprints = append(footprints, fp)
		}
		next = page.NextLink
	}

	c.logger.DebugContext(ctx, "catalogue query completed", slog.Int("product_count", len(footprints)))
	return footprints, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*productsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "senprep/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &catalog.QueryError{Backend: "odata", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "catalogue returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return nil, &catalog.QueryError{
			Backend: "odata",
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("unexpected status: %s", string(body)),
		}
	}

	var page productsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, &catalog.QueryError{Backend: "odata", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return &page, nil
}

// translate converts an OData product into the catalog footprint model.
func (c *Client) translate(p *Product) (catalog.Footprint, error) {
	if len(p.GeoFootprint) == 0 {
		return catalog.Footprint{}, fmt.Errorf("product %s has no footprint geometry", p.ID)
	}
	g, err := geo.FromGeoJSON(p.GeoFootprint)
	if err != nil {
		return catalog.Footprint{}, fmt.Errorf("product %s: %w", p.ID, err)
	}

	acquired, err := parseTime(p.ContentDate.Start)
	if err != nil {
		return catalog.Footprint{}, fmt.Errorf("product %s has bad sensing time: %w", p.ID, err)
	}
	ingested, err := parseTime(p.PublicationDate)
	if err != nil {
		ingested = acquired
	}

	fp := catalog.Footprint{
		UUID:         p.ID,
		Title:        trimSAFE(p.Name),
		Platform:     platformOf(p.Attributes),
		Acquired:     acquired,
		Ingested:     ingested,
		Geometry:     g,
		ProductType:  stringAttr(p.Attributes, "productType"),
		SensorMode:   stringAttr(p.Attributes, "operationalMode"),
		Polarisation: stringAttr(p.Attributes, "polarisationChannels"),
		Size:         p.ContentLength,
		Href:         fmt.Sprintf("%s/odata/v1/Products(%s)/$value", c.downloadURL, p.ID),
		Online:       p.Online,
		MD5:          md5Checksum(p.Checksums),
	}
	if cc, ok := floatAttr(p.Attributes, "cloudCover"); ok {
		fp.CloudCover = cc
	}
	if v, ok := intAttr(p.Attributes, "orbitNumber"); ok {
		fp.OrbitNumber = v
	}
	if v, ok := intAttr(p.Attributes, "relativeOrbitNumber"); ok {
		fp.RelativeOrbit = v
	}
	if v, ok := intAttr(p.Attributes, "sliceNumber"); ok {
		fp.SliceNumber = v
	}
	return fp, nil
}

func collectionName(p catalog.Platform) string {
	switch p {
	case catalog.Sentinel1:
		return "SENTINEL-1"
	case catalog.Sentinel2:
		return "SENTINEL-2"
	default:
		return string(p)
	}
}

func platformOf(attrs []Attribute) catalog.Platform {
	switch stringAttr(attrs, "platformShortName") {
	case "SENTINEL-1":
		return catalog.Sentinel1
	case "SENTINEL-2":
		return catalog.Sentinel2
	}
	return ""
}

// trimSAFE drops the archive suffix so titles match on-disk product
// directory names.
func trimSAFE(name string) string {
	const suffix = ".SAFE"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		return name[:len(name)-len(suffix)]
	}
	return name
}

// parseTime accepts the catalogue's timestamp renderings, with or
// without fractional seconds.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02T15:04:05.000Z",
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
