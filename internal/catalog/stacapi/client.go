// Package stacapi implements the catalog.Searcher interface against a
// STAC API endpoint, translating STAC items into catalog footprints.
package stacapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/planetlabs/go-stac"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/pkg/geo"
)

// Collection IDs used by the Copernicus STAC catalogue.
const (
	collectionS1GRD = "sentinel-1-grd"
	collectionS1SLC = "sentinel-1-slc"
	collectionS2L2A = "sentinel-2-l2a"
)

const pageLimit = 500

// itemCollection is a STAC search response: a GeoJSON FeatureCollection
// of items plus pagination links.
type itemCollection struct {
	Type     string       `json:"type"`
	Features []*stac.Item `json:"features"`
	Links    []searchLink `json:"links"`
}

// searchLink is a pagination link. Servers continuing a POST search
// supply the follow-up request body alongside the href.
type searchLink struct {
	Rel  string          `json:"rel"`
	Href string          `json:"href"`
	Body json.RawMessage `json:"body,omitempty"`
}

// searchRequest is the POST /search body.
type searchRequest struct {
	Collections []string        `json:"collections"`
	Intersects  json.RawMessage `json:"intersects,omitempty"`
	Datetime    string          `json:"datetime"`
	Limit       int             `json:"limit"`
	Query       map[string]any  `json:"query,omitempty"`
}

// Client queries a STAC API search endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a STAC API client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
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
	req := searchRequest{
		Collections: collectionsFor(params.Platform, params.ProductType),
		Datetime:    datetimeRange(params.Range),
		Limit:       pageLimit,
	}
	if !params.AOI.IsEmpty() {
		raw, err := geo.ToGeoJSON(params.AOI)
		if err != nil {
			return nil, err
		}
		req.Intersects = raw
	}
	query := map[string]any{}
	if params.CloudCover != nil {
		query["eo:cloud_cover"] = map[string]float64{
			"gte": params.CloudCover.Min,
			"lte": params.CloudCover.Max,
		}
	}
	if params.SensorMode != "" {
		query["sar:instrument_mode"] = map[string]string{"eq": params.SensorMode}
	}
	if len(query) > 0 {
		req.Query = query
	}
	return c.search(ctx, req)
}

// QueryHistorical implements catalog.Searcher.
func (c *Client) QueryHistorical(ctx context.Context, params catalog.HistoricalParams) ([]catalog.Footprint, error) {
	req := searchRequest{
		Collections: collectionsFor(params.Platform, params.ProductType),
		Datetime:    datetimeRange(params.Range),
		Limit:       pageLimit,
		Query:       map[string]any{},
	}
	if params.RelativeOrbit != 0 {
		req.Query["sat:relative_orbit"] = map[string]int{"eq": params.RelativeOrbit}
	}
	if params.SensorMode != "" {
		req.Query["sar:instrument_mode"] = map[string]string{"eq": params.SensorMode}
	}
	if params.SliceNumber != 0 {
		req.Query["s1:slice_number"] = map[string]int{"eq": params.SliceNumber}
	}

	footprints, err := c.search(ctx, req)
	if err != nil {
		return nil, err
	}
	// STAC query extensions for slice number are not universally
	// implemented, so re-check the constraint client-side.
	if params.SliceNumber != 0 {
		filtered := footprints[:0]
		for _, fp := range footprints {
			if fp.SliceNumber == 0 || fp.SliceNumber == params.SliceNumber {
				filtered = append(filtered, fp)
			}
		}
		footprints = filtered
	}
	return footprints, nil
}

func (c *Client) search(ctx context.Context, req searchRequest) ([]catalog.Footprint, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	c.logger.DebugContext(ctx, "executing STAC search",
		slog.String("collections", fmt.Sprint(req.Collections)),
		slog.String("datetime", req.Datetime),
	)

	url := c.baseURL + "/search"
	var footprints []catalog.Footprint
	for {
		ic, err := c.searchPage(ctx, url, body)
		if err != nil {
			return nil, err
		}

		for _, item := range ic.Features {
			fp, err := translateItem(item)
			if err != nil {
				c.logger.WarnContext(ctx, "skipping untranslatable STAC item",
					slog.String("id", item.Id),
					slog.String("error", err.Error()),
				)
				continue
			}
			footprints = append(footprints, fp)
		}

		next := nextLink(ic.Links)
		if next == nil {
			break
		}
		url = next.Href
		if len(next.Body) > 0 {
			body = next.Body
		}
		c.logger.DebugContext(ctx, "following STAC pagination link", slog.String("href", url))
	}

	c.logger.DebugContext(ctx, "STAC search completed", slog.Int("item_count", len(footprints)))
	return footprints, nil
}

// searchPage executes a single POST against the search endpoint and
// decodes one page of results.
func (c *Client) searchPage(ctx context.Context, url string, body []byte) (*itemCollection, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &catalog.QueryError{Backend: "stac", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &catalog.QueryError{
			Backend: "stac",
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("unexpected status: %s", string(respBody)),
		}
	}

	var ic itemCollection
	if err := json.NewDecoder(resp.Body).Decode(&ic); err != nil {
		return nil, &catalog.QueryError{Backend: "stac", Err: fmt.Errorf("failed to decode item collection: %w", err)}
	}
	return &ic, nil
}

func nextLink(links []searchLink) *searchLink {
	for i := range links {
		if links[i].Rel == "next" {
			return &links[i]
		}
	}
	return nil
}

func collectionsFor(p catalog.Platform, productType string) []string {
	switch p {
	case catalog.Sentinel1:
		if productType == "SLC" {
			return []string{collectionS1SLC}
		}
		return []string{collectionS1GRD}
	case catalog.Sentinel2:
		return []string{collectionS2L2A}
	}
	return nil
}

func datetimeRange(r catalog.DateRange) string {
	const layout = "2006-01-02T15:04:05Z"
	return r.Start.UTC().Format(layout) + "/" + r.End.UTC().Format(layout)
}
