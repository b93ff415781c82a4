// Package client provides a Go client library for the Atlas API server.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/granduke/atlas/pkg/model"
)

// Client communicates with the Atlas API server. The token is forwarded
// as-is in the Authorization header of every resolution request.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new Atlas API client pointing at the given base URL
// (e.g. "http://localhost:7130").
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// doJSON executes a request, checks for a 2xx status, and JSON-decodes
// the response body into target (when target is non-nil).
func (c *Client) doJSON(method, path string, params url.Values, target interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if target != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// Healthz checks whether the API server is healthy.
func (c *Client) Healthz() error {
	return c.doJSON(http.MethodGet, "/healthz", nil, nil)
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// AssetFilter narrows an asset listing. The zero value lists every
// permitted asset.
type AssetFilter struct {
	RootAsset   model.ID
	Season      model.ID
	Category    string
	ToFarmsOnly bool
	LocalOnly   bool
}

// ListAssets retrieves the assets the token holder may read, narrowed by
// the filter.
func (c *Client) ListAssets(f AssetFilter) ([]*model.Asset, error) {
	params := url.Values{}
	if f.RootAsset != 0 {
		params.Set("rootAsset", f.RootAsset.String())
	}
	if f.Season != 0 {
		params.Set("season", f.Season.String())
	}
	if f.Category != "" {
		params.Set("category", f.Category)
	}
	if f.ToFarmsOnly {
		params.Set("toFarmsOnly", "true")
	}
	if f.LocalOnly {
		params.Set("localOnly", "true")
	}

	var assets []*model.Asset
	if err := c.doJSON(http.MethodGet, "/api/v1/assets", params, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// ListLayers retrieves layers under the root asset for the season.
func (c *Client) ListLayers(rootAsset, season model.ID) ([]*model.Layer, error) {
	params := url.Values{}
	params.Set("rootAsset", rootAsset.String())
	params.Set("season", season.String())

	var layers []*model.Layer
	if err := c.doJSON(http.MethodGet, "/api/v1/layers", params, &layers); err != nil {
		return nil, err
	}
	return layers, nil
}

// ListHybrids retrieves crop varieties, optionally filtered by crop.
func (c *Client) ListHybrids(crop model.ID) ([]*model.Hybrid, error) {
	params := url.Values{}
	if crop != 0 {
		params.Set("crop", crop.String())
	}

	var hybrids []*model.Hybrid
	if err := c.doJSON(http.MethodGet, "/api/v1/hybrids", params, &hybrids); err != nil {
		return nil, err
	}
	return hybrids, nil
}

// ---------------------------------------------------------------------------
// Cache maintenance
// ---------------------------------------------------------------------------

// Stats mirrors the server's cache statistics payload.
type Stats struct {
	Assets      int   `json:"assets"`
	Shapes      int   `json:"shapes"`
	Layers      int   `json:"layers"`
	Hybrids     int   `json:"hybrids"`
	Users       int   `json:"users"`
	Permissions int   `json:"permissions"`
	Rebuilds    int64 `json:"rebuilds"`
}

// Stats retrieves the cache statistics.
func (c *Client) Stats() (*Stats, error) {
	var stats Stats
	if err := c.doJSON(http.MethodGet, "/api/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Reindex triggers a synchronous hierarchy index rebuild.
func (c *Client) Reindex() error {
	return c.doJSON(http.MethodPost, "/api/v1/reindex", nil, nil)
}
