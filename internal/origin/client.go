// Package origin retrieves asset, layer, hybrid, user, and permission
// records from the authoritative origin service.
package origin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/granduke/atlas/pkg/model"
)

// ErrUnavailable wraps any transport failure or non-2xx origin response.
var ErrUnavailable = fmt.Errorf("origin unavailable")

// StatusError carries a non-2xx origin response. The body is surfaced as
// the error detail.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("origin error (status %d): %s", e.Status, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnavailable }

// Client communicates with the origin REST service.
type Client struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	logger       *zap.Logger
}

// New creates an origin client. serviceToken is the privileged
// credential used only for ToFarmsOnly warm-up fetches; results obtained
// under it must never reach a caller without a permission-checked cache
// read in between.
func New(baseURL, serviceToken string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// AssetQuery selects assets on the origin side.
type AssetQuery struct {
	RootAsset   model.ID
	Season      model.ID
	Category    string
	ToFarmsOnly bool
	Shape       bool
}

// queryParams renders the non-zero filters in origin wire form
// (booleans as "True").
func (q AssetQuery) queryParams() url.Values {
	params := url.Values{}
	if q.RootAsset != 0 {
		params.Set("rootAsset", q.RootAsset.String())
	}
	if q.Season != 0 {
		params.Set("season", q.Season.String())
	}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.ToFarmsOnly {
		params.Set("toFarmsOnly", "True")
	}
	if q.Shape {
		params.Set("shape", "True")
	}
	return params
}

// path picks the resource path: filtered by rootAsset or season the
// origin serves field-level assets from a dedicated endpoint.
func (q AssetQuery) path() string {
	if q.RootAsset != 0 || q.Season != 0 {
		return "asset/field/"
	}
	return "asset/"
}

// FetchAssets retrieves assets matching the query. In ToFarmsOnly mode
// the privileged service credential replaces the caller's token.
func (c *Client) FetchAssets(ctx context.Context, q AssetQuery, token string) ([]*model.Asset, error) {
	if q.ToFarmsOnly {
		token = c.serviceToken
	}
	var assets []*model.Asset
	if err := c.getJSON(ctx, q.path(), q.queryParams(), token, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// LayerQuery selects layers by root asset and season.
type LayerQuery struct {
	RootAsset model.ID
	Season    model.ID
}

// FetchLayers retrieves layers for the query.
func (c *Client) FetchLayers(ctx context.Context, q LayerQuery, token string) ([]*model.Layer, error) {
	params := url.Values{}
	if q.RootAsset != 0 {
		params.Set("rootAsset", q.RootAsset.String())
	}
	if q.Season != 0 {
		params.Set("season", q.Season.String())
	}
	var layers []*model.Layer
	if err := c.getJSON(ctx, "layer/", params, token, &layers); err != nil {
		return nil, err
	}
	return layers, nil
}

// FetchHybrids retrieves crop varieties, optionally filtered by crop.
func (c *Client) FetchHybrids(ctx context.Context, crop model.ID, token string) ([]*model.Hybrid, error) {
	params := url.Values{}
	if crop != 0 {
		params.Set("crop", crop.String())
	}
	var hybrids []*model.Hybrid
	if err := c.getJSON(ctx, "crop/variety/", params, token, &hybrids); err != nil {
		return nil, err
	}
	return hybrids, nil
}

// FetchCurrentUser resolves the user owning the token.
func (c *Client) FetchCurrentUser(ctx context.Context, token string) (*model.User, error) {
	// The origin nests the username under a "user" object on this
	// endpoint.
	var wire struct {
		ID       model.ID `json:"id"`
		Username string   `json:"username"`
		User     struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := c.getJSON(ctx, "client/currentuser/", nil, token, &wire); err != nil {
		return nil, err
	}
	username := wire.Username
	if wire.User.Username != "" {
		username = wire.User.Username
	}
	return &model.User{ID: wire.ID, Username: username}, nil
}

// FetchPermissions retrieves the user's permission records from the
// sentinel root down.
func (c *Client) FetchPermissions(ctx context.Context, userID model.ID, token string) ([]*model.Permission, error) {
	params := url.Values{}
	params.Set("clientID", userID.String())
	params.Set("assetID", fmt.Sprintf("%d", model.RootSentinelID))

	var perms []*model.Permission
	if err := c.getJSON(ctx, "permission/", params, token, &perms); err != nil {
		return nil, err
	}
	for _, perm := range perms {
		perm.UserID = userID
	}
	return perms, nil
}

// getJSON issues an authenticated GET and decodes a 2xx JSON body into
// target. Non-2xx responses surface the body as the error detail; no
// retries are attempted at this layer.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, token string, target interface{}) error {
	u := c.baseURL + "/" + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("origin fetch", zap.String("url", u))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	if len(body) > 0 {
		if err := json.Unmarshal(body, target); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}
