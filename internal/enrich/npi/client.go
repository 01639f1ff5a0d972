// Package npi resolves national registry identifiers for harvested
// listings via the public registry API.
package npi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// Config holds the registry endpoint.
type Config struct {
	BaseURL string
	Version string
}

// Client queries the registry for one identifier at a time.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New constructs a Client around the provided http.Client.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.Version == "" {
		cfg.Version = "2.1"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, client: httpClient, logger: logger}
}

type registryResponse struct {
	ResultCount int `json:"result_count"`
	Results     []struct {
		Number string `json:"number"`
	} `json:"results"`
}

// Lookup resolves the registry identifier for a name within a region.
// An empty result is not an error; it means no identifier is known.
func (c *Client) Lookup(ctx context.Context, firstName, lastName, region string) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse registry url: %w", err)
	}
	q := u.Query()
	q.Set("version", c.cfg.Version)
	q.Set("first_name", firstName)
	q.Set("last_name", lastName)
	if region != "" {
		q.Set("state", region)
	}
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build registry request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("registry lookup: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("close registry body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("registry lookup: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read registry body: %w", err)
	}

	var parsed registryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode registry response: %w", err)
	}
	if parsed.ResultCount == 0 || len(parsed.Results) == 0 {
		return "", nil
	}
	return parsed.Results[0].Number, nil
}
