// Package api implements the origin directory API client: page fetches
// against the listings endpoint and crawl-space enumeration against the
// browse endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/harvestlabs/dirharvest/internal/harvest"
	"github.com/harvestlabs/dirharvest/internal/metrics"
)

// Config holds the origin endpoints and request shaping knobs.
type Config struct {
	// ListingsURL is the paginated listings endpoint.
	ListingsURL string
	// RegionsURL lists the outer crawl partitions.
	RegionsURL string
	// LocalitiesURL lists a region's inner partitions; the region is
	// passed as filter[region].
	LocalitiesURL string
	UserAgent     string
	// Include asks the origin to embed related objects in the response.
	Include string
	// ExtraParams are fixed query parameters sent with every listings
	// request (feature flags and the like).
	ExtraParams map[string]string
}

// Client talks to the origin API over a shared http.Client constructed
// once at run start.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New constructs a Client around the provided http.Client.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, client: httpClient, logger: logger}
}

// envelope is the origin's page response shape.
type envelope struct {
	Data     []harvest.RawItem `json:"data"`
	Included []harvest.RawItem `json:"included"`
	Links    pageLinks         `json:"links"`
}

type pageLinks struct {
	Next string `json:"next"`
}

// PageURL builds the listings request URL for one page. The next-page
// indicator from the previous response, when present, is followed
// verbatim; otherwise the URL is built from the page number.
func (c *Client) PageURL(req harvest.PageRequest) (string, error) {
	if req.Cursor != "" {
		return req.Cursor, nil
	}
	u, err := url.Parse(c.cfg.ListingsURL)
	if err != nil {
		return "", fmt.Errorf("parse listings url: %w", err)
	}
	q := u.Query()
	q.Set("filter[directoryPageUrl]", req.Locality.ID)
	q.Set("page[number]", strconv.Itoa(req.Page))
	q.Set("page[size]", strconv.Itoa(req.PageSize))
	if c.cfg.Include != "" {
		q.Set("include", c.cfg.Include)
	}
	for k, v := range c.cfg.ExtraParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseEnvelope decodes a raw page body into a PageResponse.
func ParseEnvelope(body []byte) (harvest.PageResponse, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return harvest.PageResponse{}, fmt.Errorf("decode page envelope: %w", err)
	}
	return harvest.PageResponse{
		Items:    env.Data,
		Included: env.Included,
		Next:     env.Links.Next,
		Raw:      body,
	}, nil
}

// FetchPage requests one page of one locality's walk.
func (c *Client) FetchPage(ctx context.Context, req harvest.PageRequest) (harvest.PageResponse, error) {
	target, err := c.PageURL(req)
	if err != nil {
		return harvest.PageResponse{}, err
	}

	body, err := c.get(ctx, target)
	if err != nil {
		metrics.ObservePage(req.Region.ID, false)
		return harvest.PageResponse{}, err
	}
	metrics.ObservePage(req.Region.ID, true)

	return ParseEnvelope(body)
}

// regionsEnvelope is the browse-regions response shape: each item
// carries a batch of region names.
type regionsEnvelope struct {
	Data []struct {
		Attributes struct {
			Regions []string `json:"regions"`
		} `json:"attributes"`
	} `json:"data"`
}

// ListRegions fetches and de-duplicates the region list, preserving
// origin order.
func (c *Client) ListRegions(ctx context.Context) ([]harvest.Region, error) {
	body, err := c.get(ctx, c.cfg.RegionsURL)
	if err != nil {
		return nil, fmt.Errorf("browse regions: %w", err)
	}
	var env regionsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode regions: %w", err)
	}

	seen := make(map[string]struct{})
	var regions []harvest.Region
	for _, item := range env.Data {
		for _, name := range item.Attributes.Regions {
			key := strings.ToLower(name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			regions = append(regions, harvest.Region{ID: key, Name: name})
		}
	}
	c.logger.Info("regions enumerated", zap.Int("count", len(regions)))
	return regions, nil
}

// localitiesEnvelope is the browse-localities response shape.
type localitiesEnvelope struct {
	Data []struct {
		Attributes struct {
			Localities []string `json:"localities"`
		} `json:"attributes"`
	} `json:"data"`
}

// ListLocalities fetches a region's localities. Each origin entry is
// "Name, RC"; the locality ID is the slug the listings endpoint filters
// on ("name-rc").
func (c *Client) ListLocalities(ctx context.Context, region harvest.Region) ([]harvest.Locality, error) {
	u, err := url.Parse(c.cfg.LocalitiesURL)
	if err != nil {
		return nil, fmt.Errorf("parse localities url: %w", err)
	}
	q := u.Query()
	q.Set("filter[region]", region.ID)
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("browse localities for %s: %w", region.ID, err)
	}
	var env localitiesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode localities: %w", err)
	}

	seen := make(map[string]struct{})
	var localities []harvest.Locality
	for _, item := range env.Data {
		for _, entry := range item.Attributes.Localities {
			name, code, ok := splitLocality(entry)
			if !ok {
				c.logger.Warn("malformed locality entry, skipping",
					zap.String("region", region.ID), zap.String("entry", entry))
				continue
			}
			id := slugify(name) + "-" + strings.ToLower(code)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			localities = append(localities, harvest.Locality{
				ID:     id,
				Name:   name,
				Region: region.ID,
			})
		}
	}
	c.logger.Info("localities enumerated",
		zap.String("region", region.ID), zap.Int("count", len(localities)))
	return localities, nil
}

// get issues one GET and returns the body. Any non-2xx status is an
// error so the caller's retry policy can treat it as transient.
func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("close response body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: unexpected status %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func splitLocality(entry string) (name, code string, ok bool) {
	parts := strings.Split(entry, ",")
	if len(parts) != 2 {
		return "", "", false
	}
	name = strings.TrimSpace(parts[0])
	code = strings.TrimSpace(parts[1])
	if name == "" || code == "" {
		return "", "", false
	}
	return name, code, true
}

func slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}
