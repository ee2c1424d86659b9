// Package search queries the hosted search index for service listings. The
// index is an external collaborator: we send free text plus an optional
// category facet and re-map the hits into the Service shape, deriving price
// and delivery from each hit's nested package array.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/record"
)

// Request is one search invocation.
type Request struct {
	Query    string
	Category string
	Limit    int
	Page     int
}

// Client talks to the hosted index.
type Client struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
	logger   *logging.Logger
}

// NewClient creates a search client. endpoint is the full query URL.
func NewClient(endpoint, apiKey string, logger *logging.Logger) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		httpc:    &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

// WithHTTPClient overrides the underlying HTTP client (tests).
func (c *Client) WithHTTPClient(httpc *http.Client) *Client {
	c.httpc = httpc
	return c
}

type hitsEnvelope struct {
	Hits []record.Raw `json:"hits"`
}

// Search runs a query and maps the hits to Services.
func (c *Client) Search(ctx context.Context, req Request) ([]record.Service, error) {
	if c.endpoint == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "search endpoint not configured").
			WithUserMessage("Search is not configured for this workspace.").
			WithRemediation("set search.endpoint in config.yaml")
	}

	params := url.Values{}
	params.Set("q", req.Query)
	if req.Category != "" {
		params.Set("category", req.Category)
	}
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Page > 0 {
		params.Set("page", strconv.Itoa(req.Page))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "building search request")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTransport, "search request failed").WithRetryable(true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTransport, "reading search response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New(errors.ErrCodeTransport, fmt.Sprintf("search index returned %d", resp.StatusCode)).
			WithRetryable(resp.StatusCode >= 500)
	}

	var env hitsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTransport, "malformed search response")
	}

	services := make([]record.Service, 0, len(env.Hits))
	for _, hit := range env.Hits {
		svc := record.ServiceFromSearchHit(hit)
		if svc.ID == "" {
			continue
		}
		services = append(services, svc)
	}

	c.logger.Info(logging.CategorySearch, "query", "", map[string]any{
		"query": req.Query, "category": req.Category, "hits": len(services),
	})
	return services, nil
}
