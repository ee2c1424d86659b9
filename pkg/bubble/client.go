// Package bubble implements the client for the marketplace's Bubble-style
// object store: GET/PATCH against {base}/obj/{slug} paths with bearer auth
// and the {response:{results:[...]}} envelope. The client is stateless and
// never retries; retry policy belongs to callers.
package bubble

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/record"
)

// Constraint is one filter term in the store's query language.
type Constraint struct {
	Key            string `json:"key"`
	ConstraintType string `json:"constraint_type"`
	Value          any    `json:"value"`
}

// Constraint types the store understands.
const (
	ConstraintTextContains = "text contains"
	ConstraintLessThan     = "less than"
	ConstraintEquals       = "equals"
)

// Query shapes a list request. Cursor is the zero-based offset of the first
// result, the store's pagination mechanism.
type Query struct {
	Constraints []Constraint
	Limit       int
	Cursor      int
	SortField   string
	Descending  bool
}

// Client issues requests against the object store.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	limiter *rate.Limiter
	logger  *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(perSec float64) Option {
	return func(c *Client) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), int(perSec)+1)
		}
	}
}

// NewClient creates a client for the store at baseURL using the given bearer
// token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the store's standard success wrapper.
type envelope struct {
	Response json.RawMessage `json:"response"`
}

type listBody struct {
	Results []record.Raw `json:"results"`
}

// FetchByID retrieves a single record. Returns a RECORD_NOT_FOUND error for
// 404s so callers can distinguish absence from transport trouble.
func (c *Client) FetchByID(ctx context.Context, slug, id string) (record.Raw, error) {
	endpoint := fmt.Sprintf("%s/obj/%s/%s", c.baseURL, url.PathEscape(slug), url.PathEscape(id))
	body, status, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, errors.New(errors.ErrCodeRecordNotFound, "record not found").
			WithContext("slug", slug).
			WithContext("id", id)
	}
	if status < 200 || status >= 300 {
		return nil, transportError(status, endpoint, body)
	}
	return decodeSingle(body)
}

// Search runs a constrained list query.
func (c *Client) Search(ctx context.Context, slug string, q Query) ([]record.Raw, error) {
	endpoint, err := c.listURL(slug, q)
	if err != nil {
		return nil, err
	}
	body, status, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, transportError(status, endpoint, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTransport, "malformed list response")
	}
	var list listBody
	if len(env.Response) > 0 {
		if err := json.Unmarshal(env.Response, &list); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTransport, "malformed results array")
		}
	}
	return list.Results, nil
}

// Patch issues a partial update; only the supplied fields are sent. The store
// may answer 204 or an empty 200 body, both of which count as success.
func (c *Client) Patch(ctx context.Context, slug, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "encoding patch body")
	}
	endpoint := fmt.Sprintf("%s/obj/%s/%s", c.baseURL, url.PathEscape(slug), url.PathEscape(id))
	body, status, err := c.do(ctx, http.MethodPatch, endpoint, payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return transportError(status, endpoint, body)
	}
	return nil
}

func (c *Client) listURL(slug string, q Query) (string, error) {
	params := url.Values{}
	if len(q.Constraints) > 0 {
		encoded, err := json.Marshal(q.Constraints)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeInternal, "encoding constraints")
		}
		params.Set("constraints", string(encoded))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor > 0 {
		params.Set("cursor", strconv.Itoa(q.Cursor))
	}
	if q.SortField != "" {
		params.Set("sort_field", q.SortField)
		params.Set("descending", strconv.FormatBool(q.Descending))
	}
	endpoint := fmt.Sprintf("%s/obj/%s", c.baseURL, url.PathEscape(slug))
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	return endpoint, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeTransport, "rate limiter interrupted")
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Error(logging.CategoryRecord, "request_failed", err.Error(), map[string]any{
			"method": method, "url": endpoint,
		})
		return nil, 0, errors.Wrap(err, errors.ErrCodeTransport, "request failed").WithRetryable(true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, errors.ErrCodeTransport, "reading response body")
	}

	c.logger.Debug(logging.CategoryRecord, "request", "", map[string]any{
		"method":      method,
		"url":         endpoint,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return body, resp.StatusCode, nil
}

// decodeSingle handles both {response: {...}} and bare-object bodies.
func decodeSingle(body []byte) (record.Raw, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return record.Raw{}, nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Response) > 0 {
		var raw record.Raw
		if err := json.Unmarshal(env.Response, &raw); err == nil {
			return raw, nil
		}
	}
	var raw record.Raw
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTransport, "malformed record response")
	}
	return raw, nil
}

func transportError(status int, endpoint string, body []byte) *errors.Error {
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return errors.New(errors.ErrCodeTransport, fmt.Sprintf("store returned %d", status)).
		WithContext("url", endpoint).
		WithContext("body", snippet).
		WithRetryable(status >= 500)
}
