// Package enrich provides HTTP clients for tiered contact-enrichment
// providers. All providers share one request shape (domain + company name)
// and one response shape (pattern template or nothing), so a single client
// serves every configured endpoint.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/intent-core/internal/pattern/provider"
	"github.com/sells-group/intent-core/internal/resilience"
)

// patternResponse is the uniform provider response body.
type patternResponse struct {
	Pattern    string  `json:"pattern"`
	Confidence float64 `json:"confidence,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
}

// Client calls one enrichment provider endpoint. It implements
// provider.Provider for the pattern waterfall.
type Client struct {
	name         string
	tier         int
	costPerQuery float64
	baseURL      string
	apiKey       string
	http         *http.Client
	limiter      *rate.Limiter
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(perSec float64) Option {
	return func(c *Client) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// NewClient creates a provider client.
func NewClient(name string, tier int, costPerQuery float64, baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		name:         name,
		tier:         tier,
		costPerQuery: costPerQuery,
		baseURL:      baseURL,
		apiKey:       apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements provider.Provider.
func (c *Client) Name() string { return c.name }

// Tier implements provider.Provider.
func (c *Client) Tier() int { return c.tier }

// CostPerQuery implements provider.Provider.
func (c *Client) CostPerQuery() float64 { return c.costPerQuery }

// Discover queries the provider for a domain's email pattern. A 404 means
// the provider has no pattern for the domain and returns (nil, nil).
// Transient HTTP statuses surface as resilience.TransientError so the
// waterfall's retry budget applies.
func (c *Client) Discover(ctx context.Context, domain, companyName string) (*provider.Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, c.name+": rate limit wait")
		}
	}

	q := url.Values{}
	q.Set("domain", domain)
	if companyName != "" {
		q.Set("company", companyName)
	}
	reqURL := fmt.Sprintf("%s/v1/pattern?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, c.name+": create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, c.name+": request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, c.name+": read response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("%s: status %d: %s", c.name, resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("%s: unexpected status %d: %s", c.name, resp.StatusCode, string(body))
	}

	var pr patternResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, eris.Wrap(err, c.name+": decode response")
	}
	if pr.Pattern == "" {
		return nil, nil
	}

	cost := pr.CostUSD
	if cost == 0 {
		cost = c.costPerQuery
	}
	return &provider.Result{
		Template:      pr.Pattern,
		Provider:      c.name,
		RawConfidence: pr.Confidence,
		CostUSD:       cost,
	}, nil
}
