// Package deliverability provides a client for the email-deliverability
// verification provider.
package deliverability

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

	"github.com/sells-group/intent-core/internal/resilience"
)

// ResultCode is the provider's verdict for one address.
type ResultCode string

const (
	ResultDeliverable ResultCode = "deliverable"
	ResultCatchAll    ResultCode = "catch_all"
	ResultRole        ResultCode = "role"
	ResultRisky       ResultCode = "risky"
	ResultInvalid     ResultCode = "invalid"
	ResultDisposable  ResultCode = "disposable"
	ResultUnknown     ResultCode = "unknown"
)

// CheckResponse is the parsed verification response.
type CheckResponse struct {
	Email  string     `json:"email"`
	Result ResultCode `json:"result"`
	Score  float64    `json:"score,omitempty"`
}

// Client defines the verification operation.
type Client interface {
	// Check verifies one candidate address.
	Check(ctx context.Context, email string) (*CheckResponse, error)
}

// Option configures the HTTP client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a deliverability client.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
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

func (c *httpClient) Check(ctx context.Context, email string) (*CheckResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "deliverability: rate limit wait")
		}
	}

	q := url.Values{}
	q.Set("email", email)
	reqURL := fmt.Sprintf("%s/v1/verify?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "deliverability: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "deliverability: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "deliverability: read response")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("deliverability: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("deliverability: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var cr CheckResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, eris.Wrap(err, "deliverability: decode response")
	}
	if cr.Result == "" {
		cr.Result = ResultUnknown
	}
	return &cr, nil
}
