package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethgrid/pester"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the per-request network timeout.
	DefaultTimeout = 50 * time.Second

	// DefaultRateLimit caps requests per second to any one provider.
	DefaultRateLimit = 10.0

	// DefaultAttempts is a single attempt: providers are not retried.
	DefaultAttempts = 1

	// maxBodySize bounds a single response body (64MB).
	maxBodySize = 64 << 20
)

// Doer executes HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a rate-limited GET client shared by the provider fetchers.
type Client struct {
	doer      Doer
	limiter   *rate.Limiter
	timeout   time.Duration
	attempts  int
	userAgent string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit sets the maximum requests per second.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithAttempts sets how many times pester tries a request. One means no retry.
func WithAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithUserAgent sets the User-Agent header sent to providers.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithDoer replaces the transport (for testing).
func WithDoer(d Doer) ClientOption {
	return func(c *Client) {
		c.doer = d
	}
}

// NewClient creates a provider client backed by pester.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		timeout:   DefaultTimeout,
		attempts:  DefaultAttempts,
		userAgent: "pubharvest",
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.doer == nil {
		pc := pester.NewExtendedClient(&http.Client{Timeout: c.timeout})
		pc.MaxRetries = c.attempts
		pc.Backoff = pester.ExponentialBackoff
		pc.SetRetryOnHTTP429(true)
		c.doer = pc
	}

	return c
}

// Get issues a GET to rawURL with params merged into its query string and
// returns the response body. Any non-200 status is a *StatusError.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: redact(u), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrNetwork, err)
	}
	return body, nil
}

// redact drops the query string so credentials never reach error messages.
func redact(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	return clean.String()
}
