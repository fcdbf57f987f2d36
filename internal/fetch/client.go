package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// DefaultMaxBodySize caps how much of a response body is read.
const DefaultMaxBodySize = 10 << 20

// maxRedirects is the redirect chain length after which a fetch gives up.
const maxRedirects = 10

// Client performs HTTP GET requests and reports them as Results.
type Client struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	limiter     *HostLimiter
	username    string
	password    string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHostLimiter spaces requests to the same host.
func WithHostLimiter(l *HostLimiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithBasicAuth sends credentials with every request. Empty credentials are ignored.
func WithBasicAuth(username, password string) ClientOption {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithMaxBodySize limits the number of body bytes read per response.
func WithMaxBodySize(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// NewClient creates a new HTTP fetch client
func NewClient(userAgent string, timeout time.Duration, opts ...ClientOption) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}
				return nil
			},
		},
		userAgent:   userAgent,
		maxBodySize: DefaultMaxBodySize,
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch performs a GET request. Transport failures are reported through
// Result.Err; a non-200 status with no transport error has Err == ErrNone.
func (c *Client) Fetch(ctx context.Context, url string) Result {
	if err := c.limiter.Wait(ctx, url); err != nil {
		return Result{FinalURL: url, Err: Classify(err), Cause: fmt.Errorf("rate limit wait: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		// an unbuildable request will never succeed
		return Result{FinalURL: url, Err: ErrMaxRetriesExceeded, Cause: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	var firstByte time.Time
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			firstByte = time.Now()
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Result{FinalURL: url, Err: Classify(err), Cause: fmt.Errorf("request failed: %w", err), Duration: time.Since(start)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return Result{FinalURL: url, Err: Classify(err), Cause: fmt.Errorf("failed to read response body: %w", err), Duration: time.Since(start)}
	}

	res := Result{
		Status:      resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Err:         ErrNone,
		Duration:    time.Since(start),
	}
	if !firstByte.IsZero() {
		res.TTFB = firstByte.Sub(start)
	}
	return res
}

// Close releases idle connections
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
