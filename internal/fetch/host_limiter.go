package fetch

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter spaces outgoing requests per host. It guards every request the
// client makes, including robots.txt fetches the frontier does not schedule.
type HostLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	delay    time.Duration
}

// NewHostLimiter creates a limiter allowing one request per delay per host.
// A non-positive delay disables limiting.
func NewHostLimiter(delay time.Duration) *HostLimiter {
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
	}
}

// Wait blocks until a request to the URL's host may proceed
func (h *HostLimiter) Wait(ctx context.Context, urlStr string) error {
	if h == nil || h.delay <= 0 {
		return nil
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return err
	}

	host := strings.TrimPrefix(strings.ToLower(parsedURL.Host), "www.")
	return h.getLimiter(host).Wait(ctx)
}

// SetHostDelay overrides the spacing for one host
func (h *HostLimiter) SetHostDelay(host string, delay time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if delay <= 0 {
		delay = h.delay
	}
	h.limiters[host] = rate.NewLimiter(rate.Every(delay), 1)
}

func (h *HostLimiter) getLimiter(host string) *rate.Limiter {
	h.mu.RLock()
	limiter, exists := h.limiters[host]
	h.mu.RUnlock()

	if exists {
		return limiter
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Check again in case another goroutine created it
	if limiter, exists := h.limiters[host]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Every(h.delay), 1)
	h.limiters[host] = limiter
	return limiter
}
