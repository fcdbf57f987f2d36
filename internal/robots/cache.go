// Package robots caches per-host robots.txt policies for the lifetime of a crawl.
package robots

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/masahif/webcorpus/internal/fetch"
	"github.com/masahif/webcorpus/internal/urlnorm"
)

// Fetcher retrieves robots.txt bodies.
type Fetcher interface {
	Fetch(ctx context.Context, url string) fetch.Result
}

// policy is the cached decision source for one host. A nil group allows everything.
type policy struct {
	group *robotstxt.Group
}

// Cache answers allow/deny questions, fetching each host's robots.txt at most once.
// Concurrent callers for a host share one in-flight fetch.
type Cache struct {
	fetcher   Fetcher
	userAgent string
	enabled   bool

	flight singleflight.Group

	mu       sync.RWMutex
	policies map[string]*policy

	onFetch func(host string, allowAll bool)
}

// Option configures a Cache.
type Option func(*Cache)

// WithFetchHook is invoked once per robots.txt fetch, after the policy is cached.
func WithFetchHook(fn func(host string, allowAll bool)) Option {
	return func(c *Cache) {
		c.onFetch = fn
	}
}

// NewCache creates a robots cache. When enabled is false every URL is allowed.
func NewCache(fetcher Fetcher, userAgent string, enabled bool, opts ...Option) *Cache {
	c := &Cache{
		fetcher:   fetcher,
		userAgent: userAgent,
		enabled:   enabled,
		policies:  make(map[string]*policy),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Allowed reports whether the canonical URL may be fetched.
// Missing robots files and fetch failures allow everything.
func (c *Cache) Allowed(ctx context.Context, u urlnorm.CanonicalURL) bool {
	if !c.enabled {
		return true
	}

	p := c.load(ctx, u.Scheme, u.Host)
	if p.group == nil {
		return true
	}

	target := u.Path
	if u.Query != "" {
		target += "?" + u.Query
	}
	return p.group.Test(target)
}

// CrawlDelay returns the Crawl-delay declared for the host, or zero when unknown.
func (c *Cache) CrawlDelay(host string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.policies[host]; ok && p.group != nil {
		return p.group.CrawlDelay
	}
	return 0
}

func (c *Cache) cached(host string) (*policy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.policies[host]
	return p, ok
}

func (c *Cache) load(ctx context.Context, scheme, host string) *policy {
	if p, ok := c.cached(host); ok {
		return p
	}

	v, _, _ := c.flight.Do(host, func() (interface{}, error) {
		// a flight that finished between the cache miss and Do already stored the policy
		if p, ok := c.cached(host); ok {
			return p, nil
		}

		p := c.fetchPolicy(ctx, scheme, host)
		if ctx.Err() != nil {
			// an aborted fetch says nothing about the host
			return p, nil
		}

		c.mu.Lock()
		c.policies[host] = p
		c.mu.Unlock()

		if c.onFetch != nil {
			c.onFetch(host, p.group == nil)
		}
		return p, nil
	})

	return v.(*policy)
}

func (c *Cache) fetchPolicy(ctx context.Context, scheme, host string) *policy {
	robotsURL := scheme + "://" + host + "/robots.txt"
	res := c.fetcher.Fetch(ctx, robotsURL)

	if res.Err != fetch.ErrNone {
		slog.Warn("robots.txt fetch failed; allowing host", "host", host, "error", res.Err.String())
		return &policy{}
	}
	if res.Status != http.StatusOK {
		slog.Debug("No robots.txt; allowing host", "host", host, "status", res.Status)
		return &policy{}
	}

	data, err := robotstxt.FromBytes(res.Body)
	if err != nil {
		slog.Warn("robots.txt unparsable; allowing host", "host", host, "error", err)
		return &policy{}
	}

	return &policy{group: data.FindGroup(c.userAgent)}
}
