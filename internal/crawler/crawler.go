// Package crawler provides the core web crawling functionality.
// It runs a fixed pool of workers that take URLs from the frontier, fetch them,
// filter duplicate content, feed discovered links back and record corpus analytics.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/masahif/webcorpus/internal/analytics"
	"github.com/masahif/webcorpus/internal/config"
	"github.com/masahif/webcorpus/internal/dedup"
	"github.com/masahif/webcorpus/internal/fetch"
	"github.com/masahif/webcorpus/internal/frontier"
	"github.com/masahif/webcorpus/internal/metrics"
	"github.com/masahif/webcorpus/internal/parser"
	"github.com/masahif/webcorpus/internal/robots"
	"github.com/masahif/webcorpus/internal/urlnorm"
)

// DefaultCrawler implements the Crawler interface
type DefaultCrawler struct {
	config     *config.CrawlConfig
	storage    Storage
	httpClient *fetch.Client
	fetcher    Fetcher
	parser     Parser

	canon    *urlnorm.Canonicalizer
	frontier *frontier.Frontier

	// created in Start, after a restart may have cleared their persisted state
	detector  *dedup.Detector
	analytics *analytics.Aggregator

	// State
	stats      CrawlStats
	statsMutex sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	reporter   sync.WaitGroup
}

// Option configures a DefaultCrawler.
type Option func(*DefaultCrawler)

// WithFetcher replaces the HTTP client used for pages and robots.txt.
func WithFetcher(f Fetcher) Option {
	return func(c *DefaultCrawler) {
		c.fetcher = f
	}
}

// WithParser replaces the HTML parser.
func WithParser(p Parser) Option {
	return func(c *DefaultCrawler) {
		c.parser = p
	}
}

// NewCrawler creates a new crawler instance with the provided configuration and storage.
// It builds the HTTP client, canonicalizer, robots cache and frontier. Errors wrap ErrFatalStartup.
func NewCrawler(cfg *config.CrawlConfig, storage Storage, opts ...Option) (*DefaultCrawler, error) {
	metrics.Init()

	canon, err := urlnorm.NewCanonicalizer(urlnorm.ScopeConfig{
		AllowedDomains:  cfg.AllowedDomains,
		TrapSegments:    cfg.TrapSegments,
		ExcludePatterns: cfg.ExcludePatterns,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFatalStartup, err)
	}

	limiter := fetch.NewHostLimiter(cfg.PolitenessDelay)
	clientOpts := []fetch.ClientOption{
		fetch.WithHostLimiter(limiter),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
	}
	if username, password := cfg.GetBasicAuthCredentials(); username != "" && password != "" {
		clientOpts = append(clientOpts, fetch.WithBasicAuth(username, password))
	}
	httpClient := fetch.NewClient(cfg.UserAgent, cfg.RequestTimeout, clientOpts...)

	c := &DefaultCrawler{
		config:     cfg,
		storage:    storage,
		httpClient: httpClient,
		fetcher:    httpClient,
		parser:     parser.New(),
		canon:      canon,
		stats: CrawlStats{
			StartTime: time.Now(),
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	var robotsCache *robots.Cache
	robotsCache = robots.NewCache(c.fetcher, cfg.UserAgent, cfg.RespectRobots,
		robots.WithFetchHook(func(host string, allowAll bool) {
			metrics.ObserveRobotsFetch(allowAll)
			if d := robotsCache.CrawlDelay(host); d > cfg.PolitenessDelay {
				slog.Info("Using robots.txt crawl delay", "host", host, "delay", d)
				limiter.SetHostDelay(host, d)
			}
		}))

	c.frontier = frontier.New(canon, robotsCache, storage, cfg.PolitenessDelay,
		frontier.WithHostDelay(robotsCache.CrawlDelay))

	return c, nil
}

// Start runs the crawl until the frontier is exhausted, the page limit is reached or ctx is cancelled.
// Startup process:
// 1. Discard persisted state when restarting, otherwise reload it
// 2. Add seed URLs; a rejected seed aborts with ErrFatalStartup
// 3. Start the configured number of workers and wait for all of them to observe an empty frontier
func (c *DefaultCrawler) Start(ctx context.Context, seedURLs []string) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	defer c.cancel()

	if err := c.prepare(seedURLs); err != nil {
		return err
	}

	c.reporter.Add(1)
	go c.statsReporter()

	var workers errgroup.Group
	for i := 0; i < c.config.Concurrency; i++ {
		i := i
		workers.Go(func() error {
			c.worker(i)
			return nil
		})
	}

	_ = workers.Wait()
	c.cancel()
	c.reporter.Wait()

	c.publishFrontier()
	if ctx.Err() != nil {
		slog.Info("Crawling cancelled", "counts", c.frontier.Counts())
	} else {
		slog.Info("Crawling completed", "counts", c.frontier.Counts())
	}
	return nil
}

func (c *DefaultCrawler) prepare(seedURLs []string) error {
	if c.config.Restart {
		slog.Info("Restart requested, discarding persisted crawl state")
		if err := c.storage.Reset(); err != nil {
			return fmt.Errorf("%w: %w", ErrFatalStartup, err)
		}
	}

	runID, resumed, err := c.storage.StartRun()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFatalStartup, err)
	}

	detector, err := dedup.New(dedup.Config{
		Threshold: c.config.SimilarityThreshold,
		MinTokens: c.config.MinTokens,
	}, c.storage)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFatalStartup, err)
	}
	c.detector = detector

	aggregator, err := analytics.New(c.storage, c.canon.InScope)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFatalStartup, err)
	}
	c.analytics = aggregator

	if err := c.frontier.Load(); err != nil {
		return fmt.Errorf("%w: %w", ErrFatalStartup, err)
	}

	hashes, signatures := detector.Counts()
	slog.Info("Starting crawler",
		"run_id", runID,
		"resumed", resumed,
		"seed_urls", len(seedURLs),
		"frontier", c.frontier.Counts(),
		"content_hashes", hashes,
		"signatures", signatures,
	)

	for _, seed := range seedURLs {
		res, err := c.frontier.Add(c.ctx, seed)
		switch {
		case res == frontier.Rejected:
			return fmt.Errorf("%w: seed %q: %w", ErrFatalStartup, seed, err)
		case err != nil:
			return fmt.Errorf("%w: %w", ErrFatalStartup, err)
		}
		slog.Debug("Seed URL", "url", seed, "result", res.String())
	}

	return nil
}

// Stop stops the crawling process
func (c *DefaultCrawler) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.httpClient.Close()
	return nil
}

// GetStats returns current crawling statistics
func (c *DefaultCrawler) GetStats() CrawlStats {
	c.statsMutex.RLock()
	stats := c.stats
	c.statsMutex.RUnlock()

	counts := c.frontier.Counts()
	stats.PagesQueued = counts.Queued
	stats.PagesInProgress = counts.InProgress
	stats.PagesFailed = counts.Failed
	stats.Duration = time.Since(stats.StartTime)
	return stats
}

// Report returns the aggregated corpus statistics limited to the configured number of top words
func (c *DefaultCrawler) Report() analytics.Snapshot {
	if c.analytics == nil {
		return analytics.Snapshot{}
	}
	return c.analytics.Snapshot(c.config.TopWords)
}

// worker processes URLs until the frontier reports exhaustion
// Termination conditions:
// 1. frontier.ErrEmpty: nothing queued and nothing in progress anywhere
// 2. Context cancelled (graceful shutdown or page limit reached)
func (c *DefaultCrawler) worker(id int) {
	slog.Debug("Worker started", "worker_id", id)
	defer slog.Debug("Worker stopped", "worker_id", id)

	for {
		entry, err := c.frontier.Next(c.ctx)
		if errors.Is(err, frontier.ErrEmpty) {
			slog.Debug("Worker found frontier exhausted, exiting", "worker_id", id)
			return
		}
		if err != nil {
			return
		}

		c.processEntry(id, entry)
		c.workerSleep()
	}
}

// workerSleep applies the configured delay between requests
func (c *DefaultCrawler) workerSleep() {
	if c.config.RequestDelay <= 0 {
		return
	}

	timer := time.NewTimer(c.config.RequestDelay)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
	case <-timer.C:
	}
}

// statsReporter periodically reports crawling statistics
func (c *DefaultCrawler) statsReporter() {
	defer c.reporter.Done()

	interval := c.config.StatsInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			counts := c.publishFrontier()
			stats := c.GetStats()
			slog.Info("Crawling stats",
				"crawled", stats.PagesCrawled,
				"queued", counts.Queued,
				"in_progress", counts.InProgress,
				"done", counts.Done,
				"failed", counts.Failed,
				"duplicates", stats.Duplicates,
				"errors", stats.ErrorCount,
				"duration", stats.Duration,
			)
		}
	}
}

func (c *DefaultCrawler) publishFrontier() frontier.Counts {
	counts := c.frontier.Counts()
	metrics.SetFrontier(counts.Queued, counts.InProgress, counts.Done, counts.Failed)
	return counts
}

func (c *DefaultCrawler) incrementCrawledCount() {
	c.statsMutex.Lock()
	c.stats.PagesCrawled++
	crawled := c.stats.PagesCrawled
	c.statsMutex.Unlock()

	if c.config.Limit > 0 && crawled >= c.config.Limit {
		slog.Info("Page limit reached, stopping", "limit", c.config.Limit)
		c.cancel()
	}
}

func (c *DefaultCrawler) incrementErrorCount() {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()
	c.stats.ErrorCount++
}

func (c *DefaultCrawler) incrementDuplicateCount() {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()
	c.stats.Duplicates++
}
