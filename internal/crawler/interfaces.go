package crawler

import (
	"context"

	"github.com/masahif/webcorpus/internal/analytics"
	"github.com/masahif/webcorpus/internal/dedup"
	"github.com/masahif/webcorpus/internal/fetch"
	"github.com/masahif/webcorpus/internal/frontier"
	"github.com/masahif/webcorpus/internal/parser"
)

// Crawler defines the main crawling interface
type Crawler interface {
	Start(ctx context.Context, seedURLs []string) error
	Stop() error
	GetStats() CrawlStats
	Report() analytics.Snapshot
}

// Fetcher retrieves a URL. Transport failures are reported in the Result, never as a panic.
type Fetcher interface {
	Fetch(ctx context.Context, url string) fetch.Result
}

// Parser extracts links and text from a response body
type Parser interface {
	Parse(body []byte) (*parser.Page, error)
}

// Storage handles data persistence
type Storage interface {
	frontier.Store
	dedup.Store
	analytics.Store

	// Restart support
	Reset() error
	HasPendingWork() (bool, error)
	StartRun() (runID string, resumed bool, err error)

	// Per-page fetch records and transient error log
	SavePageResult(page *PageData) error
	SaveError(err *CrawlError) error
	SaveLinks(links []*LinkData) error // Batch link saving

	// Meta-data management
	GetMeta(key string) (string, error)
	SetMeta(key, value string) error

	// Database lifecycle
	Close() error
}
