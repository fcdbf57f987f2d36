package crawler

import (
	"time"

	"github.com/masahif/webcorpus/internal/dedup"
)

// PageData is the fetch record stored for a crawled page
type PageData struct {
	URL          string
	StatusCode   int           // HTTP status code (200, 404, 500, etc.)
	FinalURL     string        // URL after redirects
	Title        string        // HTML <title> tag content
	ContentHash  string        // Digest of the normalized text, empty when not checked
	Verdict      string        // Duplicate verdict, empty when not checked
	TokenCount   int           // Tokens on the page, stop words included
	TTFB         time.Duration // Time to First Byte
	DownloadTime time.Duration // Total download time
	ResponseSize int64         // Response body size in bytes
	CrawledAt    time.Time     // Timestamp when crawled (UTC)
}

// LinkData is one outbound link of a processed page
type LinkData struct {
	SourceURL string // Canonical URL of the page containing the link
	TargetURL string // Canonical URL of the link target
}

// CrawlError records one transient fetch failure
type CrawlError struct {
	URL          string    // URL where error occurred
	ErrorType    string    // fetch.ErrorKind name (timeout, dns_failure, ...)
	ErrorMessage string    // Detailed error message
	Attempt      int       // Attempt number that failed
	OccurredAt   time.Time // Error occurrence timestamp (UTC)
}

// CrawlStats represents crawling statistics
type CrawlStats struct {
	PagesCrawled    int
	PagesQueued     int
	PagesInProgress int
	PagesFailed     int
	ErrorCount      int
	Duplicates      int
	StartTime       time.Time
	Duration        time.Duration
}

// Class is how the worker treats the outcome of a fetch.
type Class int

const (
	// Success is a 200 response with no transport error
	Success Class = iota
	// TransientFetchError is any transport failure; the URL is retried
	TransientFetchError
	// FetchStatusError is a non-200 response; the URL is completed without processing
	FetchStatusError
)

func (c Class) String() string {
	switch c {
	case Success:
		return "success"
	case TransientFetchError:
		return "transient_fetch_error"
	case FetchStatusError:
		return "fetch_status_error"
	default:
		return "unknown"
	}
}

// verdictLabel keeps PageData free of the dedup types
func verdictLabel(r dedup.Result) string {
	if r.Verdict == dedup.Novel && r.Sparse {
		return "sparse"
	}
	return r.Verdict.String()
}
