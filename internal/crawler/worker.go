package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"time"

	"github.com/masahif/webcorpus/internal/dedup"
	"github.com/masahif/webcorpus/internal/fetch"
	"github.com/masahif/webcorpus/internal/frontier"
	"github.com/masahif/webcorpus/internal/metrics"
	"github.com/masahif/webcorpus/internal/urlnorm"
)

// processEntry fetches one dispatched URL and settles its frontier state.
// Every failure stays with this URL; the worker loop continues.
func (c *DefaultCrawler) processEntry(workerID int, entry frontier.Entry) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Worker recovered from panic", "worker_id", workerID, "url", entry.URL, "panic", r)
			c.incrementErrorCount()
			if err := c.frontier.Fail(entry.URL); err != nil {
				slog.Error("Failed to mark URL failed", "url", entry.URL, "error", err)
			}
		}
	}()

	slog.Debug("Processing URL", "worker_id", workerID, "url", entry.URL, "attempt", entry.Attempts)

	res := c.fetcher.Fetch(c.ctx, entry.URL)
	class := Classify(res)
	metrics.ObserveFetch(class.String(), res.Status, len(res.Body), res.Duration)

	var err error
	switch class {
	case TransientFetchError:
		err = c.handleTransient(entry, res)
	case FetchStatusError:
		slog.Info("Non-200 response", "url", entry.URL, "status", res.Status)
		err = c.completeWith(entry, res, pageOutcome{})
	default:
		err = c.handleSuccess(workerID, entry, res)
	}

	if err != nil {
		slog.Error("Failed to process URL", "worker_id", workerID, "url", entry.URL, "error", err)
	}
}

// handleTransient records the failure and either schedules a retry or gives up on the URL.
func (c *DefaultCrawler) handleTransient(entry frontier.Entry, res fetch.Result) error {
	// an aborted request says nothing about the URL; it stays queued for the next run
	if c.ctx.Err() != nil {
		return c.frontier.Retry(entry.URL, time.Now())
	}

	c.incrementErrorCount()
	msg := res.Err.String()
	if res.Cause != nil {
		msg = res.Cause.Error()
	}
	if err := c.storage.SaveError(&CrawlError{
		URL:          entry.URL,
		ErrorType:    res.Err.String(),
		ErrorMessage: msg,
		Attempt:      entry.Attempts,
		OccurredAt:   time.Now().UTC(),
	}); err != nil {
		slog.Error("Failed to save crawl error", "url", entry.URL, "error", err)
	}

	if entry.Attempts >= c.config.MaxAttempts {
		slog.Warn("Giving up on URL", "url", entry.URL, "attempts", entry.Attempts, "error", msg)
		return c.frontier.Fail(entry.URL)
	}

	notBefore := time.Now().Add(c.config.RetryBackoff)
	slog.Info("Transient fetch error, retrying later",
		"url", entry.URL,
		"error_type", res.Err.String(),
		"attempt", entry.Attempts,
		"not_before", notBefore,
	)
	return c.frontier.Retry(entry.URL, notBefore)
}

type pageOutcome struct {
	title string
	dedup *dedup.Result
}

// handleSuccess runs a 200 response through parsing, duplicate detection, link discovery and analytics.
func (c *DefaultCrawler) handleSuccess(workerID int, entry frontier.Entry, res fetch.Result) error {
	defer c.incrementCrawledCount()

	// a redirect may leave the allowed domains; such pages are neither processed nor followed
	if res.FinalURL != "" && res.FinalURL != entry.URL {
		if _, err := c.canon.Canonicalize(res.FinalURL); err != nil {
			slog.Info("Redirected out of scope", "url", entry.URL, "final_url", res.FinalURL, "reason", err)
			return c.completeWith(entry, res, pageOutcome{})
		}
	}

	if !isHTML(res.ContentType) {
		slog.Debug("Skipping non-HTML content", "url", entry.URL, "content_type", res.ContentType)
		return c.completeWith(entry, res, pageOutcome{})
	}

	page, err := c.parser.Parse(res.Body)
	if err != nil {
		slog.Warn("Failed to parse page", "url", entry.URL, "error", err)
		return c.completeWith(entry, res, pageOutcome{})
	}

	result, err := c.detector.Check(entry.URL, page.Text)
	if err != nil {
		slog.Error("Failed to persist fingerprint", "url", entry.URL, "error", err)
	}
	verdict := verdictLabel(result)
	metrics.ObserveVerdict(verdict)
	if result.Verdict != dedup.Novel {
		c.incrementDuplicateCount()
		slog.Debug("Duplicate content", "url", entry.URL, "verdict", verdict)
	}

	// duplicate pages still contribute outbound links
	if !page.NoFollow() {
		c.enqueueLinks(workerID, entry.URL, res.FinalURL, page.Links)
	}

	if result.Verdict == dedup.Novel && !result.Sparse && !page.NoIndex() {
		if err := c.analytics.Record(entry.URL, result.Tokens); err != nil {
			slog.Error("Failed to record analytics", "url", entry.URL, "error", err)
		}
	}

	return c.completeWith(entry, res, pageOutcome{title: page.Title, dedup: &result})
}

// enqueueLinks resolves hrefs against base, offers them to the frontier and stores the
// in-scope ones as outbound links of source.
func (c *DefaultCrawler) enqueueLinks(workerID int, source, base string, links []string) {
	// the page is completed after this; shutdown must not drop its links
	ctx := context.WithoutCancel(c.ctx)

	var (
		added    int
		outbound []*LinkData
	)
	for _, href := range links {
		abs, err := urlnorm.Resolve(base, href)
		if err != nil {
			metrics.ObserveLink(frontier.Rejected.String())
			continue
		}

		res, err := c.frontier.Add(ctx, abs)
		metrics.ObserveLink(res.String())
		switch {
		case res == frontier.Added && err != nil:
			slog.Error("Failed to persist discovered URL", "url", abs, "error", err)
		case res == frontier.Added:
			added++
		case res == frontier.Rejected:
			slog.Debug("Link rejected", "url", abs, "reason", err)
			continue
		}

		if target, err := c.canon.Canonicalize(abs); err == nil {
			outbound = append(outbound, &LinkData{SourceURL: source, TargetURL: target.String()})
		}
	}

	if err := c.storage.SaveLinks(outbound); err != nil {
		slog.Error("Failed to save links", "url", source, "error", err)
	}
	slog.Debug("Links discovered", "worker_id", workerID, "base", base, "links", len(links), "added", added)
}

func (c *DefaultCrawler) completeWith(entry frontier.Entry, res fetch.Result, out pageOutcome) error {
	if err := c.savePage(entry, res, out); err != nil {
		slog.Error("Failed to save page result", "url", entry.URL, "error", err)
	}
	return c.frontier.Complete(entry.URL)
}

func (c *DefaultCrawler) savePage(entry frontier.Entry, res fetch.Result, out pageOutcome) error {
	page := &PageData{
		URL:          entry.URL,
		StatusCode:   res.Status,
		FinalURL:     res.FinalURL,
		Title:        out.title,
		TTFB:         res.TTFB,
		DownloadTime: res.Duration,
		ResponseSize: int64(len(res.Body)),
		CrawledAt:    time.Now().UTC(),
	}
	if out.dedup != nil {
		page.ContentHash = out.dedup.Hash
		page.Verdict = verdictLabel(*out.dedup)
		page.TokenCount = len(out.dedup.Tokens)
	}
	if err := c.storage.SavePageResult(page); err != nil {
		return fmt.Errorf("failed to save page %s: %w", entry.URL, err)
	}
	return nil
}

// isHTML treats a missing Content-Type as HTML.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
