package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masahif/webcorpus/internal/config"
	"github.com/masahif/webcorpus/internal/fetch"
	"github.com/masahif/webcorpus/internal/frontier"
)

func init() {
	// Set error level logging during tests to only show critical issues
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	slog.SetDefault(logger)
}

const (
	researchText = "informatics research graduate faculty machine learning systems laboratory " +
		"publications seminar undergraduate curriculum software engineering databases"
	rootText = "welcome department computer science news admissions alumni donors " +
		"student organizations campus directions contact"
	otherText = "statistics probability regression bayesian inference sampling variance " +
		"estimation hypothesis experiments"
)

// testSite serves a small in-scope site and counts requests per path.
type testSite struct {
	*httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	site := &testSite{hits: make(map[string]int)}

	mux := http.NewServeMux()
	html := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}

	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		html(w, `<html><head><title>Home</title></head><body><p>`+rootText+`</p>
			<a href="/a">a</a>
			<a href="/b">b</a>
			<a href="/a#section">a again</a>
			<a href="/c">missing</a>
			<a href="/flaky">flaky</a>
			<a href="/redirect">moved</a>
			<a href="/private/x">private</a>
			<a href="/files/report.pdf">report</a>
			<a href="//elsewhere.example/x">elsewhere</a>
			<a href="https://evil.com/x">evil</a>
			<a href="mailto:office@example.com">mail</a>
		</body></html>`)
	})
	// /a and /b carry identical text; only the target of the empty anchor differs
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<html><body><p>`+researchText+`</p><a href="/a"></a></body></html>`)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<html><body><p>`+researchText+`</p><a href="/d"></a></body></html>`)
	})
	mux.HandleFunc("/d", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<html><body><p>`+otherText+`</p></body></html>`)
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			_ = conn.Close()
		}
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		target := strings.Replace(site.URL, "127.0.0.1", "localhost", 1) + "/z"
		http.Redirect(w, r, target, http.StatusFound)
	})
	mux.HandleFunc("/z", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<html><body><p>`+otherText+` outside</p><a href="/never">never</a></body></html>`)
	})

	site.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.hits[r.URL.Path]++
		site.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(site.Close)
	return site
}

func (s *testSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func testConfig() *config.CrawlConfig {
	cfg := config.DefaultConfig()
	cfg.Concurrency = 3
	cfg.PolitenessDelay = 5 * time.Millisecond
	cfg.RequestDelay = 0
	cfg.RequestTimeout = 2 * time.Second
	cfg.UserAgent = "WebCorpus-Test/1.0"
	cfg.AllowedDomains = []string{"127.0.0.1"}
	cfg.MaxAttempts = 2
	cfg.RetryBackoff = 10 * time.Millisecond
	cfg.MinTokens = 5
	cfg.StatsInterval = 20 * time.Millisecond
	return cfg
}

func runCrawler(t *testing.T, cfg *config.CrawlConfig, store Storage, seeds []string) *DefaultCrawler {
	t.Helper()

	c, err := NewCrawler(cfg, store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.NoError(t, c.Start(ctx, seeds))
	require.NoError(t, ctx.Err(), "crawl did not finish on its own")
	return c
}

func TestCrawlToExhaustion(t *testing.T) {
	site := newTestSite(t)
	store := NewMockStorage()

	c := runCrawler(t, testConfig(), store, []string{site.URL})
	u := func(path string) string { return site.URL + path }

	assert.ElementsMatch(t,
		[]string{u("/"), u("/a"), u("/b"), u("/c"), u("/d"), u("/redirect")},
		store.urlsInState(frontier.Done))
	assert.Equal(t, []string{u("/flaky")}, store.urlsInState(frontier.Failed))
	assert.Empty(t, store.urlsInState(frontier.Queued))
	assert.Empty(t, store.urlsInState(frontier.InProgress))
	assert.Equal(t, frontier.Counts{Done: 6, Failed: 1}, c.frontier.Counts())

	for _, path := range []string{"/", "/a", "/b", "/c", "/d", "/redirect", "/z"} {
		assert.Equal(t, 1, site.hitCount(path), path)
	}
	// the transport may replay a request whose connection was closed without a response
	assert.GreaterOrEqual(t, site.hitCount("/flaky"), 2)
	assert.Equal(t, 1, site.hitCount("/robots.txt"))
	assert.Zero(t, site.hitCount("/private/x"))
	assert.Zero(t, site.hitCount("/never"))
	assert.Zero(t, site.hitCount("/files/report.pdf"))

	assert.Equal(t, 2, store.errorCount())

	a, _ := store.page(u("/a"))
	b, _ := store.page(u("/b"))
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.ElementsMatch(t, []string{"novel", "exact_duplicate"}, []string{a.Verdict, b.Verdict})
	assert.Equal(t, a.ContentHash, b.ContentHash)

	missing, ok := store.page(u("/c"))
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	assert.Empty(t, missing.Verdict)

	redirected, ok := store.page(u("/redirect"))
	require.True(t, ok)
	assert.Contains(t, redirected.FinalURL, "localhost")
	assert.Empty(t, redirected.Verdict)

	home, ok := store.page(u("/"))
	require.True(t, ok)
	assert.Equal(t, "Home", home.Title)

	// fragments collapse onto /a; robots-disallowed and out-of-scope targets are not links
	assert.Equal(t,
		[]string{u("/a"), u("/b"), u("/c"), u("/flaky"), u("/redirect")},
		store.linksFrom(u("/")))
	assert.Equal(t, []string{u("/d")}, store.linksFrom(u("/b")))

	stats := c.GetStats()
	assert.Equal(t, 5, stats.PagesCrawled)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 2, stats.ErrorCount)
	assert.Equal(t, 1, stats.PagesFailed)

	report := c.Report()
	assert.Equal(t, 3, report.UniquePages)
	require.Len(t, report.Subdomains, 1)
	assert.Equal(t, "127.0.0.1", report.Subdomains[0].Host)
	assert.Equal(t, 3, report.Subdomains[0].Count)
	assert.NotEmpty(t, report.TopWords)
	assert.NotEmpty(t, report.LongestPage.URL)
}

func TestResumeDoesNotRefetchDonePages(t *testing.T) {
	site := newTestSite(t)
	store := NewMockStorage()

	cfg := testConfig()
	cfg.Concurrency = 1
	cfg.Limit = 1

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	first, err := NewCrawler(cfg, store)
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx, []string{site.URL}))
	require.NoError(t, first.Stop())

	assert.Equal(t, []string{site.URL + "/"}, store.urlsInState(frontier.Done))
	pending, err := store.HasPendingWork()
	require.NoError(t, err)
	require.True(t, pending)

	resumed := testConfig()
	c := runCrawler(t, resumed, store, nil)

	assert.Equal(t, 1, site.hitCount("/"))
	assert.Equal(t, 1, site.hitCount("/a"))
	assert.Equal(t, 1, site.hitCount("/d"))
	assert.Equal(t, frontier.Counts{Done: 6, Failed: 1}, c.frontier.Counts())

	// analytics and fingerprints carried over from the first run
	assert.Equal(t, 3, c.Report().UniquePages)
}

func TestRestartDiscardsState(t *testing.T) {
	site := newTestSite(t)
	store := NewMockStorage()

	runCrawler(t, testConfig(), store, []string{site.URL})
	require.Equal(t, 1, site.hitCount("/"))

	cfg := testConfig()
	cfg.Restart = true
	c := runCrawler(t, cfg, store, []string{site.URL})

	assert.Equal(t, 1, store.resets)
	assert.Equal(t, 2, site.hitCount("/"))
	assert.Equal(t, 2, site.hitCount("/a"))
	assert.Equal(t, frontier.Counts{Done: 6, Failed: 1}, c.frontier.Counts())
	assert.Equal(t, 3, c.Report().UniquePages)
}

func TestRejectedSeedIsFatal(t *testing.T) {
	cfg := testConfig()
	c, err := NewCrawler(cfg, NewMockStorage())
	require.NoError(t, err)
	defer c.Stop()

	for _, seed := range []string{"https://evil.com/", "ftp://127.0.0.1/", "not a url"} {
		err := c.Start(context.Background(), []string{seed})
		require.ErrorIs(t, err, ErrFatalStartup, seed)
	}
}

func TestInvalidExcludePatternIsFatal(t *testing.T) {
	cfg := testConfig()
	cfg.ExcludePatterns = []string{"("}

	_, err := NewCrawler(cfg, NewMockStorage())
	require.ErrorIs(t, err, ErrFatalStartup)
}

// stubFetcher serves canned results and can panic for one URL.
type stubFetcher struct {
	mu      sync.Mutex
	results map[string]fetch.Result
	panicOn string
	calls   map[string]int
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) fetch.Result {
	s.mu.Lock()
	s.calls[url]++
	s.mu.Unlock()

	if url == s.panicOn {
		panic("boom")
	}
	if res, ok := s.results[url]; ok {
		return res
	}
	return fetch.Result{Status: http.StatusNotFound, FinalURL: url}
}

func TestPanicIsolatedToURL(t *testing.T) {
	const base = "http://ics.uci.edu"
	page := func(body string) fetch.Result {
		return fetch.Result{Status: 200, ContentType: "text/html", Body: []byte(body)}
	}
	f := &stubFetcher{
		calls:   make(map[string]int),
		panicOn: base + "/bad",
		results: map[string]fetch.Result{
			base + "/":     page(`<a href="/bad">x</a><a href="/good">y</a><p>` + rootText + `</p>`),
			base + "/good": page(`<p>` + researchText + `</p>`),
		},
	}
	for u, r := range f.results {
		r.FinalURL = u
		f.results[u] = r
	}

	cfg := testConfig()
	cfg.AllowedDomains = []string{"ics.uci.edu"}
	store := NewMockStorage()

	c, err := NewCrawler(cfg, store, WithFetcher(f))
	require.NoError(t, err)
	defer c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Start(ctx, []string{base + "/"}))

	assert.Equal(t, frontier.Counts{Done: 2, Failed: 1}, c.frontier.Counts())
	assert.Equal(t, []string{base + "/bad"}, store.urlsInState(frontier.Failed))
	assert.Equal(t, 1, f.calls[base+"/bad"])
	assert.Equal(t, 1, f.calls[base+"/robots.txt"])
}

func TestNoFollowAndNoIndex(t *testing.T) {
	const base = "http://ics.uci.edu"
	f := &stubFetcher{
		calls: make(map[string]int),
		results: map[string]fetch.Result{
			base + "/": {Status: 200, FinalURL: base + "/", ContentType: "text/html", Body: []byte(
				`<head><meta name="robots" content="noindex"></head><p>` + rootText + `</p><a href="/next">n</a>`)},
			base + "/next": {Status: 200, FinalURL: base + "/next", ContentType: "text/html", Body: []byte(
				`<head><meta name="robots" content="nofollow"></head><p>` + researchText + `</p><a href="/hidden">h</a>`)},
		},
	}

	cfg := testConfig()
	cfg.AllowedDomains = []string{"ics.uci.edu"}
	c, err := NewCrawler(cfg, NewMockStorage(), WithFetcher(f))
	require.NoError(t, err)
	defer c.Stop()
	require.NoError(t, c.Start(context.Background(), []string{base + "/"}))

	assert.Zero(t, f.calls[base+"/hidden"])
	assert.Equal(t, frontier.Counts{Done: 2}, c.frontier.Counts())

	report := c.Report()
	assert.Equal(t, 1, report.UniquePages)
	assert.Equal(t, base+"/next", report.LongestPage.URL)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		res  fetch.Result
		want Class
	}{
		{fetch.Result{Status: 200}, Success},
		{fetch.Result{Status: 404}, FetchStatusError},
		{fetch.Result{Status: 500}, FetchStatusError},
		{fetch.Result{Status: 301}, FetchStatusError},
		{fetch.Result{Err: fetch.ErrTimeout}, TransientFetchError},
		{fetch.Result{Err: fetch.ErrDNSFailure}, TransientFetchError},
		{fetch.Result{Err: fetch.ErrMaxRetriesExceeded}, TransientFetchError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%s", tt.res.Status, tt.res.Err), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.res))
		})
	}
}

func TestIsHTML(t *testing.T) {
	assert.True(t, isHTML(""))
	assert.True(t, isHTML("text/html"))
	assert.True(t, isHTML("text/html; charset=utf-8"))
	assert.True(t, isHTML("application/xhtml+xml"))
	assert.False(t, isHTML("application/pdf"))
	assert.False(t, isHTML("image/png"))
}
