// Package analytics accumulates corpus statistics from processed pages:
// word frequencies, the longest page, subdomain visit counts and the number of unique pages.
package analytics

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/masahif/webcorpus/internal/text"
)

// PageRecord identifies a page and its token count.
type PageRecord struct {
	URL    string `json:"url" yaml:"url"`
	Tokens int    `json:"tokens" yaml:"tokens"`
}

// WordCount is one entry of the word frequency ranking.
type WordCount struct {
	Word  string `json:"word" yaml:"word"`
	Count int    `json:"count" yaml:"count"`
}

// SubdomainCount is the number of unique pages recorded for one host.
type SubdomainCount struct {
	Host  string `json:"host" yaml:"host"`
	Count int    `json:"count" yaml:"count"`
}

// State is the complete persisted analytics state.
type State struct {
	Words       map[string]int
	Longest     PageRecord
	Subdomains  map[string]int
	UniquePages int
}

// Update is the delta produced by recording one page. Stores apply it atomically.
type Update struct {
	URL   string
	Words map[string]int
	// Longest is set when the page replaced the longest-page record
	Longest *PageRecord
	// Subdomain is empty when the host is not a crawl subdomain
	Subdomain string
}

// ErrAlreadyRecorded is returned by a Store for a page whose update was already applied.
var ErrAlreadyRecorded = errors.New("page already recorded")

// Store persists analytics state.
type Store interface {
	LoadAnalytics() (State, error)
	ApplyUpdate(u Update) error
}

// Snapshot is a read-only view of the aggregated statistics.
type Snapshot struct {
	TopWords    []WordCount      `json:"top_words" yaml:"top_words"`
	LongestPage PageRecord       `json:"longest_page" yaml:"longest_page"`
	Subdomains  []SubdomainCount `json:"subdomains" yaml:"subdomains"`
	UniquePages int              `json:"unique_pages" yaml:"unique_pages"`
}

// Aggregator is the single owner of the analytics state.
type Aggregator struct {
	store   Store
	inScope func(host string) bool

	mu    sync.Mutex
	state State
}

// New creates an Aggregator, restoring state from store when it is not nil.
// inScope decides which hosts are counted as crawl subdomains; nil counts every host.
func New(store Store, inScope func(host string) bool) (*Aggregator, error) {
	a := &Aggregator{
		store:   store,
		inScope: inScope,
		state: State{
			Words:      make(map[string]int),
			Subdomains: make(map[string]int),
		},
	}

	if store != nil {
		st, err := store.LoadAnalytics()
		if err != nil {
			return nil, fmt.Errorf("failed to load analytics: %w", err)
		}
		if st.Words != nil {
			a.state.Words = st.Words
		}
		if st.Subdomains != nil {
			a.state.Subdomains = st.Subdomains
		}
		a.state.Longest = st.Longest
		a.state.UniquePages = st.UniquePages
	}
	return a, nil
}

// Record adds one processed page. tokens include stop words; they count towards
// page length but not towards word frequencies. The update is persisted before it
// becomes visible, and concurrent calls are serialized.
func (a *Aggregator) Record(pageURL string, tokens []string) error {
	u := Update{
		URL:   pageURL,
		Words: make(map[string]int),
	}
	for _, w := range text.ContentWords(tokens) {
		u.Words[w]++
	}
	if host := hostOf(pageURL); host != "" && (a.inScope == nil || a.inScope(host)) {
		u.Subdomain = host
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// strictly greater, so the first page of a given length keeps the record
	if len(tokens) > a.state.Longest.Tokens {
		u.Longest = &PageRecord{URL: pageURL, Tokens: len(tokens)}
	}

	if a.store != nil {
		err := a.store.ApplyUpdate(u)
		if errors.Is(err, ErrAlreadyRecorded) {
			// counted by an earlier attempt whose state was loaded in New
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to persist analytics for %s: %w", pageURL, err)
		}
	}

	for w, n := range u.Words {
		a.state.Words[w] += n
	}
	if u.Longest != nil {
		a.state.Longest = *u.Longest
	}
	if u.Subdomain != "" {
		a.state.Subdomains[u.Subdomain]++
	}
	a.state.UniquePages++
	return nil
}

// Snapshot returns the topN most frequent words (all when topN <= 0), the longest
// page, subdomain counts ordered by host and the unique page count.
// Words are ordered by descending count, then alphabetically.
func (a *Aggregator) Snapshot(topN int) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	words := make([]WordCount, 0, len(a.state.Words))
	for w, n := range a.state.Words {
		words = append(words, WordCount{Word: w, Count: n})
	}
	sort.Slice(words, func(i, j int) bool {
		if words[i].Count != words[j].Count {
			return words[i].Count > words[j].Count
		}
		return words[i].Word < words[j].Word
	})
	if topN > 0 && len(words) > topN {
		words = words[:topN]
	}

	subdomains := make([]SubdomainCount, 0, len(a.state.Subdomains))
	for h, n := range a.state.Subdomains {
		subdomains = append(subdomains, SubdomainCount{Host: h, Count: n})
	}
	sort.Slice(subdomains, func(i, j int) bool { return subdomains[i].Host < subdomains[j].Host })

	return Snapshot{
		TopWords:    words,
		LongestPage: a.state.Longest,
		Subdomains:  subdomains,
		UniquePages: a.state.UniquePages,
	}
}

func hostOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
