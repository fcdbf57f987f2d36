package crawler

import (
	"slices"
	"sort"
	"sync"

	"github.com/masahif/webcorpus/internal/analytics"
	"github.com/masahif/webcorpus/internal/dedup"
	"github.com/masahif/webcorpus/internal/frontier"
)

// MockStorage implements Storage in memory and records what the crawler wrote.
// It survives across crawler instances to simulate a restarted process.
type MockStorage struct {
	mu sync.Mutex

	entries    map[string]frontier.Entry
	order      []string
	hashes     map[string]string
	signatures []dedup.OwnedSignature
	recorded   map[string]bool
	links      map[string][]string
	state      analytics.State
	pages      map[string]*PageData
	errors     []*CrawlError
	meta       map[string]string

	resets int
}

func NewMockStorage() *MockStorage {
	m := &MockStorage{}
	m.clear()
	return m
}

func (m *MockStorage) clear() {
	m.entries = make(map[string]frontier.Entry)
	m.order = nil
	m.hashes = make(map[string]string)
	m.signatures = nil
	m.recorded = make(map[string]bool)
	m.links = make(map[string][]string)
	m.state = analytics.State{Words: make(map[string]int), Subdomains: make(map[string]int)}
	m.pages = make(map[string]*PageData)
	m.errors = nil
	m.meta = make(map[string]string)
}

func (m *MockStorage) LoadEntries() ([]frontier.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]frontier.Entry, 0, len(m.order))
	for _, u := range m.order {
		entries = append(entries, m.entries[u])
	}
	return entries, nil
}

func (m *MockStorage) SaveEntry(e frontier.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[e.URL]; !ok {
		m.order = append(m.order, e.URL)
	}
	m.entries[e.URL] = e
	return nil
}

func (m *MockStorage) LoadContentHashes() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hashes := make(map[string]string, len(m.hashes))
	for h, owner := range m.hashes {
		hashes[h] = owner
	}
	return hashes, nil
}

func (m *MockStorage) SaveContentHash(hash, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hashes[hash]; !ok {
		m.hashes[hash] = owner
	}
	return nil
}

func (m *MockStorage) LoadSignatures() ([]dedup.OwnedSignature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dedup.OwnedSignature(nil), m.signatures...), nil
}

func (m *MockStorage) SaveSignature(sig dedup.Signature, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signatures = append(m.signatures, dedup.OwnedSignature{Signature: sig, Owner: owner})
	return nil
}

func (m *MockStorage) SaveLinks(links []*LinkData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range links {
		if !slices.Contains(m.links[l.SourceURL], l.TargetURL) {
			m.links[l.SourceURL] = append(m.links[l.SourceURL], l.TargetURL)
		}
	}
	return nil
}

func (m *MockStorage) linksFrom(source string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.links[source]...)
	sort.Strings(out)
	return out
}

func (m *MockStorage) LoadAnalytics() (analytics.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := analytics.State{
		Words:       make(map[string]int, len(m.state.Words)),
		Subdomains:  make(map[string]int, len(m.state.Subdomains)),
		Longest:     m.state.Longest,
		UniquePages: m.state.UniquePages,
	}
	for w, n := range m.state.Words {
		st.Words[w] = n
	}
	for h, n := range m.state.Subdomains {
		st.Subdomains[h] = n
	}
	return st, nil
}

func (m *MockStorage) ApplyUpdate(u analytics.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.recorded[u.URL] {
		return analytics.ErrAlreadyRecorded
	}
	m.recorded[u.URL] = true

	for w, n := range u.Words {
		m.state.Words[w] += n
	}
	if u.Subdomain != "" {
		m.state.Subdomains[u.Subdomain]++
	}
	if u.Longest != nil {
		m.state.Longest = *u.Longest
	}
	m.state.UniquePages++
	return nil
}

func (m *MockStorage) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear()
	m.resets++
	return nil
}

func (m *MockStorage) HasPendingWork() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.State == frontier.Queued || e.State == frontier.InProgress {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStorage) StartRun() (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.meta["run_id"]; ok {
		return id, true, nil
	}
	m.meta["run_id"] = "test-run"
	return "test-run", false, nil
}

func (m *MockStorage) SavePageResult(page *PageData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := *page
	m.pages[page.URL] = &p
	return nil
}

func (m *MockStorage) SaveError(crawlError *CrawlError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, crawlError)
	return nil
}

func (m *MockStorage) GetMeta(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[key], nil
}

func (m *MockStorage) SetMeta(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = value
	return nil
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) page(url string) (*PageData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[url]
	return p, ok
}

func (m *MockStorage) errorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func (m *MockStorage) urlsInState(state frontier.State) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var urls []string
	for u, e := range m.entries {
		if e.State == state {
			urls = append(urls, u)
		}
	}
	sort.Strings(urls)
	return urls
}
