// Package frontier owns the set of known URLs and decides which one a worker
// fetches next, keeping every canonical URL unique and every host polite.
package frontier

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/masahif/webcorpus/internal/urlnorm"
)

// ErrEmpty is returned by Next when nothing is queued and nothing is in progress.
var ErrEmpty = errors.New("frontier exhausted")

// DefaultMaxWait bounds how long Next sleeps before re-checking.
const DefaultMaxWait = time.Second

// Canonicalizer maps raw URLs to canonical form or rejects them
type Canonicalizer interface {
	Canonicalize(raw string) (urlnorm.CanonicalURL, error)
}

// Policy decides whether robots rules permit a URL
type Policy interface {
	Allowed(ctx context.Context, u urlnorm.CanonicalURL) bool
}

// Store persists entries. SaveEntry replaces the record for Entry.URL.
type Store interface {
	LoadEntries() ([]Entry, error)
	SaveEntry(e Entry) error
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithHostDelay supplies a per-host delay. The larger of it and the default delay applies.
func WithHostDelay(fn func(host string) time.Duration) Option {
	return func(f *Frontier) {
		f.hostDelay = fn
	}
}

// WithMaxWait sets the longest sleep inside Next between re-checks.
func WithMaxWait(d time.Duration) Option {
	return func(f *Frontier) {
		if d > 0 {
			f.maxWait = d
		}
	}
}

// Frontier is the crawl's URL set and scheduler. All methods are safe for concurrent use.
type Frontier struct {
	canon  Canonicalizer
	policy Policy
	store  Store

	delay     time.Duration
	hostDelay func(host string) time.Duration
	maxWait   time.Duration

	mu         sync.Mutex
	entries    map[string]*Entry
	hosts      map[string]*hostQueue
	ready      hostHeap
	delayed    delayedHeap
	queued     int
	inProgress int
	done       int
	failed     int

	// changed is closed and replaced whenever dispatchable work may have appeared
	changed chan struct{}
}

// New creates an empty frontier. A nil policy allows every URL; a nil store keeps state in memory only.
func New(canon Canonicalizer, policy Policy, store Store, delay time.Duration, opts ...Option) *Frontier {
	f := &Frontier{
		canon:   canon,
		policy:  policy,
		store:   store,
		delay:   delay,
		maxWait: DefaultMaxWait,
		entries: make(map[string]*Entry),
		hosts:   make(map[string]*hostQueue),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Load restores persisted entries. Done and Failed entries only mark URLs as seen;
// InProgress entries from an unclean shutdown become Queued again.
func (f *Frontier) Load() error {
	if f.store == nil {
		return nil
	}

	entries, err := f.store.LoadEntries()
	if err != nil {
		return fmt.Errorf("failed to load frontier: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range entries {
		e := entries[i]
		if _, ok := f.entries[e.URL]; ok {
			continue
		}

		switch e.State {
		case Done:
			f.done++
		case Failed:
			f.failed++
		case InProgress:
			e.State = Queued
			if err := f.store.SaveEntry(e); err != nil {
				return fmt.Errorf("failed to requeue %s: %w", e.URL, err)
			}
			fallthrough
		case Queued:
			f.queued++
			if e.NotBefore.After(time.Now()) {
				heap.Push(&f.delayed, delayedItem{url: e.URL, host: e.Host, notBefore: e.NotBefore})
			} else {
				f.enqueueLocked(e.Host, e.URL)
			}
		}
		f.entries[e.URL] = &e
	}

	f.notifyLocked()
	return nil
}

// Add canonicalizes raw and queues it if it is in scope, allowed by robots and unseen.
// A Rejected result comes with a *urlnorm.RejectError. AlreadyKnown and Rejected have no side effects.
func (f *Frontier) Add(ctx context.Context, raw string) (AddResult, error) {
	cu, err := f.canon.Canonicalize(raw)
	if err != nil {
		return Rejected, err
	}
	key := cu.String()

	if f.known(key) {
		return AlreadyKnown, nil
	}

	// robots may block on a fetch; it must not hold the frontier lock
	if f.policy != nil && !f.policy.Allowed(ctx, cu) {
		return Rejected, urlnorm.Reject(raw, urlnorm.RobotsDisallowed)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.entries[key]; ok {
		return AlreadyKnown, nil
	}

	e := &Entry{
		URL:          key,
		Host:         cu.Host,
		State:        Queued,
		DiscoveredAt: time.Now(),
	}
	f.entries[key] = e
	f.queued++
	f.enqueueLocked(e.Host, key)
	f.notifyLocked()

	if f.store != nil {
		if err := f.store.SaveEntry(*e); err != nil {
			return Added, fmt.Errorf("failed to persist %s: %w", key, err)
		}
	}
	return Added, nil
}

// Next blocks until an entry may be fetched and returns it marked InProgress.
// It returns ErrEmpty only when no entry is queued or in progress, and ctx.Err() on cancellation.
func (f *Frontier) Next(ctx context.Context) (Entry, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Entry{}, err
		}

		f.mu.Lock()
		now := time.Now()
		f.promoteLocked(now)

		if f.queued == 0 && f.inProgress == 0 {
			f.mu.Unlock()
			return Entry{}, ErrEmpty
		}

		wait := f.maxWait
		if len(f.ready) > 0 {
			q := f.ready[0]
			if !q.nextAllowed.After(now) {
				e := f.dispatchLocked(q, now)
				f.mu.Unlock()
				return e, nil
			}
			wait = min(wait, q.nextAllowed.Sub(now))
		}
		if len(f.delayed) > 0 {
			wait = min(wait, f.delayed[0].notBefore.Sub(now))
		}
		changed := f.changed
		f.mu.Unlock()

		timer := time.NewTimer(max(wait, time.Millisecond))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Entry{}, ctx.Err()
		case <-changed:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Complete marks an in-progress entry Done.
func (f *Frontier) Complete(url string) error {
	return f.finish(url, Done)
}

// Fail marks an in-progress entry Failed. It will not be dispatched again.
func (f *Frontier) Fail(url string) error {
	return f.finish(url, Failed)
}

// Retry returns an in-progress entry to the queue, dispatchable no earlier than notBefore.
func (f *Frontier) Retry(url string, notBefore time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, err := f.inProgressLocked(url)
	if err != nil {
		return err
	}

	e.State = Queued
	e.NotBefore = notBefore
	f.inProgress--
	f.queued++
	heap.Push(&f.delayed, delayedItem{url: e.URL, host: e.Host, notBefore: notBefore})
	f.notifyLocked()

	return f.persistLocked(e)
}

// Counts returns the number of entries in each state.
func (f *Frontier) Counts() Counts {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Counts{
		Queued:     f.queued,
		InProgress: f.inProgress,
		Done:       f.done,
		Failed:     f.failed,
	}
}

// Lookup returns a copy of the entry for a canonical URL.
func (f *Frontier) Lookup(url string) (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[url]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (f *Frontier) known(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[key]
	return ok
}

func (f *Frontier) finish(url string, state State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, err := f.inProgressLocked(url)
	if err != nil {
		return err
	}

	e.State = state
	f.inProgress--
	if state == Done {
		f.done++
	} else {
		f.failed++
	}
	// waiters must re-check exhaustion
	f.notifyLocked()

	return f.persistLocked(e)
}

func (f *Frontier) inProgressLocked(url string) (*Entry, error) {
	e, ok := f.entries[url]
	if !ok {
		return nil, fmt.Errorf("unknown frontier entry %s", url)
	}
	if e.State != InProgress {
		return nil, fmt.Errorf("entry %s is %s, not in progress", url, e.State)
	}
	return e, nil
}

func (f *Frontier) dispatchLocked(q *hostQueue, now time.Time) Entry {
	url := q.urls[0]
	q.urls[0] = ""
	q.urls = q.urls[1:]

	q.nextAllowed = now.Add(f.delayFor(q.name))
	if len(q.urls) == 0 {
		heap.Remove(&f.ready, q.index)
	} else {
		heap.Fix(&f.ready, q.index)
	}

	e := f.entries[url]
	e.State = InProgress
	e.Attempts++
	e.NotBefore = time.Time{}
	f.queued--
	f.inProgress++

	// the entry is dispatched regardless; a crash before the next write requeues it anyway
	if err := f.persistLocked(e); err != nil {
		slog.Error("Failed to persist dispatch", "url", e.URL, "error", err)
	}
	return *e
}

func (f *Frontier) enqueueLocked(host, url string) {
	q, ok := f.hosts[host]
	if !ok {
		q = &hostQueue{name: host, index: -1}
		f.hosts[host] = q
	}
	q.urls = append(q.urls, url)
	if q.index < 0 {
		heap.Push(&f.ready, q)
	}
}

// promoteLocked moves retries whose backoff has elapsed into their host queues.
func (f *Frontier) promoteLocked(now time.Time) {
	for len(f.delayed) > 0 && !f.delayed[0].notBefore.After(now) {
		it := heap.Pop(&f.delayed).(delayedItem)
		f.enqueueLocked(it.host, it.url)
	}
}

func (f *Frontier) delayFor(host string) time.Duration {
	d := f.delay
	if f.hostDelay != nil {
		d = max(d, f.hostDelay(host))
	}
	return d
}

func (f *Frontier) notifyLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *Frontier) persistLocked(e *Entry) error {
	if f.store == nil {
		return nil
	}
	if err := f.store.SaveEntry(*e); err != nil {
		return fmt.Errorf("failed to persist %s: %w", e.URL, err)
	}
	return nil
}
