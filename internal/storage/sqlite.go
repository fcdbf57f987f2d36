// Package storage provides data persistence functionality for the crawler.
// It implements SQLite-based storage for the frontier, duplicate fingerprints,
// corpus analytics, fetch records and crawl metadata.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/masahif/webcorpus/internal/analytics"
	"github.com/masahif/webcorpus/internal/crawler"
	"github.com/masahif/webcorpus/internal/dedup"
	"github.com/masahif/webcorpus/internal/frontier"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

// MetaRunID is the crawl_meta key holding the id of the current crawl run
const MetaRunID = "run_id"

// SQLiteStorage implements crawler.Storage using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

var _ crawler.Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	storage := &SQLiteStorage{db: db}

	if err := storage.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// InitSchema creates the database schema
func (s *SQLiteStorage) InitSchema() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000",  // 30 second timeout for locks
		"PRAGMA locking_mode = NORMAL", // Allow external monitoring processes
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Reset discards all persisted crawl state
func (s *SQLiteStorage) Reset() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range resetTables {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	return tx.Commit()
}

// StartRun returns the id of the current crawl run, creating one when the
// database holds none yet.
func (s *SQLiteStorage) StartRun() (runID string, resumed bool, err error) {
	runID, err = s.GetMeta(MetaRunID)
	if err != nil {
		return "", false, err
	}
	if runID != "" {
		return runID, true, nil
	}

	runID = uuid.NewString()
	if err := s.SetMeta(MetaRunID, runID); err != nil {
		return "", false, err
	}
	return runID, false, nil
}

// LoadEntries returns every frontier entry in discovery order
func (s *SQLiteStorage) LoadEntries() ([]frontier.Entry, error) {
	rows, err := s.db.Query(`
		SELECT url, host, status, discovered_at, attempts, not_before
		FROM pages
		ORDER BY discovered_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query frontier entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []frontier.Entry
	for rows.Next() {
		var (
			e          frontier.Entry
			status     string
			discovered int64
			notBefore  int64
		)
		if err := rows.Scan(&e.URL, &e.Host, &status, &discovered, &e.Attempts, &notBefore); err != nil {
			return nil, fmt.Errorf("failed to scan frontier entry: %w", err)
		}
		if e.State, err = frontier.ParseState(status); err != nil {
			return nil, err
		}
		e.DiscoveredAt = time.Unix(0, discovered)
		if notBefore > 0 {
			e.NotBefore = time.Unix(0, notBefore)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// SaveEntry inserts or updates the frontier record for e.URL
func (s *SQLiteStorage) SaveEntry(e frontier.Entry) error {
	var notBefore int64
	if !e.NotBefore.IsZero() {
		notBefore = e.NotBefore.UnixNano()
	}

	_, err := s.db.Exec(`
		INSERT INTO pages (url, host, status, discovered_at, attempts, not_before)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			not_before = excluded.not_before
	`, e.URL, e.Host, e.State.String(), e.DiscoveredAt.UnixNano(), e.Attempts, notBefore)
	if err != nil {
		return fmt.Errorf("failed to save frontier entry: %w", err)
	}
	return nil
}

// HasPendingWork reports whether any entry is queued or in progress
func (s *SQLiteStorage) HasPendingWork() (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM pages
		WHERE status IN ('queued', 'in_progress')
	`).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check pending work: %w", err)
	}

	return count > 0, nil
}

// CountByState returns frontier counts by state
func (s *SQLiteStorage) CountByState() (frontier.Counts, error) {
	var c frontier.Counts
	err := s.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'queued' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'done' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM pages
	`).Scan(&c.Queued, &c.InProgress, &c.Done, &c.Failed)
	if err != nil {
		return frontier.Counts{}, fmt.Errorf("failed to get queue status: %w", err)
	}
	return c, nil
}

// SavePageResult stores the fetch record of a crawled page
func (s *SQLiteStorage) SavePageResult(page *crawler.PageData) error {
	_, err := s.db.Exec(`
		UPDATE pages SET
			status_code = ?,
			final_url = ?,
			title = ?,
			content_hash = NULLIF(?, ''),
			verdict = NULLIF(?, ''),
			token_count = ?,
			ttfb_ms = ?,
			download_time_ms = ?,
			response_size_bytes = ?,
			crawled_at = ?
		WHERE url = ?
	`,
		page.StatusCode,
		page.FinalURL,
		page.Title,
		page.ContentHash,
		page.Verdict,
		page.TokenCount,
		page.TTFB.Milliseconds(),
		page.DownloadTime.Milliseconds(),
		page.ResponseSize,
		page.CrawledAt,
		page.URL,
	)
	if err != nil {
		return fmt.Errorf("failed to save page result: %w", err)
	}
	return nil
}

// SaveError saves crawl error details
func (s *SQLiteStorage) SaveError(crawlErr *crawler.CrawlError) error {
	_, err := s.db.Exec(`
		INSERT INTO crawl_errors (
			url, error_type, error_message, attempt, occurred_at
		) VALUES (?, ?, ?, ?, ?)
	`,
		crawlErr.URL,
		crawlErr.ErrorType,
		crawlErr.ErrorMessage,
		crawlErr.Attempt,
		crawlErr.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save error: %w", err)
	}
	return nil
}

// LoadContentHashes returns every stored exact-content digest mapped to the URL that produced it
func (s *SQLiteStorage) LoadContentHashes() (map[string]string, error) {
	rows, err := s.db.Query("SELECT hash, owner_url FROM content_hashes")
	if err != nil {
		return nil, fmt.Errorf("failed to query content hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]string)
	for rows.Next() {
		var h, owner string
		if err := rows.Scan(&h, &owner); err != nil {
			return nil, fmt.Errorf("failed to scan content hash: %w", err)
		}
		hashes[h] = owner
	}
	return hashes, rows.Err()
}

// SaveContentHash records a digest; the first owner of a digest is kept
func (s *SQLiteStorage) SaveContentHash(hash, owner string) error {
	if _, err := s.db.Exec("INSERT OR IGNORE INTO content_hashes (hash, owner_url) VALUES (?, ?)", hash, owner); err != nil {
		return fmt.Errorf("failed to save content hash: %w", err)
	}
	return nil
}

// LoadSignatures returns retained SimHash signatures in insertion order
func (s *SQLiteStorage) LoadSignatures() ([]dedup.OwnedSignature, error) {
	rows, err := s.db.Query("SELECT signature, owner_url FROM simhash_signatures ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query signatures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sigs []dedup.OwnedSignature
	for rows.Next() {
		var (
			v     int64
			owner string
		)
		if err := rows.Scan(&v, &owner); err != nil {
			return nil, fmt.Errorf("failed to scan signature: %w", err)
		}
		sigs = append(sigs, dedup.OwnedSignature{Signature: dedup.Signature(uint64(v)), Owner: owner})
	}
	return sigs, rows.Err()
}

// SaveSignature appends a signature. SQLite integers are signed, so the bits are stored as int64.
func (s *SQLiteStorage) SaveSignature(sig dedup.Signature, owner string) error {
	if _, err := s.db.Exec("INSERT INTO simhash_signatures (signature, owner_url) VALUES (?, ?)", int64(sig), owner); err != nil {
		return fmt.Errorf("failed to save signature: %w", err)
	}
	return nil
}

// SaveLinks saves the outbound links of one or more pages in a single transaction
func (s *SQLiteStorage) SaveLinks(links []*crawler.LinkData) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO links (source_url, target_url) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, link := range links {
		if _, err := stmt.Exec(link.SourceURL, link.TargetURL); err != nil {
			return fmt.Errorf("failed to save link %s -> %s: %w", link.SourceURL, link.TargetURL, err)
		}
	}

	return tx.Commit()
}

// LoadLinks returns the stored outbound link targets of sourceURL
func (s *SQLiteStorage) LoadLinks(sourceURL string) ([]string, error) {
	rows, err := s.db.Query("SELECT target_url FROM links WHERE source_url = ? ORDER BY id", sourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var targets []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

// LoadAnalytics reads the aggregated corpus statistics
func (s *SQLiteStorage) LoadAnalytics() (analytics.State, error) {
	st := analytics.State{
		Words:      make(map[string]int),
		Subdomains: make(map[string]int),
	}

	if err := s.loadCounts("SELECT word, count FROM word_counts", st.Words); err != nil {
		return analytics.State{}, fmt.Errorf("failed to load word counts: %w", err)
	}
	if err := s.loadCounts("SELECT host, count FROM subdomain_counts", st.Subdomains); err != nil {
		return analytics.State{}, fmt.Errorf("failed to load subdomain counts: %w", err)
	}

	err := s.db.QueryRow(`
		SELECT unique_pages, longest_url, longest_tokens FROM analytics_summary WHERE id = 1
	`).Scan(&st.UniquePages, &st.Longest.URL, &st.Longest.Tokens)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return analytics.State{}, fmt.Errorf("failed to load analytics summary: %w", err)
	}

	return st, nil
}

// ApplyUpdate persists one recorded page in a single transaction.
// A page that was already recorded returns analytics.ErrAlreadyRecorded and changes nothing.
func (s *SQLiteStorage) ApplyUpdate(u analytics.Update) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec("INSERT OR IGNORE INTO recorded_pages (url) VALUES (?)", u.URL)
	if err != nil {
		return fmt.Errorf("failed to mark page recorded: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to mark page recorded: %w", err)
	} else if n == 0 {
		return analytics.ErrAlreadyRecorded
	}

	if len(u.Words) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO word_counts (word, count) VALUES (?, ?)
			ON CONFLICT(word) DO UPDATE SET count = count + excluded.count
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for w, n := range u.Words {
			if _, err := stmt.Exec(w, n); err != nil {
				return fmt.Errorf("failed to update word %s: %w", w, err)
			}
		}
	}

	if u.Subdomain != "" {
		if _, err := tx.Exec(`
			INSERT INTO subdomain_counts (host, count) VALUES (?, 1)
			ON CONFLICT(host) DO UPDATE SET count = count + 1
		`, u.Subdomain); err != nil {
			return fmt.Errorf("failed to update subdomain %s: %w", u.Subdomain, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO analytics_summary (id, unique_pages) VALUES (1, 1)
		ON CONFLICT(id) DO UPDATE SET unique_pages = unique_pages + 1
	`); err != nil {
		return fmt.Errorf("failed to update unique pages: %w", err)
	}

	if u.Longest != nil {
		if _, err := tx.Exec(`
			UPDATE analytics_summary SET longest_url = ?, longest_tokens = ? WHERE id = 1
		`, u.Longest.URL, u.Longest.Tokens); err != nil {
			return fmt.Errorf("failed to update longest page: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) loadCounts(query string, into map[string]int) error {
	rows, err := s.db.Query(query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

// GetMeta retrieves a metadata value
func (s *SQLiteStorage) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM crawl_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// SetMeta stores a metadata value
func (s *SQLiteStorage) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO crawl_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}
