package storage

const schemaSQL = `
-- Pages table is the persisted frontier and the per-page fetch record
-- status column manages the lifecycle: queued -> in_progress -> done | failed
CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL,
    host TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'queued' CHECK (status IN ('queued', 'in_progress', 'done', 'failed')),

    -- Frontier fields, times are unix nanoseconds
    discovered_at INTEGER NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    not_before INTEGER NOT NULL DEFAULT 0,

    -- Fetch result fields (NULL until fetched)
    status_code INTEGER,
    final_url TEXT,
    title TEXT,
    content_hash TEXT,
    verdict TEXT,
    token_count INTEGER,
    ttfb_ms INTEGER,
    download_time_ms INTEGER,
    response_size_bytes INTEGER,
    crawled_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_pages_status ON pages(status);
CREATE INDEX IF NOT EXISTS idx_pages_host ON pages(host);
CREATE INDEX IF NOT EXISTS idx_pages_content_hash ON pages(content_hash) WHERE content_hash IS NOT NULL;

-- View for queue monitoring from an external sqlite shell
CREATE VIEW IF NOT EXISTS queue_status AS
SELECT
    status,
    COUNT(*) as count,
    MIN(discovered_at) as oldest_item,
    MAX(discovered_at) as newest_item
FROM pages
GROUP BY status;

-- Exact content digests of every processed page and the URL that produced them
CREATE TABLE IF NOT EXISTS content_hashes (
    hash TEXT PRIMARY KEY NOT NULL,
    owner_url TEXT NOT NULL
);

-- Retained SimHash signatures, stored as signed 64-bit integers
CREATE TABLE IF NOT EXISTS simhash_signatures (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    signature INTEGER NOT NULL,
    owner_url TEXT NOT NULL
);

-- Outbound links of processed pages, targets in canonical form
CREATE TABLE IF NOT EXISTS links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_url TEXT NOT NULL,
    target_url TEXT NOT NULL,
    crawled_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(source_url, target_url)
);

CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_url);

-- Analytics: word frequencies, subdomain counts and the singleton summary row
CREATE TABLE IF NOT EXISTS word_counts (
    word TEXT PRIMARY KEY NOT NULL,
    count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS subdomain_counts (
    host TEXT PRIMARY KEY NOT NULL,
    count INTEGER NOT NULL
);

-- Pages already counted, so a page retried after a crash is counted once
CREATE TABLE IF NOT EXISTS recorded_pages (
    url TEXT PRIMARY KEY NOT NULL
);

CREATE TABLE IF NOT EXISTS analytics_summary (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    unique_pages INTEGER NOT NULL DEFAULT 0,
    longest_url TEXT NOT NULL DEFAULT '',
    longest_tokens INTEGER NOT NULL DEFAULT 0
);

-- Transient fetch failures, one row per failed attempt
CREATE TABLE IF NOT EXISTS crawl_errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL,
    error_type TEXT NOT NULL,
    error_message TEXT,
    attempt INTEGER NOT NULL,
    occurred_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_errors_url ON crawl_errors(url);
CREATE INDEX IF NOT EXISTS idx_errors_type ON crawl_errors(error_type);

-- Crawl meta table stores metadata as key-value pairs
CREATE TABLE IF NOT EXISTS crawl_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);
`

// resetTables lists every table cleared when a crawl restarts.
var resetTables = []string{
	"pages",
	"content_hashes",
	"simhash_signatures",
	"links",
	"recorded_pages",
	"word_counts",
	"subdomain_counts",
	"analytics_summary",
	"crawl_errors",
	"crawl_meta",
}
