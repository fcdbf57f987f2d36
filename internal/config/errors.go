package config

import "errors"

var (
	// ErrInvalidConcurrency is returned when concurrency is not greater than 0
	ErrInvalidConcurrency = errors.New("concurrency must be greater than 0")
	// ErrInvalidTimeout is returned when request timeout is not greater than 0
	ErrInvalidTimeout = errors.New("request_timeout must be greater than 0")
	// ErrNegativeDelay is returned when a delay or backoff is negative
	ErrNegativeDelay = errors.New("politeness_delay, request_delay and retry_backoff cannot be negative")
	// ErrNoAllowedDomains is returned when the crawl scope is empty
	ErrNoAllowedDomains = errors.New("allowed_domains cannot be empty")
	// ErrInvalidMaxAttempts is returned when max attempts is less than 1
	ErrInvalidMaxAttempts = errors.New("max_attempts must be at least 1")
	// ErrInvalidThreshold is returned when the similarity threshold is outside (0, 1]
	ErrInvalidThreshold = errors.New("similarity_threshold must be in (0, 1]")
	// ErrInvalidMinTokens is returned when min tokens is negative
	ErrInvalidMinTokens = errors.New("min_tokens cannot be negative")
	// ErrEmptyDatabasePath is returned when database path is empty
	ErrEmptyDatabasePath = errors.New("database_path cannot be empty")
)
