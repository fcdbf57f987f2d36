// Package config provides configuration management for the crawler.
// It defines configuration structures, default values and validation.
package config

import (
	"os"
	"time"

	"github.com/masahif/webcorpus/internal/urlnorm"
)

// DefaultUserAgent identifies the crawler to servers and robots.txt groups
const DefaultUserAgent = "WebCorpus/1.0"

// BasicAuth contains HTTP Basic Authentication credentials
type BasicAuth struct {
	Username    string `mapstructure:"username" yaml:"username"`         // Username for basic auth
	Password    string `mapstructure:"password" yaml:"password"`         // Password for basic auth
	UsernameEnv string `mapstructure:"username_env" yaml:"username_env"` // Environment variable for username
	PasswordEnv string `mapstructure:"password_env" yaml:"password_env"` // Environment variable for password
}

// Auth contains authentication configuration
type Auth struct {
	Basic *BasicAuth `mapstructure:"basic" yaml:"basic"` // Basic authentication settings
}

// LogConfig controls the process logger
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`             // debug, info, warn or error
	Format     string `mapstructure:"format" yaml:"format"`           // json or text
	File       string `mapstructure:"file" yaml:"file"`               // optional log file, rotated by size
	MaxSizeMB  int64  `mapstructure:"max_size_mb" yaml:"max_size_mb"` // rotation threshold
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // rotated files kept
}

// CrawlConfig holds crawler configuration
type CrawlConfig struct {
	// Basic crawling parameters
	SeedURLs        []string      `mapstructure:"seed_urls" yaml:"seed_urls"`               // Starting URLs for crawling
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`           // Number of concurrent workers
	PolitenessDelay time.Duration `mapstructure:"politeness_delay" yaml:"politeness_delay"` // Minimum spacing between fetches to one host
	RequestDelay    time.Duration `mapstructure:"request_delay" yaml:"request_delay"`       // Pause of a worker after each page
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`   // HTTP request timeout
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`             // HTTP User-Agent header
	RespectRobots   bool          `mapstructure:"respect_robots" yaml:"respect_robots"`     // Whether to respect robots.txt
	Restart         bool          `mapstructure:"restart" yaml:"restart"`                   // Discard persisted state before crawling
	Limit           int           `mapstructure:"limit" yaml:"limit"`                       // Stop after N pages
	MaxBodySize     int64         `mapstructure:"max_body_size" yaml:"max_body_size"`       // Response bytes read per page

	// Authentication
	Auth *Auth `mapstructure:"auth" yaml:"auth"` // Authentication configuration

	// URL scope
	AllowedDomains  []string `mapstructure:"allowed_domains" yaml:"allowed_domains"`   // Hosts and their subdomains that may be crawled
	TrapSegments    []string `mapstructure:"trap_segments" yaml:"trap_segments"`       // Path segments treated as crawler traps
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"` // Regex patterns for URLs to exclude

	// Retries
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`   // Fetch attempts before a URL fails
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"` // Wait before retrying a transient failure

	// Duplicate detection
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" yaml:"similarity_threshold"` // SimHash similarity for near duplicates
	MinTokens           int     `mapstructure:"min_tokens" yaml:"min_tokens"`                     // Content words required to fingerprint a page

	// Reporting
	TopWords      int           `mapstructure:"top_words" yaml:"top_words"`           // Words listed in the final report
	StatsInterval time.Duration `mapstructure:"stats_interval" yaml:"stats_interval"` // Progress log interval
	MetricsAddr   string        `mapstructure:"metrics_addr" yaml:"metrics_addr"`     // Status server address, empty disables it

	// Database configuration
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"` // Path to SQLite database file

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *CrawlConfig {
	return &CrawlConfig{
		Concurrency:         4,
		PolitenessDelay:     500 * time.Millisecond,
		RequestDelay:        100 * time.Millisecond,
		RequestTimeout:      30 * time.Second,
		UserAgent:           DefaultUserAgent,
		RespectRobots:       true,
		Limit:               0, // unlimited
		MaxBodySize:         10 << 20,
		AllowedDomains:      append([]string(nil), urlnorm.DefaultAllowedDomains...),
		TrapSegments:        append([]string(nil), urlnorm.DefaultTrapSegments...),
		MaxAttempts:         3,
		RetryBackoff:        120 * time.Second,
		SimilarityThreshold: 0.85,
		MinTokens:           25,
		TopWords:            50,
		StatsInterval:       10 * time.Second,
		DatabasePath:        "./crawl.db",
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
	}
}

// Validate checks if the configuration is valid
func (c *CrawlConfig) Validate() error {
	// Note: SeedURLs are optional - crawler can resume from existing queue

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.PolitenessDelay < 0 || c.RequestDelay < 0 || c.RetryBackoff < 0 {
		return ErrNegativeDelay
	}

	if len(c.AllowedDomains) == 0 {
		return ErrNoAllowedDomains
	}

	if c.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return ErrInvalidThreshold
	}

	if c.MinTokens < 0 {
		return ErrInvalidMinTokens
	}

	if c.StatsInterval <= 0 {
		c.StatsInterval = 10 * time.Second
	}

	if c.DatabasePath == "" {
		return ErrEmptyDatabasePath
	}

	return nil
}

// GetBasicAuthCredentials returns the basic auth username and password,
// resolving environment variables if specified
func (c *CrawlConfig) GetBasicAuthCredentials() (username, password string) {
	if c.Auth == nil || c.Auth.Basic == nil {
		return "", ""
	}

	basic := c.Auth.Basic

	if basic.UsernameEnv != "" {
		username = os.Getenv(basic.UsernameEnv)
	} else {
		username = basic.Username
	}

	if basic.PasswordEnv != "" {
		password = os.Getenv(basic.PasswordEnv)
	} else {
		password = basic.Password
	}

	return username, password
}
