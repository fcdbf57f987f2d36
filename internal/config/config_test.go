package config

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Concurrency != 4 {
		t.Errorf("Expected concurrency 4, got %d", cfg.Concurrency)
	}

	if cfg.PolitenessDelay != 500*time.Millisecond {
		t.Errorf("Expected politeness delay 500ms, got %v", cfg.PolitenessDelay)
	}

	if cfg.RetryBackoff != 120*time.Second {
		t.Errorf("Expected retry backoff 120s, got %v", cfg.RetryBackoff)
	}

	if cfg.SimilarityThreshold != 0.85 {
		t.Errorf("Expected similarity threshold 0.85, got %v", cfg.SimilarityThreshold)
	}

	if cfg.MinTokens != 25 {
		t.Errorf("Expected min tokens 25, got %d", cfg.MinTokens)
	}

	if cfg.UserAgent != DefaultUserAgent {
		t.Errorf("Expected user agent %q, got %s", DefaultUserAgent, cfg.UserAgent)
	}

	if !cfg.RespectRobots {
		t.Errorf("Expected respect robots true, got %v", cfg.RespectRobots)
	}

	if cfg.Restart {
		t.Error("Expected restart false by default")
	}

	if len(cfg.AllowedDomains) != 4 {
		t.Errorf("Expected 4 allowed domains, got %v", cfg.AllowedDomains)
	}

	if cfg.DatabasePath != "./crawl.db" {
		t.Errorf("Expected database path './crawl.db', got %s", cfg.DatabasePath)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestDefaultConfigDoesNotAliasPackageDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedDomains[0] = "example.com"

	if DefaultConfig().AllowedDomains[0] == "example.com" {
		t.Error("DefaultConfig returned a shared slice")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *CrawlConfig)
		wantErr error
	}{
		{"valid config", func(c *CrawlConfig) {}, nil},
		{"invalid concurrency", func(c *CrawlConfig) { c.Concurrency = 0 }, ErrInvalidConcurrency},
		{"invalid timeout", func(c *CrawlConfig) { c.RequestTimeout = 0 }, ErrInvalidTimeout},
		{"negative politeness delay", func(c *CrawlConfig) { c.PolitenessDelay = -time.Second }, ErrNegativeDelay},
		{"negative request delay", func(c *CrawlConfig) { c.RequestDelay = -time.Second }, ErrNegativeDelay},
		{"zero delays allowed", func(c *CrawlConfig) { c.PolitenessDelay, c.RequestDelay, c.RetryBackoff = 0, 0, 0 }, nil},
		{"no domains", func(c *CrawlConfig) { c.AllowedDomains = nil }, ErrNoAllowedDomains},
		{"zero attempts", func(c *CrawlConfig) { c.MaxAttempts = 0 }, ErrInvalidMaxAttempts},
		{"zero threshold", func(c *CrawlConfig) { c.SimilarityThreshold = 0 }, ErrInvalidThreshold},
		{"threshold above one", func(c *CrawlConfig) { c.SimilarityThreshold = 1.5 }, ErrInvalidThreshold},
		{"negative min tokens", func(c *CrawlConfig) { c.MinTokens = -1 }, ErrInvalidMinTokens},
		{"empty database path", func(c *CrawlConfig) { c.DatabasePath = "" }, ErrEmptyDatabasePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFillsStatsInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StatsInterval = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.StatsInterval != 10*time.Second {
		t.Errorf("Expected stats interval 10s, got %v", cfg.StatsInterval)
	}
}

func TestGetBasicAuthCredentials(t *testing.T) {
	cfg := DefaultConfig()
	if u, p := cfg.GetBasicAuthCredentials(); u != "" || p != "" {
		t.Errorf("Expected no credentials, got %q/%q", u, p)
	}

	cfg.Auth = &Auth{Basic: &BasicAuth{Username: "alice", Password: "secret"}}
	if u, p := cfg.GetBasicAuthCredentials(); u != "alice" || p != "secret" {
		t.Errorf("Expected alice/secret, got %q/%q", u, p)
	}

	t.Setenv("WC_TEST_USER", "bob")
	t.Setenv("WC_TEST_PASS", "hunter2")
	cfg.Auth.Basic.UsernameEnv = "WC_TEST_USER"
	cfg.Auth.Basic.PasswordEnv = "WC_TEST_PASS"
	if u, p := cfg.GetBasicAuthCredentials(); u != "bob" || p != "hunter2" {
		t.Errorf("Expected bob/hunter2, got %q/%q", u, p)
	}
}
