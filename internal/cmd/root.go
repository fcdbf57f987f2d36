// Package cmd provides the command-line interface for WebCorpus.
// It handles command parsing, configuration loading, crawler execution and the final report.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/masahif/webcorpus/internal/analytics"
	"github.com/masahif/webcorpus/internal/config"
	"github.com/masahif/webcorpus/internal/crawler"
	"github.com/masahif/webcorpus/internal/logging"
	"github.com/masahif/webcorpus/internal/metrics"
	"github.com/masahif/webcorpus/internal/storage"
)

const (
	envPrefix      = "WC"
	configName     = "webcorpus"
	shutdownPeriod = 5 * time.Second
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// Execute builds the root command and runs it.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
}

// NewRootCmd creates the root command with its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "webcorpus [URLs...]",
		Short: "A polite, resumable web crawler that builds corpus statistics",
		Long: `WebCorpus crawls a fixed set of domains politely, skips duplicate and
near-duplicate pages, and aggregates word frequencies, the longest page and
subdomain counts. Crawl state lives in SQLite so an interrupted crawl resumes
where it stopped.`,
		Version:       fmt.Sprintf("%s (built %s)", version, buildTime),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawler(cmd, v, args)
		},
	}

	defaults := config.DefaultConfig()
	flags := rootCmd.Flags()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./webcorpus.yml)")
	flags.Bool("show-config", false, "Display current configuration in YAML format and exit")

	// Crawling
	flags.IntP("concurrency", "c", defaults.Concurrency, "Number of concurrent workers")
	flags.Duration("politeness-delay", defaults.PolitenessDelay, "Minimum delay between requests to the same host")
	flags.DurationP("delay", "r", defaults.RequestDelay, "Pause of each worker after a page")
	flags.DurationP("timeout", "t", defaults.RequestTimeout, "HTTP request timeout")
	flags.StringP("user-agent", "u", defaults.UserAgent, "HTTP User-Agent header")
	flags.Bool("respect-robots", defaults.RespectRobots, "Respect robots.txt rules")
	flags.Bool("restart", defaults.Restart, "Discard persisted crawl state and start from the seed URLs")
	flags.IntP("limit", "l", defaults.Limit, "Stop after N pages (0=unlimited)")
	flags.Int64("max-body-size", defaults.MaxBodySize, "Maximum response bytes read per page")
	flags.Int("max-attempts", defaults.MaxAttempts, "Fetch attempts before a URL is marked failed")
	flags.Duration("retry-backoff", defaults.RetryBackoff, "Wait before retrying a transient fetch failure")

	// Scope
	flags.StringSlice("allowed-domains", defaults.AllowedDomains, "Domains (and their subdomains) that may be crawled")
	flags.StringSlice("trap-segments", defaults.TrapSegments, "Path segments that mark crawler traps")
	flags.StringSlice("exclude-patterns", []string{}, "Regex patterns for URLs to exclude")

	// Duplicate detection and reporting
	flags.Float64("similarity-threshold", defaults.SimilarityThreshold, "SimHash similarity above which pages are near duplicates")
	flags.Int("min-tokens", defaults.MinTokens, "Content words required to fingerprint a page")
	flags.Int("top-words", defaults.TopWords, "Number of words in the final report")
	flags.Duration("stats-interval", defaults.StatsInterval, "Progress log interval")
	flags.String("metrics-addr", defaults.MetricsAddr, "Address of the status server (empty disables it)")

	// Basic authentication
	flags.String("auth-username", "", "Username for basic authentication")
	flags.String("auth-password", "", "Password for basic authentication")

	// Storage and logging
	flags.StringP("database", "d", defaults.DatabasePath, "Path to SQLite database file")
	flags.String("log-level", defaults.Log.Level, "Log level: debug, info, warn or error")
	flags.String("log-format", defaults.Log.Format, "Log format: json or text")
	flags.String("log-file", defaults.Log.File, "Also write logs to this file, rotated by size")

	bindFlags := []struct {
		viperKey string
		flagName string
	}{
		{"concurrency", "concurrency"},
		{"politeness_delay", "politeness-delay"},
		{"request_delay", "delay"},
		{"request_timeout", "timeout"},
		{"user_agent", "user-agent"},
		{"respect_robots", "respect-robots"},
		{"restart", "restart"},
		{"limit", "limit"},
		{"max_body_size", "max-body-size"},
		{"max_attempts", "max-attempts"},
		{"retry_backoff", "retry-backoff"},
		{"allowed_domains", "allowed-domains"},
		{"trap_segments", "trap-segments"},
		{"exclude_patterns", "exclude-patterns"},
		{"similarity_threshold", "similarity-threshold"},
		{"min_tokens", "min-tokens"},
		{"top_words", "top-words"},
		{"stats_interval", "stats-interval"},
		{"metrics_addr", "metrics-addr"},
		{"auth.basic.username", "auth-username"},
		{"auth.basic.password", "auth-password"},
		{"database_path", "database"},
		{"log.level", "log-level"},
		{"log.format", "log-format"},
		{"log.file", "log-file"},
	}

	for _, bind := range bindFlags {
		if err := v.BindPFlag(bind.viperKey, flags.Lookup(bind.flagName)); err != nil {
			// Log the error but continue - non-critical for operation
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}

	return rootCmd
}

// initConfig reads in config file and ENV variables if set.
func initConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(configName)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", v.ConfigFileUsed())
	return nil
}

// loadConfig merges defaults, config file, environment and flags into a CrawlConfig.
func loadConfig(v *viper.Viper, args []string) (*config.CrawlConfig, error) {
	cfg := config.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(args) > 0 {
		cfg.SeedURLs = args
	}
	if cfg.UserAgent == config.DefaultUserAgent && version != "dev" {
		cfg.UserAgent = fmt.Sprintf("WebCorpus/%s", version)
	}
	return cfg, nil
}

func showCurrentConfig(w io.Writer, cfg *config.CrawlConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(w, "# Warning: configuration validation failed: %v\n", err)
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Fprintf(w, "# Current WebCorpus Configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./%s.yml\n", configName)
	fmt.Fprintf(w, "# Environment variables prefix: %s_\n\n", envPrefix)
	_, err = w.Write(yamlData)
	return err
}

func runCrawler(cmd *cobra.Command, v *viper.Viper, args []string) error {
	cfg, err := loadConfig(v, args)
	if err != nil {
		return err
	}

	if showConfig, _ := cmd.Flags().GetBool("show-config"); showConfig {
		return showCurrentConfig(cmd.OutOrStdout(), cfg)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.SetDefault(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = logger.Close() }()

	out := cmd.OutOrStdout()

	if len(cfg.SeedURLs) == 0 {
		if cfg.Restart {
			return fmt.Errorf("%w: --restart requires seed URLs", crawler.ErrFatalStartup)
		}
		hasWork, err := hasPendingWork(cfg.DatabasePath)
		if err != nil {
			return err
		}
		if !hasWork {
			fmt.Fprintf(out, "No URLs provided and no queued URLs found in database %s\n", cfg.DatabasePath)
			fmt.Fprintf(out, "Nothing to crawl. Exiting.\n")
			return nil
		}
		slog.Info("Resuming crawl from existing database", "database", cfg.DatabasePath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0750); err != nil {
		return fmt.Errorf("%w: failed to create database directory: %w", crawler.ErrFatalStartup, err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrFatalStartup, err)
	}
	defer func() { _ = store.Close() }()

	c, err := crawler.NewCrawler(cfg, store)
	if err != nil {
		return err
	}
	defer func() { _ = c.Stop() }()

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, func() any {
			return statusDocument{Stats: c.GetStats(), Report: c.Report()}
		})
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting crawl",
		"seed_urls", cfg.SeedURLs,
		"allowed_domains", cfg.AllowedDomains,
		"concurrency", cfg.Concurrency,
		"politeness_delay", cfg.PolitenessDelay,
		"database", cfg.DatabasePath,
		"restart", cfg.Restart,
	)

	if err := c.Start(ctx, cfg.SeedURLs); err != nil {
		return err
	}

	return writeReport(out, c.GetStats(), c.Report(), cfg.DatabasePath)
}

// hasPendingWork reports whether an existing database still has queued or in-progress URLs.
func hasPendingWork(dbPath string) (bool, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return false, fmt.Errorf("no URLs provided and no existing database found at %s", dbPath)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return false, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	defer func() { _ = store.Close() }()

	hasWork, err := store.HasPendingWork()
	if err != nil {
		return false, fmt.Errorf("failed to check queue status: %w", err)
	}
	return hasWork, nil
}

type statusDocument struct {
	Stats  crawler.CrawlStats `json:"stats"`
	Report analytics.Snapshot `json:"report"`
}

type runSummary struct {
	PagesCrawled string `yaml:"pages_crawled"`
	PagesFailed  string `yaml:"pages_failed"`
	Duplicates   string `yaml:"duplicates"`
	FetchErrors  string `yaml:"fetch_errors"`
	Duration     string `yaml:"duration"`
	DatabaseSize string `yaml:"database_size,omitempty"`
}

type finalReport struct {
	Summary runSummary         `yaml:"summary"`
	Corpus  analytics.Snapshot `yaml:",inline"`
}

// writeReport prints the run summary and corpus statistics as YAML.
func writeReport(w io.Writer, stats crawler.CrawlStats, snap analytics.Snapshot, dbPath string) error {
	report := finalReport{
		Summary: runSummary{
			PagesCrawled: humanize.Comma(int64(stats.PagesCrawled)),
			PagesFailed:  humanize.Comma(int64(stats.PagesFailed)),
			Duplicates:   humanize.Comma(int64(stats.Duplicates)),
			FetchErrors:  humanize.Comma(int64(stats.ErrorCount)),
			Duration:     stats.Duration.Round(time.Millisecond).String(),
		},
		Corpus: snap,
	}
	if info, err := os.Stat(dbPath); err == nil {
		report.Summary.DatabaseSize = humanize.IBytes(uint64(info.Size()))
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	fmt.Fprintf(w, "# Crawl report\n")
	_, err = w.Write(data)
	return err
}
