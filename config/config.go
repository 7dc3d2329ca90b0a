package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	Locale         string        `mapstructure:"locale"`
	ProbePage      int           `mapstructure:"probe_page"`
	ListingWorkers int           `mapstructure:"listing_workers"`
	DetailWorkers  int           `mapstructure:"detail_workers"`
	Delay          time.Duration `mapstructure:"delay"`
	RandomDelay    time.Duration `mapstructure:"random_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`

	ResolveRetries  int           `mapstructure:"resolve_retries"`
	ListingRetries  int           `mapstructure:"listing_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	RetryBackoffMax time.Duration `mapstructure:"retry_backoff_max"`

	// SkipFailedPages turns listing failures into warnings; counts become lower bounds.
	SkipFailedPages bool `mapstructure:"skip_failed_pages"`

	DetailCacheSize int           `mapstructure:"detail_cache_size"`
	DetailCacheTTL  time.Duration `mapstructure:"detail_cache_ttl"`

	OutputFile         string `mapstructure:"output_file"`
	OutputFormat       string `mapstructure:"output_format"` // csv, json, or dual
	BatchSize          int    `mapstructure:"batch_size"`
	PipelineBufferSize int    `mapstructure:"pipeline_buffer_size"`
	DedupeMaxSize      int    `mapstructure:"dedupe_max_size"`

	UserAgent        string `mapstructure:"user_agent"`
	AcceptLanguage   string `mapstructure:"accept_language"`
	Verbose          bool   `mapstructure:"verbose"`
	MetricsAddr      string `mapstructure:"metrics_addr"`
	RespectRobotsTxt bool   `mapstructure:"respect_robots_txt"`
}

// DefaultConfig returns conservative defaults for the storefront.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://www.etsy.com",
		Locale:             "ca",
		ProbePage:          10000,
		ListingWorkers:     4,
		DetailWorkers:      4,
		Delay:              0,
		RandomDelay:        0,
		Timeout:            15 * time.Second,
		ResolveRetries:     0,
		ListingRetries:     0,
		RetryBackoff:       200 * time.Millisecond,
		RetryBackoffMax:    2 * time.Second,
		SkipFailedPages:    false,
		DetailCacheSize:    1024,
		DetailCacheTTL:     30 * time.Minute,
		OutputFile:         "output/shop_reviews.csv",
		OutputFormat:       "csv",
		BatchSize:          64,
		PipelineBufferSize: 256,
		DedupeMaxSize:      100000,
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/84.0.4147.105 Safari/537.36",
		AcceptLanguage:     "en-US,en;q=0.9",
		Verbose:            false,
		RespectRobotsTxt:   false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if strings.Contains(c.Locale, "/") {
		return fmt.Errorf("locale must be a single path segment")
	}

	if c.ProbePage <= 1 {
		return fmt.Errorf("probe page must be greater than 1")
	}
	if c.ListingWorkers <= 0 {
		return fmt.Errorf("listing workers must be positive")
	}
	if c.DetailWorkers <= 0 {
		return fmt.Errorf("detail workers must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ResolveRetries < 0 || c.ListingRetries < 0 {
		return fmt.Errorf("retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.DetailCacheSize < 0 {
		return fmt.Errorf("detail cache size cannot be negative")
	}
	if c.DetailCacheSize > 0 && c.DetailCacheTTL < 0 {
		return fmt.Errorf("detail cache ttl cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// Origin returns scheme://host of the base URL, used to absolutize relative links.
func (c *Config) Origin() string {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil || parsed.Host == "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	return parsed.Scheme + "://" + parsed.Host
}

// ListingURL builds the review listing URL for a shop and 1-based page.
func (c *Config) ListingURL(shopID string, page int) string {
	base := strings.TrimSuffix(c.BaseURL, "/")
	if c.Locale != "" {
		base += "/" + c.Locale
	}
	return fmt.Sprintf("%s/shop/%s/reviews?ref=pagination&page=%d", base, url.PathEscape(shopID), page)
}
