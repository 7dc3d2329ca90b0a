package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. SHOPREVIEWS_DETAIL_WORKERS.
const EnvPrefix = "SHOPREVIEWS"

// Load reads configuration from defaults, an optional YAML file and the environment.
// Priority (highest to lowest): env vars > config file > defaults. CLI flags are applied by the caller.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("shopreviews")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("base_url", cfg.BaseURL)
	v.SetDefault("locale", cfg.Locale)
	v.SetDefault("probe_page", cfg.ProbePage)
	v.SetDefault("listing_workers", cfg.ListingWorkers)
	v.SetDefault("detail_workers", cfg.DetailWorkers)
	v.SetDefault("delay", cfg.Delay)
	v.SetDefault("random_delay", cfg.RandomDelay)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("resolve_retries", cfg.ResolveRetries)
	v.SetDefault("listing_retries", cfg.ListingRetries)
	v.SetDefault("retry_backoff", cfg.RetryBackoff)
	v.SetDefault("retry_backoff_max", cfg.RetryBackoffMax)
	v.SetDefault("skip_failed_pages", cfg.SkipFailedPages)
	v.SetDefault("detail_cache_size", cfg.DetailCacheSize)
	v.SetDefault("detail_cache_ttl", cfg.DetailCacheTTL)
	v.SetDefault("output_file", cfg.OutputFile)
	v.SetDefault("output_format", cfg.OutputFormat)
	v.SetDefault("batch_size", cfg.BatchSize)
	v.SetDefault("pipeline_buffer_size", cfg.PipelineBufferSize)
	v.SetDefault("dedupe_max_size", cfg.DedupeMaxSize)
	v.SetDefault("user_agent", cfg.UserAgent)
	v.SetDefault("accept_language", cfg.AcceptLanguage)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("respect_robots_txt", cfg.RespectRobotsTxt)
}
