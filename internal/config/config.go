package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/liqoracle/internal/analyzer"
	"github.com/rewired-gh/liqoracle/internal/fixedpoint"
	"github.com/rewired-gh/liqoracle/internal/transition"
	"github.com/rewired-gh/liqoracle/internal/volatility"
)

// Config represents the complete application configuration
type Config struct {
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// IndexerConfig holds the distribution indexer API configuration
type IndexerConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelayBase    time.Duration `mapstructure:"retry_delay_base"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Pools             []string      `mapstructure:"pools"`
}

// EngineConfig holds the scoring engine parameters
type EngineConfig struct {
	MaxWindowSize     int                `mapstructure:"max_window_size"`
	HalfWidth         int64              `mapstructure:"half_width"`
	TransitionWeights transition.Weights `mapstructure:"transition_weights"`
	VolatilityWeights volatility.Weights `mapstructure:"volatility_weights"`
}

// AlertsConfig holds alerting behavior configuration
type AlertsConfig struct {
	AggregateThreshold int64 `mapstructure:"aggregate_threshold"` // scaled, 0..10000
	CooldownMultiplier int   `mapstructure:"cooldown_multiplier"` // cooldown = multiplier × poll_interval
	TopK               int   `mapstructure:"top_k"`
	Enabled            bool  `mapstructure:"enabled"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath                 string `mapstructure:"db_path"`
	MaxObservationsPerPool int    `mapstructure:"max_observations_per_pool"`
}

// ServerConfig holds the status server configuration
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	// LIQ_ORACLE_TELEGRAM_BOT_TOKEN overrides telegram.bot_token
	v.SetEnvPrefix("LIQ_ORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Indexer defaults
	v.SetDefault("indexer.poll_interval", "1m")
	v.SetDefault("indexer.timeout", "30s")
	v.SetDefault("indexer.max_retries", 3)
	v.SetDefault("indexer.retry_delay_base", "1s")
	v.SetDefault("indexer.requests_per_second", 5.0)

	// Engine defaults
	def := analyzer.DefaultConfig()
	v.SetDefault("engine.max_window_size", def.MaxWindowSize)
	v.SetDefault("engine.half_width", def.HalfWidth)
	v.SetDefault("engine.transition_weights.wasserstein", def.TransitionWeights.Wasserstein)
	v.SetDefault("engine.transition_weights.hellinger", def.TransitionWeights.Hellinger)
	v.SetDefault("engine.transition_weights.cosine", def.TransitionWeights.Cosine)
	v.SetDefault("engine.volatility_weights.overall", def.VolatilityWeights.Overall)
	v.SetDefault("engine.volatility_weights.transition", def.VolatilityWeights.Transition)
	v.SetDefault("engine.volatility_weights.per_tick", def.VolatilityWeights.PerTick)
	v.SetDefault("engine.volatility_weights.entropy", def.VolatilityWeights.Entropy)
	v.SetDefault("engine.volatility_weights.temporal", def.VolatilityWeights.Temporal)

	// Alert defaults
	v.SetDefault("alerts.aggregate_threshold", 7000)
	v.SetDefault("alerts.cooldown_multiplier", 5)
	v.SetDefault("alerts.top_k", 10)
	v.SetDefault("alerts.enabled", true)

	// Telegram defaults
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/liq-oracle.db")
	v.SetDefault("storage.max_observations_per_pool", 500)

	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Indexer config
	if c.Indexer.BaseURL == "" {
		return fmt.Errorf("indexer.base_url is required")
	}
	if c.Indexer.PollInterval < time.Second {
		return fmt.Errorf("indexer.poll_interval must be at least 1 second")
	}
	if c.Indexer.Timeout <= 0 {
		return fmt.Errorf("indexer.timeout must be positive")
	}
	if c.Indexer.MaxRetries < 0 {
		return fmt.Errorf("indexer.max_retries must not be negative")
	}
	if c.Indexer.RequestsPerSecond <= 0 {
		return fmt.Errorf("indexer.requests_per_second must be positive")
	}
	if len(c.Indexer.Pools) == 0 {
		return fmt.Errorf("indexer.pools must contain at least one pool")
	}

	// Validate Engine config
	if err := c.AnalyzerConfig().Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	tw := c.Engine.TransitionWeights
	if sum := tw.Wasserstein + tw.Hellinger + tw.Cosine; sum != fixedpoint.Scale {
		return fmt.Errorf("engine.transition_weights must sum to %d, got %d", fixedpoint.Scale, sum)
	}
	vw := c.Engine.VolatilityWeights
	if sum := vw.Overall + vw.Transition + vw.PerTick + vw.Entropy + vw.Temporal; sum != fixedpoint.Scale {
		return fmt.Errorf("engine.volatility_weights must sum to %d, got %d", fixedpoint.Scale, sum)
	}

	// Validate Alerts config
	if c.Alerts.AggregateThreshold < 0 || c.Alerts.AggregateThreshold > fixedpoint.Scale {
		return fmt.Errorf("alerts.aggregate_threshold must be between 0 and %d", fixedpoint.Scale)
	}
	if c.Alerts.CooldownMultiplier < 0 {
		return fmt.Errorf("alerts.cooldown_multiplier must not be negative")
	}
	if c.Alerts.TopK < 1 {
		return fmt.Errorf("alerts.top_k must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxObservationsPerPool < c.Engine.MaxWindowSize {
		return fmt.Errorf("storage.max_observations_per_pool must be at least engine.max_window_size (%d)", c.Engine.MaxWindowSize)
	}

	// Validate Server config
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when the server is enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// AnalyzerConfig maps the engine section onto the analyzer configuration.
func (c *Config) AnalyzerConfig() analyzer.Config {
	return analyzer.Config{
		MaxWindowSize:     c.Engine.MaxWindowSize,
		HalfWidth:         c.Engine.HalfWidth,
		TransitionWeights: c.Engine.TransitionWeights,
		VolatilityWeights: c.Engine.VolatilityWeights,
	}
}

// Cooldown returns how long a pool stays quiet after an alert.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Alerts.CooldownMultiplier) * c.Indexer.PollInterval
}
