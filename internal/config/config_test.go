package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/liqoracle/internal/transition"
	"github.com/rewired-gh/liqoracle/internal/volatility"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })

	_, err = tmpfile.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
indexer:
  base_url: "http://indexer.local"
  poll_interval: 30s
  pools:
    - "0xpool-a"
    - "0xpool-b"

engine:
  max_window_size: 8
  half_width: 40
  transition_weights:
    wasserstein: 5000
    hellinger: 2500
    cosine: 2500

alerts:
  aggregate_threshold: 6500
  top_k: 3

telegram:
  bot_token: "test_token"
  chat_id: "test_chat_id"
  enabled: true

storage:
  db_path: "./data/test.db"

logging:
  level: "info"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Indexer.PollInterval)
	assert.Len(t, cfg.Indexer.Pools, 2)
	assert.Equal(t, 8, cfg.Engine.MaxWindowSize)
	assert.EqualValues(t, 5000, cfg.Engine.TransitionWeights.Wasserstein)
	assert.Equal(t, volatility.DefaultWeights(), cfg.Engine.VolatilityWeights)
	assert.Equal(t, 500, cfg.Storage.MaxObservationsPerPool)
	assert.Equal(t, 150*time.Second, cfg.Cooldown())

	require.NoError(t, cfg.Validate())

	ac := cfg.AnalyzerConfig()
	assert.Equal(t, 8, ac.MaxWindowSize)
	assert.EqualValues(t, 40, ac.HalfWidth)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
indexer:
  base_url: "http://indexer.local"
  pools: ["0xpool"]
telegram:
  bot_token: "from_file"
`)
	t.Setenv("LIQ_ORACLE_TELEGRAM_BOT_TOKEN", "from_env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Telegram.BotToken)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Indexer: IndexerConfig{
			BaseURL:           "http://indexer.local",
			PollInterval:      time.Minute,
			Timeout:           30 * time.Second,
			MaxRetries:        3,
			RequestsPerSecond: 5,
			Pools:             []string{"0xpool"},
		},
		Engine: EngineConfig{
			MaxWindowSize:     5,
			HalfWidth:         50,
			TransitionWeights: transition.DefaultWeights(),
			VolatilityWeights: volatility.DefaultWeights(),
		},
		Alerts: AlertsConfig{
			AggregateThreshold: 7000,
			CooldownMultiplier: 5,
			TopK:               10,
		},
		Storage: StorageConfig{
			DBPath:                 "./data/test.db",
			MaxObservationsPerPool: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing telegram token when enabled",
			mutate:  func(c *Config) { c.Telegram.Enabled = true; c.Telegram.ChatID = "chat" },
			wantErr: true,
		},
		{
			name:    "no pools",
			mutate:  func(c *Config) { c.Indexer.Pools = nil },
			wantErr: true,
		},
		{
			name:    "window too small",
			mutate:  func(c *Config) { c.Engine.MaxWindowSize = 2 },
			wantErr: true,
		},
		{
			name:    "non-positive half width",
			mutate:  func(c *Config) { c.Engine.HalfWidth = 0 },
			wantErr: true,
		},
		{
			name:    "transition weights do not sum to scale",
			mutate:  func(c *Config) { c.Engine.TransitionWeights.Cosine = 1000 },
			wantErr: true,
		},
		{
			name:    "volatility weights do not sum to scale",
			mutate:  func(c *Config) { c.Engine.VolatilityWeights.Overall = 5000 },
			wantErr: true,
		},
		{
			name:    "threshold above scale",
			mutate:  func(c *Config) { c.Alerts.AggregateThreshold = 10001 },
			wantErr: true,
		},
		{
			name:    "retention smaller than window",
			mutate:  func(c *Config) { c.Storage.MaxObservationsPerPool = 3 },
			wantErr: true,
		},
		{
			name:    "server without address",
			mutate:  func(c *Config) { c.Server.Enabled = true },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
