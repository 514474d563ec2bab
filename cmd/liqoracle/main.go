package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/liqoracle/internal/config"
	"github.com/rewired-gh/liqoracle/internal/indexer"
	"github.com/rewired-gh/liqoracle/internal/logger"
	"github.com/rewired-gh/liqoracle/internal/metrics"
	"github.com/rewired-gh/liqoracle/internal/operator"
	"github.com/rewired-gh/liqoracle/internal/server"
	"github.com/rewired-gh/liqoracle/internal/storage"
	"github.com/rewired-gh/liqoracle/internal/telegram"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "liqoracle",
		Short:         "Liquidity volatility scoring operator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Poll the indexer and score the configured pools",
		RunE:  runOperator,
	})
	rootCmd.AddCommand(newReplayCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Logging.File != "" {
		logger.SetFile(cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
	}
	logger.Info("Configuration loaded from %s", configPath)
	return cfg, nil
}

func runOperator(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.Storage.MaxObservationsPerPool, cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	client := indexer.NewClient(cfg.Indexer.BaseURL, indexer.Options{
		Timeout:           cfg.Indexer.Timeout,
		MaxRetries:        cfg.Indexer.MaxRetries,
		RetryDelayBase:    cfg.Indexer.RetryDelayBase,
		RequestsPerSecond: cfg.Indexer.RequestsPerSecond,
	})

	var notifier operator.Notifier
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		notifier = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	m := metrics.New()
	op, err := operator.New(store, client, notifier, m, operator.Config{
		Pools:              cfg.Indexer.Pools,
		Analyzer:           cfg.AnalyzerConfig(),
		AggregateThreshold: cfg.Alerts.AggregateThreshold,
		TopK:               cfg.Alerts.TopK,
		Cooldown:           cfg.Cooldown(),
		AlertsEnabled:      cfg.Alerts.Enabled,
		Warmup:             cfg.Storage.MaxObservationsPerPool,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Addr, store, op, m.Handler())
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Status server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Failed to shut down status server: %v", err)
			}
		}()
	}

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	logger.Info("Starting operator (interval: %v, pools: %d, window: %d, threshold: %d, top_k: %d)",
		cfg.Indexer.PollInterval,
		len(cfg.Indexer.Pools),
		cfg.Engine.MaxWindowSize,
		cfg.Alerts.AggregateThreshold,
		cfg.Alerts.TopK,
	)
	op.Run(ctx, cfg.Indexer.PollInterval)
	return nil
}
