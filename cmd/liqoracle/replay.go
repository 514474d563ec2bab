package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/liqoracle/internal/analyzer"
	"github.com/rewired-gh/liqoracle/internal/models"
	"github.com/rewired-gh/liqoracle/internal/replay"
	"github.com/rewired-gh/liqoracle/internal/storage"
)

func newReplayCmd() *cobra.Command {
	var file, pool string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Score a recorded history and print one JSON line per block",
		Long: `Replay feeds a recorded pool history through a fresh analyzer.

The history comes either from a YAML fixture (--file) or from the stored
observations of a pool (--pool, read from the configured database).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (pool == "") {
				return errors.New("exactly one of --file or --pool is required")
			}

			var (
				observations []models.Observation
				engine       = analyzer.DefaultConfig()
			)
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				if observations, err = replay.Load(f); err != nil {
					return err
				}
				if _, err := os.Stat(configPath); err == nil {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					engine = cfg.AnalyzerConfig()
				}
			} else {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				engine = cfg.AnalyzerConfig()

				store, err := storage.New(cfg.Storage.MaxObservationsPerPool, cfg.Storage.DBPath)
				if err != nil {
					return fmt.Errorf("failed to initialize storage: %w", err)
				}
				defer store.Close()
				if observations, err = store.RecentObservations(pool, cfg.Storage.MaxObservationsPerPool); err != nil {
					return err
				}
			}

			return replay.Run(engine, observations, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML fixture to replay")
	cmd.Flags().StringVar(&pool, "pool", "", "Stored pool to replay")
	return cmd
}
