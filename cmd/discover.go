package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	discoverBatchSize  int
	discoverMaxBatches int
	discoverSeedFile   string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Ingest the seed list of commonly prescribed drugs in batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		batchSize := discoverBatchSize
		if batchSize == 0 {
			batchSize = cfg.Discovery.BatchSize
		}
		maxBatches := discoverMaxBatches
		if maxBatches == 0 {
			maxBatches = cfg.Discovery.MaxBatches
		}
		seedFile := discoverSeedFile
		if seedFile == "" {
			seedFile = cfg.Discovery.SeedFile
		}

		stats, err := e.pipeline.DiscoverAndIngest(ctx, seedFile, batchSize, maxBatches)
		if err != nil {
			return err
		}

		zap.L().Info("discovery complete",
			zap.Int("discovered", stats.Discovered),
			zap.Int("ingested", stats.Ingested),
			zap.Int("skipped", stats.Skipped),
			zap.Int("unverified", stats.Unverified),
			zap.Int("failed", stats.Failed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Re-verify stored drugs against fresh source data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.pipeline.UpdateExisting(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("update complete",
			zap.Int("updated", stats.Updated),
			zap.Int("unchanged", stats.Unchanged),
			zap.Int("errors", stats.Errors),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	discoverCmd.Flags().IntVar(&discoverBatchSize, "batch-size", 0, "drugs per batch (default from config)")
	discoverCmd.Flags().IntVar(&discoverMaxBatches, "max-batches", 0, "maximum batches (default from config)")
	discoverCmd.Flags().StringVar(&discoverSeedFile, "seed-file", "", "YAML file overriding the built-in drug list")
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(updateCmd)
}
