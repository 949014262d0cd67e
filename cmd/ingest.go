package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clerasense/drugfacts-cli/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <drug>...",
	Short: "Fetch, verify, and store one or more drugs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		var outcomes []model.IngestOutcome
		for _, name := range args {
			outcome, err := e.pipeline.IngestOne(ctx, name)
			if err != nil {
				return err
			}
			zap.L().Info("ingestion finished",
				zap.String("drug", outcome.Drug),
				zap.String("status", string(outcome.Status)),
				zap.Float64("confidence", outcome.Confidence),
			)
			outcomes = append(outcomes, *outcome)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
