package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clerasense/drugfacts-cli/internal/model"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <drug>...",
	Short: "Look up drugs by generic or brand name, ingesting on demand",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		var found []model.Record
		var notFound []string
		if len(args) == 1 {
			rec, err := e.lookup.LookupOne(ctx, args[0])
			if err != nil {
				return err
			}
			if rec != nil {
				found = append(found, *rec)
			} else {
				notFound = append(notFound, args[0])
			}
		} else {
			found, notFound, err = e.lookup.LookupMany(ctx, args)
			if err != nil {
				return err
			}
		}

		zap.L().Info("lookup finished",
			zap.Int("found", len(found)),
			zap.Strings("not_found", notFound),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Found    []model.Record `json:"found"`
			NotFound []string       `json:"not_found,omitempty"`
		}{Found: found, NotFound: notFound})
	},
}

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored drugs, falling back to source discovery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		results, err := e.lookup.Search(ctx, args[0], searchLimit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results")
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(searchCmd)
}
