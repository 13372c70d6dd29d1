package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex <restaurant-id>",
	Short: "Re-fetch one restaurant from every source that attests it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.newIndexer().Refresh(ctx, args[0])
		if err != nil {
			return err
		}

		for _, sr := range res.Sources {
			if sr.Err != nil {
				zap.L().Warn("source refresh failed",
					zap.String("source", string(sr.Source)),
					zap.Error(sr.Err),
				)
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}
