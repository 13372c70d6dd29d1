package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bitebase/catalog-cli/internal/sweep"
)

var dedupeDryRun bool

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Merge duplicate entries left behind by coordinate-free sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := sweep.New(env.Store).Run(ctx, sweep.Options{DryRun: dedupeDryRun})
		if err != nil {
			return err
		}

		zap.L().Info("dedupe sweep complete",
			zap.Int("examined", report.Examined),
			zap.Int("merged", len(report.Merged)),
			zap.Int("skipped", report.Skipped),
			zap.Bool("dry_run", report.DryRun),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	dedupeCmd.Flags().BoolVar(&dedupeDryRun, "dry-run", false, "report merges without applying them")
	rootCmd.AddCommand(dedupeCmd)
}
