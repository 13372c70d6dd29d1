package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bitebase/catalog-cli/internal/quota"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show per-source request usage against monthly budgets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE\tUSED\tBUDGET\tRESETS")
		for _, a := range env.Registry.All() {
			st, err := env.Ledger.Status(ctx, string(a.SourceName()))
			if err != nil {
				return err
			}
			used := 0
			resets := "-"
			if st != nil {
				used = st.Count
				resets = st.ResetAt.Add(quota.ResetWindow).Format("2006-01-02")
			}
			budget := "unlimited"
			if a.RequestLimit() > 0 {
				budget = fmt.Sprint(a.RequestLimit())
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", a.SourceName(), used, budget, resets)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(quotaCmd)
}
