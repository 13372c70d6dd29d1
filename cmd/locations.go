package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "List every location label the catalog has been indexed under",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		locations, err := env.Store.AllIndexedLocations(ctx)
		if err != nil {
			return err
		}
		for _, l := range locations {
			fmt.Println(l)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(locationsCmd)
}
