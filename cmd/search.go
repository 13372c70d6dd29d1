package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bitebase/catalog-cli/internal/search"
)

var (
	searchName     string
	searchCategory string
	searchSort     string
	searchLimit    int
)

var searchCmd = &cobra.Command{
	Use:   "search [location]",
	Short: "Search indexed restaurants, optionally within one location",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		limit := searchLimit
		if limit == 0 {
			limit = cfg.Search.Limit
		}
		sortBy := searchSort
		if sortBy == "" {
			sortBy = cfg.Search.Sort
		}

		location := ""
		if len(args) > 0 {
			location = args[0]
		}

		results, err := search.New(env.Store).Search(ctx, search.Query{
			Location: location,
			Name:     searchName,
			Category: searchCategory,
			Sort:     search.ParseSort(sortBy),
			Limit:    limit,
		})
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("no results")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tADDRESS\tRATING\tREVIEWS\tCATEGORIES")
		for _, r := range results {
			rating := "-"
			if r.AvgRating != nil {
				rating = fmt.Sprintf("%.1f", *r.AvgRating)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				r.Restaurant.Name, r.Restaurant.Address, rating, r.TotalReviews,
				strings.Join(r.Categories, ", "))
		}
		return w.Flush()
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchName, "name", "", "name filter (substring or fuzzy)")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "category filter")
	searchCmd.Flags().StringVar(&searchSort, "sort", "", "sort order: relevance or overall_rank")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "max results (0 = config default)")
	rootCmd.AddCommand(searchCmd)
}
