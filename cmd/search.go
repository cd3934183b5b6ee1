package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/littlejohn-app/littlejohn/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the configured torrent sources and print the results",
	Long:  `Search fans the query out to every enabled source, merges duplicates and prints the ranked list without starting the TUI.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		page, _ := cmd.Flags().GetInt("page")
		asJSON, _ := cmd.Flags().GetBool("json")
		query := args[0]
		for _, a := range args[1:] {
			query += " " + a
		}

		result, err := GlobalAggregator.Search(context.Background(), search.Request{
			Query:   query,
			Sources: enabledSourceIDs(GlobalSettings),
			Page:    page,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result.Results); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding results: %v\n", err)
				os.Exit(1)
			}
			return
		}

		if len(result.Results) == 0 {
			fmt.Println("No results.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tTITLE\tSIZE\tSEED\tLEECH\tSOURCES")
		for _, r := range result.Results {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n",
				r.Rank+1, r.Title, r.Size, r.Seeders, r.Leechers, joinSourceIDs(r.Sources))
		}
		w.Flush()

		for id, srcErr := range result.Failed {
			fmt.Fprintf(os.Stderr, "source %s unavailable: %v\n", id, srcErr)
		}
	},
}

func joinSourceIDs(ids []search.SourceID) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += string(id)
	}
	return out
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntP("page", "P", 1, "result page, starting at 1")
	searchCmd.Flags().Bool("json", false, "print results as JSON")
}
