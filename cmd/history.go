package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/littlejohn-app/littlejohn/internal/state"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List finished downloads",
	Run: func(cmd *cobra.Command, args []string) {
		clearAll, _ := cmd.Flags().GetBool("clear")
		limit, _ := cmd.Flags().GetInt("limit")

		if clearAll {
			n, err := state.ClearHistory()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error clearing history: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Removed %d entries.\n", n)
			return
		}

		entries, err := state.ListHistory(limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading history: %v\n", err)
			os.Exit(1)
		}
		if len(entries) == 0 {
			fmt.Println("No finished downloads.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FINISHED\tFILE\tSIZE\tSTATUS")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.FinishedAt.Format("2006-01-02 15:04"),
				e.Filename,
				humanize.IBytes(uint64(e.TotalSize)),
				e.Status)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Bool("clear", false, "delete all history entries")
	historyCmd.Flags().IntP("limit", "n", 100, "maximum entries to list")
}
