package cmd

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/littlejohn-app/littlejohn/internal/config"
	"github.com/littlejohn-app/littlejohn/internal/download"
	"github.com/littlejohn-app/littlejohn/internal/events"
)

var getCmd = &cobra.Command{
	Use:   "get <magnet>",
	Short: "Resolve a magnet through the debrid service and download the files",
	Long:  `Get resolves a magnet link into direct URLs via the configured debrid account, selecting every useful file, and downloads them without starting the TUI.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if debridToken == "" {
			fmt.Fprintf(os.Stderr, "No debrid token found. Set %s or run 'littlejohn auth <token>'.\n", config.TokenEnvVar)
			os.Exit(1)
		}

		magnet := args[0]
		sess := newSession()

		var remaining int32
		allDone := make(chan struct{})

		// Headless consumer: print session and transfer events as they
		// arrive and record finished tasks in history.
		go func() {
			for msg := range GlobalBus.C() {
				recordHistory(msg)
				switch m := msg.(type) {
				case events.SessionStateMsg:
					if m.Reason != "" {
						fmt.Printf("Resolving: %s (%s)\n", m.State, m.Reason)
					} else {
						fmt.Printf("Resolving: %s\n", m.State)
					}
				case events.SessionFilesMsg:
					// No interactive picker here: take every file the
					// session considered useful.
					ids := make([]int, len(m.Files))
					for i, f := range m.Files {
						ids[i] = f.ID
						fmt.Printf("  file %d: %s (%s)\n", f.ID, f.Path, humanize.IBytes(uint64(f.Bytes)))
					}
					if err := sess.Select(ids); err != nil {
						fmt.Fprintf(os.Stderr, "Error selecting files: %v\n", err)
					}
				case events.TaskStartedMsg:
					fmt.Printf("Started: %s [%s]\n", m.Filename, shortID(m.TaskID))
				case events.TaskCompletedMsg:
					fmt.Printf("Completed: %s [%s] (in %s)\n", m.Filename, shortID(m.TaskID), m.Elapsed.Round(10*time.Millisecond))
					if atomic.AddInt32(&remaining, -1) == 0 {
						close(allDone)
					}
				case events.TaskFailedMsg:
					fmt.Printf("Error: [%s]: %v\n", shortID(m.TaskID), m.Err)
					if atomic.AddInt32(&remaining, -1) == 0 {
						close(allDone)
					}
				}
			}
		}()

		if err := sess.Run(context.Background(), magnet); err != nil {
			fmt.Fprintf(os.Stderr, "Resolution failed: %v\n", err)
			os.Exit(1)
		}

		links := sess.Links()
		var urls []events.FileLink
		for _, l := range links {
			if l.Err != "" {
				fmt.Fprintf(os.Stderr, "Skipping %s: %s\n", l.Filename, l.Err)
				continue
			}
			urls = append(urls, l)
		}
		if len(urls) == 0 {
			fmt.Fprintln(os.Stderr, "No downloadable files.")
			os.Exit(1)
		}

		atomic.StoreInt32(&remaining, int32(len(urls)))
		for _, l := range urls {
			GlobalManager.Enqueue(l.URL, l.Filename)
		}
		GlobalManager.StartAll()

		<-allDone
		fmt.Printf("Done: %d of %d files.\n", completedCount(), len(urls))
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func completedCount() int {
	n := 0
	for _, s := range GlobalManager.List() {
		if s.State == download.StateCompleted {
			n++
		}
	}
	return n
}

func init() {
	rootCmd.AddCommand(getCmd)
}
