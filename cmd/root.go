package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/littlejohn-app/littlejohn/internal/clipboard"
	"github.com/littlejohn-app/littlejohn/internal/config"
	"github.com/littlejohn-app/littlejohn/internal/download"
	"github.com/littlejohn-app/littlejohn/internal/events"
	"github.com/littlejohn-app/littlejohn/internal/resolver"
	"github.com/littlejohn-app/littlejohn/internal/search"
	"github.com/littlejohn-app/littlejohn/internal/search/sources"
	"github.com/littlejohn-app/littlejohn/internal/state"
	"github.com/littlejohn-app/littlejohn/internal/tui"
	"github.com/littlejohn-app/littlejohn/internal/utils"
	"github.com/littlejohn-app/littlejohn/internal/version"
)

// Globals shared by the TUI and the headless subcommands
var (
	GlobalSettings   *config.Settings
	GlobalBus        *events.Bus
	GlobalManager    *download.Manager
	GlobalAggregator *search.Aggregator
	debridToken      string
)

var rootCmd = &cobra.Command{
	Use:     "littlejohn",
	Short:   "Torrent search with debrid-backed direct downloads",
	Long:    `littlejohn is a terminal (TUI) torrent-search client that resolves magnets through a debrid service and downloads the unrestricted files directly.`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := config.EnsureDirs(); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating config directories: %v\n", err)
			os.Exit(1)
		}

		settings, err := config.LoadSettings()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading settings, using defaults: %v\n", err)
			settings = config.DefaultSettings()
		}
		if err := settings.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid settings: %v\n", err)
			os.Exit(1)
		}
		GlobalSettings = settings

		utils.ConfigureDebug(config.GetLogsDir())
		utils.CleanupLogs(settings.General.LogRetentionCount)
		state.Configure(filepath.Join(config.GetStateDir(), "history.db"))

		debridToken = config.LoadToken()

		GlobalBus = events.NewBus(events.DefaultBusCapacity)
		GlobalAggregator = search.NewAggregator(
			enabledSources(settings),
			settings.Search.SourceTimeout,
			sourcePriority(settings),
		)
		GlobalManager = download.NewManager(afero.NewOsFs(), GlobalBus, download.Config{
			DownloadDir:    utils.EnsureAbsPath(settings.General.DefaultDownloadDir),
			MaxActive:      settings.Transfer.MaxActiveDownloads,
			MaxRetries:     settings.Transfer.MaxRetries,
			RetryBaseDelay: settings.Transfer.RetryBaseDelay,
			ReportInterval: settings.Transfer.ReportInterval,
			UserAgent:      settings.Transfer.UserAgent,
		})
	},
	Run: func(cmd *cobra.Command, args []string) {
		isMaster, err := AcquireLock()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error acquiring lock: %v\n", err)
			os.Exit(1)
		}
		if !isMaster {
			fmt.Fprintln(os.Stderr, "Error: littlejohn is already running.")
			os.Exit(1)
		}
		defer func() {
			if err := ReleaseLock(); err != nil {
				utils.Debug("Error releasing lock: %v", err)
			}
		}()

		if debridToken == "" {
			fmt.Fprintf(os.Stderr, "No debrid token found. Set %s or run 'littlejohn auth <token>'.\n", config.TokenEnvVar)
			os.Exit(1)
		}

		go func() {
			if info := version.CheckForUpdate(version.Version); info != nil {
				GlobalBus.Publish(events.StatusMsg{
					Text: fmt.Sprintf("update available: %s (%s)", info.LatestVersion, info.ReleaseURL),
				})
			}
		}()

		serverPort, _ := cmd.Flags().GetInt("port")
		if serverPort > 0 {
			go startControlServer(serverPort)
		}

		startTUI()
	},
}

// enabledSources resolves the settings' source ids against the registry.
func enabledSources(settings *config.Settings) []search.Source {
	return sources.Select(settings.Search.EnabledSources)
}

// enabledSourceIDs is the request-order source set for one search call.
func enabledSourceIDs(settings *config.Settings) []search.SourceID {
	out := make([]search.SourceID, len(settings.Search.EnabledSources))
	for i, s := range settings.Search.EnabledSources {
		out[i] = search.SourceID(s)
	}
	return out
}

func sourcePriority(settings *config.Settings) []search.SourceID {
	out := make([]search.SourceID, len(settings.Search.SourcePriority))
	for i, s := range settings.Search.SourcePriority {
		out[i] = search.SourceID(s)
	}
	return out
}

// newDebridClient builds a resolver client from the loaded settings.
func newDebridClient() *resolver.Client {
	return resolver.NewClient(debridToken,
		resolver.WithHTTPClient(&http.Client{Timeout: GlobalSettings.Debrid.RequestTimeout}),
		resolver.WithRetry(GlobalSettings.Debrid.MaxRetries, GlobalSettings.Debrid.RetryBackoffBase),
	)
}

func newSession() *resolver.Session {
	return resolver.NewSession(newDebridClient(), GlobalBus, resolver.SessionConfig{
		PollInterval:   GlobalSettings.Debrid.PollInterval,
		PollTimeout:    GlobalSettings.Debrid.PollTimeout,
		DeleteOnCancel: GlobalSettings.Debrid.DeleteOnCancel,
	})
}

// startTUI runs the interactive program, pumping bus events into it.
func startTUI() {
	// Adaptive colors follow the detected background unless the user
	// pinned a theme.
	switch GlobalSettings.General.Theme {
	case config.ThemeLight:
		lipgloss.SetHasDarkBackground(false)
	case config.ThemeDark:
		lipgloss.SetHasDarkBackground(true)
	}

	m := tui.NewRootModel(tui.Deps{
		Aggregator: GlobalAggregator,
		Manager:    GlobalManager,
		Bus:        GlobalBus,
		Settings:   GlobalSettings,
		NewSession: newSession,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Background listener: every bus event becomes a tea.Msg. Terminal
	// task events also land in the history database.
	go func() {
		for msg := range GlobalBus.C() {
			recordHistory(msg)
			p.Send(msg)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if GlobalSettings.General.ClipboardMonitor {
		monitor := clipboard.NewMonitor(time.Second)
		go monitor.Run(ctx)
		go func() {
			for c := range monitor.C() {
				p.Send(tui.ClipboardMsg{Kind: string(c.Kind), Text: c.Text})
			}
		}()
	}

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
	GlobalBus.Close()
	state.CloseDB()
}

// recordHistory persists terminal task states.
func recordHistory(msg any) {
	switch m := msg.(type) {
	case events.TaskCompletedMsg:
		entry := state.HistoryEntry{
			ID: m.TaskID, Filename: m.Filename, Status: "completed",
			TotalSize: m.Total, Elapsed: m.Elapsed, Kind: m.Kind,
		}
		if snap, err := GlobalManager.Get(m.TaskID); err == nil {
			entry.URL = snap.URL
			entry.DestPath = snap.DestPath
		}
		if err := state.RecordDownload(entry); err != nil {
			utils.Debug("record history: %v", err)
		}
	case events.TaskFailedMsg:
		entry := state.HistoryEntry{ID: m.TaskID, Status: "failed"}
		if m.Err != nil {
			entry.Error = m.Err.Error()
		}
		if snap, err := GlobalManager.Get(m.TaskID); err == nil {
			entry.URL = snap.URL
			entry.Filename = snap.Filename
			entry.DestPath = snap.DestPath
			entry.TotalSize = snap.Total
		}
		if err := state.RecordDownload(entry); err != nil {
			utils.Debug("record history: %v", err)
		}
	case events.TaskCancelledMsg:
		entry := state.HistoryEntry{ID: m.TaskID, Status: "cancelled"}
		if snap, err := GlobalManager.Get(m.TaskID); err == nil {
			entry.URL = snap.URL
			entry.Filename = snap.Filename
			entry.DestPath = snap.DestPath
		}
		if err := state.RecordDownload(entry); err != nil {
			utils.Debug("record history: %v", err)
		}
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().IntP("port", "p", 0, "serve the local control API on this port")
	rootCmd.SetVersionTemplate("littlejohn version {{.Version}}\n")
}
