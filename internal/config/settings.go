package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General  GeneralSettings  `json:"general"`
	Search   SearchSettings   `json:"search"`
	Debrid   DebridSettings   `json:"debrid"`
	Transfer TransferSettings `json:"transfer"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	DefaultDownloadDir string `json:"default_download_dir"`
	ClipboardMonitor   bool   `json:"clipboard_monitor"`
	Theme              int    `json:"theme"`
	LogRetentionCount  int    `json:"log_retention_count"`
}

const (
	ThemeAdaptive = 0
	ThemeLight    = 1
	ThemeDark     = 2
)

// SearchSettings controls the source fan-out.
type SearchSettings struct {
	EnabledSources []string      `json:"enabled_sources"`
	SourcePriority []string      `json:"source_priority"`
	SourceTimeout  time.Duration `json:"source_timeout"`
	MinQueryLength int           `json:"min_query_length"`
}

// DebridSettings controls the unblocking-service session protocol.
type DebridSettings struct {
	PollInterval     time.Duration `json:"poll_interval"`
	PollTimeout      time.Duration `json:"poll_timeout"`
	MaxRetries       int           `json:"max_retries"`
	RequestTimeout   time.Duration `json:"request_timeout"`
	DeleteOnCancel   bool          `json:"delete_on_cancel"`
	RetryBackoffBase time.Duration `json:"retry_backoff_base"`
}

// TransferSettings controls the download manager.
type TransferSettings struct {
	MaxActiveDownloads int           `json:"max_active_downloads"`
	MaxRetries         int           `json:"max_retries"`
	RetryBaseDelay     time.Duration `json:"retry_base_delay"`
	UserAgent          string        `json:"user_agent"`
	ReportInterval     time.Duration `json:"report_interval"`
}

// DefaultSourcePriority mirrors the curated-first ordering used for ranking
// ties. Curated sites rank above aggregator-style sites.
var DefaultSourcePriority = []string{"yts", "ilcorsaronero", "tpb", "bitsearch", "1337x"}

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()

	defaultDir := ""

	// Check XDG_DOWNLOAD_DIR
	if xdgDir := os.Getenv("XDG_DOWNLOAD_DIR"); xdgDir != "" {
		if info, err := os.Stat(xdgDir); err == nil && info.IsDir() {
			defaultDir = xdgDir
		}
	}

	// Check ~/Downloads if not set
	if defaultDir == "" && homeDir != "" {
		downloadsDir := filepath.Join(homeDir, "Downloads")
		if info, err := os.Stat(downloadsDir); err == nil && info.IsDir() {
			defaultDir = downloadsDir
		}
	}

	return &Settings{
		General: GeneralSettings{
			DefaultDownloadDir: defaultDir,
			ClipboardMonitor:   true,
			Theme:              ThemeAdaptive,
			LogRetentionCount:  5,
		},
		Search: SearchSettings{
			EnabledSources: append([]string(nil), DefaultSourcePriority...),
			SourcePriority: append([]string(nil), DefaultSourcePriority...),
			SourceTimeout:  10 * time.Second,
			MinQueryLength: 2,
		},
		Debrid: DebridSettings{
			PollInterval:     2 * time.Second,
			PollTimeout:      5 * time.Minute,
			MaxRetries:       5,
			RequestTimeout:   30 * time.Second,
			DeleteOnCancel:   true,
			RetryBackoffBase: 500 * time.Millisecond,
		},
		Transfer: TransferSettings{
			MaxActiveDownloads: 3,
			MaxRetries:         3,
			RetryBaseDelay:     200 * time.Millisecond,
			UserAgent:          "",
			ReportInterval:     150 * time.Millisecond,
		},
	}
}

// Validate checks the cross-field constraints once at startup. Settings are
// not re-validated per call.
func (s *Settings) Validate() error {
	if len(s.Search.EnabledSources) == 0 {
		return fmt.Errorf("at least one search source must be enabled")
	}
	if s.Search.SourceTimeout <= 0 {
		return fmt.Errorf("source_timeout must be positive")
	}
	if s.Transfer.MaxActiveDownloads < 1 {
		return fmt.Errorf("max_active_downloads must be at least 1")
	}
	if s.Transfer.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if s.Debrid.PollInterval <= 0 || s.Debrid.PollTimeout <= 0 {
		return fmt.Errorf("debrid poll interval and timeout must be positive")
	}
	return nil
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetAppDir(), "settings.json")
}

// LoadSettings loads settings from disk. Returns defaults if file doesn't exist.
func LoadSettings() (*Settings, error) {
	path := GetSettingsPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	path := GetSettingsPath()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// TokenEnvVar is the environment variable holding the unblocking-service
// bearer token.
const TokenEnvVar = "RD_API_TOKEN"

// LoadToken resolves the debrid API token. The current environment wins;
// otherwise a .env in the working directory, then one in the app config
// directory, is consulted (without mutating the process environment beyond
// what godotenv loads).
func LoadToken() string {
	if tok := os.Getenv(TokenEnvVar); tok != "" {
		return tok
	}

	if err := godotenv.Load(); err == nil {
		if tok := os.Getenv(TokenEnvVar); tok != "" {
			return tok
		}
	}

	if err := godotenv.Load(filepath.Join(GetAppDir(), ".env")); err == nil {
		return os.Getenv(TokenEnvVar)
	}
	return ""
}

// SaveToken persists the token to the app-dir .env so the next run finds it.
func SaveToken(token string) error {
	if err := os.MkdirAll(GetAppDir(), 0o755); err != nil {
		return err
	}
	path := filepath.Join(GetAppDir(), ".env")
	content := fmt.Sprintf("# littlejohn configuration\n\n%s=%s\n", TokenEnvVar, token)
	return os.WriteFile(path, []byte(content), 0o600)
}
