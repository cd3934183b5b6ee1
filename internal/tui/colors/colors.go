package colors

import "github.com/charmbracelet/lipgloss"

// === Color Palette ===
// Forest greens with parchment accents (dark mode) + high contrast (light mode)
var (
	Green     = lipgloss.AdaptiveColor{Light: "#1b5e20", Dark: "#50fa7b"}
	Gold      = lipgloss.AdaptiveColor{Light: "#8d6e00", Dark: "#f1fa8c"}
	Cyan      = lipgloss.AdaptiveColor{Light: "#0073a8", Dark: "#8be9fd"}
	Gray      = lipgloss.AdaptiveColor{Light: "#d0d0d0", Dark: "#44475a"} // Borders
	LightGray = lipgloss.AdaptiveColor{Light: "#4a4a4a", Dark: "#a9b1d6"} // Secondary text
	White     = lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#f8f8f2"}
)

// === Semantic State Colors ===
var (
	StateError    = lipgloss.AdaptiveColor{Light: "#d32f2f", Dark: "#ff5555"} // Failed
	StateWaiting  = lipgloss.AdaptiveColor{Light: "#f57c00", Dark: "#ffb86c"} // Queued/Paused
	StateTransfer = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#50fa7b"} // Active
	StateDone     = lipgloss.AdaptiveColor{Light: "#7b1fa2", Dark: "#bd93f9"} // Completed
)

// === Progress Bar Colors ===
var (
	ProgressStart = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#50fa7b"}
	ProgressEnd   = lipgloss.AdaptiveColor{Light: "#8d6e00", Dark: "#f1fa8c"}
)
