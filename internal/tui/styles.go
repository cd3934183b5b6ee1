package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/littlejohn-app/littlejohn/internal/tui/colors"
)

var (
	ColorGreen     = colors.Green
	ColorGold      = colors.Gold
	ColorCyan      = colors.Cyan
	ColorGray      = colors.Gray
	ColorLightGray = colors.LightGray
	ColorWhite     = colors.White
)

// === Layout Styles ===
var (
	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(0, 1)

	ActivePaneStyle = PaneStyle.
			BorderForeground(ColorGreen)

	LogoStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true).
			MarginBottom(1)

	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	TabStyle = lipgloss.NewStyle().
			Foreground(ColorLightGray).
			Padding(0, 1)

	ActiveTabStyle = lipgloss.NewStyle().
			Foreground(ColorGold).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorGold).
			Padding(0, 1).
			Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorLightGray)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorGold)

	SelectedRowStyle = lipgloss.NewStyle().
				Foreground(ColorGold).
				Bold(true)

	RowStyle = lipgloss.NewStyle().
			Foreground(ColorWhite)

	DimRowStyle = lipgloss.NewStyle().
			Foreground(ColorLightGray)

	// === Task State Styles ===

	StyleError = lipgloss.NewStyle().
			Foreground(colors.StateError)

	StyleWaiting = lipgloss.NewStyle().
			Foreground(colors.StateWaiting)

	StyleTransfer = lipgloss.NewStyle().
			Foreground(colors.StateTransfer)

	StyleDone = lipgloss.NewStyle().
			Foreground(colors.StateDone)
)
