package tui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Force a color profile so styled output is deterministic regardless of
// the terminal running the tests.
func init() {
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func TestStylesEmitColor(t *testing.T) {
	out := StyleError.Render("boom")
	if !strings.Contains(out, "\x1b[") {
		t.Error("error style should emit ANSI escapes under a forced profile")
	}
	if !strings.Contains(out, "boom") {
		t.Error("styled output must keep the original text")
	}
}

func TestStateStylesDistinct(t *testing.T) {
	a := StyleTransfer.Render("x")
	b := StyleDone.Render("x")
	if a == b {
		t.Error("transfer and done states should render differently")
	}
}
