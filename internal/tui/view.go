package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/littlejohn-app/littlejohn/internal/download"
	"github.com/littlejohn-app/littlejohn/internal/search"
)

const logo = "littlejohn"

func (m RootModel) View() string {
	var body string
	switch m.state {
	case SearchState:
		body = m.viewSearch()
	case ResultsState:
		body = m.viewResults()
	case FileSelectState:
		body = m.viewFileSelect()
	case DownloadsState:
		body = m.viewDownloads()
	case HistoryState:
		body = m.viewHistory()
	}

	var b strings.Builder
	b.WriteString(LogoStyle.Render(logo))
	b.WriteString("\n")
	b.WriteString(m.viewTabs())
	b.WriteString("\n")
	b.WriteString(body)
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(StatusStyle.Render(m.status))
	}
	return b.String()
}

func (m RootModel) viewTabs() string {
	tabs := []struct {
		label  string
		active bool
	}{
		{"Search", m.state == SearchState || m.state == ResultsState || m.state == FileSelectState},
		{"Downloads", m.state == DownloadsState},
		{"History", m.state == HistoryState},
	}

	parts := make([]string, len(tabs))
	for i, t := range tabs {
		if t.active {
			parts[i] = ActiveTabStyle.Render(t.label)
		} else {
			parts[i] = TabStyle.Render(t.label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Bottom, parts...)
}

func (m RootModel) viewSearch() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Search torrents"))
	b.WriteString("\n\n")
	b.WriteString(m.searchInput.View())
	b.WriteString("\n\n")
	if m.searching {
		b.WriteString(m.spin.View())
		b.WriteString(" searching " + m.query)
		b.WriteString("\n")
	}
	b.WriteString(HelpStyle.Render("enter search · ctrl+d downloads · esc quit"))
	return PaneStyle.Render(b.String())
}

func (m RootModel) viewResults() string {
	var b strings.Builder
	title := fmt.Sprintf("Results for %q (page %d)", m.query, m.page)
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n\n")

	if m.searching {
		b.WriteString(m.spin.View() + " loading\n")
	} else if len(m.results) == 0 {
		b.WriteString(DimRowStyle.Render("no results"))
		b.WriteString("\n")
	}

	visible := m.visibleRows()
	start, end := window(m.cursor, len(m.results), visible)
	for i := start; i < end; i++ {
		r := m.results[i]
		line := fmt.Sprintf("%-60s %8s %5d↑ %4d↓ %s",
			truncate(r.Title, 60), r.Size, r.Seeders, r.Leechers, joinSources(r))
		if i == m.cursor {
			b.WriteString(SelectedRowStyle.Render("› " + line))
		} else {
			b.WriteString(RowStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}

	if len(m.failed) > 0 {
		names := make([]string, 0, len(m.failed))
		for id := range m.failed {
			names = append(names, string(id))
		}
		b.WriteString("\n")
		b.WriteString(StyleError.Render("unavailable: " + strings.Join(names, ", ")))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("enter resolve · ←/→ pages · esc new search · q quit"))
	return ActivePaneStyle.Render(b.String())
}

func (m RootModel) viewFileSelect() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Select files"))
	b.WriteString("\n\n")

	for i, f := range m.files {
		mark := "[ ]"
		if m.selected[f.ID] {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s %-56s %10s", mark, truncate(baseName(f.Path), 56), humanize.IBytes(uint64(f.Bytes)))
		if i == m.fileCursor {
			b.WriteString(SelectedRowStyle.Render("› " + line))
		} else {
			b.WriteString(RowStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("space toggle · enter confirm · esc cancel"))
	return ActivePaneStyle.Render(b.String())
}

func (m RootModel) viewDownloads() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Downloads"))
	b.WriteString("\n\n")

	if len(m.rows) == 0 {
		b.WriteString(DimRowStyle.Render("nothing here yet"))
		b.WriteString("\n")
	}

	visible := m.visibleRows()
	start, end := window(m.dlCursor, len(m.rows), visible)
	for i := start; i < end; i++ {
		r := m.rows[i]
		b.WriteString(m.renderTask(r, i == m.dlCursor))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("p pause · r resume · c cancel · x clear done · h history · s search · q quit"))
	return ActivePaneStyle.Render(b.String())
}

func (m RootModel) renderTask(r *downloadRow, focused bool) string {
	name := truncate(r.filename, 40)
	if name == "" {
		name = r.id[:8]
	}

	var stateCol lipgloss.Style
	var detail string
	switch r.state {
	case download.StateActive:
		stateCol = StyleTransfer
		detail = fmt.Sprintf("%s/s", humanize.IBytes(uint64(r.speed)))
	case download.StatePaused:
		stateCol = StyleWaiting
		detail = "paused"
	case download.StateQueued:
		stateCol = StyleWaiting
		detail = "queued"
	case download.StateCompleted:
		stateCol = StyleDone
		detail = "done"
	case download.StateFailed:
		stateCol = StyleError
		detail = truncate(r.errText, 40)
	case download.StateCancelled:
		stateCol = StyleError
		detail = "cancelled"
	}

	bar := ""
	if r.total > 0 {
		pct := float64(r.downloaded) / float64(r.total)
		if pct > 1 {
			pct = 1
		}
		bar = m.bar.ViewAs(pct)
	} else if r.state == download.StateActive {
		bar = humanize.IBytes(uint64(r.downloaded)) + " so far"
	}

	prefix := "  "
	nameStyle := RowStyle
	if focused {
		prefix = "› "
		nameStyle = SelectedRowStyle
	}

	return fmt.Sprintf("%s%s %s %s",
		prefix, nameStyle.Render(fmt.Sprintf("%-40s", name)), bar, stateCol.Render(detail))
}

func (m RootModel) viewHistory() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("History"))
	b.WriteString("\n\n")

	if len(m.history) == 0 {
		b.WriteString(DimRowStyle.Render("no finished downloads"))
		b.WriteString("\n")
	}

	visible := m.visibleRows()
	start, end := window(m.histCursor, len(m.history), visible)
	for i := start; i < end; i++ {
		e := m.history[i]
		line := fmt.Sprintf("%-44s %10s %-9s %s",
			truncate(e.Filename, 44),
			humanize.IBytes(uint64(e.TotalSize)),
			e.Status,
			e.FinishedAt.Format("2006-01-02 15:04"))
		if i == m.histCursor {
			b.WriteString(SelectedRowStyle.Render("› " + line))
		} else {
			style := RowStyle
			if e.Status != "completed" {
				style = DimRowStyle
			}
			b.WriteString(style.Render("  " + line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("x clear history · esc back"))
	return ActivePaneStyle.Render(b.String())
}

// visibleRows bounds list rendering to the terminal height.
func (m RootModel) visibleRows() int {
	rows := m.height - 10
	if rows < 5 {
		rows = 5
	}
	return rows
}

// window returns the [start, end) slice of a list that keeps the cursor
// in view.
func window(cursor, length, visible int) (int, int) {
	if length <= visible {
		return 0, length
	}
	start := cursor - visible/2
	if start < 0 {
		start = 0
	}
	end := start + visible
	if end > length {
		end = length
		start = end - visible
	}
	return start, end
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}

func joinSources(r search.RankedResult) string {
	names := make([]string, len(r.Sources))
	for i, id := range r.Sources {
		names[i] = string(id)
	}
	return strings.Join(names, ",")
}
