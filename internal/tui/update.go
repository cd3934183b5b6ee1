package tui

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/littlejohn-app/littlejohn/internal/clipboard"
	"github.com/littlejohn-app/littlejohn/internal/download"
	"github.com/littlejohn-app/littlejohn/internal/events"
	"github.com/littlejohn-app/littlejohn/internal/resolver"
	"github.com/littlejohn-app/littlejohn/internal/state"
	"github.com/littlejohn-app/littlejohn/internal/utils"
)

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.searchInput.Width = msg.Width - 8
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.updateKeys(msg)

	case searchDoneMsg:
		return m.onSearchDone(msg)

	case ClipboardMsg:
		if msg.Kind == string(clipboard.KindMagnet) {
			m.status = "magnet captured from clipboard, resolving"
			m.startResolve(msg.Text)
			return m, nil
		}
		m.searchInput.SetValue(msg.Text)
		m.status = "link captured from clipboard"
		return m, nil

	case events.SessionStateMsg:
		return m.onSessionState(msg)

	case events.SessionFilesMsg:
		if m.session != nil && msg.SessionID == m.session.ID {
			m.files = msg.Files
			m.fileCursor = 0
			m.selected = make(map[int]bool)
			m.state = FileSelectState
		}
		return m, nil

	case events.SessionReadyMsg:
		return m.onSessionReady(msg)

	case events.TaskQueuedMsg:
		r := m.row(msg.TaskID)
		r.filename = msg.Filename
		return m, nil

	case events.TaskStartedMsg:
		r := m.row(msg.TaskID)
		r.state = download.StateActive
		r.total = msg.Total
		if msg.Filename != "" {
			r.filename = msg.Filename
		}
		return m, nil

	case events.TaskProgressMsg:
		r := m.row(msg.TaskID)
		r.downloaded = msg.Downloaded
		r.total = msg.Total
		r.speed = msg.Speed
		return m, nil

	case events.TaskPausedMsg:
		r := m.row(msg.TaskID)
		r.state = download.StatePaused
		r.downloaded = msg.Downloaded
		r.speed = 0
		return m, nil

	case events.TaskResumedMsg:
		r := m.row(msg.TaskID)
		r.state = download.StateActive
		if !msg.SupportsRange {
			r.downloaded = 0
		}
		return m, nil

	case events.TaskCompletedMsg:
		r := m.row(msg.TaskID)
		r.state = download.StateCompleted
		r.downloaded = msg.Total
		r.total = msg.Total
		r.speed = 0
		return m, nil

	case events.TaskFailedMsg:
		r := m.row(msg.TaskID)
		r.state = download.StateFailed
		r.speed = 0
		if msg.Err != nil {
			r.errText = msg.Err.Error()
		}
		return m, nil

	case events.TaskCancelledMsg:
		r := m.row(msg.TaskID)
		r.state = download.StateCancelled
		r.speed = 0
		return m, nil

	case events.StatusMsg:
		m.status = msg.Text
		return m, nil
	}

	if m.state == SearchState {
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m RootModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.state {
	case SearchState:
		return m.updateSearchKeys(msg)
	case ResultsState:
		return m.updateResultsKeys(msg)
	case FileSelectState:
		return m.updateFileKeys(msg)
	case DownloadsState:
		return m.updateDownloadsKeys(msg)
	case HistoryState:
		return m.updateHistoryKeys(msg)
	}
	return m, nil
}

func (m RootModel) updateSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Search.Quit):
		return m, tea.Quit

	case key.Matches(msg, Keys.Search.Downloads):
		m.state = DownloadsState
		return m, nil

	case key.Matches(msg, Keys.Search.Submit):
		query := m.searchInput.Value()
		if clipboard.IsMagnet(query) {
			// Magnet passthrough: no search, straight to resolution.
			m.status = "resolving magnet"
			m.startResolve(query)
			return m, nil
		}
		if len(query) < m.deps.Settings.Search.MinQueryLength {
			m.status = fmt.Sprintf("query too short (minimum %d characters)", m.deps.Settings.Search.MinQueryLength)
			return m, nil
		}
		m.query = query
		m.page = 1
		m.searching = true
		m.status = ""
		return m, m.searchCmd(query, 1)
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m RootModel) updateResultsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Results.Quit):
		return m, tea.Quit

	case key.Matches(msg, Keys.Results.Back):
		m.state = SearchState
		m.searchInput.Focus()
		return m, nil

	case key.Matches(msg, Keys.Results.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, Keys.Results.Down):
		if m.cursor < len(m.results)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, Keys.Results.NextPage):
		if !m.searching {
			m.searching = true
			m.page++
			return m, m.searchCmd(m.query, m.page)
		}
		return m, nil

	case key.Matches(msg, Keys.Results.PrevPage):
		if !m.searching && m.page > 1 {
			m.searching = true
			m.page--
			return m, m.searchCmd(m.query, m.page)
		}
		return m, nil

	case key.Matches(msg, Keys.Results.Resolve):
		if m.cursor < len(m.results) && !m.resolving {
			picked := m.results[m.cursor]
			m.status = "resolving " + picked.Title
			m.startResolve(picked.Magnet)
		}
		return m, nil
	}
	return m, nil
}

func (m RootModel) updateFileKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Files.Up):
		if m.fileCursor > 0 {
			m.fileCursor--
		}
		return m, nil

	case key.Matches(msg, Keys.Files.Down):
		if m.fileCursor < len(m.files)-1 {
			m.fileCursor++
		}
		return m, nil

	case key.Matches(msg, Keys.Files.Toggle):
		if m.fileCursor < len(m.files) {
			id := m.files[m.fileCursor].ID
			m.selected[id] = !m.selected[id]
		}
		return m, nil

	case key.Matches(msg, Keys.Files.Confirm):
		ids := selectedIDs(m.selected)
		if len(ids) == 0 {
			m.status = "select at least one file"
			return m, nil
		}
		if err := m.session.Select(ids); err != nil {
			m.status = "selection failed: " + err.Error()
			return m, nil
		}
		m.status = "caching selected files"
		m.state = ResultsState
		return m, nil

	case key.Matches(msg, Keys.Files.Cancel):
		if m.session != nil {
			m.session.Cancel()
		}
		m.resolving = false
		m.status = "resolution cancelled"
		m.state = ResultsState
		return m, nil
	}
	return m, nil
}

func (m RootModel) updateDownloadsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Downloads.Quit):
		return m, tea.Quit

	case key.Matches(msg, Keys.Downloads.Search):
		m.state = SearchState
		m.searchInput.Focus()
		return m, nil

	case key.Matches(msg, Keys.Downloads.History):
		entries, err := state.ListHistory(100)
		if err != nil {
			m.status = "history unavailable: " + err.Error()
			return m, nil
		}
		m.history = entries
		m.histCursor = 0
		m.state = HistoryState
		return m, nil

	case key.Matches(msg, Keys.Downloads.Up):
		if m.dlCursor > 0 {
			m.dlCursor--
		}
		return m, nil

	case key.Matches(msg, Keys.Downloads.Down):
		if m.dlCursor < len(m.rows)-1 {
			m.dlCursor++
		}
		return m, nil

	case key.Matches(msg, Keys.Downloads.Pause):
		if r := m.currentRow(); r != nil {
			if err := m.deps.Manager.Pause(r.id); err != nil {
				utils.Debug("pause %s: %v", r.id, err)
			}
		}
		return m, nil

	case key.Matches(msg, Keys.Downloads.Resume):
		if r := m.currentRow(); r != nil {
			if err := m.deps.Manager.Start(r.id); err != nil {
				utils.Debug("resume %s: %v", r.id, err)
			}
		}
		return m, nil

	case key.Matches(msg, Keys.Downloads.Cancel):
		if r := m.currentRow(); r != nil {
			if err := m.deps.Manager.Cancel(r.id); err != nil {
				utils.Debug("cancel %s: %v", r.id, err)
			}
		}
		return m, nil

	case key.Matches(msg, Keys.Downloads.Clear):
		m.deps.Manager.ClearCompleted()
		var kept []*downloadRow
		for _, r := range m.rows {
			if r.state == download.StateCompleted {
				delete(m.rowIndex, r.id)
				continue
			}
			kept = append(kept, r)
		}
		m.rows = kept
		if m.dlCursor >= len(m.rows) && m.dlCursor > 0 {
			m.dlCursor = len(m.rows) - 1
		}
		return m, nil
	}
	return m, nil
}

func (m RootModel) updateHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.History.Close):
		m.state = DownloadsState
		return m, nil

	case key.Matches(msg, Keys.History.Up):
		if m.histCursor > 0 {
			m.histCursor--
		}
		return m, nil

	case key.Matches(msg, Keys.History.Down):
		if m.histCursor < len(m.history)-1 {
			m.histCursor++
		}
		return m, nil

	case key.Matches(msg, Keys.History.Clear):
		if _, err := state.ClearHistory(); err != nil {
			m.status = "clear failed: " + err.Error()
			return m, nil
		}
		m.history = nil
		m.histCursor = 0
		return m, nil
	}
	return m, nil
}

func (m RootModel) onSearchDone(msg searchDoneMsg) (tea.Model, tea.Cmd) {
	m.searching = false
	if msg.query != m.query || msg.page != m.page {
		// Stale completion from an abandoned query.
		return m, nil
	}

	if msg.err != nil {
		m.status = "search failed: " + msg.err.Error()
		m.deps.Bus.Publish(events.SearchFailedMsg{Query: msg.query, Err: msg.err})
		return m, nil
	}

	m.results = msg.result.Results
	m.failed = msg.result.Failed
	m.cursor = 0
	m.state = ResultsState
	m.status = ""
	m.deps.Bus.Publish(events.SearchCompletedMsg{
		Query: msg.query, Page: msg.page, Results: len(msg.result.Results),
	})
	return m, nil
}

func (m RootModel) onSessionState(msg events.SessionStateMsg) (tea.Model, tea.Cmd) {
	if m.session == nil || msg.SessionID != m.session.ID {
		return m, nil
	}

	switch resolver.State(msg.State) {
	case resolver.StateProcessing:
		m.status = "waiting for the service to cache the torrent"
	case resolver.StateFailed:
		m.resolving = false
		m.status = "resolution failed: " + msg.Reason
		if m.state == FileSelectState {
			m.state = ResultsState
		}
	case resolver.StateCancelled:
		m.resolving = false
		if m.state == FileSelectState {
			m.state = ResultsState
		}
	}
	return m, nil
}

func (m RootModel) onSessionReady(msg events.SessionReadyMsg) (tea.Model, tea.Cmd) {
	if m.session == nil || msg.SessionID != m.session.ID {
		return m, nil
	}
	m.resolving = false

	queued := 0
	for _, link := range msg.Links {
		if link.URL == "" {
			m.status = "link failed: " + link.Err
			continue
		}
		task := m.deps.Manager.Enqueue(link.URL, baseName(link.Filename))
		r := m.row(task.ID)
		r.filename = baseName(link.Filename)
		queued++
	}

	if queued > 0 {
		m.deps.Manager.StartAll()
		m.status = fmt.Sprintf("%d download(s) started", queued)
		m.state = DownloadsState
	}
	return m, nil
}

func (m *RootModel) currentRow() *downloadRow {
	if m.dlCursor < len(m.rows) {
		return m.rows[m.dlCursor]
	}
	return nil
}

// baseName strips the torrent's directory prefix from a file path.
func baseName(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func selectedIDs(sel map[int]bool) []int {
	var ids []int
	for id, on := range sel {
		if on {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
