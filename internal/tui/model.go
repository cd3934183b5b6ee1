package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/littlejohn-app/littlejohn/internal/config"
	"github.com/littlejohn-app/littlejohn/internal/download"
	"github.com/littlejohn-app/littlejohn/internal/events"
	"github.com/littlejohn-app/littlejohn/internal/resolver"
	"github.com/littlejohn-app/littlejohn/internal/search"
	"github.com/littlejohn-app/littlejohn/internal/state"
)

type UIState int

const (
	SearchState UIState = iota
	ResultsState
	FileSelectState
	DownloadsState
	HistoryState
)

// Deps wires the engine into the UI. The bus consumer lives in cmd and
// forwards every event as a tea.Msg, so Update sees events.* types
// directly.
type Deps struct {
	Aggregator *search.Aggregator
	Manager    *download.Manager
	Bus        *events.Bus
	Settings   *config.Settings

	// NewSession builds a fresh resolution session per resolve.
	NewSession func() *resolver.Session
}

// ClipboardMsg is a magnet or URL captured from the system clipboard.
type ClipboardMsg struct {
	Kind string
	Text string
}

// searchDoneMsg is the internal completion message of a search command.
type searchDoneMsg struct {
	query   string
	page    int
	result  *search.Result
	err     error
}

type downloadRow struct {
	id         string
	filename   string
	state      download.TaskState
	downloaded int64
	total      int64
	speed      float64
	errText    string
}

type RootModel struct {
	deps Deps

	width  int
	height int
	state  UIState

	searchInput textinput.Model
	spin        spinner.Model
	status      string
	searching   bool

	query   string
	page    int
	results []search.RankedResult
	failed  map[search.SourceID]error
	cursor  int

	session    *resolver.Session
	files      []events.SessionFile
	fileCursor int
	selected   map[int]bool
	resolving  bool

	rows     []*downloadRow
	rowIndex map[string]*downloadRow
	dlCursor int

	history    []state.HistoryEntry
	histCursor int

	bar progress.Model
}

func NewRootModel(deps Deps) RootModel {
	input := textinput.New()
	input.Placeholder = "title to search, or paste a magnet link"
	input.Focus()
	input.Prompt = "> "
	input.CharLimit = 512

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = StatusStyle

	return RootModel{
		deps:        deps,
		state:       SearchState,
		searchInput: input,
		spin:        sp,
		page:        1,
		selected:    make(map[int]bool),
		rowIndex:    make(map[string]*downloadRow),
		bar:         progress.New(progress.WithDefaultGradient()),
	}
}

func (m RootModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick)
}

// searchCmd runs one aggregate search off the UI goroutine.
func (m RootModel) searchCmd(query string, page int) tea.Cmd {
	agg := m.deps.Aggregator
	sources := make([]search.SourceID, 0, len(m.deps.Settings.Search.EnabledSources))
	for _, s := range m.deps.Settings.Search.EnabledSources {
		sources = append(sources, search.SourceID(s))
	}

	return func() tea.Msg {
		res, err := agg.Search(context.Background(), search.Request{
			Query:   query,
			Sources: sources,
			Page:    page,
		})
		return searchDoneMsg{query: query, page: page, result: res, err: err}
	}
}

// startResolve launches a resolution session for the magnet. Progress
// arrives through the event bus.
func (m *RootModel) startResolve(magnet string) {
	sess := m.deps.NewSession()
	m.session = sess
	m.resolving = true
	m.files = nil
	m.selected = make(map[int]bool)
	m.fileCursor = 0

	go sess.Run(context.Background(), magnet)
}

// row returns the dashboard row for a task, creating it on first sight.
func (m *RootModel) row(taskID string) *downloadRow {
	if r, ok := m.rowIndex[taskID]; ok {
		return r
	}
	r := &downloadRow{id: taskID, state: download.StateQueued, total: -1}
	m.rowIndex[taskID] = r
	m.rows = append(m.rows, r)
	return r
}
