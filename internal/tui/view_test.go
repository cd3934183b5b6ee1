package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/littlejohn-app/littlejohn/internal/config"
	"github.com/littlejohn-app/littlejohn/internal/download"
	"github.com/littlejohn-app/littlejohn/internal/events"
	"github.com/littlejohn-app/littlejohn/internal/search"
)

func testModel() RootModel {
	settings := config.DefaultSettings()
	bus := events.NewBus(64)
	return NewRootModel(Deps{
		Aggregator: search.NewAggregator(nil, time.Second, nil),
		Bus:        bus,
		Settings:   settings,
	})
}

func TestInitialState(t *testing.T) {
	m := testModel()
	if m.state != SearchState {
		t.Fatalf("expected SearchState, got %d", m.state)
	}
	if view := m.View(); !strings.Contains(view, "littlejohn") {
		t.Error("view missing logo")
	}
}

func TestViewRendersEveryState(t *testing.T) {
	m := testModel()
	m.width, m.height = 100, 30
	m.results = []search.RankedResult{
		{Title: "Some Movie", Size: "1.2 GiB", Seeders: 42, Sources: []search.SourceID{"tpb"}},
	}
	m.files = []events.SessionFile{{ID: 1, Path: "/dir/movie.mkv", Bytes: 1 << 30}}
	m.rows = []*downloadRow{{id: "abcdef123456", filename: "movie.mkv", state: download.StateActive, downloaded: 10, total: 100}}

	for _, st := range []UIState{SearchState, ResultsState, FileSelectState, DownloadsState, HistoryState} {
		m.state = st
		if m.View() == "" {
			t.Errorf("state %d rendered empty view", st)
		}
	}
}

func TestTaskEventsBuildRows(t *testing.T) {
	m := testModel()

	next, _ := m.Update(events.TaskQueuedMsg{TaskID: "t1", Filename: "a.mkv"})
	m = next.(RootModel)
	next, _ = m.Update(events.TaskStartedMsg{TaskID: "t1", Filename: "a.mkv", Total: 100})
	m = next.(RootModel)
	next, _ = m.Update(events.TaskProgressMsg{TaskID: "t1", Downloaded: 40, Total: 100, Speed: 1024})
	m = next.(RootModel)

	if len(m.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(m.rows))
	}
	r := m.rows[0]
	if r.state != download.StateActive || r.downloaded != 40 || r.total != 100 {
		t.Errorf("unexpected row %+v", r)
	}

	next, _ = m.Update(events.TaskCompletedMsg{TaskID: "t1", Total: 100})
	m = next.(RootModel)
	if m.rows[0].state != download.StateCompleted {
		t.Errorf("expected completed, got %s", m.rows[0].state)
	}
}

func TestStaleSearchResultIgnored(t *testing.T) {
	m := testModel()
	m.query = "current"
	m.page = 2

	next, _ := m.Update(searchDoneMsg{
		query: "old", page: 1,
		result: &search.Result{Results: []search.RankedResult{{Title: "stale"}}},
	})
	m = next.(RootModel)

	if len(m.results) != 0 {
		t.Error("stale search completion must not replace results")
	}
	if m.state != SearchState {
		t.Error("stale completion must not switch views")
	}
}

func TestSearchTooShort(t *testing.T) {
	m := testModel()
	m.searchInput.SetValue("x")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(RootModel)
	if cmd != nil {
		t.Error("short query must not dispatch a search command")
	}
	if m.status == "" {
		t.Error("short query should set a status message")
	}
}

func TestQuitFromSearch(t *testing.T) {
	m := testModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
	if msg := cmd(); msg == nil {
		t.Fatal("quit command returned nil msg")
	}
}

func TestWindowKeepsCursorVisible(t *testing.T) {
	tests := []struct {
		cursor, length, visible int
		wantStart, wantEnd      int
	}{
		{0, 3, 10, 0, 3},
		{0, 100, 10, 0, 10},
		{99, 100, 10, 90, 100},
		{50, 100, 10, 45, 55},
	}
	for _, tt := range tests {
		start, end := window(tt.cursor, tt.length, tt.visible)
		if start != tt.wantStart || end != tt.wantEnd {
			t.Errorf("window(%d,%d,%d) = %d,%d want %d,%d",
				tt.cursor, tt.length, tt.visible, start, end, tt.wantStart, tt.wantEnd)
		}
		if tt.cursor < start || tt.cursor >= end {
			t.Errorf("cursor %d outside window [%d,%d)", tt.cursor, start, end)
		}
	}
}

func TestSelectedIDsSorted(t *testing.T) {
	ids := selectedIDs(map[int]bool{3: true, 1: true, 2: false, 7: true})
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 3 || ids[2] != 7 {
		t.Errorf("unexpected ids %v", ids)
	}
}

func TestBaseName(t *testing.T) {
	cases := map[string]string{
		"/folder/file.mkv":   "file.mkv",
		"file.mkv":           "file.mkv",
		"dir\\sub\\file.mkv": "file.mkv",
		"":                   "",
	}
	for in, want := range cases {
		if got := baseName(in); got != want {
			t.Errorf("baseName(%q) = %q, want %q", in, got, want)
		}
	}
}
