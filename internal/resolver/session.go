package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/littlejohn-app/littlejohn/internal/events"
	"github.com/littlejohn-app/littlejohn/internal/utils"
)

// State is one step of a resolution session. Transitions only move
// forward; Failed and Cancelled are terminal.
type State string

const (
	StateCreated               State = "created"
	StateAdded                 State = "added"
	StateAwaitingFileSelection State = "awaiting_file_selection"
	StateFilesSelected         State = "files_selected"
	StateProcessing            State = "processing"
	StateReady                 State = "ready"
	StateFailed                State = "failed"
	StateCancelled             State = "cancelled"
)

// Failure reasons reported with StateFailed.
const (
	ReasonUnauthorized = "unauthorized"
	ReasonRateLimited  = "rate_limited"
	ReasonTimeout      = "timeout"
	ReasonDead         = "dead"
	ReasonMagnetError  = "magnet_error"
	ReasonServiceError = "service_error"
)

var (
	// ErrEmptySelection means Select was called with no file ids.
	ErrEmptySelection = errors.New("resolver: empty file selection")

	// ErrSessionDone means an operation arrived after a terminal state.
	ErrSessionDone = errors.New("resolver: session already finished")

	// ErrNotAwaitingSelection means Select arrived outside
	// AwaitingFileSelection.
	ErrNotAwaitingSelection = errors.New("resolver: session is not awaiting file selection")
)

// SessionConfig tunes one resolution run.
type SessionConfig struct {
	PollInterval   time.Duration
	PollTimeout    time.Duration
	DeleteOnCancel bool
}

func (c *SessionConfig) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 5 * time.Minute
	}
}

// Session drives one magnet through the debrid service to direct URLs.
// All state transitions are published on the event bus; the TUI or a
// headless caller reacts to AwaitingFileSelection by calling Select.
type Session struct {
	ID string

	client *Client
	bus    *events.Bus
	cfg    SessionConfig

	mu        sync.Mutex
	state     State
	torrentID string
	files     []TorrentFile

	selectCh chan []int
	cancelCh chan struct{}
	doneCh   chan struct{}
	once     sync.Once

	links []events.FileLink
	err   error
}

func NewSession(client *Client, bus *events.Bus, cfg SessionConfig) *Session {
	cfg.withDefaults()
	return &Session{
		ID:       uuid.NewString(),
		client:   client,
		bus:      bus,
		cfg:      cfg,
		state:    StateCreated,
		selectCh: make(chan []int, 1),
		cancelCh: make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Files returns the torrent's file list once known.
func (s *Session) Files() []TorrentFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files
}

// Links returns the per-file outcomes after the session reached Ready.
func (s *Session) Links() []events.FileLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links
}

// Err returns the terminal error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

// Select submits the chosen file ids for a session in
// AwaitingFileSelection.
func (s *Session) Select(fileIDs []int) error {
	if len(fileIDs) == 0 {
		return ErrEmptySelection
	}

	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	switch st {
	case StateAwaitingFileSelection:
	case StateFailed, StateCancelled, StateReady:
		return ErrSessionDone
	default:
		return ErrNotAwaitingSelection
	}

	select {
	case s.selectCh <- fileIDs:
		return nil
	default:
		return ErrNotAwaitingSelection
	}
}

// Cancel terminates the session. Safe to call at any point and more than
// once; after it returns the session publishes nothing further.
func (s *Session) Cancel() {
	s.once.Do(func() { close(s.cancelCh) })
}

// Run executes the whole resolution flow. It blocks until the session
// reaches a terminal state and returns the terminal error, if any.
func (s *Session) Run(ctx context.Context, magnet string) error {
	defer close(s.doneCh)

	added, err := s.client.AddMagnet(ctx, magnet)
	if err != nil {
		return s.fail(err)
	}
	s.mu.Lock()
	s.torrentID = added.ID
	s.mu.Unlock()
	s.transition(StateAdded, "")

	if s.cancelled() {
		return s.finishCancelled(ctx)
	}

	// Wait for the file list.
	info, err := s.pollUntil(ctx, func(info *TorrentInfo) bool {
		return info.Status == StatusWaitingFiles || info.Status == StatusDownloaded
	})
	if err != nil {
		return s.fail(err)
	}
	if s.cancelled() {
		return s.finishCancelled(ctx)
	}

	if info.Status != StatusDownloaded {
		useful := UsefulFiles(info.Files)
		s.mu.Lock()
		s.files = useful
		s.mu.Unlock()

		var chosen []int
		if len(useful) == 1 {
			// Single candidate: skip the selection round-trip.
			chosen = []int{useful[0].ID}
		} else {
			s.transition(StateAwaitingFileSelection, "")
			s.publishFiles(useful)

			select {
			case <-ctx.Done():
				return s.fail(ctx.Err())
			case <-s.cancelCh:
				return s.finishCancelled(ctx)
			case chosen = <-s.selectCh:
			}
		}

		if err := s.client.SelectFiles(ctx, added.ID, chosen); err != nil {
			return s.fail(err)
		}
		s.transition(StateFilesSelected, "")
	}

	s.transition(StateProcessing, "")

	info, err = s.pollUntil(ctx, func(info *TorrentInfo) bool {
		return info.Status == StatusDownloaded
	})
	if err != nil {
		return s.fail(err)
	}
	if s.cancelled() {
		return s.finishCancelled(ctx)
	}

	links := s.unrestrictAll(ctx, info)
	if s.cancelled() {
		return s.finishCancelled(ctx)
	}

	s.mu.Lock()
	s.links = links
	s.state = StateReady
	s.mu.Unlock()

	s.bus.Publish(events.SessionStateMsg{SessionID: s.ID, State: string(StateReady)})
	s.bus.Publish(events.SessionReadyMsg{SessionID: s.ID, Links: links})
	return nil
}

// pollUntil polls torrent info until the predicate holds, the torrent
// enters a dead status, the poll bound expires, or the session is
// cancelled.
func (s *Session) pollUntil(ctx context.Context, ready func(*TorrentInfo) bool) (*TorrentInfo, error) {
	deadline := time.Now().Add(s.cfg.PollTimeout)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var last *TorrentInfo
	for {
		info, err := s.client.TorrentInfo(ctx, s.torrentID)
		if err != nil {
			if !transientPollErr(err) {
				return nil, err
			}
			// A blip must not kill the session; keep polling until the
			// bound expires.
			utils.Debug("poll %s: %v", s.torrentID, err)
		} else {
			last = info

			switch info.Status {
			case StatusError, StatusDead, StatusMagnetError, StatusVirus:
				return nil, fmt.Errorf("debrid: torrent status %q", info.Status)
			}

			if ready(info) {
				return info, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.cancelCh:
			return last, nil
		case <-ticker.C:
		}
	}
}

// transientPollErr reports whether a poll failure is worth retrying:
// network blips and server-side 5xx responses. Auth failures, exhausted
// rate-limit retries and client-side API errors are final.
func transientPollErr(err error) bool {
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrRateLimited) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return true
}

// unrestrictAll converts every hoster link into a per-file outcome. A
// failing link becomes an error entry; it never fails the session.
func (s *Session) unrestrictAll(ctx context.Context, info *TorrentInfo) []events.FileLink {
	selected := selectedFiles(info.Files)

	out := make([]events.FileLink, 0, len(info.Links))
	for i, link := range info.Links {
		fl := events.FileLink{}
		if i < len(selected) {
			fl.FileID = selected[i].ID
			fl.Filename = selected[i].Path
		}

		u, err := s.client.UnrestrictLink(ctx, link)
		if err != nil {
			utils.Debug("unrestrict failed for %s: %v", link, err)
			fl.Err = err.Error()
		} else {
			fl.URL = u.Download
			if fl.Filename == "" {
				fl.Filename = u.Filename
			}
		}
		out = append(out, fl)
	}
	return out
}

func selectedFiles(files []TorrentFile) []TorrentFile {
	var out []TorrentFile
	for _, f := range files {
		if f.Selected == 1 {
			out = append(out, f)
		}
	}
	return out
}

func (s *Session) cancelled() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}

func (s *Session) finishCancelled(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateCancelled {
		s.mu.Unlock()
		return nil
	}
	s.state = StateCancelled
	torrentID := s.torrentID
	s.mu.Unlock()

	if s.cfg.DeleteOnCancel && torrentID != "" {
		// Best effort; the session is over either way.
		if err := s.client.DeleteTorrent(context.WithoutCancel(ctx), torrentID); err != nil {
			utils.Debug("delete torrent %s: %v", torrentID, err)
		}
	}

	s.bus.Publish(events.SessionStateMsg{SessionID: s.ID, State: string(StateCancelled)})
	return nil
}

func (s *Session) fail(err error) error {
	reason := classify(err)

	s.mu.Lock()
	if s.state == StateFailed || s.state == StateCancelled {
		s.mu.Unlock()
		return s.err
	}
	s.state = StateFailed
	s.err = err
	s.mu.Unlock()

	s.bus.Publish(events.SessionStateMsg{SessionID: s.ID, State: string(StateFailed), Reason: reason})
	return err
}

func classify(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return ReasonUnauthorized
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrTimeout):
		return ReasonTimeout
	default:
		msg := err.Error()
		switch {
		case strings.Contains(msg, StatusMagnetError):
			return ReasonMagnetError
		case strings.Contains(msg, StatusDead):
			return ReasonDead
		default:
			return ReasonServiceError
		}
	}
}

func (s *Session) transition(next State, reason string) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.bus.Publish(events.SessionStateMsg{SessionID: s.ID, State: string(next), Reason: reason})
}

func (s *Session) publishFiles(files []TorrentFile) {
	msg := events.SessionFilesMsg{SessionID: s.ID}
	for _, f := range files {
		msg.Files = append(msg.Files, events.SessionFile{
			ID:       f.ID,
			Path:     f.Path,
			Bytes:    f.Bytes,
			Selected: f.Selected == 1,
		})
	}
	s.bus.Publish(msg)
}
