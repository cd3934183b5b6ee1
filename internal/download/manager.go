package download

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/littlejohn-app/littlejohn/internal/events"
	"github.com/littlejohn-app/littlejohn/internal/utils"
)

var (
	ErrTaskNotFound = errors.New("download: task not found")

	// ErrInvalidTransition means the requested operation is not legal in the
	// task's current state.
	ErrInvalidTransition = errors.New("download: invalid state transition")
)

// Config tunes the manager.
type Config struct {
	// DownloadDir is the destination directory for finished files.
	DownloadDir string

	// MaxActive bounds concurrent transfers.
	MaxActive int

	// MaxRetries bounds transfer-error retries per task.
	MaxRetries int

	// RetryBaseDelay is the first backoff step; it doubles per attempt up
	// to maxRetryDelay.
	RetryBaseDelay time.Duration

	// ReportInterval is the progress event cadence.
	ReportInterval time.Duration

	UserAgent string
}

func (c *Config) withDefaults() {
	if c.MaxActive <= 0 {
		c.MaxActive = 3
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 200 * time.Millisecond
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = 150 * time.Millisecond
	}
}

const maxRetryDelay = 10 * time.Second

// stopAckTimeout bounds how long Pause and Cancel wait for the runner's
// acknowledgement.
const stopAckTimeout = 5 * time.Second

// Manager owns every download task. Admission is a counting semaphore:
// at most Config.MaxActive transfers run at once, started-but-unadmitted
// tasks stay Queued and are promoted first-queued-first-promoted as slots
// free up.
type Manager struct {
	fs     afero.Fs
	bus    *events.Bus
	cfg    Config
	client *http.Client

	mu      sync.Mutex
	tasks   map[string]*Task
	order   []string // insertion order, for List
	pending []string // started tasks waiting for a slot, FIFO
	active  int
}

func NewManager(fs afero.Fs, bus *events.Bus, cfg Config) *Manager {
	cfg.withDefaults()
	return &Manager{
		fs:     fs,
		bus:    bus,
		cfg:    cfg,
		client: &http.Client{}, // no timeout, transfers are long-lived
		tasks:  make(map[string]*Task),
	}
}

// Enqueue registers a new task in Queued without starting the transfer.
func (m *Manager) Enqueue(url, filename string) *Task {
	t := &Task{
		ID:       uuid.NewString(),
		URL:      url,
		state:    StateQueued,
		filename: filename,
		total:    -1,
		stopCh:   make(chan stopRequest),
	}

	m.mu.Lock()
	m.tasks[t.ID] = t
	m.order = append(m.order, t.ID)
	m.mu.Unlock()

	m.bus.Publish(events.TaskQueuedMsg{TaskID: t.ID, URL: url, Filename: filename})
	return t
}

// Start requests admission for a Queued or Paused task. If every slot is
// taken the task stays Queued and is promoted automatically later.
func (m *Manager) Start(id string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return ErrTaskNotFound
	}

	t.mu.Lock()
	switch t.state {
	case StateQueued:
	case StatePaused:
		t.state = StateQueued
	default:
		t.mu.Unlock()
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	t.mu.Unlock()

	if !m.isPending(id) {
		m.pending = append(m.pending, id)
	}
	m.promoteLocked()
	m.mu.Unlock()
	return nil
}

// StartAll requests admission for every Queued and Paused task, in
// enqueue order.
func (m *Manager) StartAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.order {
		t := m.tasks[id]
		t.mu.Lock()
		startable := t.state == StateQueued || t.state == StatePaused
		if t.state == StatePaused {
			t.state = StateQueued
		}
		t.mu.Unlock()

		if startable && !m.isPending(id) {
			m.pending = append(m.pending, id)
		}
	}
	m.promoteLocked()
}

// Resume is Start for a Paused task.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return ErrTaskNotFound
	}
	if t.State() != StatePaused {
		return ErrInvalidTransition
	}
	return m.Start(id)
}

// Pause stops an Active transfer. When Pause returns, the runner has
// published its TaskPausedMsg and will emit nothing further until Start.
func (m *Manager) Pause(id string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return ErrTaskNotFound
	}
	if t.State() != StateActive {
		return ErrInvalidTransition
	}
	return m.signal(t, stopPause)
}

// Cancel terminates a task from Queued, Active or Paused. When Cancel
// returns, no further events will ever be emitted for the task.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return ErrTaskNotFound
	}

	t.mu.Lock()
	switch t.state {
	case StateQueued, StatePaused:
		t.state = StateCancelled
		partPath := ""
		if t.destPath != "" {
			// A paused task still has its partial file on disk.
			partPath = t.destPath + ".part"
		}
		t.mu.Unlock()
		m.removePending(id)
		m.mu.Unlock()
		if partPath != "" {
			if err := m.fs.Remove(partPath); err != nil {
				utils.Debug("remove %s: %v", partPath, err)
			}
		}
		m.bus.Publish(events.TaskCancelledMsg{TaskID: id})
		return nil
	case StateActive:
		t.mu.Unlock()
		m.mu.Unlock()
		return m.signal(t, stopCancel)
	default:
		t.mu.Unlock()
		m.mu.Unlock()
		return ErrInvalidTransition
	}
}

// CancelAll cancels every non-terminal task.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Cancel(id); err != nil && !errors.Is(err, ErrInvalidTransition) {
			utils.Debug("cancel %s: %v", id, err)
		}
	}
}

// ClearCompleted drops Completed tasks from the registry.
func (m *Manager) ClearCompleted() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []string
	removed := 0
	for _, id := range m.order {
		if m.tasks[id].State() == StateCompleted {
			delete(m.tasks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return removed
}

// Get returns a snapshot of one task.
func (m *Manager) Get(id string) (Snapshot, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrTaskNotFound
	}
	return t.Snapshot(), nil
}

// List returns snapshots of every task in enqueue order.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Snapshot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tasks[id].Snapshot())
	}
	return out
}

// signal delivers a stop request to an active runner and waits for its
// acknowledgement. The runner publishes the task's final event before
// acking, so no events follow the caller's return.
func (m *Manager) signal(t *Task, reason stopReason) error {
	req := stopRequest{reason: reason, ack: make(chan struct{})}
	// A runner blocked in network I/O cannot reach the stop channel;
	// cancel its request context first so the read unblocks.
	t.abortAttempt()
	select {
	case t.stopCh <- req:
		<-req.ack
		return nil
	case <-time.After(stopAckTimeout):
		// Runner wedged or already gone; report the state mismatch.
		return ErrInvalidTransition
	}
}

// promoteLocked fills free slots from the pending queue. Caller holds m.mu.
func (m *Manager) promoteLocked() {
	for m.active < m.cfg.MaxActive && len(m.pending) > 0 {
		id := m.pending[0]
		m.pending = m.pending[1:]

		t, ok := m.tasks[id]
		if !ok {
			continue
		}
		t.mu.Lock()
		if t.state != StateQueued {
			t.mu.Unlock()
			continue
		}
		t.state = StateActive
		if t.startedAt.IsZero() {
			t.startedAt = time.Now()
		}
		t.mu.Unlock()

		m.active++
		go m.run(t)
	}
}

// release frees the task's slot and promotes the next pending task.
func (m *Manager) release() {
	m.mu.Lock()
	m.active--
	m.promoteLocked()
	m.mu.Unlock()
}

func (m *Manager) isPending(id string) bool {
	for _, p := range m.pending {
		if p == id {
			return true
		}
	}
	return false
}

func (m *Manager) removePending(id string) {
	for i, p := range m.pending {
		if p == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}
