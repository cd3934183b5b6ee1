package download

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littlejohn-app/littlejohn/internal/events"
)

// collector drains the bus in the background so blocking publishes never
// stall the manager under test.
type collector struct {
	mu   sync.Mutex
	msgs []any
	done chan struct{}
}

func collect(bus *events.Bus) *collector {
	c := &collector{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for msg := range bus.C() {
			c.mu.Lock()
			c.msgs = append(c.msgs, msg)
			c.mu.Unlock()
		}
	}()
	return c
}

func (c *collector) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *events.Bus, *collector) {
	t.Helper()
	bus := events.NewBus(1024)
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "/downloads"
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = time.Millisecond
	}
	m := NewManager(afero.NewMemMapFs(), bus, cfg)
	return m, bus, collect(bus)
}

// blockingServer streams forever until released, so tasks stay Active.
func blockingServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		flusher := w.(http.Flusher)
		for {
			select {
			case <-release:
				return
			case <-r.Context().Done():
				return
			case <-time.After(time.Millisecond):
				w.Write(make([]byte, 256))
				flusher.Flush()
			}
		}
	}))
	var once sync.Once
	return server, func() { once.Do(func() { close(release) }) }
}

func TestConcurrencyBound(t *testing.T) {
	server, release := blockingServer(t)
	defer server.Close()
	defer release()

	m, _, _ := newTestManager(t, Config{MaxActive: 2})
	for i := 0; i < 5; i++ {
		m.Enqueue(server.URL+"/f"+strconv.Itoa(i), fmt.Sprintf("f%d.bin", i))
	}
	m.StartAll()

	active, queued := 0, 0
	for _, s := range m.List() {
		switch s.State {
		case StateActive:
			active++
		case StateQueued:
			queued++
		}
	}
	assert.Equal(t, 2, active, "exactly MaxActive tasks active right after StartAll")
	assert.Equal(t, 3, queued, "the rest stay queued")
}

func TestEnqueueDoesNotStart(t *testing.T) {
	m, _, _ := newTestManager(t, Config{MaxActive: 2})
	task := m.Enqueue("http://example.invalid/file", "file.bin")
	assert.Equal(t, StateQueued, task.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateQueued, task.State(), "no transfer without Start")
}

func TestFIFOPromotion(t *testing.T) {
	server, release := blockingServer(t)
	defer server.Close()
	defer release()

	m, _, _ := newTestManager(t, Config{MaxActive: 1})
	first := m.Enqueue(server.URL+"/1", "1.bin")
	second := m.Enqueue(server.URL+"/2", "2.bin")
	third := m.Enqueue(server.URL+"/3", "3.bin")
	m.StartAll()

	require.Equal(t, StateActive, first.State())
	require.Equal(t, StateQueued, second.State())

	// Freeing the slot promotes the oldest queued task.
	require.NoError(t, m.Cancel(first.ID))
	waitState(t, second, StateActive)
	assert.Equal(t, StateQueued, third.State())
}

func waitState(t *testing.T, task *Task, want TaskState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if task.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %s never reached %s, stuck at %s", task.ID, want, task.State())
}

func TestCompletedTransfer(t *testing.T) {
	payload := strings.Repeat("x", 100_000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="movie.mkv"`)
		w.Write([]byte(payload))
	}))
	defer server.Close()

	m, _, c := newTestManager(t, Config{MaxActive: 1})
	task := m.Enqueue(server.URL+"/dl", "")
	require.NoError(t, m.Start(task.ID))
	waitState(t, task, StateCompleted)

	snap := task.Snapshot()
	assert.Equal(t, "movie.mkv", snap.Filename)
	assert.Equal(t, int64(len(payload)), snap.Downloaded)

	data, err := afero.ReadFile(m.fs, "/downloads/movie.mkv")
	require.NoError(t, err)
	assert.Len(t, data, len(payload))

	exists, _ := afero.Exists(m.fs, "/downloads/movie.mkv.part")
	assert.False(t, exists, "part file renamed away on completion")

	var completed bool
	for _, msg := range c.snapshot() {
		if done, ok := msg.(events.TaskCompletedMsg); ok {
			completed = true
			assert.Equal(t, task.ID, done.TaskID)
			assert.Equal(t, int64(len(payload)), done.Total)
		}
	}
	assert.True(t, completed, "TaskCompletedMsg published")
}

func TestProgressMonotonic(t *testing.T) {
	payload := make([]byte, 400_000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		flusher := w.(http.Flusher)
		for off := 0; off < len(payload); off += 4096 {
			end := off + 4096
			if end > len(payload) {
				end = len(payload)
			}
			w.Write(payload[off:end])
			flusher.Flush()
			time.Sleep(100 * time.Microsecond)
		}
	}))
	defer server.Close()

	m, _, c := newTestManager(t, Config{MaxActive: 1})
	task := m.Enqueue(server.URL+"/big", "big.bin")
	require.NoError(t, m.Start(task.ID))
	waitState(t, task, StateCompleted)

	var prev int64 = -1
	var seen int
	for _, msg := range c.snapshot() {
		p, ok := msg.(events.TaskProgressMsg)
		if !ok {
			continue
		}
		seen++
		assert.GreaterOrEqual(t, p.Downloaded, prev, "progress never decreases")
		if p.Total > 0 {
			assert.LessOrEqual(t, p.Downloaded, p.Total)
		}
		prev = p.Downloaded
	}
	assert.Greater(t, seen, 0, "some progress events emitted")
}

func TestPauseThenCancelEmitsNothingAfterReturn(t *testing.T) {
	server, release := blockingServer(t)
	defer server.Close()
	defer release()

	m, _, c := newTestManager(t, Config{MaxActive: 1, ReportInterval: time.Millisecond})
	task := m.Enqueue(server.URL+"/f", "f.bin")
	require.NoError(t, m.Start(task.ID))
	waitState(t, task, StateActive)
	time.Sleep(10 * time.Millisecond) // let some progress flow

	require.NoError(t, m.Pause(task.ID))
	assert.Equal(t, StatePaused, task.State())

	// Give in-flight messages time to land, then check silence.
	time.Sleep(20 * time.Millisecond)
	baseline := c.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, baseline, c.count(), "no events for a paused task")

	require.NoError(t, m.Cancel(task.ID))
	assert.Equal(t, StateCancelled, task.State())

	time.Sleep(20 * time.Millisecond)
	baseline = c.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, baseline, c.count(), "no events ever after cancel")
}

func TestCancelUnblocksStalledTransfer(t *testing.T) {
	// Server sends headers and a few bytes, then goes silent: the runner
	// ends up blocked in Read with no data coming.
	stalled := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		w.Write(make([]byte, 512))
		w.(http.Flusher).Flush()
		close(stalled)
		<-r.Context().Done()
	}))
	defer server.Close()

	m, _, c := newTestManager(t, Config{MaxActive: 1})
	task := m.Enqueue(server.URL+"/f", "f.bin")
	require.NoError(t, m.Start(task.ID))
	select {
	case <-stalled:
	case <-time.After(2 * time.Second):
		t.Fatal("transfer never reached the stall")
	}
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	require.NoError(t, m.Cancel(task.ID), "cancel of a stalled transfer must succeed")
	assert.Less(t, time.Since(start), 2*time.Second, "cancel returned promptly")
	assert.Equal(t, StateCancelled, task.State())

	exists, _ := afero.Exists(m.fs, "/downloads/f.bin.part")
	assert.False(t, exists, "partial file discarded")

	time.Sleep(10 * time.Millisecond)
	var cancelled bool
	for _, msg := range c.snapshot() {
		if _, ok := msg.(events.TaskCancelledMsg); ok {
			cancelled = true
		}
	}
	assert.True(t, cancelled, "TaskCancelledMsg published before Cancel returned")
}

func TestPauseUnblocksStalledTransfer(t *testing.T) {
	stalled := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		w.Write(make([]byte, 512))
		w.(http.Flusher).Flush()
		close(stalled)
		<-r.Context().Done()
	}))
	defer server.Close()

	m, _, _ := newTestManager(t, Config{MaxActive: 1})
	task := m.Enqueue(server.URL+"/f", "f.bin")
	require.NoError(t, m.Start(task.ID))
	select {
	case <-stalled:
	case <-time.After(2 * time.Second):
		t.Fatal("transfer never reached the stall")
	}
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	require.NoError(t, m.Pause(task.ID), "pause of a stalled transfer must succeed")
	assert.Less(t, time.Since(start), 2*time.Second, "pause returned promptly")
	assert.Equal(t, StatePaused, task.State())
}

func TestCancelPausedRemovesPartialFile(t *testing.T) {
	server, release := blockingServer(t)
	defer server.Close()
	defer release()

	m, _, _ := newTestManager(t, Config{MaxActive: 1})
	task := m.Enqueue(server.URL+"/f", "f.bin")
	require.NoError(t, m.Start(task.ID))
	waitState(t, task, StateActive)
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, m.Pause(task.ID))
	exists, _ := afero.Exists(m.fs, "/downloads/f.bin.part")
	require.True(t, exists, "paused task keeps its partial file")

	require.NoError(t, m.Cancel(task.ID))
	exists, _ = afero.Exists(m.fs, "/downloads/f.bin.part")
	assert.False(t, exists, "cancel discards the partial file")
}

func TestResumeWithRangeSupport(t *testing.T) {
	payload := make([]byte, 200_000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	var mu sync.Mutex
	var sawRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		offset := 0
		if rng := r.Header.Get("Range"); rng != "" {
			mu.Lock()
			sawRange = rng
			mu.Unlock()
			fmt.Sscanf(rng, "bytes=%d-", &offset)
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, len(payload)-1, len(payload)))
			w.WriteHeader(http.StatusPartialContent)
		}
		flusher := w.(http.Flusher)
		for off := offset; off < len(payload); off += 2048 {
			end := off + 2048
			if end > len(payload) {
				end = len(payload)
			}
			w.Write(payload[off:end])
			flusher.Flush()
			time.Sleep(200 * time.Microsecond)
		}
	}))
	defer server.Close()

	m, _, c := newTestManager(t, Config{MaxActive: 1})
	task := m.Enqueue(server.URL+"/f", "f.bin")
	require.NoError(t, m.Start(task.ID))
	waitState(t, task, StateActive)
	time.Sleep(15 * time.Millisecond)

	require.NoError(t, m.Pause(task.ID))
	paused := task.Snapshot()
	require.Greater(t, paused.Downloaded, int64(0), "some bytes before pause")
	require.Less(t, paused.Downloaded, int64(len(payload)), "pause landed mid-transfer")

	require.NoError(t, m.Resume(task.ID))
	waitState(t, task, StateCompleted)

	mu.Lock()
	assert.Contains(t, sawRange, fmt.Sprintf("bytes=%d-", paused.Downloaded))
	mu.Unlock()

	data, err := afero.ReadFile(m.fs, "/downloads/f.bin")
	require.NoError(t, err)
	assert.Equal(t, payload, data, "resumed file content intact")

	var resumed bool
	for _, msg := range c.snapshot() {
		if r, ok := msg.(events.TaskResumedMsg); ok {
			resumed = true
			assert.True(t, r.SupportsRange)
		}
	}
	assert.True(t, resumed, "TaskResumedMsg published")
}

func TestResumeWithoutRangeRestartsFromZero(t *testing.T) {
	payload := make([]byte, 100_000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Ignores Range entirely: plain 200 with the full body.
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		flusher := w.(http.Flusher)
		for off := 0; off < len(payload); off += 2048 {
			end := off + 2048
			if end > len(payload) {
				end = len(payload)
			}
			w.Write(payload[off:end])
			flusher.Flush()
			time.Sleep(200 * time.Microsecond)
		}
	}))
	defer server.Close()

	m, _, _ := newTestManager(t, Config{MaxActive: 1})
	task := m.Enqueue(server.URL+"/f", "f.bin")
	require.NoError(t, m.Start(task.ID))
	waitState(t, task, StateActive)
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, m.Pause(task.ID))
	require.Greater(t, task.Snapshot().Downloaded, int64(0))

	require.NoError(t, m.Start(task.ID))
	waitState(t, task, StateCompleted)

	snap := task.Snapshot()
	assert.False(t, snap.SupportsRange)
	assert.Equal(t, int64(len(payload)), snap.Downloaded, "restart still ends with the full file")

	data, err := afero.ReadFile(m.fs, "/downloads/f.bin")
	require.NoError(t, err)
	assert.Len(t, data, len(payload))
}

func TestTransferErrorRetriesThenFails(t *testing.T) {
	var mu sync.Mutex
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	m, _, c := newTestManager(t, Config{MaxActive: 1, MaxRetries: 2, RetryBaseDelay: time.Millisecond})
	task := m.Enqueue(server.URL+"/f", "f.bin")
	require.NoError(t, m.Start(task.ID))
	waitState(t, task, StateFailed)

	mu.Lock()
	assert.Equal(t, 3, calls, "first attempt plus MaxRetries")
	mu.Unlock()

	var transferErr *TransferError
	assert.ErrorAs(t, task.Snapshot().Err, &transferErr)

	var failed bool
	for _, msg := range c.snapshot() {
		if _, ok := msg.(events.TaskFailedMsg); ok {
			failed = true
		}
	}
	assert.True(t, failed)
}

func TestStorageErrorFailsImmediately(t *testing.T) {
	var mu sync.Mutex
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.Write([]byte("data"))
	}))
	defer server.Close()

	bus := events.NewBus(1024)
	collect(bus)
	m := NewManager(afero.NewReadOnlyFs(afero.NewMemMapFs()), bus, Config{
		DownloadDir: "/downloads", MaxActive: 1, MaxRetries: 5, RetryBaseDelay: time.Millisecond,
	})

	task := m.Enqueue(server.URL+"/f", "f.bin")
	require.NoError(t, m.Start(task.ID))
	waitState(t, task, StateFailed)

	mu.Lock()
	assert.Equal(t, 1, calls, "storage errors are never retried")
	mu.Unlock()

	var storageErr *StorageError
	assert.ErrorAs(t, task.Snapshot().Err, &storageErr)
}

func TestCancelQueuedTask(t *testing.T) {
	m, _, c := newTestManager(t, Config{MaxActive: 1})
	task := m.Enqueue("http://example.invalid/f", "f.bin")

	require.NoError(t, m.Cancel(task.ID))
	assert.Equal(t, StateCancelled, task.State())

	time.Sleep(10 * time.Millisecond)
	var cancelled bool
	for _, msg := range c.snapshot() {
		if _, ok := msg.(events.TaskCancelledMsg); ok {
			cancelled = true
		}
	}
	assert.True(t, cancelled)

	assert.ErrorIs(t, m.Cancel(task.ID), ErrInvalidTransition, "cancel is not repeatable")
}

func TestClearCompleted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tiny"))
	}))
	defer server.Close()

	m, _, _ := newTestManager(t, Config{MaxActive: 2})
	done := m.Enqueue(server.URL+"/a", "a.bin")
	kept := m.Enqueue("http://example.invalid/b", "b.bin")
	require.NoError(t, m.Start(done.ID))
	waitState(t, done, StateCompleted)

	assert.Equal(t, 1, m.ClearCompleted())

	_, err := m.Get(done.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = m.Get(kept.ID)
	assert.NoError(t, err)
}

func TestUnknownTask(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	assert.ErrorIs(t, m.Start("nope"), ErrTaskNotFound)
	assert.ErrorIs(t, m.Pause("nope"), ErrTaskNotFound)
	assert.ErrorIs(t, m.Cancel("nope"), ErrTaskNotFound)
	_, err := m.Get("nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestPauseRequiresActive(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	task := m.Enqueue("http://example.invalid/f", "f.bin")
	assert.ErrorIs(t, m.Pause(task.ID), ErrInvalidTransition)
}
