// Package download runs HTTP transfers under a bounded concurrency limit
// with pause, resume and cancel, reporting progress on the event bus.
package download

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TaskState is the lifecycle state of one transfer.
type TaskState string

const (
	StateQueued    TaskState = "queued"
	StateActive    TaskState = "active"
	StatePaused    TaskState = "paused"
	StateCompleted TaskState = "completed"
	StateFailed    TaskState = "failed"
	StateCancelled TaskState = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// stopReason tells an active runner why it must stop.
type stopReason int

const (
	stopPause stopReason = iota
	stopCancel
)

// stopRequest is handed to a running transfer; the runner closes ack after
// it has published its final event, which makes Pause and Cancel
// synchronous.
type stopRequest struct {
	reason stopReason
	ack    chan struct{}
}

// Task is one download. All mutable fields are guarded by mu; the manager
// owns lifecycle transitions, the runner only advances progress.
type Task struct {
	ID  string
	URL string

	mu            sync.Mutex
	state         TaskState
	filename      string
	destPath      string
	downloaded    int64
	total         int64
	supportsRange bool
	announced     bool
	err           error
	startedAt     time.Time
	abort         context.CancelFunc

	stopCh chan stopRequest
}

// setAbort installs the cancel func of the attempt's request context.
func (t *Task) setAbort(fn context.CancelFunc) {
	t.mu.Lock()
	t.abort = fn
	t.mu.Unlock()
}

// abortAttempt cancels the in-flight request, if any, so a runner blocked
// in network I/O can pick up a pending stop request.
func (t *Task) abortAttempt() {
	t.mu.Lock()
	fn := t.abort
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Snapshot is a consistent read of a task's mutable state.
type Snapshot struct {
	ID            string
	URL           string
	State         TaskState
	Filename      string
	DestPath      string
	Downloaded    int64
	Total         int64
	SupportsRange bool
	Err           error
}

func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		ID:            t.ID,
		URL:           t.URL,
		State:         t.state,
		Filename:      t.filename,
		DestPath:      t.destPath,
		Downloaded:    t.downloaded,
		Total:         t.total,
		SupportsRange: t.supportsRange,
		Err:           t.err,
	}
}

func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// addProgress advances the monotonic downloaded counter.
func (t *Task) addProgress(n int64) (downloaded, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downloaded += n
	return t.downloaded, t.total
}

func (t *Task) progress() (downloaded, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downloaded, t.total
}

// TransferError is a retryable failure: network hiccups, truncated reads,
// 5xx responses.
type TransferError struct {
	Err error
}

func (e *TransferError) Error() string { return fmt.Sprintf("transfer: %v", e.Err) }
func (e *TransferError) Unwrap() error { return e.Err }

// StorageError is a fatal local failure: the destination filesystem
// rejected a create, write or rename. Never retried.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %v", e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }
