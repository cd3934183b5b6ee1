// Package events carries the typed messages flowing from background work
// (search fan-out, debrid sessions, transfers) to the single consuming
// control loop.
package events

import (
	"sync"
	"time"
)

// SearchCompletedMsg reports one finished aggregate search.
type SearchCompletedMsg struct {
	Query   string
	Page    int
	Results int
}

// SearchFailedMsg reports a search call that produced no usable results.
type SearchFailedMsg struct {
	Query string
	Err   error
}

// StatusMsg is a transient human-readable status line.
type StatusMsg struct {
	Text string
}

// SessionStateMsg reports one state transition of a resolution session.
type SessionStateMsg struct {
	SessionID string
	State     string
	Reason    string
}

// SessionFile mirrors one file entry of a multi-file torrent for display.
type SessionFile struct {
	ID       int
	Path     string
	Bytes    int64
	Selected bool
}

// SessionFilesMsg reports the file list of a session awaiting selection.
type SessionFilesMsg struct {
	SessionID string
	Files     []SessionFile
}

// FileLink is the per-file outcome of a finished session: either a direct
// URL or an error string, never both.
type FileLink struct {
	FileID   int
	Filename string
	URL      string
	Err      string
}

// SessionReadyMsg reports a session that reached Ready with its per-file links.
type SessionReadyMsg struct {
	SessionID string
	Links     []FileLink
}

// TaskQueuedMsg reports a newly enqueued download task.
type TaskQueuedMsg struct {
	TaskID   string
	URL      string
	Filename string
}

// TaskStartedMsg reports a task admitted to an active transfer slot.
type TaskStartedMsg struct {
	TaskID        string
	Filename      string
	Total         int64
	DestPath      string
	SupportsRange bool
}

// TaskProgressMsg is the periodic transfer progress report. Per task these
// are emitted in order with non-decreasing Downloaded.
type TaskProgressMsg struct {
	TaskID     string
	Downloaded int64
	Total      int64
	Speed      float64
}

// TaskPausedMsg reports a paused task.
type TaskPausedMsg struct {
	TaskID     string
	Downloaded int64
}

// TaskResumedMsg reports a task resuming, with whether the server honors
// byte-range resume or the transfer restarted from zero.
type TaskResumedMsg struct {
	TaskID        string
	SupportsRange bool
}

// TaskCompletedMsg reports a finished transfer.
type TaskCompletedMsg struct {
	TaskID   string
	Filename string
	Total    int64
	Elapsed  time.Duration
	Kind     string // detected file kind, empty when unknown
}

// TaskFailedMsg reports a terminally failed transfer.
type TaskFailedMsg struct {
	TaskID string
	Err    error
}

// TaskCancelledMsg reports an explicitly cancelled task.
type TaskCancelledMsg struct {
	TaskID string
}

// Bus is a bounded multi-producer/single-consumer queue. One-shot state
// events block the producer until the consumer drains; high-frequency
// progress events use drop-oldest so a slow consumer never stalls a
// transfer. Only progress entries are ever dropped.
type Bus struct {
	ch   chan any
	done chan struct{}
	once sync.Once

	// sendMu serializes producers so eviction can rebuild the queue
	// without racing another send.
	sendMu sync.Mutex
}

const DefaultBusCapacity = 128

func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	return &Bus{
		ch:   make(chan any, capacity),
		done: make(chan struct{}),
	}
}

// Publish enqueues a one-shot event, blocking while the queue is full.
// It returns without delivering if the bus is closed.
func (b *Bus) Publish(msg any) {
	for {
		b.sendMu.Lock()
		select {
		case <-b.done:
			b.sendMu.Unlock()
			return
		case b.ch <- msg:
			b.sendMu.Unlock()
			return
		default:
		}
		b.sendMu.Unlock()

		// Full. Waiting inside the channel send would race a concurrent
		// eviction rebuilding the queue, so poll for space instead.
		select {
		case <-b.done:
			return
		case <-time.After(time.Millisecond):
		}
	}
}

// PublishProgress enqueues a progress event without ever blocking: when
// the queue is full, the oldest queued progress entry is dropped to make
// room. One-shot events are never discarded; if the queue holds nothing
// but one-shots, the incoming report is dropped instead.
func (b *Bus) PublishProgress(msg any) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	select {
	case <-b.done:
		return
	case b.ch <- msg:
		return
	default:
	}

	// Full: rebuild the queue in order, minus its oldest progress entry.
	var queued []any
	for {
		select {
		case old := <-b.ch:
			queued = append(queued, old)
			continue
		default:
		}
		break
	}

	evicted := false
	kept := queued[:0]
	for _, q := range queued {
		if _, ok := q.(TaskProgressMsg); ok && !evicted {
			evicted = true
			continue
		}
		kept = append(kept, q)
	}
	if evicted {
		kept = append(kept, msg)
	}

	for _, q := range kept {
		select {
		case <-b.done:
			return
		case b.ch <- q:
		}
	}
}

// C returns the consumer side. There must be exactly one consumer.
func (b *Bus) C() <-chan any {
	return b.ch
}

// Close stops the bus. Publishes after Close are dropped. Safe to call
// more than once.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.done) })
}
