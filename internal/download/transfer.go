package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/h2non/filetype"
	"github.com/spf13/afero"

	"github.com/littlejohn-app/littlejohn/internal/events"
	"github.com/littlejohn-app/littlejohn/internal/utils"
)

// errStopped means the attempt ended because of a pause or cancel request;
// the final event is already published and acked.
var errStopped = errors.New("download: stopped")

const copyBufferSize = 32 * 1024

// run drives one task until a terminal state, retrying transfer errors
// with capped exponential backoff. Storage errors fail immediately.
func (m *Manager) run(t *Task) {
	defer m.release()

	delay := m.cfg.RetryBaseDelay
	for attempt := 0; ; attempt++ {
		err := m.attempt(t)
		if err == nil || errors.Is(err, errStopped) {
			return
		}

		var storageErr *StorageError
		if errors.As(err, &storageErr) || attempt >= m.cfg.MaxRetries {
			m.fail(t, err)
			return
		}

		utils.Debug("task %s attempt %d failed, retrying in %s: %v", t.ID, attempt+1, delay, err)
		select {
		case <-time.After(delay):
		case req := <-t.stopCh:
			m.finishStopped(t, req, "")
			return
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// attempt runs one HTTP transfer pass, resuming from the task's current
// offset when the server honors byte ranges.
func (m *Manager) attempt(t *Task) error {
	t.mu.Lock()
	offset := t.downloaded
	supportsRange := t.supportsRange
	filename := t.filename
	t.mu.Unlock()

	// A prior pass learned the server cannot resume: restart from zero.
	if offset > 0 && !supportsRange {
		offset = m.restartFromZero(t)
	}

	// signal cancels this context, so a runner blocked in Do or Read
	// unblocks and can take the pending stop request.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t.setAbort(cancel)
	defer t.setAbort(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return &TransferError{Err: err}
	}
	if m.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", m.cfg.UserAgent)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return m.awaitStop(t, "")
		}
		return &TransferError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if offset > 0 {
			// Server ignored the Range header; the restart is visible.
			offset = m.restartFromZero(t)
		}
	case resp.StatusCode == http.StatusPartialContent:
	default:
		return &TransferError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	supportsRange = resp.StatusCode == http.StatusPartialContent ||
		resp.Header.Get("Accept-Ranges") == "bytes"

	if filename == "" {
		filename = filenameFrom(resp, t.URL)
	}
	destPath := filepath.Join(m.cfg.DownloadDir, filename)

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	} else if cr := resp.Header.Get("Content-Range"); cr != "" {
		if v, ok := parseContentRangeTotal(cr); ok {
			total = v
		}
	}

	t.mu.Lock()
	t.filename = filename
	t.destPath = destPath
	t.total = total
	t.supportsRange = supportsRange
	first := !t.announced
	t.announced = true
	t.mu.Unlock()

	if first {
		m.bus.Publish(events.TaskStartedMsg{
			TaskID: t.ID, Filename: filename, Total: total,
			DestPath: destPath, SupportsRange: supportsRange,
		})
	} else if offset > 0 || resp.StatusCode == http.StatusPartialContent {
		m.bus.Publish(events.TaskResumedMsg{TaskID: t.ID, SupportsRange: supportsRange})
	}

	partPath := destPath + ".part"
	if err := m.fs.MkdirAll(m.cfg.DownloadDir, 0o755); err != nil {
		return &StorageError{Err: err}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := m.fs.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return &StorageError{Err: err}
	}

	if err := m.copyLoop(ctx, t, resp.Body, out, partPath); err != nil {
		if !errors.Is(err, errStopped) {
			out.Close()
		}
		return err
	}

	if err := out.Close(); err != nil {
		return &StorageError{Err: err}
	}

	downloaded, knownTotal := t.progress()
	if knownTotal > 0 && downloaded < knownTotal {
		return &TransferError{Err: fmt.Errorf("short body: %d of %d bytes", downloaded, knownTotal)}
	}

	if err := m.fs.Rename(partPath, destPath); err != nil {
		return &StorageError{Err: err}
	}

	kind := detectKind(m.fs, destPath)

	t.mu.Lock()
	t.state = StateCompleted
	elapsed := time.Since(t.startedAt)
	t.mu.Unlock()

	m.bus.Publish(events.TaskCompletedMsg{
		TaskID: t.ID, Filename: filename, Total: downloaded,
		Elapsed: elapsed, Kind: kind,
	})
	return nil
}

// copyLoop streams the body to disk, emitting periodic progress events and
// honoring stop requests between reads.
func (m *Manager) copyLoop(ctx context.Context, t *Task, body io.Reader, out afero.File, partPath string) error {
	buf := make([]byte, copyBufferSize)
	lastReport := time.Now()
	var sinceReport int64

	for {
		select {
		case req := <-t.stopCh:
			out.Close()
			m.finishStopped(t, req, partPath)
			return errStopped
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return &StorageError{Err: werr}
			}
			downloaded, total := t.addProgress(int64(n))
			sinceReport += int64(n)

			if now := time.Now(); now.Sub(lastReport) >= m.cfg.ReportInterval {
				speed := float64(sinceReport) / now.Sub(lastReport).Seconds()
				if total > 0 && downloaded > total {
					downloaded = total
				}
				m.bus.PublishProgress(events.TaskProgressMsg{
					TaskID: t.ID, Downloaded: downloaded, Total: total, Speed: speed,
				})
				lastReport = now
				sinceReport = 0
			}
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				out.Close()
				return m.awaitStop(t, partPath)
			}
			return &TransferError{Err: readErr}
		}
	}
}

// awaitStop receives the stop request whose signal cancelled the attempt
// context, finalizes the task and acks the caller.
func (m *Manager) awaitStop(t *Task, partPath string) error {
	select {
	case req := <-t.stopCh:
		m.finishStopped(t, req, partPath)
		return errStopped
	case <-time.After(stopAckTimeout):
		// The signaler gave up waiting; treat the cut as retryable.
		return &TransferError{Err: errors.New("request aborted")}
	}
}

// finishStopped applies a pause or cancel, publishes the final event, and
// acks the waiting caller. Nothing is emitted for the task afterwards
// until a new Start.
func (m *Manager) finishStopped(t *Task, req stopRequest, partPath string) {
	t.mu.Lock()
	if req.reason == stopPause {
		t.state = StatePaused
		downloaded := t.downloaded
		t.mu.Unlock()
		m.bus.Publish(events.TaskPausedMsg{TaskID: t.ID, Downloaded: downloaded})
	} else {
		t.state = StateCancelled
		t.mu.Unlock()
		if partPath != "" {
			if err := m.fs.Remove(partPath); err != nil {
				utils.Debug("remove %s: %v", partPath, err)
			}
		}
		m.bus.Publish(events.TaskCancelledMsg{TaskID: t.ID})
	}
	close(req.ack)
}

func (m *Manager) fail(t *Task, err error) {
	t.mu.Lock()
	t.state = StateFailed
	t.err = err
	t.mu.Unlock()
	m.bus.Publish(events.TaskFailedMsg{TaskID: t.ID, Err: err})
}

// restartFromZero resets progress before a pass that cannot resume.
func (m *Manager) restartFromZero(t *Task) int64 {
	t.mu.Lock()
	t.downloaded = 0
	destPath := t.destPath
	t.mu.Unlock()

	if destPath != "" {
		if err := m.fs.Remove(destPath + ".part"); err != nil {
			utils.Debug("discard partial %s: %v", destPath, err)
		}
	}
	return 0
}

// filenameFrom picks a filename from Content-Disposition, falling back to
// the URL path.
func filenameFrom(resp *http.Response, rawurl string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return filepath.Base(name)
			}
		}
	}
	if u, err := url.Parse(rawurl); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
			return base
		}
	}
	return "download.bin"
}

// detectKind sniffs the finished file's type from its magic bytes.
func detectKind(fs afero.Fs, p string) string {
	f, err := fs.Open(p)
	if err != nil {
		return ""
	}
	defer f.Close()

	head := make([]byte, 262)
	n, _ := io.ReadFull(f, head)
	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.Extension
}

// parseContentRangeTotal extracts the complete length from a
// "bytes start-end/total" Content-Range value.
func parseContentRangeTotal(v string) (int64, bool) {
	idx := -1
	for i := len(v) - 1; i >= 0; i-- {
		if v[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 || idx == len(v)-1 {
		return 0, false
	}
	total, err := strconv.ParseInt(v[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}
