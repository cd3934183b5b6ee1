package state

import (
	"database/sql"
	"fmt"
	"time"
)

// HistoryEntry is one finished download, terminal state only.
type HistoryEntry struct {
	ID         string
	URL        string
	Filename   string
	DestPath   string
	Status     string // completed, failed, cancelled
	TotalSize  int64
	Elapsed    time.Duration
	Kind       string
	Error      string
	FinishedAt time.Time
}

// RecordDownload upserts one terminal download into the history.
func RecordDownload(e HistoryEntry) error {
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}

	return withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO history (
				id, url, filename, dest_path, status, total_size, elapsed_ms, kind, error, finished_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status=excluded.status,
				total_size=excluded.total_size,
				elapsed_ms=excluded.elapsed_ms,
				kind=excluded.kind,
				error=excluded.error,
				finished_at=excluded.finished_at
		`, e.ID, e.URL, e.Filename, e.DestPath, e.Status, e.TotalSize,
			e.Elapsed.Milliseconds(), e.Kind, e.Error, e.FinishedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to upsert history entry: %w", err)
		}
		return nil
	})
}

// ListHistory returns the most recent entries, newest first.
func ListHistory(limit int) ([]HistoryEntry, error) {
	d, err := GetDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.Query(`
		SELECT id, url, filename, dest_path, status, total_size, elapsed_ms, kind, error, finished_at
		FROM history ORDER BY finished_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var elapsedMs, finishedAt int64
		if err := rows.Scan(&e.ID, &e.URL, &e.Filename, &e.DestPath, &e.Status,
			&e.TotalSize, &elapsedMs, &e.Kind, &e.Error, &finishedAt); err != nil {
			return nil, err
		}
		e.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		e.FinishedAt = time.Unix(finishedAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClearHistory deletes every history entry and reports how many were removed.
func ClearHistory() (int64, error) {
	var removed int64
	err := withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM history")
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}
