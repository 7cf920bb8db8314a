// Package task records conversion runs and their per-segment outcomes in
// the ledger database.
package task

import (
	"database/sql"
)

// Ledger persists runs and segment results.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates the ledger tables if needed.
func NewLedger(db *sql.DB) (*Ledger, error) {
	l := &Ledger{db: db}
	if err := l.initSchema(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		playlist TEXT,
		output TEXT,
		segment_dir TEXT,
		total_segments INTEGER,
		created_time DATETIME,
		status TEXT
	);

	CREATE TABLE IF NOT EXISTS run_segment (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		url TEXT NOT NULL,
		filename TEXT NOT NULL,
		succeeded INTEGER NOT NULL,
		attempts INTEGER NOT NULL,
		last_error TEXT,
		UNIQUE(run_id, idx)
	);

	CREATE INDEX IF NOT EXISTS idx_run_segment_run_id ON run_segment(run_id);
	`
	_, err := l.db.Exec(query)
	return err
}

// CreateRun inserts a new run row.
func (l *Ledger) CreateRun(meta RunMetadata) error {
	query := `INSERT INTO runs (id, playlist, output, segment_dir, total_segments, created_time, status) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := l.db.Exec(query, meta.ID, meta.Playlist, meta.Output, meta.SegmentDir, meta.TotalSegments, meta.CreatedTime, meta.Status)
	return err
}

// UpdateRunStatus moves a run to a new lifecycle state.
func (l *Ledger) UpdateRunStatus(id string, status RunStatus) error {
	query := `UPDATE runs SET status = ? WHERE id = ?`
	_, err := l.db.Exec(query, status, id)
	return err
}

// GetRun loads one run by id.
func (l *Ledger) GetRun(id string) (*RunMetadata, error) {
	query := `SELECT id, playlist, output, COALESCE(segment_dir, ''), total_segments, created_time, status FROM runs WHERE id = ?`
	row := l.db.QueryRow(query, id)
	var meta RunMetadata
	err := row.Scan(&meta.ID, &meta.Playlist, &meta.Output, &meta.SegmentDir, &meta.TotalSegments, &meta.CreatedTime, &meta.Status)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// ListRuns returns all recorded runs, newest first.
func (l *Ledger) ListRuns() ([]RunMetadata, error) {
	query := `SELECT id, playlist, output, COALESCE(segment_dir, ''), total_segments, created_time, status FROM runs ORDER BY created_time DESC`
	rows, err := l.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		if err := rows.Scan(&meta.ID, &meta.Playlist, &meta.Output, &meta.SegmentDir, &meta.TotalSegments, &meta.CreatedTime, &meta.Status); err != nil {
			return nil, err
		}
		runs = append(runs, meta)
	}
	return runs, rows.Err()
}

// RecordSegment upserts the terminal result for one segment of a run.
func (l *Ledger) RecordSegment(runID string, rec SegmentRecord) error {
	query := `INSERT INTO run_segment (run_id, idx, url, filename, succeeded, attempts, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO UPDATE SET
			succeeded = excluded.succeeded,
			attempts = excluded.attempts,
			last_error = excluded.last_error`
	_, err := l.db.Exec(query, runID, rec.Index, rec.URL, rec.Filename, rec.Succeeded, rec.Attempts, rec.LastError)
	return err
}

// Segments returns every recorded segment result for a run, by index.
func (l *Ledger) Segments(runID string) ([]SegmentRecord, error) {
	query := `SELECT idx, url, filename, succeeded, attempts, COALESCE(last_error, '') FROM run_segment WHERE run_id = ? ORDER BY idx`
	rows, err := l.db.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SegmentRecord
	for rows.Next() {
		var rec SegmentRecord
		if err := rows.Scan(&rec.Index, &rec.URL, &rec.Filename, &rec.Succeeded, &rec.Attempts, &rec.LastError); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountSucceeded counts segments of a run that fetched successfully.
func (l *Ledger) CountSucceeded(runID string) (int, error) {
	query := `SELECT COUNT(*) FROM run_segment WHERE run_id = ? AND succeeded = 1`
	var count int
	err := l.db.QueryRow(query, runID).Scan(&count)
	return count, err
}

// DeleteRun removes a run and its segment rows.
func (l *Ledger) DeleteRun(id string) error {
	if _, err := l.db.Exec(`DELETE FROM run_segment WHERE run_id = ?`, id); err != nil {
		return err
	}
	_, err := l.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	return err
}
