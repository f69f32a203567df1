package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func nowMillis() int64 { return time.Now().UnixMilli() }

// StartRun inserts a running run and returns its new ID.
func (l *Ledger) StartRun(r Run) (string, error) {
	id := uuid.NewString()
	_, err := l.conn.Exec(`
		INSERT INTO runs (id, out_name, image, weight, filter, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, r.OutName, r.Image, r.Weight, r.Filter, StatusRunning, nowMillis())
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run. failedStage and errMsg are stored only when non-empty.
func (l *Ledger) FinishRun(id, status, failedStage, errMsg string, finalRows int) error {
	var rows interface{}
	if status == StatusSucceeded {
		rows = finalRows
	}
	res, err := l.conn.Exec(`
		UPDATE runs SET status = ?, failed_stage = ?, error = ?, final_rows = ?, finished_at = ?
		WHERE id = ?
	`, status, nullString(failedStage), nullString(errMsg), rows, nowMillis(), id)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run %s: no such run", id)
	}
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// RecordStage appends a stage to a run, numbering it after the previous one.
func (l *Ledger) RecordStage(runID string, s Stage) error {
	_, err := l.conn.Exec(`
		INSERT INTO stages (run_id, seq, stage, path, rows, sha256, duration_ms, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM stages WHERE run_id = ?), ?, ?, ?, ?, ?, ?)
	`, runID, runID, s.Stage, s.Path, s.Rows, s.SHA256, s.DurationMS, nowMillis())
	if err != nil {
		return fmt.Errorf("recording stage %s: %w", s.Stage, err)
	}
	return nil
}

// RecordDeletions stores the objects removed by a stage in one transaction.
func (l *Ledger) RecordDeletions(runID string, ds []Deletion) error {
	if len(ds) == 0 {
		return nil
	}
	tx, err := l.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO deletions (run_id, stage, number, reason, source, catalog)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing deletion insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range ds {
		if _, err := stmt.Exec(runID, d.Stage, d.Number, d.Reason, d.Source, d.Catalog); err != nil {
			return fmt.Errorf("recording deletion of %d: %w", d.Number, err)
		}
	}
	return tx.Commit()
}

// scanRun scans a row with the columns of runColumns.
func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var r Run
	var finalRows sql.NullInt64
	err := scanner.Scan(
		&r.ID, &r.OutName, &r.Image, &r.Weight, &r.Filter, &r.Status,
		&r.Error, &r.FailedStage, &finalRows, &r.StartedAt, &r.FinishedAt,
	)
	if finalRows.Valid {
		n := int(finalRows.Int64)
		r.FinalRows = &n
	}
	return r, err
}

const runColumns = `id, out_name, image, weight, filter, status, error, failed_stage, final_rows, started_at, finished_at`

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (l *Ledger) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.conn.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ErrNotFound is returned when no run matches.
var ErrNotFound = errors.New("run not found")

// GetRun returns the run whose ID starts with prefix. An ambiguous prefix is an error.
func (l *Ledger) GetRun(prefix string) (*Run, error) {
	rows, err := l.conn.Query(`SELECT `+runColumns+` FROM runs WHERE id LIKE ? LIMIT 2`, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("run prefix %q is ambiguous", prefix)
	}
}

// Stages returns a run's stages in execution order.
func (l *Ledger) Stages(runID string) ([]Stage, error) {
	rows, err := l.conn.Query(`
		SELECT seq, stage, path, rows, sha256, duration_ms, created_at
		FROM stages WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stage
	for rows.Next() {
		var s Stage
		if err := rows.Scan(&s.Seq, &s.Stage, &s.Path, &s.Rows, &s.SHA256, &s.DurationMS, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Deletions returns a run's deleted objects in insertion order.
func (l *Ledger) Deletions(runID string) ([]Deletion, error) {
	rows, err := l.conn.Query(`
		SELECT stage, number, reason, source, catalog
		FROM deletions WHERE run_id = ? ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Deletion
	for rows.Next() {
		var d Deletion
		if err := rows.Scan(&d.Stage, &d.Number, &d.Reason, &d.Source, &d.Catalog); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
