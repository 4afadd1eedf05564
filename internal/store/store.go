// Package store archives run outcomes and rendered reports in Postgres.
// Collected source data is never read back into a later run; the archive is
// for serving and auditing finished reports only.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jaehyun-park/krdaily/internal/executor"
)

// Store wraps the Postgres connection.
type Store struct {
	DB *sql.DB
}

// Run statuses persisted for report runs.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// RunRecord is one archived report run.
type RunRecord struct {
	ID         string
	ReportDate time.Time
	Status     string
	Cues       []string
	Retained   int
	Dropped    int
	Failures   []executor.StepFailure
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// ReportRecord is one archived rendered report.
type ReportRecord struct {
	RunID      string
	ReportDate time.Time
	Rendered   string
	Prompt     json.RawMessage
	CreatedAt  time.Time
}

// NewWithDSN opens and pings a Postgres connection.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// CreateRun inserts a running report run.
func (s *Store) CreateRun(ctx context.Context, runID string, reportDate time.Time, cues []string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO runs (id, report_date, status, cues, created_at) VALUES ($1, $2, $3, $4, now())`,
		runID, reportDate, RunStatusRunning, pq.Array(cues))
	return err
}

// FinishRun records the outcome of a run together with its gate diagnostics.
func (s *Store) FinishRun(ctx context.Context, runID, status string, retained, dropped int, failures []executor.StepFailure) error {
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`UPDATE runs SET status = $2, retained = $3, dropped = $4, failures = $5, finished_at = now() WHERE id = $1`,
		runID, status, retained, dropped, failuresJSON)
	return err
}

// SaveReport archives a rendered report and its LLM prompt payload.
func (s *Store) SaveReport(ctx context.Context, runID string, reportDate time.Time, rendered string, prompt interface{}) error {
	promptJSON, err := json.Marshal(prompt)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO reports (run_id, report_date, rendered, prompt, created_at) VALUES ($1, $2, $3, $4, now())`,
		runID, reportDate, rendered, promptJSON)
	return err
}

// LatestReport returns the most recent archived report for a date.
func (s *Store) LatestReport(ctx context.Context, reportDate time.Time) (ReportRecord, bool, error) {
	var rec ReportRecord
	err := s.DB.QueryRowContext(ctx,
		`SELECT run_id, report_date, rendered, prompt, created_at
           FROM reports WHERE report_date = $1
          ORDER BY created_at DESC LIMIT 1`,
		reportDate).Scan(&rec.RunID, &rec.ReportDate, &rec.Rendered, &rec.Prompt, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return ReportRecord{}, false, nil
	}
	if err != nil {
		return ReportRecord{}, false, err
	}
	return rec, true, nil
}

// ListRuns returns recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, report_date, status, cues, retained, dropped, failures, created_at, finished_at
           FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var failuresJSON []byte
		if err := rows.Scan(&rec.ID, &rec.ReportDate, &rec.Status, pq.Array(&rec.Cues),
			&rec.Retained, &rec.Dropped, &failuresJSON, &rec.CreatedAt, &rec.FinishedAt); err != nil {
			return nil, err
		}
		if len(failuresJSON) > 0 {
			if err := json.Unmarshal(failuresJSON, &rec.Failures); err != nil {
				return nil, fmt.Errorf("decode run failures: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestRunTime returns when the most recent run started, if any.
func (s *Store) LatestRunTime(ctx context.Context) (*time.Time, error) {
	var ts time.Time
	err := s.DB.QueryRowContext(ctx, `SELECT created_at FROM runs ORDER BY created_at DESC LIMIT 1`).Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ts, nil
}
