package db

import (
	"context"
	"fmt"

	"github.com/conveyor-ci/conveyor/internal/history"
)

// RunRow is a summary row from the pipeline_runs table.
type RunRow struct {
	ID         string
	Pipeline   string
	Status     string
	StartedAt  string
	FinishedAt string
}

// RecordRun inserts a run and its step results in one transaction.
func (d *DB) RecordRun(ctx context.Context, run *history.Run) error {
	if run.Result == nil {
		return fmt.Errorf("run %s has no result", run.ID)
	}
	res := run.Result

	tx, err := d.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO pipeline_runs (id, pipeline, status, timed_out, images, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Pipeline, run.Status, res.TimedOut, res.Images, res.StartedAt, res.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for i, sr := range res.Steps {
		var started, finished interface{}
		if !sr.StartedAt.IsZero() {
			started = sr.StartedAt
		}
		if !sr.FinishedAt.IsZero() {
			finished = sr.FinishedAt
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO step_results (run_id, position, step_id, image, status, exit_code, started_at, finished_at, error)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			run.ID, i, sr.ID, sr.Image, string(sr.Status), sr.ExitCode, started, finished, sr.Error,
		)
		if err != nil {
			return fmt.Errorf("insert step %d of run %s: %w", i, run.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// ListRuns returns recent runs, newest first, optionally filtered by status.
func (d *DB) ListRuns(ctx context.Context, statusFilter string, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, pipeline, status, started_at::text, finished_at::text
	          FROM pipeline_runs`
	args := []interface{}{}
	if statusFilter != "" {
		query += ` WHERE status = $1`
		args = append(args, statusFilter)
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT %d`, limit)

	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.ID, &r.Pipeline, &r.Status, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
