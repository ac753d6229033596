package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/STRATINT/mentionwatch/internal/models"
)

// RunRepository keeps the history of finished collection runs.
type RunRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewRunRepository creates a run history repository for db.
func NewRunRepository(db *sql.DB, dialect Dialect) *RunRepository {
	return &RunRepository{db: db, dialect: dialect}
}

// Record stores a finished run.
func (r *RunRepository) Record(ctx context.Context, report models.RunReport) error {
	if report.RunID == "" {
		report.RunID = uuid.New().String()
	}
	if report.FinishedAt.IsZero() {
		report.FinishedAt = time.Now()
	}

	query := bindQuery(r.dialect, `
		INSERT INTO collection_runs (
			id, handle, trigger_source, status, window_start, window_end,
			pages, fetched, stored, skipped_duplicates, skipped_malformed, failed_writes,
			error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		report.RunID,
		report.Handle,
		report.Trigger,
		string(report.Status),
		report.WindowStart.UTC(),
		report.WindowEnd.UTC(),
		report.Pages,
		report.Fetched,
		report.Stored,
		report.SkippedDuplicates,
		report.SkippedMalformed,
		report.FailedWrites,
		report.Error,
		report.StartedAt.UTC(),
		report.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", report.RunID, err)
	}
	return nil
}

// List returns up to limit runs, most recent first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]models.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 1000 {
		limit = 1000
	}

	query := bindQuery(r.dialect, `
		SELECT id, handle, trigger_source, status, window_start, window_end,
			pages, fetched, stored, skipped_duplicates, skipped_malformed, failed_writes,
			error, started_at, finished_at
		FROM collection_runs
		ORDER BY started_at DESC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.RunReport{}
	for rows.Next() {
		var (
			report models.RunReport
			status string
		)
		err := rows.Scan(
			&report.RunID,
			&report.Handle,
			&report.Trigger,
			&status,
			&report.WindowStart,
			&report.WindowEnd,
			&report.Pages,
			&report.Fetched,
			&report.Stored,
			&report.SkippedDuplicates,
			&report.SkippedMalformed,
			&report.FailedWrites,
			&report.Error,
			&report.StartedAt,
			&report.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		report.Status = models.RunStatus(status)
		report.WindowStart = report.WindowStart.UTC()
		report.WindowEnd = report.WindowEnd.UTC()
		report.StartedAt = report.StartedAt.UTC()
		report.FinishedAt = report.FinishedAt.UTC()
		runs = append(runs, report)
	}

	return runs, rows.Err()
}

// DeleteOlderThan deletes runs that started before now minus age.
func (r *RunRepository) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	query := bindQuery(r.dialect, `DELETE FROM collection_runs WHERE started_at < ?`)
	cutoff := time.Now().Add(-age).UTC()

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	return result.RowsAffected()
}
