package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kdimtricp/vtrack/internal/models"
)

var ErrJobNotFound = models.ErrJobNotFound

type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Insert(ctx context.Context, job *models.Job) error {
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, input, status, progress, frames_processed, processing_time, output_url, error, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Kind, job.Input, job.Status, job.Progress, job.FramesProcessed,
		job.ProcessingTime, job.OutputURL, job.Error, job.CreatedAt.UTC(), utcPtr(job.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *models.Job) error {
	res, err := r.db.conn.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = ?, frames_processed = ?, processing_time = ?,
			output_url = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		job.Status, job.Progress, job.FramesProcessed, job.ProcessingTime,
		job.OutputURL, job.Error, utcPtr(job.FinishedAt), job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT id, kind, input, status, progress, frames_processed, processing_time, output_url, error, created_at, finished_at
		FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// List returns the most recent jobs, newest first.
func (r *JobRepository) List(ctx context.Context, limit int) ([]*models.Job, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, kind, input, status, progress, frames_processed, processing_time, output_url, error, created_at, finished_at
		FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var list []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		list = append(list, job)
	}
	return list, rows.Err()
}

// MarkInterrupted fails every job that was still pending or in progress when
// the previous process exited.
func (r *JobRepository) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := r.db.conn.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', error = 'interrupted by server restart', finished_at = ?
		WHERE status IN ('pending', 'in_progress')`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*models.Job, error) {
	var job models.Job
	var outputURL sql.NullString
	var finishedAt sql.NullTime
	err := s.Scan(&job.ID, &job.Kind, &job.Input, &job.Status, &job.Progress, &job.FramesProcessed,
		&job.ProcessingTime, &outputURL, &job.Error, &job.CreatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if outputURL.Valid {
		job.OutputURL = &outputURL.String
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	return &job, nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
