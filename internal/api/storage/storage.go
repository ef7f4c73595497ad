package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/api/model"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	id, platforms, brand_name, media_ref, title, description, tags,
	scheduled_date, scheduled_time, status, result_link, last_error, duration_ms,
	claimed_at, completed_at, created_at, updated_at`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		db: db,
	}
}

func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	query := `SELECT` + jobColumns + `
		FROM publish_jobs
		WHERE id = $1
	`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	Status   string
	Platform string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs, newest first
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT` + jobColumns + `
		FROM publish_jobs
		WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	// platforms is free text such as "Instagram + Facebook"
	if filter.Platform != "" {
		query += fmt.Sprintf(" AND platforms ILIKE '%%' || $%d || '%%'", argIdx)
		args = append(args, filter.Platform)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// ResetJob moves a FAILED job back to PENDING and clears its previous outcome.
// It returns domain.ErrJobNotFound or a domain.ErrStatusConflict for any other status.
func (s *Storage) ResetJob(ctx context.Context, jobID string) (*model.Job, error) {
	query := `
		UPDATE publish_jobs
		SET status = $2,
		    result_link = NULL,
		    last_error = NULL,
		    duration_ms = NULL,
		    claimed_at = NULL,
		    completed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = $3
		RETURNING` + jobColumns

	var job model.Job
	err := s.db.GetContext(ctx, &job, query,
		jobID,
		string(domain.JobStatusPending),
		string(domain.JobStatusFailed),
	)
	if err == nil {
		return &job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to reset job: %w", err)
	}

	var current string
	err = s.db.GetContext(ctx, &current, `SELECT status FROM publish_jobs WHERE id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to read job status: %w", err)
	}

	return nil, fmt.Errorf("%w: job %s is %s, only FAILED jobs can be reset", domain.ErrStatusConflict, jobID, current)
}
