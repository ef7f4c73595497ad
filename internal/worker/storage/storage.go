package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Storage is the PostgreSQL task store over the publish_jobs table
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

type jobRow struct {
	ID            string         `db:"id"`
	Platforms     string         `db:"platforms"`
	BrandName     string         `db:"brand_name"`
	MediaRef      string         `db:"media_ref"`
	Title         string         `db:"title"`
	Description   string         `db:"description"`
	Tags          string         `db:"tags"`
	ScheduledDate string         `db:"scheduled_date"`
	ScheduledTime string         `db:"scheduled_time"`
	Status        string         `db:"status"`
	ResultLink    sql.NullString `db:"result_link"`
	LastError     sql.NullString `db:"last_error"`
	DurationMS    sql.NullInt64  `db:"duration_ms"`
}

func (r *jobRow) toDomain(logger *slog.Logger) domain.Job {
	job := domain.Job{
		ID:            r.ID,
		BrandName:     r.BrandName,
		MediaRef:      r.MediaRef,
		Title:         r.Title,
		Description:   r.Description,
		Tags:          domain.ParseTags(r.Tags),
		ScheduledDate: r.ScheduledDate,
		ScheduledTime: r.ScheduledTime,
		Status:        domain.ParseStatus(r.Status),
		ResultLink:    r.ResultLink.String,
		LastError:     r.LastError.String,
	}
	if r.DurationMS.Valid {
		job.Duration = time.Duration(r.DurationMS.Int64) * time.Millisecond
	}

	platforms, err := domain.ParsePlatforms(r.Platforms)
	if err != nil {
		logger.Warn("Job has no supported platform",
			slog.String("job_id", r.ID),
			slog.String("platforms", r.Platforms),
			slog.String("error", err.Error()),
		)
	}
	job.Platforms = platforms

	return job
}

// ListJobs returns a snapshot of every job in creation order
func (s *Storage) ListJobs(ctx context.Context) ([]domain.Job, error) {
	query := `
		SELECT id, platforms, brand_name, media_ref, title, description, tags,
		       scheduled_date, scheduled_time, status, result_link, last_error, duration_ms
		FROM publish_jobs
		ORDER BY created_at ASC, id ASC
	`

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]domain.Job, len(rows))
	for i := range rows {
		jobs[i] = rows[i].toDomain(s.logger)
	}

	return jobs, nil
}

// SetStatus writes a status transition only if the row still holds an allowed predecessor status.
// Claims that lose the race return domain.ErrJobAlreadyClaimed, other lost writes domain.ErrStatusConflict.
func (s *Storage) SetStatus(ctx context.Context, id string, u domain.StatusUpdate) error {
	u = u.Normalized()

	from := domain.AllowedFrom(u.Status)
	if len(from) == 0 {
		return fmt.Errorf("no transition leads to status %s", u.Status)
	}
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}

	var duration sql.NullInt64
	if u.Duration > 0 {
		duration = sql.NullInt64{Int64: u.Duration.Milliseconds(), Valid: true}
	}

	query := `
		UPDATE publish_jobs
		SET status = $2::text,
		    result_link = $3,
		    last_error = $4,
		    duration_ms = COALESCE($5, duration_ms),
		    claimed_at = CASE WHEN $2::text = $7::text THEN NOW() ELSE claimed_at END,
		    completed_at = CASE
		        WHEN $2::text IN ($8::text, $9::text) THEN NOW()
		        ELSE NULL
		    END,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = ANY($6::text[])
		RETURNING id
	`

	var updated string
	err := s.db.QueryRowContext(ctx, query,
		id,
		string(u.Status),
		u.ResultLink,
		u.LastError,
		duration,
		pq.Array(allowed),
		string(domain.JobStatusProcessing),
		string(domain.JobStatusDone),
		string(domain.JobStatusFailed),
	).Scan(&updated)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.conflict(ctx, id, u.Status)
		}
		return fmt.Errorf("failed to update job status: %w", err)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", id),
		slog.String("status", string(u.Status)),
	)

	return nil
}

// conflict explains why a conditional update touched no row
func (s *Storage) conflict(ctx context.Context, id string, to domain.Status) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM publish_jobs WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrJobNotFound
		}
		return fmt.Errorf("failed to read job status: %w", err)
	}

	if to == domain.JobStatusProcessing {
		s.logger.Warn("Failed to claim job - already claimed or not pending",
			slog.String("job_id", id),
			slog.String("current_status", current),
		)
		return domain.ErrJobAlreadyClaimed
	}

	return fmt.Errorf("%w: job %s cannot move from %s to %s", domain.ErrStatusConflict, id,
		strings.ToUpper(current), to)
}
