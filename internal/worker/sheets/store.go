// Package sheets is a task store backed by one Google Sheets worksheet
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
)

// Store reads jobs from a worksheet and writes status cells back.
// The conditional update re-reads the status cell before writing. Across processes this is
// not atomic, so multi-host deployments pair it with the Redis lease.
type Store struct {
	values Values
	logger *slog.Logger

	// mu serializes status writes within this process
	mu     sync.Mutex
	schema *schema
	rows   map[string]int
}

// New creates a Store over the given worksheet values
func New(values Values, logger *slog.Logger) *Store {
	return &Store{
		values: values,
		logger: logger,
		rows:   make(map[string]int),
	}
}

// ListJobs reads the whole worksheet. Row 1 is the header.
func (s *Store) ListJobs(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.values.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	sch, err := parseHeader(rows[0])
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(rows)-1)
	jobs := make([]domain.Job, 0, len(rows)-1)
	for i, row := range rows[1:] {
		sheetRow := i + 2
		if blankRow(row) {
			continue
		}

		job, err := sch.toJob(row, sheetRow)
		if err != nil {
			s.logger.Warn("Row has no supported platform",
				slog.Int("row", sheetRow),
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}

		if first, dup := index[job.ID]; dup {
			s.logger.Warn("Duplicate job id, row ignored",
				slog.String("job_id", job.ID),
				slog.Int("row", sheetRow),
				slog.Int("first_row", first),
			)
			continue
		}
		index[job.ID] = sheetRow
		jobs = append(jobs, job)
	}

	s.mu.Lock()
	s.schema = sch
	s.rows = index
	s.mu.Unlock()

	return jobs, nil
}

// SetStatus re-reads the job row, checks its status against the allowed predecessors and writes the update
func (s *Store) SetStatus(ctx context.Context, id string, u domain.StatusUpdate) error {
	u = u.Normalized()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schema == nil {
		header, err := s.values.ReadRow(ctx, 1)
		if err != nil {
			return fmt.Errorf("failed to read header: %w", err)
		}
		sch, err := parseHeader(header)
		if err != nil {
			return err
		}
		s.schema = sch
	}

	sheetRow, ok := s.rows[id]
	if !ok {
		n, err := strconv.Atoi(id)
		if err != nil || n < 2 {
			return domain.ErrJobNotFound
		}
		sheetRow = n
	}

	current, err := s.values.ReadRow(ctx, sheetRow)
	if err != nil {
		return fmt.Errorf("failed to read job row: %w", err)
	}
	if blankRow(current) || s.schema.rowID(current, sheetRow) != id {
		return domain.ErrJobNotFound
	}

	from := domain.ParseStatus(s.schema.cell(current, fieldStatus))
	if !domain.CanTransition(from, u.Status) {
		if u.Status == domain.JobStatusProcessing {
			s.logger.Warn("Failed to claim job - already claimed or not pending",
				slog.String("job_id", id),
				slog.String("current_status", string(from)),
			)
			return domain.ErrJobAlreadyClaimed
		}
		return fmt.Errorf("%w: job %s cannot move from %s to %s", domain.ErrStatusConflict, id, from, u.Status)
	}

	if err := s.values.WriteCells(ctx, sheetRow, s.schema.cells(u)); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", id),
		slog.Int("row", sheetRow),
		slog.String("status", string(u.Status)),
	)

	return nil
}
