// Package memstore is an in-memory task store for tests and dry runs
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
)

// Store keeps jobs in insertion order behind a mutex
type Store struct {
	mu     sync.Mutex
	order  []string
	jobs   map[string]domain.Job
	writes []Write
}

// Write records one successful SetStatus call
type Write struct {
	ID     string
	Update domain.StatusUpdate
}

// New creates a store seeded with jobs
func New(jobs ...domain.Job) *Store {
	s := &Store{jobs: make(map[string]domain.Job, len(jobs))}
	for _, j := range jobs {
		s.Add(j)
	}
	return s
}

// Add inserts or replaces a job
func (s *Store) Add(job domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		s.order = append(s.order, job.ID)
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	s.jobs[job.ID] = job
}

// ListJobs returns copies of all jobs in insertion order
func (s *Store) ListJobs(ctx context.Context) ([]domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]domain.Job, 0, len(s.order))
	for _, id := range s.order {
		j := s.jobs[id]
		j.Platforms = append([]domain.Platform(nil), j.Platforms...)
		j.Tags = append([]string(nil), j.Tags...)
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// SetStatus applies the update only when the stored status is an allowed predecessor
func (s *Store) SetStatus(ctx context.Context, id string, u domain.StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u = u.Normalized()

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}

	if !domain.CanTransition(job.Status, u.Status) {
		if u.Status == domain.JobStatusProcessing {
			return domain.ErrJobAlreadyClaimed
		}
		return fmt.Errorf("%w: job %s cannot move from %s to %s", domain.ErrStatusConflict, id, job.Status, u.Status)
	}

	job.Status = u.Status
	job.ResultLink = u.ResultLink
	job.LastError = u.LastError
	if u.Duration > 0 {
		job.Duration = u.Duration
	}
	s.jobs[id] = job
	s.writes = append(s.writes, Write{ID: id, Update: u})

	return nil
}

// Get returns the current state of a job
func (s *Store) Get(id string) (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	return j, ok
}

// Writes returns every applied status write in order
func (s *Store) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Write(nil), s.writes...)
}
