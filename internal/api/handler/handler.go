package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/publish-orchestrator/internal/api/model"
	"github.com/cuongbtq/publish-orchestrator/internal/api/storage"
	"github.com/cuongbtq/publish-orchestrator/internal/metrics"
)

// JobStore is the persistence the operator API needs
type JobStore interface {
	GetJobByID(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error)
	ResetJob(ctx context.Context, jobID string) (*model.Job, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Store       JobStore
	Metrics     *metrics.Metrics              // optional
	HealthCheck func(ctx context.Context) error // optional
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	store  JobStore
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		store:  deps.Store,
	}
}
