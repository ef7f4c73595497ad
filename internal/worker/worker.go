package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/platform/driver"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/brand"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/lease"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/media"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/schedule"
	"github.com/google/uuid"
)

const (
	DefaultJobTimeout = 30 * time.Minute
	commitTimeout     = 30 * time.Second
	maxLastErrorRunes = 2000
)

// TaskStore is the queue of publish jobs
type TaskStore interface {
	// ListJobs returns a consistent snapshot of all jobs
	ListJobs(ctx context.Context) ([]domain.Job, error)
	// SetStatus writes one transition if the row holds an allowed predecessor status
	SetStatus(ctx context.Context, id string, u domain.StatusUpdate) error
}

// Gate decides whether a job is due
type Gate interface {
	Check(ctx context.Context, job *domain.Job) (schedule.Decision, error)
}

// AccountResolver maps a typed brand name to a platform account
type AccountResolver interface {
	Resolve(name string, platform domain.Platform) (domain.Account, brand.Match, error)
}

// MediaAcquirer fetches job media into a releasable local file
type MediaAcquirer interface {
	Acquire(ctx context.Context, ref string, needPublicURL bool) (*media.Handle, error)
}

// Leaser hands out per-job leases across processes
type Leaser interface {
	Acquire(ctx context.Context, jobID string, ttl time.Duration) (lease.ReleaseFunc, bool, error)
}

// Recorder receives pass and job metrics
type Recorder interface {
	RecordPass(err error)
	RecordJob(status, kind string, d time.Duration)
	RecordSkip(reason string)
	RecordTarget(platform, outcome string)
}

// Config holds worker configuration
type Config struct {
	Logger   *slog.Logger
	Store    TaskStore
	Gate     Gate
	Resolver AccountResolver
	Media    MediaAcquirer
	Drivers  map[domain.Platform]driver.Driver

	// Optional collaborators
	Leaser  Leaser
	Events  EventPublisher
	Metrics Recorder

	FanOut     bool
	JobTimeout time.Duration
	LeaseTTL   time.Duration
}

// Worker runs orchestrator passes over the task store
type Worker struct {
	logger     *slog.Logger
	store      TaskStore
	gate       Gate
	resolver   AccountResolver
	media      MediaAcquirer
	drivers    map[domain.Platform]driver.Driver
	leaser     Leaser
	events     EventPublisher
	metrics    Recorder
	fanOut     bool
	jobTimeout time.Duration
	leaseTTL   time.Duration
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) (*Worker, error) {
	switch {
	case cfg.Store == nil:
		return nil, domain.Errorf(domain.KindConfig, "worker requires a task store")
	case cfg.Gate == nil:
		return nil, domain.Errorf(domain.KindConfig, "worker requires a schedule gate")
	case cfg.Resolver == nil:
		return nil, domain.Errorf(domain.KindConfig, "worker requires a brand resolver")
	case cfg.Media == nil:
		return nil, domain.Errorf(domain.KindConfig, "worker requires a media acquirer")
	case len(cfg.Drivers) == 0:
		return nil, domain.Errorf(domain.KindConfig, "worker requires at least one platform driver")
	}

	w := &Worker{
		logger:     cfg.Logger,
		store:      cfg.Store,
		gate:       cfg.Gate,
		resolver:   cfg.Resolver,
		media:      cfg.Media,
		drivers:    cfg.Drivers,
		leaser:     cfg.Leaser,
		events:     cfg.Events,
		metrics:    cfg.Metrics,
		fanOut:     cfg.FanOut,
		jobTimeout: cfg.JobTimeout,
		leaseTTL:   cfg.LeaseTTL,
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = DefaultJobTimeout
	}
	if w.leaseTTL <= 0 {
		w.leaseTTL = w.jobTimeout + time.Minute
	}

	return w, nil
}

// PassSummary counts what one pass did
type PassSummary struct {
	RunID        string
	Listed       int
	Skipped      map[string]int
	Done         int
	Failed       int
	CommitFailed int
	Duration     time.Duration
}

func (s *PassSummary) skip(reason string) {
	s.Skipped[reason]++
}

// Processed is the number of claimed jobs
func (s *PassSummary) Processed() int {
	return s.Done + s.Failed + s.CommitFailed
}

// Skip reasons
const (
	skipNotPending  = "not_pending"
	skipNotDue      = "not_due"
	skipUnparseable = "unparseable"
	skipLeased      = "leased"
	skipLeaseError  = "lease_error"
	skipClaimed     = "claimed"
	skipClaimError  = "claim_error"
)

// RunPass reads the task store once and processes every due PENDING job in read order.
// Only a store read failure is returned. Job failures are committed to the store.
func (w *Worker) RunPass(ctx context.Context) (*PassSummary, error) {
	start := time.Now()
	summary := &PassSummary{
		RunID:   uuid.New().String(),
		Skipped: make(map[string]int),
	}
	logger := w.logger.With(slog.String("run_id", summary.RunID))

	logger.Info("Starting pass")

	jobs, err := w.store.ListJobs(ctx)
	if err != nil {
		w.recordPass(err)
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	summary.Listed = len(jobs)

	for i := range jobs {
		if ctx.Err() != nil {
			logger.Warn("Pass interrupted",
				slog.Int("remaining", len(jobs)-i),
			)
			break
		}
		w.processJob(ctx, logger, summary, &jobs[i])
	}

	summary.Duration = time.Since(start)
	w.recordPass(nil)

	logger.Info("Pass finished",
		slog.Int("listed", summary.Listed),
		slog.Int("done", summary.Done),
		slog.Int("failed", summary.Failed),
		slog.Int("commit_failed", summary.CommitFailed),
		slog.Any("skipped", summary.Skipped),
		slog.Duration("duration", summary.Duration),
	)

	return summary, nil
}

func (w *Worker) recordPass(err error) {
	if w.metrics != nil {
		w.metrics.RecordPass(err)
	}
}
