package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/platform/driver"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/schedule"
)

// target is one platform upload of a job
type target struct {
	platform domain.Platform
	account  domain.Account
	driver   driver.Driver
}

// targetResult is the outcome of one target upload
type targetResult struct {
	platform domain.Platform
	location string
	err      error
}

// processJob takes one job from PENDING through claim, execution and a single commit
func (w *Worker) processJob(ctx context.Context, logger *slog.Logger, summary *PassSummary, job *domain.Job) {
	logger = logger.With(
		slog.String("job_id", job.ID),
		slog.String("brand", job.BrandName),
		slog.String("platform", domain.FormatPlatforms(job.Platforms)),
	)

	if job.Status != domain.JobStatusPending {
		w.skip(summary, skipNotPending)
		return
	}

	decision, err := w.gate.Check(ctx, job)
	if err != nil {
		logger.Warn("Schedule wait interrupted",
			slog.String("error", err.Error()),
		)
		w.skip(summary, skipNotDue)
		return
	}
	switch decision {
	case schedule.Due:
	case schedule.Unparseable:
		w.skip(summary, skipUnparseable)
		return
	default:
		w.skip(summary, skipNotDue)
		return
	}

	// Step 1: Take the cross-process lease when configured
	if w.leaser != nil {
		release, ok, err := w.leaser.Acquire(ctx, job.ID, w.leaseTTL)
		if err != nil {
			logger.Error("Failed to acquire job lease",
				slog.String("error", err.Error()),
			)
			w.skip(summary, skipLeaseError)
			return
		}
		if !ok {
			logger.Info("Job leased by another worker, skipping")
			w.skip(summary, skipLeased)
			return
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				logger.Warn("Failed to release job lease",
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	// Step 2: Claim job in the task store (PENDING → PROCESSING)
	if err := w.store.SetStatus(ctx, job.ID, domain.StatusUpdate{Status: domain.JobStatusProcessing}); err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			logger.Warn("Job already claimed, skipping")
			w.skip(summary, skipClaimed)
			return
		}
		logger.Error("Failed to claim job",
			slog.String("error", err.Error()),
		)
		w.skip(summary, skipClaimError)
		return
	}

	logger.Info("Job claimed")
	start := time.Now()

	// Step 3: Execute under the job deadline
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	results, err := w.execute(jobCtx, logger, job)
	cancel()

	// Step 4: Commit exactly once, detached from the job deadline
	update := buildUpdate(results, err)
	update.Duration = time.Since(start)

	commitCtx, cancelCommit := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancelCommit()

	if err := w.store.SetStatus(commitCtx, job.ID, update); err != nil {
		logger.Error("Failed to commit job outcome, job left PROCESSING",
			slog.String("status", string(update.Status)),
			slog.String("error", err.Error()),
		)
		summary.CommitFailed++
		return
	}

	kind := ""
	if update.Status == domain.JobStatusDone {
		summary.Done++
		logger.Info("Job published",
			slog.String("result_link", update.ResultLink),
			slog.Duration("duration", update.Duration),
		)
	} else {
		summary.Failed++
		kind = string(failureKind(results, err))
		logger.Error("Job failed",
			slog.String("kind", kind),
			slog.String("last_error", update.LastError),
			slog.Duration("duration", update.Duration),
		)
	}

	if w.metrics != nil {
		w.metrics.RecordJob(string(update.Status), kind, update.Duration)
	}
	w.publishOutcome(commitCtx, logger, summary.RunID, job, update)
}

func (w *Worker) skip(summary *PassSummary, reason string) {
	summary.skip(reason)
	if w.metrics != nil {
		w.metrics.RecordSkip(reason)
	}
}

// execute resolves accounts, acquires media once and runs every target driver.
// A panic becomes a typed error for the stage it happened in. Deferred releases still run.
func (w *Worker) execute(ctx context.Context, logger *slog.Logger, job *domain.Job) (results []targetResult, err error) {
	stage := domain.KindUnresolvedAccount
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked",
				slog.String("stage", string(stage)),
				slog.Any("panic", r),
			)
			results = nil
			err = domain.Errorf(stage, "panic: %v", r)
		}
	}()

	if len(job.Platforms) == 0 {
		return nil, domain.Errorf(domain.KindUnresolvedAccount, "job names no supported platform")
	}

	// Step 1: Resolve every target before touching media
	targets := make([]target, 0, len(job.Platforms))
	needPublicURL := false
	for _, p := range job.Platforms {
		account, match, err := w.resolver.Resolve(job.BrandName, p)
		if err != nil {
			return nil, err
		}
		d, ok := w.drivers[p]
		if !ok {
			return nil, domain.Errorf(domain.KindConfig, "no driver registered for %s", p)
		}

		logger.Info("Account resolved",
			slog.String("target", string(p)),
			slog.String("match", match.String()),
			slog.Any("account", account),
		)

		targets = append(targets, target{platform: p, account: account, driver: d})
		needPublicURL = needPublicURL || d.NeedsPublicURL()
	}

	// Step 2: Acquire media once for all targets
	stage = domain.KindMediaUnavailable
	handle, err := w.media.Acquire(ctx, job.MediaRef, needPublicURL)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	// Step 3: Upload
	stage = domain.KindUploadRejected
	return w.runTargets(ctx, logger, job, targets, handle.MediaHandle), nil
}

// buildUpdate turns an execution outcome into the commit write.
// DONE requires every target to succeed.
func buildUpdate(results []targetResult, err error) domain.StatusUpdate {
	if err != nil {
		return domain.StatusUpdate{
			Status:    domain.JobStatusFailed,
			LastError: domain.Truncate(describe(err), maxLastErrorRunes),
		}
	}

	var links, failed, published []string
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, fmt.Sprintf("%s failed (%s)", r.platform, describe(r.err)))
			continue
		}
		links = append(links, r.location)
		published = append(published, fmt.Sprintf("%s published %s", r.platform, r.location))
	}

	if len(failed) == 0 {
		return domain.StatusUpdate{
			Status:     domain.JobStatusDone,
			ResultLink: strings.Join(links, " "),
		}
	}

	var lastError string
	if len(results) == 1 {
		lastError = describe(results[0].err)
	} else {
		kind := failureKind(results, nil)
		lastError = fmt.Sprintf("%s: %s", kind, strings.Join(append(failed, published...), "; "))
	}

	return domain.StatusUpdate{
		Status:    domain.JobStatusFailed,
		LastError: domain.Truncate(lastError, maxLastErrorRunes),
	}
}

// failureKind is the kind of the job error or of the first failed target
func failureKind(results []targetResult, err error) domain.Kind {
	if err != nil {
		return kindOf(err)
	}
	for _, r := range results {
		if r.err != nil {
			return kindOf(r.err)
		}
	}
	return ""
}

// kindOf matches every failure kind. Untyped errors count as UploadRejected.
func kindOf(err error) domain.Kind {
	switch k := domain.KindOf(err); k {
	case domain.KindConfig,
		domain.KindUnresolvedAccount,
		domain.KindMediaUnavailable,
		domain.KindMediaInvalid,
		domain.KindUploadRejected,
		domain.KindProcessingTimeout,
		domain.KindPublishRejected:
		return k
	default:
		return domain.KindUploadRejected
	}
}

// describe renders err as "<Kind>: <message>"
func describe(err error) string {
	var typed *domain.Error
	if errors.As(err, &typed) {
		return typed.Error()
	}
	return fmt.Sprintf("%s: %s", kindOf(err), err.Error())
}
