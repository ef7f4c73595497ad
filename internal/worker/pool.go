package worker

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"golang.org/x/sync/errgroup"
)

// runTargets uploads to every target. Targets run one after another unless fan-out is
// enabled and the job has more than one. A failed target never stops its siblings.
func (w *Worker) runTargets(ctx context.Context, logger *slog.Logger, job *domain.Job, targets []target, media domain.MediaHandle) []targetResult {
	results := make([]targetResult, len(targets))
	caption := job.Caption()

	if !w.fanOut || len(targets) < 2 {
		for i, t := range targets {
			results[i] = w.upload(ctx, logger, t, media, caption)
		}
		return results
	}

	logger.Info("Fanning out targets",
		slog.Int("targets", len(targets)),
	)

	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			results[i] = w.upload(ctx, logger, t, media, caption)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// upload runs one driver and recovers its panics
func (w *Worker) upload(ctx context.Context, logger *slog.Logger, t target, media domain.MediaHandle, caption domain.Caption) (result targetResult) {
	logger = logger.With(slog.String("target", string(t.platform)))
	result.platform = t.platform

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Driver panicked",
				slog.Any("panic", r),
			)
			result.location = ""
			result.err = domain.Errorf(domain.KindUploadRejected, "panic: %v", r)
		}

		outcome := "published"
		if result.err != nil {
			outcome = string(kindOf(result.err))
		}
		if w.metrics != nil {
			w.metrics.RecordTarget(string(t.platform), outcome)
		}
	}()

	logger.Info("Uploading to platform")

	location, err := t.driver.Upload(ctx, t.account, media, caption)
	if err != nil {
		logger.Error("Platform upload failed",
			slog.String("kind", string(kindOf(err))),
			slog.String("error", err.Error()),
		)
		result.err = err
		return result
	}

	logger.Info("Platform upload published",
		slog.String("location", location),
	)
	result.location = location
	return result
}
