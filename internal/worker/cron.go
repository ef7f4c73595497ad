package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultCron runs a pass every five minutes
const DefaultCron = "*/5 * * * *"

// Scheduler triggers passes from a cron expression. A tick that fires while the previous
// pass is still running is skipped.
type Scheduler struct {
	runner PassRunner
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
}

// NewScheduler creates a cron scheduler for spec
func NewScheduler(runner PassRunner, spec string, logger *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultCron
	}

	logger = logger.With(slog.String("component", "scheduler"))
	cl := cronLogger{logger: logger}

	// standard 5-field format plus descriptors such as @every 1m
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s := &Scheduler{
		runner: runner,
		cron:   c,
		logger: logger,
		ctx:    context.Background(),
	}

	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	return s, nil
}

// Start begins firing passes. Passes run with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("Scheduler started",
		slog.Time("next_run", s.cron.Entries()[0].Next),
	)
}

// Stop prevents new passes. The returned context is done once a running pass finishes.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("Stopping scheduler")
	return s.cron.Stop()
}

func (s *Scheduler) tick() {
	if s.ctx.Err() != nil {
		return
	}
	if _, err := s.runner.RunPass(s.ctx); err != nil {
		s.logger.Error("Scheduled pass failed",
			slog.String("error", err.Error()),
		)
	}
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
