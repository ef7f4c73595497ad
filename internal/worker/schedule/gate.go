package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
)

// DefaultTimezone is the operator locale the queue is typed in
const DefaultTimezone = "Asia/Kolkata"

// Clock abstracts time for the gate
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock
var SystemClock Clock = systemClock{}

// Decision is the gate's verdict for one job
type Decision int

const (
	NotDue Decision = iota
	Due
	Unparseable
)

func (d Decision) String() string {
	switch d {
	case Due:
		return "due"
	case Unparseable:
		return "unparseable"
	default:
		return "not_due"
	}
}

// Config holds schedule gate configuration
type Config struct {
	Logger        *slog.Logger
	Location      *time.Location
	DateOrder     DateOrder
	WaitThreshold time.Duration
	Clock         Clock
}

// Gate decides whether a job's target time has arrived
type Gate struct {
	logger        *slog.Logger
	parser        *Parser
	waitThreshold time.Duration
	clock         Clock
}

// NewGate creates a new schedule gate
func NewGate(cfg *Config) *Gate {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		logger:        logger.With(slog.String("component", "schedule_gate")),
		parser:        NewParser(cfg.Location, cfg.DateOrder),
		waitThreshold: cfg.WaitThreshold,
		clock:         clock,
	}
}

// LoadLocation resolves a timezone name, defaulting to the operator locale
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", name, err)
	}
	return loc, nil
}

// ScheduledAt parses the job's schedule cells
func (g *Gate) ScheduledAt(job *domain.Job) (time.Time, error) {
	return g.parser.Parse(job.ScheduledDate, job.ScheduledTime)
}

// Check returns Due when the job should run now. If the target is within the wait
// threshold it blocks until the target instant. An error is only returned when ctx ends
// during that wait.
func (g *Gate) Check(ctx context.Context, job *domain.Job) (Decision, error) {
	scheduledAt, err := g.ScheduledAt(job)
	if err != nil {
		g.logger.Warn("Unparseable schedule, job left for inspection",
			slog.String("job_id", job.ID),
			slog.String("date", job.ScheduledDate),
			slog.String("time", job.ScheduledTime),
			slog.String("error", err.Error()),
		)
		return Unparseable, nil
	}

	diff := scheduledAt.Sub(g.clock.Now())

	if diff <= 0 {
		return Due, nil
	}

	if diff > g.waitThreshold {
		g.logger.Debug("Job not due yet",
			slog.String("job_id", job.ID),
			slog.Time("scheduled_at", scheduledAt),
			slog.Duration("remaining", diff),
		)
		return NotDue, nil
	}

	g.logger.Info("Job imminent, waiting for exact time",
		slog.String("job_id", job.ID),
		slog.Time("scheduled_at", scheduledAt),
		slog.Duration("wait", diff),
	)

	select {
	case <-g.clock.After(diff):
		return Due, nil
	case <-ctx.Done():
		return NotDue, fmt.Errorf("schedule wait interrupted: %w", ctx.Err())
	}
}
