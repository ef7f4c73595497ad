package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
)

// DefaultEventPrefix is the routing key prefix of outcome events
const DefaultEventPrefix = "publish.job"

// OutcomeEvent is published after every committed job
type OutcomeEvent struct {
	RunID      string    `json:"run_id"`
	JobID      string    `json:"job_id"`
	Status     string    `json:"status"`
	Platforms  []string  `json:"platforms"`
	ResultLink string    `json:"result_link,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher delivers outcome events
type EventPublisher interface {
	PublishOutcome(ctx context.Context, event OutcomeEvent) error
}

// MessagePublisher sends a message body under a routing key
type MessagePublisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// BrokerEvents publishes outcome events as JSON to "<prefix>.done" or "<prefix>.failed"
type BrokerEvents struct {
	publisher MessagePublisher
	prefix    string
}

// NewBrokerEvents creates an EventPublisher on top of a message broker
func NewBrokerEvents(publisher MessagePublisher, prefix string) *BrokerEvents {
	if prefix == "" {
		prefix = DefaultEventPrefix
	}
	return &BrokerEvents{
		publisher: publisher,
		prefix:    strings.TrimSuffix(prefix, "."),
	}
}

// RoutingKey returns the routing key used for a final status
func (e *BrokerEvents) RoutingKey(status string) string {
	return e.prefix + "." + strings.ToLower(status)
}

func (e *BrokerEvents) PublishOutcome(ctx context.Context, event OutcomeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome event: %w", err)
	}

	if err := e.publisher.PublishWithRetry(ctx, e.RoutingKey(event.Status), body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish outcome event: %w", err)
	}
	return nil
}

// publishOutcome sends the event for a committed job. Failures are only logged.
func (w *Worker) publishOutcome(ctx context.Context, logger *slog.Logger, runID string, job *domain.Job, update domain.StatusUpdate) {
	if w.events == nil {
		return
	}

	platforms := make([]string, len(job.Platforms))
	for i, p := range job.Platforms {
		platforms[i] = string(p)
	}

	event := OutcomeEvent{
		RunID:      runID,
		JobID:      job.ID,
		Status:     string(update.Status),
		Platforms:  platforms,
		ResultLink: update.ResultLink,
		LastError:  update.LastError,
		DurationMS: update.Duration.Milliseconds(),
		OccurredAt: time.Now().UTC(),
	}

	if err := w.events.PublishOutcome(ctx, event); err != nil {
		logger.Warn("Failed to publish outcome event",
			slog.String("error", err.Error()),
		)
	}
}
