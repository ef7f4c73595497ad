package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// PassRunner runs one orchestrator pass
type PassRunner interface {
	RunPass(ctx context.Context) (*PassSummary, error)
}

// DeliverySource opens a manual-ack delivery stream
type DeliverySource interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// TriggerMessage asks the publisher to run a pass
type TriggerMessage struct {
	TriggerID string `json:"trigger_id"`
	Reason    string `json:"reason,omitempty"`
}

// Consumer runs one pass per trigger message, one message at a time
type Consumer struct {
	runner        PassRunner
	source        DeliverySource
	logger        *slog.Logger
	consumerTag   string
	prefetchCount int
}

// NewConsumer creates a trigger consumer
func NewConsumer(runner PassRunner, source DeliverySource, logger *slog.Logger, prefetchCount int) *Consumer {
	if prefetchCount <= 0 {
		prefetchCount = 1
	}
	return &Consumer{
		runner:        runner,
		source:        source,
		logger:        logger.With(slog.String("component", "trigger_consumer")),
		consumerTag:   "publisher-" + uuid.New().String(),
		prefetchCount: prefetchCount,
	}
}

// Run consumes trigger messages until ctx is canceled or the delivery channel closes
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.setupConsumer()
	if err != nil {
		return err
	}
	c.dispatch(ctx, deliveries)
	return nil
}

// setupConsumer sets QoS and returns the delivery channel
func (c *Consumer) setupConsumer() (<-chan amqp.Delivery, error) {
	if err := c.source.Qos(c.prefetchCount); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	c.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", c.prefetchCount),
	)

	deliveries, err := c.source.Consume(c.consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Trigger consumer started",
		slog.String("consumer_tag", c.consumerTag),
	)

	return deliveries, nil
}

// dispatch runs a pass for each valid trigger and acks or nacks it
func (c *Consumer) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Trigger consumer stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				return
			}
			c.handle(ctx, delivery)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	var msg TriggerMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		c.logger.Error("Failed to parse trigger JSON",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		c.nack(delivery, false)
		return
	}

	if _, err := uuid.Parse(msg.TriggerID); err != nil {
		c.logger.Error("Invalid trigger_id format - not a UUID",
			slog.String("trigger_id", msg.TriggerID),
			slog.String("error", err.Error()),
		)
		c.nack(delivery, false)
		return
	}

	logger := c.logger.With(slog.String("trigger_id", msg.TriggerID))
	logger.Info("Trigger received",
		slog.String("reason", msg.Reason),
		slog.Uint64("delivery_tag", delivery.DeliveryTag),
	)

	summary, err := c.runner.RunPass(ctx)
	if err != nil {
		// a store outage gets one redelivery, config errors none
		requeue := !domain.IsConfigError(err) && !delivery.Redelivered
		logger.Error("Triggered pass failed",
			slog.String("error", err.Error()),
			slog.Bool("requeue", requeue),
		)
		c.nack(delivery, requeue)
		return
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		logger.Error("Failed to ACK trigger",
			slog.String("error", ackErr.Error()),
		)
		return
	}

	logger.Info("Triggered pass completed",
		slog.String("run_id", summary.RunID),
		slog.Int("processed", summary.Processed()),
	)
}

func (c *Consumer) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		c.logger.Error("Failed to NACK trigger",
			slog.String("error", err.Error()),
			slog.Bool("requeue", requeue),
		)
	}
}
