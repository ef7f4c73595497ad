package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackCall struct {
	tag     uint64
	ack     bool
	requeue bool
}

// fakeAcknowledger records acks and nacks
type fakeAcknowledger struct {
	mu    sync.Mutex
	calls []ackCall
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, ackCall{tag: tag, ack: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, ackCall{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeSource struct {
	deliveries chan amqp.Delivery
	qosErr     error
	prefetch   int
}

func (s *fakeSource) Qos(prefetchCount int) error {
	s.prefetch = prefetchCount
	return s.qosErr
}

func (s *fakeSource) Consume(string) (<-chan amqp.Delivery, error) {
	return s.deliveries, nil
}

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *fakeRunner) RunPass(ctx context.Context) (*PassSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &PassSummary{RunID: "run", Skipped: map[string]int{}}, nil
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

const validTrigger = `{"trigger_id":"3f1b6c1e-8d5a-4c52-9a59-0d2f3e5b7a10","reason":"manual"}`

func TestConsumer_Handle(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		redelivered bool
		runErr      error
		wantRuns    int
		want        ackCall
	}{
		{
			name:     "valid trigger runs a pass and acks",
			body:     validTrigger,
			wantRuns: 1,
			want:     ackCall{tag: 1, ack: true},
		},
		{
			name: "malformed json is dropped",
			body: `{not json`,
			want: ackCall{tag: 1},
		},
		{
			name: "non uuid trigger id is dropped",
			body: `{"trigger_id":"abc"}`,
			want: ackCall{tag: 1},
		},
		{
			name:     "store failure is requeued once",
			body:     validTrigger,
			runErr:   errors.New("database unavailable"),
			wantRuns: 1,
			want:     ackCall{tag: 1, requeue: true},
		},
		{
			name:        "redelivered failure is dropped",
			body:        validTrigger,
			redelivered: true,
			runErr:      errors.New("database unavailable"),
			wantRuns:    1,
			want:        ackCall{tag: 1},
		},
		{
			name:     "config error is never requeued",
			body:     validTrigger,
			runErr:   domain.Errorf(domain.KindConfig, "worksheet has no status column"),
			wantRuns: 1,
			want:     ackCall{tag: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.runErr}
			acker := &fakeAcknowledger{}
			c := NewConsumer(runner, &fakeSource{}, testLogger(), 1)

			c.handle(context.Background(), amqp.Delivery{
				Acknowledger: acker,
				DeliveryTag:  1,
				Redelivered:  tt.redelivered,
				Body:         []byte(tt.body),
			})

			assert.Equal(t, tt.wantRuns, runner.count())
			require.Len(t, acker.calls, 1)
			assert.Equal(t, tt.want, acker.calls[0])
		})
	}
}

func TestConsumer_RunUntilChannelCloses(t *testing.T) {
	source := &fakeSource{deliveries: make(chan amqp.Delivery, 2)}
	runner := &fakeRunner{}
	acker := &fakeAcknowledger{}

	source.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte(validTrigger)}
	source.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte(validTrigger)}
	close(source.deliveries)

	c := NewConsumer(runner, source, testLogger(), 0)
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 1, source.prefetch)
	assert.Equal(t, 2, runner.count())
	assert.Equal(t, []ackCall{{tag: 1, ack: true}, {tag: 2, ack: true}}, acker.calls)
}

func TestConsumer_StopsOnCancel(t *testing.T) {
	source := &fakeSource{deliveries: make(chan amqp.Delivery)}
	c := NewConsumer(&fakeRunner{}, source, testLogger(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}

func TestConsumer_QosFailure(t *testing.T) {
	c := NewConsumer(&fakeRunner{}, &fakeSource{qosErr: errors.New("channel closed")}, testLogger(), 1)

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set QoS")
}
