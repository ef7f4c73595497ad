package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	routingKey  string
	body        []byte
	contentType string
}

type fakeMessagePublisher struct {
	sent []sentMessage
	err  error
}

func (p *fakeMessagePublisher) PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error {
	p.sent = append(p.sent, sentMessage{routingKey: routingKey, body: body, contentType: contentType})
	return p.err
}

func TestBrokerEvents_RoutingKey(t *testing.T) {
	tests := []struct {
		prefix string
		status string
		want   string
	}{
		{prefix: "", status: "DONE", want: "publish.job.done"},
		{prefix: "", status: "FAILED", want: "publish.job.failed"},
		{prefix: "acme.outcomes.", status: "DONE", want: "acme.outcomes.done"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			e := NewBrokerEvents(&fakeMessagePublisher{}, tt.prefix)
			assert.Equal(t, tt.want, e.RoutingKey(tt.status))
		})
	}
}

func TestBrokerEvents_PublishOutcome(t *testing.T) {
	pub := &fakeMessagePublisher{}
	e := NewBrokerEvents(pub, "")

	event := OutcomeEvent{
		RunID:      "run-1",
		JobID:      "job-1",
		Status:     "DONE",
		Platforms:  []string{"YouTube"},
		ResultLink: "https://youtu.be/abc",
		DurationMS: 1500,
		OccurredAt: time.Date(2026, 10, 15, 4, 30, 0, 0, time.UTC),
	}
	require.NoError(t, e.PublishOutcome(context.Background(), event))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, "publish.job.done", pub.sent[0].routingKey)
	assert.Equal(t, "application/json", pub.sent[0].contentType)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.sent[0].body, &decoded))
	assert.Equal(t, "job-1", decoded["job_id"])
	assert.Equal(t, "https://youtu.be/abc", decoded["result_link"])
	assert.NotContains(t, decoded, "last_error")
	assert.Equal(t, 1500.0, decoded["duration_ms"])
}

func TestBrokerEvents_PublishError(t *testing.T) {
	e := NewBrokerEvents(&fakeMessagePublisher{err: errors.New("channel closed")}, "")

	err := e.PublishOutcome(context.Background(), OutcomeEvent{Status: "FAILED"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}
