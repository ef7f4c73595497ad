package schedule

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	waits  []time.Duration
	block  bool
	fireCh chan time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	if !c.block {
		ch <- c.now.Add(d)
	}
	return ch
}

func ist(t *testing.T) *time.Location {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	return loc
}

func newTestGate(t *testing.T, clock Clock) *Gate {
	return NewGate(&Config{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Location:      ist(t),
		DateOrder:     DayFirst,
		WaitThreshold: 5 * time.Minute,
		Clock:         clock,
	})
}

func jobAt(ts time.Time) *domain.Job {
	return &domain.Job{
		ID:            "job-1",
		ScheduledDate: ts.Format("02/01/2006"),
		ScheduledTime: ts.Format("15:04:05"),
	}
}

func TestGate_Check(t *testing.T) {
	loc := ist(t)
	now := time.Date(2026, time.April, 13, 10, 0, 0, 0, loc)

	tests := []struct {
		name      string
		scheduled time.Time
		want      Decision
		wantWaits []time.Duration
	}{
		{
			name:      "exactly now is due",
			scheduled: now,
			want:      Due,
		},
		{
			name:      "missed run in the past still fires",
			scheduled: now.Add(-3 * time.Hour),
			want:      Due,
		},
		{
			name:      "inside the window blocks until target",
			scheduled: now.Add(2 * time.Minute),
			want:      Due,
			wantWaits: []time.Duration{2 * time.Minute},
		},
		{
			name:      "exactly at the threshold still waits",
			scheduled: now.Add(5 * time.Minute),
			want:      Due,
			wantWaits: []time.Duration{5 * time.Minute},
		},
		{
			name:      "one second past the threshold is not due and does not block",
			scheduled: now.Add(5*time.Minute + time.Second),
			want:      NotDue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: now}
			gate := newTestGate(t, clock)

			got, err := gate.Check(context.Background(), jobAt(tt.scheduled))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantWaits, clock.waits)
		})
	}
}

func TestGate_CheckUnparseable(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	gate := newTestGate(t, clock)

	got, err := gate.Check(context.Background(), &domain.Job{
		ID:            "job-x",
		ScheduledDate: "next tuesday",
		ScheduledTime: "noon",
	})
	require.NoError(t, err)
	assert.Equal(t, Unparseable, got)
	assert.Empty(t, clock.waits)
}

func TestGate_CheckWaitHonoursContext(t *testing.T) {
	loc := ist(t)
	now := time.Date(2026, time.April, 13, 10, 0, 0, 0, loc)
	clock := &fakeClock{now: now, block: true}
	gate := newTestGate(t, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := gate.Check(ctx, jobAt(now.Add(time.Minute)))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, NotDue, got)
}

func TestParser_Parse(t *testing.T) {
	loc := ist(t)

	tests := []struct {
		name    string
		order   DateOrder
		date    string
		clock   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "day first",
			order: DayFirst,
			date:  "13/04/2026",
			clock: "18:30",
			want:  time.Date(2026, time.April, 13, 18, 30, 0, 0, loc),
		},
		{
			name:  "month first falls back when day first is invalid",
			order: DayFirst,
			date:  "04/13/2026",
			clock: "6:30 pm",
			want:  time.Date(2026, time.April, 13, 18, 30, 0, 0, loc),
		},
		{
			name:  "ambiguous date uses preferred month first order",
			order: MonthFirst,
			date:  "05/04/2026",
			clock: "09:15",
			want:  time.Date(2026, time.May, 4, 9, 15, 0, 0, loc),
		},
		{
			name:  "ambiguous date uses preferred day first order",
			order: DayFirst,
			date:  "05/04/2026",
			clock: "09:15",
			want:  time.Date(2026, time.April, 5, 9, 15, 0, 0, loc),
		},
		{
			name:  "single digit fields",
			order: DayFirst,
			date:  "5-4-2026",
			clock: "7 AM",
			want:  time.Date(2026, time.April, 5, 7, 0, 0, 0, loc),
		},
		{
			name:  "iso date",
			order: DayFirst,
			date:  "2026-04-13",
			clock: "23:59:59",
			want:  time.Date(2026, time.April, 13, 23, 59, 59, 0, loc),
		},
		{
			name:  "named month",
			order: DayFirst,
			date:  "13 Apr 2026",
			clock: "10:00",
			want:  time.Date(2026, time.April, 13, 10, 0, 0, 0, loc),
		},
		{
			name:    "missing time",
			order:   DayFirst,
			date:    "13/04/2026",
			clock:   "",
			wantErr: true,
		},
		{
			name:    "garbage date",
			order:   DayFirst,
			date:    "32/13/2026",
			clock:   "10:00",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewParser(loc, tt.order).Parse(tt.date, tt.clock)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}
