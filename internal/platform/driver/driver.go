package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
)

const (
	DefaultPollInterval      = 10 * time.Second
	DefaultMaxProcessingWait = 5 * time.Minute
	DefaultCallTimeout       = 60 * time.Second
	DefaultTransferTimeout   = 15 * time.Minute
)

// Driver is the contract the orchestrator uses to publish on one platform
type Driver interface {
	Platform() domain.Platform
	NeedsPublicURL() bool
	Upload(ctx context.Context, account domain.Account, media domain.MediaHandle, caption domain.Caption) (string, error)
}

// Progress is the platform-side processing status
type Progress int

const (
	ProgressPending Progress = iota
	ProgressFinished
	ProgressFailed
)

// Protocol is the platform-specific half of an upload
type Protocol interface {
	Platform() domain.Platform
	NeedsPublicURL() bool
	// Init registers an upload session. Any error is terminal.
	Init(ctx context.Context, account domain.Account, media domain.MediaHandle, caption domain.Caption) (Session, error)
}

// Session drives one registered upload
type Session interface {
	// Transfer sends bytes or a reference URL. Errors wrapped in
	// domain.RetryableError are retried once.
	Transfer(ctx context.Context) error
	// Poll reports processing progress. Retryable errors keep the loop polling.
	Poll(ctx context.Context) (Progress, error)
	// Publish makes the post visible and returns its location
	Publish(ctx context.Context) (string, error)
}

// Options holds state machine timing
type Options struct {
	Logger            *slog.Logger
	PollInterval      time.Duration
	MaxProcessingWait time.Duration
	CallTimeout       time.Duration
	TransferTimeout   time.Duration
}

// Result is the outcome of one upload
type Result struct {
	Location string
	Err      error
	History  []State
}

// Final returns the terminal state reached
func (r Result) Final() State {
	return r.History[len(r.History)-1]
}

// StateMachineDriver runs a Protocol through INIT -> UPLOADING -> PROCESSING -> PUBLISHED
type StateMachineDriver struct {
	protocol          Protocol
	logger            *slog.Logger
	pollInterval      time.Duration
	maxProcessingWait time.Duration
	callTimeout       time.Duration
	transferTimeout   time.Duration
}

// New wraps a protocol in the upload state machine
func New(protocol Protocol, opts Options) *StateMachineDriver {
	d := &StateMachineDriver{
		protocol:          protocol,
		logger:            opts.Logger,
		pollInterval:      opts.PollInterval,
		maxProcessingWait: opts.MaxProcessingWait,
		callTimeout:       opts.CallTimeout,
		transferTimeout:   opts.TransferTimeout,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With(slog.String("platform", string(protocol.Platform())))
	if d.pollInterval <= 0 {
		d.pollInterval = DefaultPollInterval
	}
	if d.maxProcessingWait <= 0 {
		d.maxProcessingWait = DefaultMaxProcessingWait
	}
	if d.callTimeout <= 0 {
		d.callTimeout = DefaultCallTimeout
	}
	if d.transferTimeout <= 0 {
		d.transferTimeout = DefaultTransferTimeout
	}
	return d
}

func (d *StateMachineDriver) Platform() domain.Platform {
	return d.protocol.Platform()
}

func (d *StateMachineDriver) NeedsPublicURL() bool {
	return d.protocol.NeedsPublicURL()
}

// Upload implements Driver
func (d *StateMachineDriver) Upload(ctx context.Context, account domain.Account, media domain.MediaHandle, caption domain.Caption) (string, error) {
	result := d.Execute(ctx, account, media, caption)
	return result.Location, result.Err
}

// Execute runs the state machine and reports every state it visited
func (d *StateMachineDriver) Execute(ctx context.Context, account domain.Account, media domain.MediaHandle, caption domain.Caption) Result {
	m := newMachine()
	logger := d.logger.With(slog.String("account_id", account.AccountID))

	fail := func(kind domain.Kind, msg string, err error) Result {
		from := m.current()
		_ = m.advance(StateError)
		typed := domain.Wrap(kind, msg, err)
		logger.Error("Upload failed",
			slog.String("state", string(from)),
			slog.String("error", typed.Error()),
		)
		return Result{Err: typed, History: m.history}
	}

	// INIT
	var session Session
	err := d.call(ctx, d.callTimeout, func(callCtx context.Context) error {
		var initErr error
		session, initErr = d.protocol.Init(callCtx, account, media, caption)
		return initErr
	})
	if err == nil && session == nil {
		err = errors.New("no upload session returned")
	}
	if err != nil {
		return fail(domain.KindUploadRejected, "upload session rejected", err)
	}

	// UPLOADING
	if err := m.advance(StateUploading); err != nil {
		return fail(domain.KindUploadRejected, "state machine", err)
	}
	logger.Debug("Upload session registered")

	err = d.call(ctx, d.transferTimeout, session.Transfer)
	if err != nil && domain.IsRetryable(err) && ctx.Err() == nil {
		logger.Warn("Media transfer failed, retrying once",
			slog.String("error", err.Error()),
		)
		err = d.call(ctx, d.transferTimeout, session.Transfer)
	}
	if err != nil {
		return fail(domain.KindUploadRejected, "media transfer failed", err)
	}

	// PROCESSING
	if err := m.advance(StateProcessing); err != nil {
		return fail(domain.KindUploadRejected, "state machine", err)
	}

	if err := d.awaitProcessing(ctx, logger, session); err != nil {
		return fail(domain.KindUploadRejected, "processing failed", err)
	}

	var location string
	err = d.call(ctx, d.callTimeout, func(callCtx context.Context) error {
		var publishErr error
		location, publishErr = session.Publish(callCtx)
		return publishErr
	})
	if err == nil && location == "" {
		err = errors.New("platform returned no location")
	}
	if err != nil {
		return fail(domain.KindPublishRejected, "publish rejected", err)
	}

	// PUBLISHED
	if err := m.advance(StatePublished); err != nil {
		return fail(domain.KindPublishRejected, "state machine", err)
	}

	logger.Info("Upload published",
		slog.String("location", location),
	)

	return Result{Location: location, History: m.history}
}

// awaitProcessing polls until the platform finishes, fails, or the wait bound is hit
func (d *StateMachineDriver) awaitProcessing(ctx context.Context, logger *slog.Logger, session Session) error {
	maxPolls := int(d.maxProcessingWait / d.pollInterval)
	if maxPolls < 1 {
		maxPolls = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		var progress Progress
		err := d.call(ctx, d.callTimeout, func(callCtx context.Context) error {
			var pollErr error
			progress, pollErr = session.Poll(callCtx)
			return pollErr
		})

		switch {
		case err != nil && !domain.IsRetryable(err):
			return err
		case err != nil:
			lastErr = err
			logger.Warn("Processing status check failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		case progress == ProgressFinished:
			logger.Debug("Processing finished",
				slog.Int("polls", attempt),
			)
			return nil
		case progress == ProgressFailed:
			return errors.New("platform reported processing error")
		}

		if attempt >= maxPolls {
			break
		}

		timer := time.NewTimer(d.pollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return domain.Wrap(domain.KindProcessingTimeout, "processing wait interrupted", ctx.Err())
		}
	}

	msg := fmt.Sprintf("processing not finished after %s (%d polls)", d.maxProcessingWait, maxPolls)
	if lastErr != nil {
		return domain.Wrap(domain.KindProcessingTimeout, msg, lastErr)
	}
	return domain.Errorf(domain.KindProcessingTimeout, "%s", msg)
}

// call runs fn with a per-call deadline and turns panics into errors
func (d *StateMachineDriver) call(ctx context.Context, timeout time.Duration, fn func(context.Context) error) (err error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return fn(callCtx)
}
