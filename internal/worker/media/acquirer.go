package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/gabriel-vasile/mimetype"
)

const (
	DefaultAttempts       = 3
	DefaultBackoff        = 5 * time.Second
	DefaultMinBytes       = 10 * 1024
	DefaultRequestTimeout = 2 * time.Minute
)

// Rehoster publishes a local file at a URL platforms can fetch
type Rehoster interface {
	Rehost(ctx context.Context, path, contentType string) (publicURL string, remove func(context.Context) error, err error)
}

// Config holds media acquirer configuration
type Config struct {
	Logger         *slog.Logger
	HTTPClient     *http.Client
	TempDir        string
	Attempts       int
	Backoff        time.Duration
	MinBytes       int64
	RequestTimeout time.Duration
	Rehoster       Rehoster // optional
}

// Acquirer downloads job media into scoped temp files
type Acquirer struct {
	logger         *slog.Logger
	httpClient     *http.Client
	tempDir        string
	attempts       int
	backoff        time.Duration
	minBytes       int64
	requestTimeout time.Duration
	rehoster       Rehoster
}

// NewAcquirer creates a new media acquirer
func NewAcquirer(cfg *Config) *Acquirer {
	a := &Acquirer{
		logger:         cfg.Logger,
		httpClient:     cfg.HTTPClient,
		tempDir:        cfg.TempDir,
		attempts:       cfg.Attempts,
		backoff:        cfg.Backoff,
		minBytes:       cfg.MinBytes,
		requestTimeout: cfg.RequestTimeout,
		rehoster:       cfg.Rehoster,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With(slog.String("component", "media_acquirer"))
	if a.httpClient == nil {
		a.httpClient = &http.Client{}
	}
	if a.attempts <= 0 {
		a.attempts = DefaultAttempts
	}
	if a.backoff < 0 {
		a.backoff = DefaultBackoff
	}
	if a.minBytes <= 0 {
		a.minBytes = DefaultMinBytes
	}
	if a.requestTimeout <= 0 {
		a.requestTimeout = DefaultRequestTimeout
	}
	return a
}

// Handle is an acquired artifact. Release must be called on every exit path.
type Handle struct {
	domain.MediaHandle

	logger   *slog.Logger
	once     sync.Once
	cleanups []func(context.Context) error
}

// Release removes the temp file and any rehosted copy. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for i := len(h.cleanups) - 1; i >= 0; i-- {
			if err := h.cleanups[i](ctx); err != nil {
				h.logger.Warn("Failed to release media resource",
					slog.String("path", h.Path),
					slog.String("error", err.Error()),
				)
			}
		}
	})
}

// Acquire fetches ref into a temp file. With needPublicURL the handle also carries a
// URL the platform can fetch on its own.
func (a *Acquirer) Acquire(ctx context.Context, ref string, needPublicURL bool) (handle *Handle, err error) {
	source := DirectURL(ref)
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return nil, domain.Errorf(domain.KindMediaUnavailable, "unsupported media reference %q", ref)
	}

	file, err := os.CreateTemp(a.tempDir, "media-*")
	if err != nil {
		return nil, domain.Wrap(domain.KindMediaUnavailable, "failed to create temp file", err)
	}

	h := &Handle{
		MediaHandle: domain.MediaHandle{Path: file.Name(), SourceURL: source},
		logger:      a.logger,
	}
	h.cleanups = append(h.cleanups, func(context.Context) error {
		if rmErr := os.Remove(h.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return rmErr
		}
		return nil
	})

	// any failure or panic past this point must not leak the temp file
	committed := false
	defer func() {
		if !committed {
			_ = file.Close()
			h.Release()
		}
	}()

	if err := a.download(ctx, source, file); err != nil {
		return nil, err
	}

	if err := file.Close(); err != nil {
		return nil, domain.Wrap(domain.KindMediaUnavailable, "failed to close temp file", err)
	}

	if err := a.validate(h); err != nil {
		return nil, err
	}

	if needPublicURL {
		h.PublicURL = source
		if a.rehoster != nil {
			publicURL, remove, err := a.rehoster.Rehost(ctx, h.Path, h.ContentType)
			if err != nil {
				return nil, domain.Wrap(domain.KindMediaUnavailable, "failed to rehost media", err)
			}
			h.PublicURL = publicURL
			if remove != nil {
				h.cleanups = append(h.cleanups, remove)
			}
		}
	}

	committed = true

	a.logger.Info("Media acquired",
		slog.String("source", source),
		slog.String("path", h.Path),
		slog.Int64("size", h.Size),
		slog.String("content_type", h.ContentType),
		slog.Bool("public_url", h.PublicURL != ""),
	)

	return h, nil
}

func (a *Acquirer) download(ctx context.Context, source string, file *os.File) error {
	attempt := 0
	operation := func() error {
		attempt++

		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(err)
		}
		if err := file.Truncate(0); err != nil {
			return backoff.Permanent(err)
		}

		return a.fetch(ctx, source, file)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.backoff), uint64(a.attempts-1)),
		ctx,
	)

	notify := func(err error, wait time.Duration) {
		a.logger.Warn("Media download failed, retrying",
			slog.String("source", source),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", a.attempts),
			slog.Duration("retry_after", wait),
			slog.String("error", err.Error()),
		)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return domain.Wrap(domain.KindMediaUnavailable,
			fmt.Sprintf("download failed after %d attempt(s)", attempt), err)
	}

	return nil
}

func (a *Acquirer) fetch(ctx context.Context, source string, w io.Writer) error {
	reqCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, source, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("unexpected status %d from %s", resp.StatusCode, source)
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read media body: %w", err)
	}

	return nil
}

func (a *Acquirer) validate(h *Handle) error {
	info, err := os.Stat(h.Path)
	if err != nil {
		return domain.Wrap(domain.KindMediaUnavailable, "failed to stat media", err)
	}
	h.Size = info.Size()

	if h.Size < a.minBytes {
		return domain.Errorf(domain.KindMediaInvalid, "media is %d bytes, expected at least %d", h.Size, a.minBytes)
	}

	mtype, err := mimetype.DetectFile(h.Path)
	if err != nil {
		return domain.Wrap(domain.KindMediaInvalid, "failed to detect media type", err)
	}
	h.ContentType = mtype.String()

	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/") || m.Is("application/json") {
			return domain.Errorf(domain.KindMediaInvalid, "source returned %s instead of media", mtype.String())
		}
	}

	return nil
}
