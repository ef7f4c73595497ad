package instagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/publish-orchestrator/internal/platform/driver"
	"github.com/cuongbtq/publish-orchestrator/internal/platform/graph"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
)

const maxCaptionRunes = 2200

// Protocol publishes Reels through the Instagram Graph API.
// Instagram fetches the video itself, so it needs a public URL.
type Protocol struct {
	graph  *graph.Client
	logger *slog.Logger
}

// New creates the Instagram protocol
func New(g *graph.Client, logger *slog.Logger) *Protocol {
	return &Protocol{graph: g, logger: logger}
}

func (p *Protocol) Platform() domain.Platform { return domain.PlatformInstagram }
func (p *Protocol) NeedsPublicURL() bool      { return true }

type containerParams struct {
	MediaType   string `url:"media_type"`
	UploadType  string `url:"upload_type"`
	Caption     string `url:"caption,omitempty"`
	ShareToFeed bool   `url:"share_to_feed"`
}

type containerResponse struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// Init creates a resumable REELS container
func (p *Protocol) Init(ctx context.Context, account domain.Account, media domain.MediaHandle, caption domain.Caption) (driver.Session, error) {
	if media.PublicURL == "" {
		return nil, errors.New("instagram requires a public media URL")
	}

	var resp containerResponse
	err := p.graph.Post(ctx, account.AccountID+"/media", containerParams{
		MediaType:   "REELS",
		UploadType:  "resumable",
		Caption:     domain.Truncate(caption.Text(), maxCaptionRunes),
		ShareToFeed: true,
	}, account.Credential, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to create media container: %w", err)
	}
	if resp.ID == "" {
		return nil, errors.New("media container response has no id")
	}

	uploadURL := resp.URI
	if uploadURL == "" {
		uploadURL = p.graph.UploadURL("ig-api-upload", resp.ID)
	}

	return &session{
		protocol:    p,
		account:     account,
		media:       media,
		containerID: resp.ID,
		uploadURL:   uploadURL,
	}, nil
}

type session struct {
	protocol    *Protocol
	account     domain.Account
	media       domain.MediaHandle
	containerID string
	uploadURL   string
}

// Transfer hands Instagram the public URL to pull the video from
func (s *session) Transfer(ctx context.Context) error {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	err := s.protocol.graph.Upload(ctx, s.uploadURL, http.Header{
		"Authorization": {"OAuth " + s.account.Credential},
		"file_url":      {s.media.PublicURL},
	}, nil, &resp)
	if err != nil {
		return fmt.Errorf("failed to upload reel: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("reel upload not accepted: %s", resp.Message)
	}
	return nil
}

type statusParams struct {
	Fields string `url:"fields"`
}

// Poll reads the container status_code
func (s *session) Poll(ctx context.Context) (driver.Progress, error) {
	var resp struct {
		StatusCode string `json:"status_code"`
		Status     string `json:"status"`
	}
	if err := s.protocol.graph.Get(ctx, s.containerID, statusParams{Fields: "status_code,status"}, s.account.Credential, &resp); err != nil {
		return driver.ProgressPending, err
	}

	switch resp.StatusCode {
	case "FINISHED":
		return driver.ProgressFinished, nil
	case "ERROR", "EXPIRED":
		s.protocol.logger.Warn("Instagram container failed",
			slog.String("container_id", s.containerID),
			slog.String("status", resp.Status),
		)
		return driver.ProgressFailed, nil
	default:
		return driver.ProgressPending, nil
	}
}

type publishParams struct {
	CreationID string `url:"creation_id"`
}

// Publish publishes the container and resolves its permalink
func (s *session) Publish(ctx context.Context) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := s.protocol.graph.Post(ctx, s.account.AccountID+"/media_publish", publishParams{CreationID: s.containerID}, s.account.Credential, &resp); err != nil {
		return "", fmt.Errorf("failed to publish container: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("publish response has no media id")
	}

	var media struct {
		Permalink string `json:"permalink"`
	}
	if err := s.protocol.graph.Get(ctx, resp.ID, statusParams{Fields: "permalink"}, s.account.Credential, &media); err != nil || media.Permalink == "" {
		// the post is live; fall back to the canonical reel URL
		return fmt.Sprintf("https://www.instagram.com/reel/%s/", resp.ID), nil
	}

	return media.Permalink, nil
}
