package facebook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/cuongbtq/publish-orchestrator/internal/platform/driver"
	"github.com/cuongbtq/publish-orchestrator/internal/platform/graph"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
)

const maxDescriptionRunes = 5000

// Protocol publishes page Reels through the Graph API. The configured
// credential is a user token; each upload exchanges it for the page token.
type Protocol struct {
	graph  *graph.Client
	logger *slog.Logger
}

// New creates the Facebook protocol
func New(g *graph.Client, logger *slog.Logger) *Protocol {
	return &Protocol{graph: g, logger: logger}
}

func (p *Protocol) Platform() domain.Platform { return domain.PlatformFacebook }
func (p *Protocol) NeedsPublicURL() bool      { return false }

type fieldsParams struct {
	Fields string `url:"fields"`
}

type startParams struct {
	UploadPhase string `url:"upload_phase"`
}

// Init exchanges the page token and opens a reel upload session
func (p *Protocol) Init(ctx context.Context, account domain.Account, media domain.MediaHandle, caption domain.Caption) (driver.Session, error) {
	var page struct {
		AccessToken string `json:"access_token"`
	}
	if err := p.graph.Get(ctx, account.AccountID, fieldsParams{Fields: "access_token"}, account.Credential, &page); err != nil {
		return nil, fmt.Errorf("failed to get page access token: %w", err)
	}
	if page.AccessToken == "" {
		return nil, errors.New("page access token missing from response")
	}

	var resp struct {
		VideoID   string `json:"video_id"`
		UploadURL string `json:"upload_url"`
	}
	if err := p.graph.Post(ctx, account.AccountID+"/video_reels", startParams{UploadPhase: "start"}, page.AccessToken, &resp); err != nil {
		return nil, fmt.Errorf("failed to start reel upload: %w", err)
	}
	if resp.VideoID == "" {
		return nil, errors.New("reel upload response has no video id")
	}

	uploadURL := resp.UploadURL
	if uploadURL == "" {
		uploadURL = p.graph.UploadURL("video-upload", resp.VideoID)
	}

	return &session{
		protocol:  p,
		pageID:    account.AccountID,
		pageToken: page.AccessToken,
		media:     media,
		caption:   caption,
		videoID:   resp.VideoID,
		uploadURL: uploadURL,
	}, nil
}

type session struct {
	protocol  *Protocol
	pageID    string
	pageToken string
	media     domain.MediaHandle
	caption   domain.Caption
	videoID   string
	uploadURL string
}

// Transfer streams the local file in a single chunk
func (s *session) Transfer(ctx context.Context) error {
	f, err := os.Open(s.media.Path)
	if err != nil {
		return fmt.Errorf("failed to open media: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat media: %w", err)
	}

	var resp struct {
		Success bool `json:"success"`
	}
	err = s.protocol.graph.Upload(ctx, s.uploadURL, http.Header{
		"Authorization": {"OAuth " + s.pageToken},
		"offset":        {"0"},
		"file_size":     {strconv.FormatInt(info.Size(), 10)},
	}, f, &resp)
	if err != nil {
		return fmt.Errorf("failed to upload reel bytes: %w", err)
	}
	if !resp.Success {
		return errors.New("reel upload not accepted")
	}
	return nil
}

type videoStatus struct {
	Status struct {
		VideoStatus     string `json:"video_status"`
		ProcessingPhase struct {
			Status string `json:"status"`
		} `json:"processing_phase"`
	} `json:"status"`
}

// Poll reads the video processing phase
func (s *session) Poll(ctx context.Context) (driver.Progress, error) {
	var resp videoStatus
	if err := s.protocol.graph.Get(ctx, s.videoID, fieldsParams{Fields: "status"}, s.pageToken, &resp); err != nil {
		return driver.ProgressPending, err
	}

	switch {
	case resp.Status.VideoStatus == "error" || resp.Status.ProcessingPhase.Status == "error":
		return driver.ProgressFailed, nil
	case resp.Status.VideoStatus == "ready" || resp.Status.ProcessingPhase.Status == "complete":
		return driver.ProgressFinished, nil
	default:
		return driver.ProgressPending, nil
	}
}

type finishParams struct {
	UploadPhase string `url:"upload_phase"`
	VideoID     string `url:"video_id"`
	VideoState  string `url:"video_state"`
	Description string `url:"description,omitempty"`
	Title       string `url:"title,omitempty"`
}

// Publish finishes the upload with video_state=PUBLISHED
func (s *session) Publish(ctx context.Context) (string, error) {
	var resp struct {
		Success bool `json:"success"`
	}
	err := s.protocol.graph.Post(ctx, s.pageID+"/video_reels", finishParams{
		UploadPhase: "finish",
		VideoID:     s.videoID,
		VideoState:  "PUBLISHED",
		Description: domain.Truncate(s.caption.Text(), maxDescriptionRunes),
		Title:       s.caption.Title,
	}, s.pageToken, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to publish reel: %w", err)
	}
	if !resp.Success {
		return "", errors.New("reel publish not accepted")
	}

	s.protocol.logger.Debug("Facebook reel published",
		slog.String("page_id", s.pageID),
		slog.String("video_id", s.videoID),
	)

	return fmt.Sprintf("https://www.facebook.com/reel/%s", s.videoID), nil
}
