package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/cuongbtq/publish-orchestrator/internal/platform/driver"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	DefaultCategoryID = "22"

	maxTitleRunes       = 100
	maxDescriptionRunes = 5000
	maxTagChars         = 500
)

// VideoService is the slice of the YouTube Data API the driver uses
type VideoService interface {
	// Insert uploads the file as a private video and returns its id
	Insert(ctx context.Context, video *youtube.Video, media *os.File) (string, error)
	// Get reads status and processing details of a video
	Get(ctx context.Context, id string) (*youtube.Video, error)
	// SetPrivacy updates status.privacyStatus
	SetPrivacy(ctx context.Context, id, privacy string) error
}

// ServiceFactory builds a VideoService for one account credential
type ServiceFactory func(ctx context.Context, credential string) (VideoService, error)

// Config holds YouTube driver configuration
type Config struct {
	Logger     *slog.Logger
	CategoryID string
	// Endpoint overrides the API base URL
	Endpoint string
	// NewService replaces the API-backed factory
	NewService ServiceFactory
}

// Protocol uploads videos with videos.insert and makes them public once processed
type Protocol struct {
	newService ServiceFactory
	categoryID string
	logger     *slog.Logger
}

// New creates the YouTube protocol
func New(cfg Config) *Protocol {
	p := &Protocol{
		newService: cfg.NewService,
		categoryID: cfg.CategoryID,
		logger:     cfg.Logger,
	}
	if p.newService == nil {
		p.newService = apiServiceFactory(cfg.Endpoint)
	}
	if p.categoryID == "" {
		p.categoryID = DefaultCategoryID
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

func (p *Protocol) Platform() domain.Platform { return domain.PlatformYouTube }
func (p *Protocol) NeedsPublicURL() bool      { return false }

// Init builds an authorized service for the account
func (p *Protocol) Init(ctx context.Context, account domain.Account, media domain.MediaHandle, caption domain.Caption) (driver.Session, error) {
	if media.Path == "" {
		return nil, errors.New("youtube requires a local media file")
	}

	svc, err := p.newService(ctx, account.Credential)
	if err != nil {
		return nil, err
	}

	return &session{
		protocol: p,
		service:  svc,
		media:    media,
		video:    p.buildVideo(caption),
	}, nil
}

func (p *Protocol) buildVideo(caption domain.Caption) *youtube.Video {
	description := caption.Description
	if hashtags := caption.Hashtags(); hashtags != "" {
		if description != "" {
			description += "\n\n"
		}
		description += hashtags
	}

	title := strings.TrimSpace(caption.Title)
	if title == "" {
		title = "Untitled"
	}

	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       domain.Truncate(title, maxTitleRunes),
			Description: domain.Truncate(description, maxDescriptionRunes),
			Tags:        limitTags(caption.Tags, maxTagChars),
			CategoryId:  p.categoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           "private",
			SelfDeclaredMadeForKids: false,
		},
	}
}

// limitTags keeps tags in order until their combined length passes max
func limitTags(tags []string, max int) []string {
	var out []string
	total := 0
	for _, tag := range tags {
		total += len(tag) + 1
		if total > max {
			break
		}
		out = append(out, tag)
	}
	return out
}

type session struct {
	protocol *Protocol
	service  VideoService
	media    domain.MediaHandle
	video    *youtube.Video
	videoID  string
}

// Transfer uploads the file as a private video
func (s *session) Transfer(ctx context.Context) error {
	// an earlier attempt already created the video
	if s.videoID != "" {
		return nil
	}

	f, err := os.Open(s.media.Path)
	if err != nil {
		return fmt.Errorf("failed to open media: %w", err)
	}
	defer f.Close()

	id, err := s.service.Insert(ctx, s.video, f)
	if err != nil {
		return classifyInsert(fmt.Errorf("videos.insert failed: %w", err))
	}
	if id == "" {
		return errors.New("videos.insert returned no id")
	}
	s.videoID = id
	return nil
}

// Poll reads processingDetails and upload status
func (s *session) Poll(ctx context.Context) (driver.Progress, error) {
	v, err := s.service.Get(ctx, s.videoID)
	if err != nil {
		return driver.ProgressPending, classify(fmt.Errorf("videos.list failed: %w", err))
	}

	if v.Status != nil {
		switch v.Status.UploadStatus {
		case "failed", "rejected", "deleted":
			s.protocol.logger.Warn("YouTube upload rejected",
				slog.String("video_id", s.videoID),
				slog.String("upload_status", v.Status.UploadStatus),
				slog.String("failure_reason", v.Status.FailureReason),
				slog.String("rejection_reason", v.Status.RejectionReason),
			)
			return driver.ProgressFailed, nil
		}
	}

	if v.ProcessingDetails == nil {
		return driver.ProgressPending, nil
	}
	switch v.ProcessingDetails.ProcessingStatus {
	case "succeeded":
		return driver.ProgressFinished, nil
	case "failed", "terminated":
		return driver.ProgressFailed, nil
	default:
		return driver.ProgressPending, nil
	}
}

// Publish flips the video to public
func (s *session) Publish(ctx context.Context) (string, error) {
	if err := s.service.SetPrivacy(ctx, s.videoID, "public"); err != nil {
		return "", fmt.Errorf("videos.update failed: %w", err)
	}
	return "https://youtu.be/" + s.videoID, nil
}

// classify marks 429, 5xx and transport failures as retryable
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return domain.NewRetryableError(err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domain.NewRetryableError(err)
}

// classifyInsert only retries inserts the API explicitly refused with 429 or 5xx.
// A transport failure may come after the server stored the video, and a second
// insert would leave a duplicate private upload behind.
func classifyInsert(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500) {
		return domain.NewRetryableError(err)
	}
	return err
}

func apiServiceFactory(endpoint string) ServiceFactory {
	return func(ctx context.Context, credential string) (VideoService, error) {
		// the service outlives the Init call deadline
		ctx = context.WithoutCancel(ctx)

		creds, err := google.CredentialsFromJSON(ctx, []byte(credential), youtube.YoutubeUploadScope, youtube.YoutubeScope)
		if err != nil {
			return nil, fmt.Errorf("invalid youtube credential: %w", err)
		}

		// refresh now so a revoked token fails before any upload
		if _, err := creds.TokenSource.Token(); err != nil {
			return nil, fmt.Errorf("youtube token refresh failed: %w", err)
		}

		opts := []option.ClientOption{option.WithTokenSource(creds.TokenSource)}
		if endpoint != "" {
			opts = append(opts, option.WithEndpoint(endpoint))
		}

		svc, err := youtube.NewService(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create YouTube service: %w", err)
		}
		return &apiService{svc: svc}, nil
	}
}

type apiService struct {
	svc *youtube.Service
}

func (a *apiService) Insert(ctx context.Context, video *youtube.Video, media *os.File) (string, error) {
	created, err := a.svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(media).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

func (a *apiService) Get(ctx context.Context, id string) (*youtube.Video, error) {
	resp, err := a.svc.Videos.List([]string{"status", "processingDetails"}).Id(id).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("video %s not found", id)
	}
	return resp.Items[0], nil
}

func (a *apiService) SetPrivacy(ctx context.Context, id, privacy string) error {
	_, err := a.svc.Videos.Update([]string{"status"}, &youtube.Video{
		Id: id,
		Status: &youtube.VideoStatus{
			PrivacyStatus:           privacy,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}).Context(ctx).Do()
	return err
}
