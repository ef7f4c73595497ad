package pinterest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cuongbtq/publish-orchestrator/internal/platform/driver"
	"github.com/cuongbtq/publish-orchestrator/internal/platform/rest"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
)

const (
	DefaultBaseURL = "https://api.pinterest.com"

	maxTitleRunes       = 100
	maxDescriptionRunes = 500
)

// Protocol creates video pins through the Pinterest v5 API
type Protocol struct {
	api     *rest.Client
	baseURL string
	logger  *slog.Logger
}

// New creates the Pinterest protocol
func New(api *rest.Client, baseURL string, logger *slog.Logger) *Protocol {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Protocol{api: api, baseURL: baseURL, logger: logger}
}

func (p *Protocol) Platform() domain.Platform { return domain.PlatformPinterest }
func (p *Protocol) NeedsPublicURL() bool      { return false }

type registerResponse struct {
	MediaID          string            `json:"media_id"`
	UploadURL        string            `json:"upload_url"`
	UploadParameters map[string]string `json:"upload_parameters"`
}

// Init registers a video upload
func (p *Protocol) Init(ctx context.Context, account domain.Account, media domain.MediaHandle, caption domain.Caption) (driver.Session, error) {
	if account.BoardID == "" {
		return nil, errors.New("pinterest account has no board id")
	}

	var resp registerResponse
	if err := p.call(ctx, account.Credential, http.MethodPost, "/v5/media", map[string]string{"media_type": "video"}, http.StatusCreated, &resp); err != nil {
		return nil, fmt.Errorf("failed to register media upload: %w", err)
	}
	if resp.MediaID == "" || resp.UploadURL == "" {
		return nil, errors.New("media registration response is incomplete")
	}

	return &session{
		protocol: p,
		account:  account,
		media:    media,
		caption:  caption,
		register: resp,
	}, nil
}

func (p *Protocol) call(ctx context.Context, token, method, path string, payload any, expect int, out any) error {
	header := http.Header{"Authorization": {"Bearer " + token}}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
		header.Set("Content-Type", "application/json")
	}

	return p.api.Do(ctx, rest.Request{
		Method:  method,
		URL:     p.baseURL + path,
		Header:  header,
		Body:    body,
		Expect:  []int{expect},
		Decoded: out,
	})
}

type session struct {
	protocol *Protocol
	account  domain.Account
	media    domain.MediaHandle
	caption  domain.Caption
	register registerResponse
}

// Transfer posts the file to the signed upload URL as multipart form data
func (s *session) Transfer(ctx context.Context) error {
	f, err := os.Open(s.media.Path)
	if err != nil {
		return fmt.Errorf("failed to open media: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	// f stays open until the writer is done with it
	written := make(chan struct{})
	defer func() { <-written }()

	go func() {
		defer close(written)
		pw.CloseWithError(writeMultipart(form, s.register.UploadParameters, f))
	}()

	err = s.protocol.api.Do(ctx, rest.Request{
		Method: http.MethodPost,
		URL:    s.register.UploadURL,
		Header: http.Header{"Content-Type": {form.FormDataContentType()}},
		Body:   pr,
		Expect: []int{http.StatusNoContent, http.StatusOK, http.StatusCreated},
	})
	// unblock the writer if the request ended early
	_ = pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return fmt.Errorf("failed to upload media bytes: %w", err)
	}
	return nil
}

var writeMultipart = writeForm

// writeForm writes the signed fields in a stable order, then the file part last
func writeForm(form *multipart.Writer, params map[string]string, f *os.File) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := form.WriteField(k, params[k]); err != nil {
			return err
		}
	}

	part, err := form.CreateFormFile("file", filepath.Base(f.Name()))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	return form.Close()
}

// Poll reads the media status
func (s *session) Poll(ctx context.Context) (driver.Progress, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := s.protocol.call(ctx, s.account.Credential, http.MethodGet, "/v5/media/"+s.register.MediaID, nil, http.StatusOK, &resp); err != nil {
		return driver.ProgressPending, err
	}

	switch resp.Status {
	case "succeeded":
		return driver.ProgressFinished, nil
	case "failed":
		return driver.ProgressFailed, nil
	default:
		return driver.ProgressPending, nil
	}
}

type pinRequest struct {
	BoardID     string      `json:"board_id"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	MediaSource mediaSource `json:"media_source"`
}

type mediaSource struct {
	SourceType string `json:"source_type"`
	MediaID    string `json:"media_id"`
}

// Publish creates the pin on the account's board
func (s *session) Publish(ctx context.Context) (string, error) {
	description := strings.TrimSpace(s.caption.Description)
	if hashtags := s.caption.Hashtags(); hashtags != "" {
		description = strings.TrimSpace(description + " " + hashtags)
	}

	var resp struct {
		ID string `json:"id"`
	}
	err := s.protocol.call(ctx, s.account.Credential, http.MethodPost, "/v5/pins", pinRequest{
		BoardID:     s.account.BoardID,
		Title:       domain.Truncate(strings.TrimSpace(s.caption.Title), maxTitleRunes),
		Description: domain.Truncate(description, maxDescriptionRunes),
		MediaSource: mediaSource{SourceType: "video_id", MediaID: s.register.MediaID},
	}, http.StatusCreated, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to create pin: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("pin response has no id")
	}

	s.protocol.logger.Debug("Pin created",
		slog.String("pin_id", resp.ID),
		slog.String("board_id", s.account.BoardID),
	)

	return fmt.Sprintf("https://www.pinterest.com/pin/%s/", resp.ID), nil
}
