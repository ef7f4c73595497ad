package youtube

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/platform/driver"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"
)

type fakeVideos struct {
	mu         sync.Mutex
	insertErrs []error
	statuses   []string
	updateErr  error

	attempts   int
	inserted   []*youtube.Video
	gets       int
	privacySet []string
}

func (f *fakeVideos) Insert(ctx context.Context, video *youtube.Video, media *os.File) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if len(f.insertErrs) > 0 {
		err := f.insertErrs[0]
		f.insertErrs = f.insertErrs[1:]
		if err != nil {
			return "", err
		}
	}
	if _, err := io.ReadAll(media); err != nil {
		return "", err
	}
	f.inserted = append(f.inserted, video)
	return "dQw4w9WgXcQ", nil
}

func (f *fakeVideos) Get(ctx context.Context, id string) (*youtube.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.statuses[len(f.statuses)-1]
	if f.gets < len(f.statuses) {
		status = f.statuses[f.gets]
	}
	f.gets++
	return &youtube.Video{
		Id:                id,
		Status:            &youtube.VideoStatus{UploadStatus: "uploaded"},
		ProcessingDetails: &youtube.VideoProcessingDetails{ProcessingStatus: status},
	}, nil
}

func (f *fakeVideos) SetPrivacy(ctx context.Context, id, privacy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.privacySet = append(f.privacySet, privacy)
	return nil
}

func newTestDriver(videos *fakeVideos, factoryErr error) *driver.StateMachineDriver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(Config{
		Logger: logger,
		NewService: func(ctx context.Context, credential string) (VideoService, error) {
			if factoryErr != nil {
				return nil, factoryErr
			}
			return videos, nil
		},
	})
	return driver.New(p, driver.Options{
		Logger:            logger,
		PollInterval:      time.Millisecond,
		MaxProcessingWait: 5 * time.Millisecond,
	})
}

func testMedia(t *testing.T) domain.MediaHandle {
	path := filepath.Join(t.TempDir(), "short.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video-bytes"), 0o600))
	return domain.MediaHandle{Path: path, Size: 11}
}

var account = domain.Account{Platform: domain.PlatformYouTube, AccountID: "pearl-verse", Credential: `{"type":"authorized_user"}`}

func TestYouTube_Upload(t *testing.T) {
	tests := []struct {
		name         string
		videos       *fakeVideos
		factoryErr   error
		wantLocation string
		wantKind     domain.Kind
		wantInserts  int
		wantPrivacy  []string
	}{
		{
			name:         "published after processing",
			videos:       &fakeVideos{statuses: []string{"processing", "succeeded"}},
			wantLocation: "https://youtu.be/dQw4w9WgXcQ",
			wantInserts:  1,
			wantPrivacy:  []string{"public"},
		},
		{
			name: "transient insert failure retried once",
			videos: &fakeVideos{
				insertErrs: []error{&googleapi.Error{Code: http.StatusServiceUnavailable}},
				statuses:   []string{"succeeded"},
			},
			wantLocation: "https://youtu.be/dQw4w9WgXcQ",
			wantInserts:  1,
			wantPrivacy:  []string{"public"},
		},
		{
			name: "quota exceeded is not retried",
			videos: &fakeVideos{
				insertErrs: []error{&googleapi.Error{Code: http.StatusForbidden, Message: "quotaExceeded"}},
				statuses:   []string{"succeeded"},
			},
			wantKind: domain.KindUploadRejected,
		},
		{
			name:       "revoked credential",
			videos:     &fakeVideos{statuses: []string{"succeeded"}},
			factoryErr: errors.New("youtube token refresh failed: invalid_grant"),
			wantKind:   domain.KindUploadRejected,
		},
		{
			name:        "processing failed",
			videos:      &fakeVideos{statuses: []string{"processing", "failed"}},
			wantKind:    domain.KindUploadRejected,
			wantInserts: 1,
		},
		{
			name:        "processing timeout never publishes",
			videos:      &fakeVideos{statuses: []string{"processing"}},
			wantKind:    domain.KindProcessingTimeout,
			wantInserts: 1,
		},
		{
			name:        "visibility update rejected",
			videos:      &fakeVideos{statuses: []string{"succeeded"}, updateErr: &googleapi.Error{Code: http.StatusBadRequest}},
			wantKind:    domain.KindPublishRejected,
			wantInserts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			location, err := newTestDriver(tt.videos, tt.factoryErr).Upload(context.Background(), account, testMedia(t), domain.Caption{
				Title:       "Pearl Verse drop",
				Description: "New arrivals",
				Tags:        []string{"pearls", "jewelry"},
			})

			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, domain.KindOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantLocation, location)
			}
			assert.Len(t, tt.videos.inserted, tt.wantInserts)
			assert.Equal(t, tt.wantPrivacy, tt.videos.privacySet)
		})
	}
}

func TestYouTube_BuildVideo(t *testing.T) {
	p := New(Config{CategoryID: "26"})

	longTitle := strings.Repeat("Gold ", 30)

	video := p.buildVideo(domain.Caption{
		Title:       longTitle,
		Description: "Handmade",
		Tags:        []string{"gold", "ring"},
	})

	assert.Len(t, []rune(video.Snippet.Title), maxTitleRunes)
	assert.Equal(t, "Handmade\n\n#gold #ring", video.Snippet.Description)
	assert.Equal(t, []string{"gold", "ring"}, video.Snippet.Tags)
	assert.Equal(t, "26", video.Snippet.CategoryId)
	assert.Equal(t, "private", video.Status.PrivacyStatus)

	assert.Equal(t, "Untitled", p.buildVideo(domain.Caption{}).Snippet.Title)
}

func TestLimitTags(t *testing.T) {
	assert.Equal(t, []string{"abc", "de"}, limitTags([]string{"abc", "de", "fghij"}, 8))
	assert.Nil(t, limitTags(nil, 10))
}

func TestYouTube_InsertTransportFailureNotRepeated(t *testing.T) {
	videos := &fakeVideos{
		insertErrs: []error{errors.New("write: connection reset by peer"), nil},
		statuses:   []string{"succeeded"},
	}

	_, err := newTestDriver(videos, nil).Upload(context.Background(), account, testMedia(t), domain.Caption{Title: "Pearl Verse drop"})
	require.Error(t, err)
	assert.Equal(t, domain.KindUploadRejected, domain.KindOf(err))
	assert.False(t, domain.IsRetryable(err))
	assert.Equal(t, 1, videos.attempts)
	assert.Empty(t, videos.inserted)
	assert.Empty(t, videos.privacySet)
}
