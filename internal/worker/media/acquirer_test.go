package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVideo returns an MP4-looking payload of the given size
func fakeVideo(size int) []byte {
	header := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00, 'm', 'p', '4', '2', 'i', 's', 'o', 'm'}
	body := make([]byte, size)
	copy(body, header)
	return body
}

func newTestAcquirer(t *testing.T, dir string, rehoster Rehoster) *Acquirer {
	t.Helper()
	return NewAcquirer(&Config{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		TempDir:        dir,
		Attempts:       3,
		Backoff:        time.Millisecond,
		MinBytes:       1024,
		RequestTimeout: 5 * time.Second,
		Rehoster:       rehoster,
	})
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files left behind")
}

func TestAcquirer_Acquire(t *testing.T) {
	payload := fakeVideo(16 * 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	acquirer := newTestAcquirer(t, dir, nil)

	h, err := acquirer.Acquire(context.Background(), srv.URL+"/clip.mp4", false)
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), h.Size)
	assert.Equal(t, "video/mp4", h.ContentType)
	assert.Empty(t, h.PublicURL)

	data, err := os.ReadFile(h.Path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, data))

	h.Release()
	h.Release()
	assertDirEmpty(t, dir)
}

func TestAcquirer_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	payload := fakeVideo(4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("partial garbage"))
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	h, err := newTestAcquirer(t, dir, nil).Acquire(context.Background(), srv.URL, false)
	require.NoError(t, err)
	defer h.Release()

	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, int64(len(payload)), h.Size)
}

func TestAcquirer_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     []byte
		wantKind domain.Kind
		wantHits int32
	}{
		{
			name:     "server errors exhaust attempts",
			status:   http.StatusServiceUnavailable,
			wantKind: domain.KindMediaUnavailable,
			wantHits: 3,
		},
		{
			name:     "not found is permanent",
			status:   http.StatusNotFound,
			wantKind: domain.KindMediaUnavailable,
			wantHits: 1,
		},
		{
			name:     "near zero byte artifact",
			status:   http.StatusOK,
			body:     []byte{0x00, 0x01},
			wantKind: domain.KindMediaInvalid,
			wantHits: 1,
		},
		{
			name:     "html error page",
			status:   http.StatusOK,
			body:     bytes.Repeat([]byte("<html><body>Quota exceeded</body></html>\n"), 100),
			wantKind: domain.KindMediaInvalid,
			wantHits: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write(tt.body)
			}))
			defer srv.Close()

			dir := t.TempDir()
			h, err := newTestAcquirer(t, dir, nil).Acquire(context.Background(), srv.URL, false)
			require.Error(t, err)
			assert.Nil(t, h)
			assert.Equal(t, tt.wantKind, domain.KindOf(err))
			assert.Equal(t, tt.wantHits, hits.Load())
			assertDirEmpty(t, dir)
		})
	}
}

func TestAcquirer_UnsupportedReference(t *testing.T) {
	dir := t.TempDir()
	_, err := newTestAcquirer(t, dir, nil).Acquire(context.Background(), "ftp://example.com/a.mp4", false)
	assert.Equal(t, domain.KindMediaUnavailable, domain.KindOf(err))
	assertDirEmpty(t, dir)
}

type fakeRehoster struct {
	mu      sync.Mutex
	err     error
	removed []string
}

func (f *fakeRehoster) Rehost(ctx context.Context, path, contentType string) (string, func(context.Context) error, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return "https://cdn.example.com/rehosted.mp4", func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.removed = append(f.removed, path)
		return nil
	}, nil
}

func TestAcquirer_PublicURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(fakeVideo(2048))
	}))
	defer srv.Close()

	t.Run("direct source url without rehoster", func(t *testing.T) {
		dir := t.TempDir()
		h, err := newTestAcquirer(t, dir, nil).Acquire(context.Background(), srv.URL+"/v.mp4", true)
		require.NoError(t, err)
		defer h.Release()
		assert.Equal(t, srv.URL+"/v.mp4", h.PublicURL)
	})

	t.Run("rehosted copy is removed on release", func(t *testing.T) {
		dir := t.TempDir()
		rehoster := &fakeRehoster{}
		h, err := newTestAcquirer(t, dir, rehoster).Acquire(context.Background(), srv.URL, true)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/rehosted.mp4", h.PublicURL)

		h.Release()
		assert.Len(t, rehoster.removed, 1)
		assertDirEmpty(t, dir)
	})

	t.Run("rehoster skipped when not needed", func(t *testing.T) {
		dir := t.TempDir()
		rehoster := &fakeRehoster{}
		h, err := newTestAcquirer(t, dir, rehoster).Acquire(context.Background(), srv.URL, false)
		require.NoError(t, err)
		h.Release()
		assert.Empty(t, h.PublicURL)
		assert.Empty(t, rehoster.removed)
	})

	t.Run("rehost failure cleans up", func(t *testing.T) {
		dir := t.TempDir()
		rehoster := &fakeRehoster{err: errors.New("bucket gone")}
		_, err := newTestAcquirer(t, dir, rehoster).Acquire(context.Background(), srv.URL, true)
		assert.Equal(t, domain.KindMediaUnavailable, domain.KindOf(err))
		assertDirEmpty(t, dir)
	})
}

func TestDirectURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "file view link",
			in:   "https://drive.google.com/file/d/1AbCdEfGhIjKlMnOp/view?usp=sharing",
			want: "https://drive.google.com/uc?export=download&id=1AbCdEfGhIjKlMnOp&confirm=t",
		},
		{
			name: "open id link",
			in:   "https://drive.google.com/open?id=1AbCdEfGhIjKlMnOp",
			want: "https://drive.google.com/uc?export=download&id=1AbCdEfGhIjKlMnOp&confirm=t",
		},
		{
			name: "other host untouched",
			in:   "https://cdn.example.com/file/d/1AbCdEfGhIjKlMnOp",
			want: "https://cdn.example.com/file/d/1AbCdEfGhIjKlMnOp",
		},
		{
			name: "drive folder without id untouched",
			in:   "https://drive.google.com/drive/folders",
			want: "https://drive.google.com/drive/folders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DirectURL(tt.in))
		})
	}
}

type memoryObjectStore struct {
	objects map[string]string
}

func (m *memoryObjectStore) PutFile(ctx context.Context, key, path, contentType string) error {
	m.objects[key] = path
	return nil
}

func (m *memoryObjectStore) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://objects.example.com/" + key, nil
}

func (m *memoryObjectStore) Remove(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func TestObjectRehoster(t *testing.T) {
	store := &memoryObjectStore{objects: map[string]string{}}
	rehoster := NewObjectRehoster(store, "publisher/", time.Hour)

	publicURL, remove, err := rehoster.Rehost(context.Background(), "/tmp/media-123.mp4", "video/mp4")
	require.NoError(t, err)
	assert.Contains(t, publicURL, "https://objects.example.com/publisher/")
	assert.Len(t, store.objects, 1)

	require.NoError(t, remove(context.Background()))
	assert.Empty(t, store.objects)
}
