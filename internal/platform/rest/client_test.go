package rest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return NewClient(&Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func TestClient_Do(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		expect        []int
		wantErr       bool
		wantRetryable bool
		wantMessage   string
	}{
		{
			name:   "success decodes body",
			status: http.StatusOK,
			body:   `{"id":"123"}`,
		},
		{
			name:   "explicit expected status",
			status: http.StatusCreated,
			body:   `{"id":"123"}`,
			expect: []int{http.StatusCreated},
		},
		{
			name:        "unexpected 2xx",
			status:      http.StatusOK,
			body:        `{"id":"123"}`,
			expect:      []int{http.StatusCreated},
			wantErr:     true,
			wantMessage: "platform responded 200",
		},
		{
			name:        "graph error shape",
			status:      http.StatusBadRequest,
			body:        `{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`,
			wantErr:     true,
			wantMessage: "Invalid OAuth access token (OAuthException, code 190)",
		},
		{
			name:        "flat error shape",
			status:      http.StatusUnauthorized,
			body:        `{"code":2,"message":"Authentication failed."}`,
			wantErr:     true,
			wantMessage: "Authentication failed.",
		},
		{
			name:          "rate limited is retryable",
			status:        http.StatusTooManyRequests,
			body:          `slow down`,
			wantErr:       true,
			wantRetryable: true,
			wantMessage:   "slow down",
		},
		{
			name:          "server error is retryable",
			status:        http.StatusBadGateway,
			wantErr:       true,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Accept"))
				assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			var out struct {
				ID string `json:"id"`
			}
			err := newTestClient().Do(context.Background(), Request{
				Method:  http.MethodGet,
				URL:     srv.URL + "/v1/thing?access_token=secret",
				Header:  http.Header{"Authorization": {"Bearer tkn"}},
				Expect:  tt.expect,
				Decoded: &out,
			})

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "123", out.ID)
				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.wantRetryable, domain.IsRetryable(err))
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Contains(t, apiErr.Error(), tt.wantMessage)
			assert.NotContains(t, err.Error(), "secret")
		})
	}
}

func TestClient_TransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := newTestClient().Do(context.Background(), Request{Method: http.MethodGet, URL: url + "?access_token=secret"})
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.NotContains(t, err.Error(), "secret")
}

func TestClient_DefaultHTTPClientHasNoDeadline(t *testing.T) {
	assert.Zero(t, newTestClient().httpClient.Timeout)
}

func TestClient_ContextBoundsRequest(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		delay   time.Duration
		wantErr bool
	}{
		{name: "slow upload inside deadline", timeout: 2 * time.Second, delay: 100 * time.Millisecond},
		{name: "deadline exceeded", timeout: 30 * time.Millisecond, delay: time.Second, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(tt.delay):
					w.WriteHeader(http.StatusNoContent)
				case <-r.Context().Done():
				}
			}))
			t.Cleanup(slow.Close)

			ctx, cancel := context.WithTimeout(context.Background(), tt.timeout)
			defer cancel()

			err := newTestClient().Do(ctx, Request{Method: http.MethodPost, URL: slow.URL})
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}
