package graph

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cuongbtq/publish-orchestrator/internal/platform/rest"
	"github.com/google/go-querystring/query"
)

const (
	DefaultBaseURL       = "https://graph.facebook.com"
	DefaultUploadBaseURL = "https://rupload.facebook.com"
	DefaultVersion       = "v19.0"
)

// Config holds Graph API endpoints
type Config struct {
	BaseURL       string
	UploadBaseURL string
	Version       string
}

// Client calls the Graph API shared by Instagram and Facebook pages
type Client struct {
	api           *rest.Client
	baseURL       string
	uploadBaseURL string
	version       string
}

// NewClient creates a Graph API client over a paced REST client
func NewClient(api *rest.Client, cfg Config) *Client {
	c := &Client{
		api:           api,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		uploadBaseURL: strings.TrimRight(cfg.UploadBaseURL, "/"),
		version:       cfg.Version,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.uploadBaseURL == "" {
		c.uploadBaseURL = DefaultUploadBaseURL
	}
	if c.version == "" {
		c.version = DefaultVersion
	}
	return c
}

// Version returns the Graph API version in use
func (c *Client) Version() string {
	return c.version
}

// UploadURL returns the resumable upload endpoint for a service ("ig-api-upload", "video-upload")
func (c *Client) UploadURL(service, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.uploadBaseURL, service, c.version, url.PathEscape(id))
}

// Get issues GET /{version}/{path} with params encoded from a url-tagged struct
func (c *Client) Get(ctx context.Context, path string, params any, token string, out any) error {
	values, err := encode(params, token)
	if err != nil {
		return err
	}

	return c.api.Do(ctx, rest.Request{
		Method:  http.MethodGet,
		URL:     c.endpoint(path) + "?" + values.Encode(),
		Decoded: out,
	})
}

// Post issues a form-encoded POST /{version}/{path}
func (c *Client) Post(ctx context.Context, path string, params any, token string, out any) error {
	values, err := encode(params, token)
	if err != nil {
		return err
	}

	return c.api.Do(ctx, rest.Request{
		Method:  http.MethodPost,
		URL:     c.endpoint(path),
		Header:  http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
		Body:    strings.NewReader(values.Encode()),
		Decoded: out,
	})
}

// Upload posts to a resumable upload endpoint
func (c *Client) Upload(ctx context.Context, uploadURL string, header http.Header, body io.Reader, out any) error {
	return c.api.Do(ctx, rest.Request{
		Method:  http.MethodPost,
		URL:     uploadURL,
		Header:  header,
		Body:    body,
		Decoded: out,
	})
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + "/" + c.version + "/" + strings.TrimLeft(path, "/")
}

func encode(params any, token string) (url.Values, error) {
	values := url.Values{}
	if params != nil {
		v, err := query.Values(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode graph params: %w", err)
		}
		values = v
	}
	if token != "" {
		values.Set("access_token", token)
	}
	return values, nil
}
