package minio

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	miniosdk "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds MinIO/S3 connection configuration
type Config struct {
	Endpoint       string
	PublicEndpoint string // host used in presigned URLs, if different
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
}

// Client stores media objects in a bucket and hands out presigned URLs
type Client struct {
	client        *miniosdk.Client
	presignClient *miniosdk.Client
	bucket        string
	logger        *slog.Logger
}

// NewClient creates a client and makes sure the bucket exists
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	client, err := miniosdk.New(config.Endpoint, &miniosdk.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	presignClient := client
	if config.PublicEndpoint != "" && config.PublicEndpoint != config.Endpoint {
		presignClient, err = miniosdk.New(config.PublicEndpoint, &miniosdk.Options{
			Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
			Secure: config.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create public MinIO client: %w", err)
		}
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, config.Bucket, miniosdk.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("Created MinIO bucket",
			slog.String("bucket", config.Bucket),
		)
	}

	return &Client{
		client:        client,
		presignClient: presignClient,
		bucket:        config.Bucket,
		logger:        logger,
	}, nil
}

// PutFile uploads a local file under key
func (c *Client) PutFile(ctx context.Context, key, path, contentType string) error {
	info, err := c.client.FPutObject(ctx, c.bucket, key, path, miniosdk.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}

	c.logger.Debug("Object uploaded",
		slog.String("bucket", c.bucket),
		slog.String("key", key),
		slog.Int64("size", info.Size),
	)

	return nil
}

// Remove deletes the object stored under key
func (c *Client) Remove(ctx context.Context, key string) error {
	if err := c.client.RemoveObject(ctx, c.bucket, key, miniosdk.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// PresignedGetURL returns a time-limited public URL for key
func (c *Client) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := c.presignClient.PresignedGetObject(ctx, c.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}

// Bucket returns the configured bucket name
func (c *Client) Bucket() string {
	return c.bucket
}
