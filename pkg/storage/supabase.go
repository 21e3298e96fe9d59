package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/storyloom/storyloom/pkg/config"
	"github.com/storyloom/storyloom/pkg/version"
)

// Client uploads artifacts to a Supabase-compatible storage API. Objects are
// keyed <story_id>/<sequence>.<ext> inside a per-media bucket, so retried
// scene work overwrites instead of accumulating blobs.
type Client struct {
	endpoint     string
	apiKey       string
	bucketImages string
	bucketAudio  string
	httpClient   *http.Client
}

var _ Uploader = (*Client)(nil)

// NewClient constructs the storage client, resolving the service key from
// the configured environment variable.
func NewClient(cfg *config.StorageConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("storage: environment variable %s is not set", cfg.APIKeyEnv)
	}
	return &Client{
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:       apiKey,
		bucketImages: cfg.BucketImages,
		bucketAudio:  cfg.BucketAudio,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// UploadImage implements Uploader.
func (c *Client) UploadImage(ctx context.Context, storyID string, sequence int, data []byte) (string, error) {
	key := fmt.Sprintf("%s/%d.png", storyID, sequence)
	return c.upload(ctx, c.bucketImages, key, "image/png", data)
}

// UploadAudio implements Uploader.
func (c *Client) UploadAudio(ctx context.Context, storyID string, sequence int, data []byte) (string, error) {
	key := fmt.Sprintf("%s/%d.mp3", storyID, sequence)
	return c.upload(ctx, c.bucketAudio, key, "audio/mpeg", data)
}

// upload writes the object with upsert semantics and returns its public URL.
func (c *Client) upload(ctx context.Context, bucket, key, contentType string, data []byte) (string, error) {
	if err := validatePayload(data); err != nil {
		return "", fmt.Errorf("%s/%s: %d bytes: %w", bucket, key, len(data), err)
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.endpoint, bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", version.Full())
	// Overwrite on redelivery instead of failing with a conflict.
	req.Header.Set("x-upsert", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to URL construction
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("upload %s/%s: status %d: %w", bucket, key, resp.StatusCode, ErrNotWritable)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload %s/%s: status %d: %s", bucket, key, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	publicURL := c.PublicURL(bucket, key)
	slog.DebugContext(ctx, "Uploaded artifact",
		"bucket", bucket,
		"key", key,
		"bytes", len(data))
	return publicURL, nil
}

// PublicURL returns the unauthenticated read URL for an object.
func (c *Client) PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.endpoint, bucket, key)
}
