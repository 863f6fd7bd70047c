package supabase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gigmarket/gigmarket-backend/pkg/config"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	storagego "github.com/supabase-community/storage-go"
)

// objectAPI is the subset of the storage-go client used here.
type objectAPI interface {
	UploadFile(bucketID, relativePath string, data io.Reader, opts ...storagego.FileOptions) (storagego.FileUploadResponse, error)
	CreateSignedUrl(bucketID, filePath string, expiresIn int) (storagego.SignedUrlResponse, error)
	RemoveFile(bucketID string, paths []string) ([]storagego.FileUploadResponse, error)
	GetBucket(id string) (storagego.Bucket, error)
}

// Client stores delivery files in a private Supabase Storage bucket.
type Client struct {
	api     objectAPI
	bucket  string
	baseURL string
}

// NewClient builds a storage client authenticated with the service-role key.
func NewClient(ctx context.Context, cfg config.StorageConfig, logg *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("supabase url is required")
	}
	if cfg.ServiceRoleKey == "" {
		return nil, errors.New("supabase service role key is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	c := &Client{
		api:     storagego.NewClient(baseURL+"/storage/v1", cfg.ServiceRoleKey, nil),
		bucket:  cfg.Bucket,
		baseURL: baseURL,
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.Bucket), "supabase storage client initialized")
	}
	return c, nil
}

// Upload writes body to path, replacing any previous object.
func (c *Client) Upload(ctx context.Context, path, contentType string, body io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	upsert := true
	opts := storagego.FileOptions{Upsert: &upsert}
	if contentType != "" {
		opts.ContentType = &contentType
	}
	if _, err := c.api.UploadFile(c.bucket, path, body, opts); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

// SignedURL returns a time-limited download URL for path.
func (c *Client) SignedURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	seconds := int(expiry / time.Second)
	if seconds <= 0 {
		seconds = 60
	}
	resp, err := c.api.CreateSignedUrl(c.bucket, path, seconds)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", path, err)
	}
	if resp.SignedURL == "" {
		return "", fmt.Errorf("sign %s: empty url", path)
	}
	return c.absolute(resp.SignedURL), nil
}

// Delete removes the objects at paths. Missing objects are not an error.
func (c *Client) Delete(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.RemoveFile(c.bucket, paths); err != nil {
		return fmt.Errorf("remove %d objects: %w", len(paths), err)
	}
	return nil
}

// Ping verifies the bucket is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errors.New("storage client not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.GetBucket(c.bucket); err != nil {
		return fmt.Errorf("get bucket %s: %w", c.bucket, err)
	}
	return nil
}

// absolute resolves the relative paths some storage API versions return.
func (c *Client) absolute(signed string) string {
	if strings.HasPrefix(signed, "http://") || strings.HasPrefix(signed, "https://") {
		return signed
	}
	return c.baseURL + "/storage/v1" + "/" + strings.TrimLeft(signed, "/")
}
