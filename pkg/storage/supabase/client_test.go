package supabase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/gigmarket/gigmarket-backend/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	storagego "github.com/supabase-community/storage-go"
)

type fakeAPI struct {
	uploaded   map[string][]byte
	opts       storagego.FileOptions
	signedPath string
	signedTTL  int
	signedURL  string
	removed    []string
	err        error
}

func (f *fakeAPI) UploadFile(_ string, path string, data io.Reader, opts ...storagego.FileOptions) (storagego.FileUploadResponse, error) {
	if f.err != nil {
		return storagego.FileUploadResponse{}, f.err
	}
	b, _ := io.ReadAll(data)
	if f.uploaded == nil {
		f.uploaded = map[string][]byte{}
	}
	f.uploaded[path] = b
	if len(opts) > 0 {
		f.opts = opts[0]
	}
	return storagego.FileUploadResponse{}, nil
}

func (f *fakeAPI) CreateSignedUrl(_ string, path string, expiresIn int) (storagego.SignedUrlResponse, error) {
	if f.err != nil {
		return storagego.SignedUrlResponse{}, f.err
	}
	f.signedPath = path
	f.signedTTL = expiresIn
	return storagego.SignedUrlResponse{SignedURL: f.signedURL}, nil
}

func (f *fakeAPI) RemoveFile(_ string, paths []string) ([]storagego.FileUploadResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.removed = append(f.removed, paths...)
	return nil, nil
}

func (f *fakeAPI) GetBucket(string) (storagego.Bucket, error) {
	if f.err != nil {
		return storagego.Bucket{}, f.err
	}
	return storagego.Bucket{}, nil
}

func newTestClient(api *fakeAPI) *Client {
	return &Client{api: api, bucket: "delivery-files", baseURL: "https://proj.supabase.co"}
}

func TestUploadSetsContentTypeAndUpsert(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(api)

	err := c.Upload(context.Background(), "orders/o1/a.pdf", "application/pdf", bytes.NewBufferString("pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf"), api.uploaded["orders/o1/a.pdf"])
	require.NotNil(t, api.opts.ContentType)
	assert.Equal(t, "application/pdf", *api.opts.ContentType)
	require.NotNil(t, api.opts.Upsert)
	assert.True(t, *api.opts.Upsert)
}

func TestSignedURLResolvesRelativePaths(t *testing.T) {
	api := &fakeAPI{signedURL: "/object/sign/delivery-files/a.pdf?token=abc"}
	c := newTestClient(api)

	url, err := c.SignedURL(context.Background(), "a.pdf", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://proj.supabase.co/storage/v1/object/sign/delivery-files/a.pdf?token=abc", url)
	assert.Equal(t, 3600, api.signedTTL)

	api.signedURL = "https://cdn.example.com/a.pdf?token=abc"
	url, err = c.SignedURL(context.Background(), "a.pdf", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.pdf?token=abc", url)
	assert.Equal(t, 60, api.signedTTL)
}

func TestDeleteSkipsEmptyAndWrapsErrors(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(api)
	require.NoError(t, c.Delete(context.Background()))
	assert.Empty(t, api.removed)

	require.NoError(t, c.Delete(context.Background(), "a", "b"))
	assert.Equal(t, []string{"a", "b"}, api.removed)

	api.err = errors.New("503")
	assert.Error(t, c.Delete(context.Background(), "c"))
	assert.Error(t, c.Ping(context.Background()))
}

func TestCanceledContextShortCircuits(t *testing.T) {
	c := newTestClient(&fakeAPI{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Upload(ctx, "p", "", bytes.NewReader(nil)), context.Canceled)
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.StorageConfig{}, nil)
	assert.Error(t, err)

	c, err := NewClient(context.Background(), config.StorageConfig{
		SupabaseURL:    "https://proj.supabase.co/",
		ServiceRoleKey: "key",
		Bucket:         "delivery-files",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://proj.supabase.co", c.baseURL)
}
