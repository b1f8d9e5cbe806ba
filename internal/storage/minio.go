// Package storage implements the optional off-site backup target for
// `aigent memory export-vault --remote` (SPEC_FULL DOMAIN STACK): the vault
// directory and the canonical event log are mirrored to a MinIO bucket so a
// lost data root can be restored from object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aigent/aigent/internal/logger"
)

// Client wraps a MinIO connection scoped to Aigent's single backup bucket.
type Client struct {
	mc     *minio.Client
	bucket string
}

// Config holds the MinIO connection settings (SPEC_FULL DOMAIN STACK:
// `MINIO_ENDPOINT`/`MINIO_ACCESS_KEY`/`MINIO_SECRET_KEY`/`MINIO_USE_SSL`,
// plus `MINIO_BUCKET` naming the backup bucket).
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// NewClient creates a new backup client. Callers should check the Enabled
// flag that internal/config computes for its storage settings before
// constructing one, since both keys are required.
func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "aigent-vault"
	}

	return &Client{mc: mc, bucket: bucket}, nil
}

// Init creates the backup bucket if it doesn't already exist.
func (c *Client) Init(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", c.bucket, err)
		}
		logger.Info("backup bucket created", "bucket", c.bucket)
	}
	return nil
}

// Upload uploads a single object under the backup bucket.
func (c *Client) Upload(ctx context.Context, key string, data []byte) error {
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	logger.Debug("backup object uploaded", "key", key, "size", len(data))
	return nil
}

// Download fetches a single object from the backup bucket.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// BackupTree walks root recursively and uploads every regular file under a
// prefix key, mirroring the directory's relative paths. Used by `memory
// export-vault --remote` to mirror the vault root, and can mirror the
// memory/ directory (event log + index) the same way.
func (c *Client) BackupTree(ctx context.Context, root, prefix string) (int, error) {
	uploaded := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		key := strings.TrimPrefix(filepath.ToSlash(filepath.Join(prefix, rel)), "/")
		if err := c.Upload(ctx, key, data); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	return uploaded, err
}

// List lists objects under a prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Healthy reports whether the backup bucket is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.mc.BucketExists(ctx, c.bucket)
	return err == nil
}
