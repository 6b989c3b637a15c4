package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/config"
)

// MinioStore serves blobs from an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the configured endpoint and verifies the bucket
// exists.
func NewMinioStore(ctx context.Context, cfg config.S3BlobConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 blob store requires endpoint and bucket")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Fetch downloads the object for the ref.
func (s *MinioStore) Fetch(ctx context.Context, ref Ref) (*Object, error) {
	key := ref.key()

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}

	mimeType := ""
	if stat, statErr := obj.Stat(); statErr == nil {
		mimeType = stat.ContentType
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		if byPath := mimeFromPath(key); byPath != "" {
			mimeType = byPath
		}
	}

	return &Object{Data: data, Path: key, MIMEType: mimeType}, nil
}

var _ Store = (*MinioStore)(nil)
