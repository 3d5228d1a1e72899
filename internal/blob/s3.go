package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3 stores artifacts in an S3-compatible object store. Containers map to
// buckets, created on first use.
type S3 struct {
	client *minio.Client
}

// Compile-time interface guard.
var _ Store = (*S3)(nil)

// S3Config holds the connection settings for an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewS3 connects to the configured endpoint.
func NewS3(cfg S3Config) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("blob: connect %s: %w", cfg.Endpoint, err)
	}
	return &S3{client: client}, nil
}

// Upload writes data to container/key, creating the bucket if needed.
func (s *S3) Upload(ctx context.Context, container, key string, data []byte, contentType string) error {
	exists, err := s.client.BucketExists(ctx, container)
	if err != nil {
		return fmt.Errorf("blob: check bucket %s: %w", container, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, container, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("blob: create bucket %s: %w", container, err)
		}
	}

	_, err = s.client.PutObject(ctx, container, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("blob: upload %s/%s: %w", container, key, err)
	}
	return nil
}

// Download returns the object's bytes.
func (s *S3) Download(ctx context.Context, container, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, container, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("blob: get %s/%s: %w", container, key, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("blob: read %s/%s: %w", container, key, err)
	}
	return data, nil
}
