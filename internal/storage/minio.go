package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"alcyxob/present-coach/internal/config"
	"alcyxob/present-coach/internal/observability/logging"
)

// minioStorage implements FileStorage against a MinIO server.
type minioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage connects to MinIO and optionally creates the bucket.
func NewMinioStorage(ctx context.Context, cfg config.MinioConfig) (FileStorage, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket are required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	if cfg.EnsureBucket {
		if err := ensureBucket(ctx, cli, cfg.Bucket, cfg.Region); err != nil {
			return nil, err
		}
	}

	logger := logging.WithComponent("storage")
	logger.Info().
		Str("driver", "minio").
		Str("endpoint", cfg.Endpoint).
		Str("bucket", cfg.Bucket).
		Msg("storage initialized")

	return &minioStorage{client: cli, bucket: cfg.Bucket}, nil
}

func ensureBucket(ctx context.Context, cli *minio.Client, bucket, region string) error {
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// GeneratePresignedUploadURL signs a PUT with Content-Type bound to the
// signature.
func (m *minioStorage) GeneratePresignedUploadURL(ctx context.Context, objectKey string, contentType string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = DefaultPresignedURLExpiry
	}

	headers := http.Header{}
	headers.Set("Content-Type", contentType)

	u, err := m.client.PresignHeader(ctx, http.MethodPut, m.bucket, objectKey, expires, nil, headers)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", objectKey, err)
	}
	return u.String(), nil
}
