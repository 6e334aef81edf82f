package storage

import (
	"context"
	"fmt"
	"time"

	"alcyxob/present-coach/internal/config"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

// FileStorage issues time-limited, write-only upload targets.
type FileStorage interface {
	// GeneratePresignedUploadURL creates a temporary URL that accepts a PUT of
	// objectKey. The uploader must send contentType as its Content-Type.
	GeneratePresignedUploadURL(ctx context.Context, objectKey string, contentType string, expires time.Duration) (string, error)
}

// New builds the backend selected by cfg.Storage.Driver.
func New(ctx context.Context, cfg config.Config) (FileStorage, error) {
	switch cfg.Storage.Driver {
	case "s3":
		return NewS3Storage(ctx, cfg.S3)
	case "minio":
		return NewMinioStorage(ctx, cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
