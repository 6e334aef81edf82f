package storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/present-coach/internal/config"
)

func TestNewS3Storage_RequiresBucket(t *testing.T) {
	_, err := NewS3Storage(context.Background(), config.S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestS3Storage_PresignedUploadURL(t *testing.T) {
	fs, err := NewS3Storage(context.Background(), config.S3Config{
		Endpoint:        "https://objects.example.com",
		Region:          "us-east-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		BucketName:      "rehearsals",
	})
	require.NoError(t, err)

	raw, err := fs.GeneratePresignedUploadURL(context.Background(),
		"submissions/sub123/transactions/txn789/slides.pdf", "application/pdf", 10*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "objects.example.com", u.Host)
	assert.Equal(t, "/rehearsals/submissions/sub123/transactions/txn789/slides.pdf", u.Path)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("X-Amz-SignedHeaders"), "content-type")
}

func TestS3Storage_DefaultExpiry(t *testing.T) {
	fs, err := NewS3Storage(context.Background(), config.S3Config{
		Endpoint:        "https://objects.example.com",
		Region:          "us-east-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		BucketName:      "rehearsals",
	})
	require.NoError(t, err)

	raw, err := fs.GeneratePresignedUploadURL(context.Background(), "k", "audio/webm", 0)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
}

func TestMinioStorage_PresignedUploadURL(t *testing.T) {
	fs, err := NewMinioStorage(context.Background(), config.MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "rehearsals",
		Region:    "us-east-1",
	})
	require.NoError(t, err)

	raw, err := fs.GeneratePresignedUploadURL(context.Background(),
		"submissions/sub123/transactions/txn789/metrics.json", "application/json", time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/rehearsals/submissions/sub123/transactions/txn789/metrics.json", u.Path)
	assert.Equal(t, "60", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("X-Amz-SignedHeaders"), "content-type")
}

func TestNewMinioStorage_RequiresEndpointAndBucket(t *testing.T) {
	_, err := NewMinioStorage(context.Background(), config.MinioConfig{Bucket: "b"})
	assert.Error(t, err)
	_, err = NewMinioStorage(context.Background(), config.MinioConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.Config{Storage: config.StorageConfig{Driver: "ftp"}})
	assert.Error(t, err)
}
