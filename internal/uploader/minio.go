package uploader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"media_bot/internal/config"
)

// Minio uploads to a MinIO (or any S3-compatible) endpoint.
type Minio struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewMinio creates a MinIO uploader. No request is made until the first upload.
func NewMinio(s config.UploadSettings, logger *slog.Logger) (*Minio, error) {
	client, err := minio.New(s.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(s.AccessKey, s.SecretKey, ""),
		Secure: s.UseSSL,
		Region: s.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Minio{client: client, bucket: s.Bucket, prefix: s.Prefix, logger: logger}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	m.logger.Info("bucket created", "bucket", m.bucket)
	return nil
}

// Upload implements Uploader.
func (m *Minio) Upload(ctx context.Context, localPath, key string, progress func(int64)) error {
	r, size, err := openProgress(localPath, progress)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	object := objectKey(m.prefix, key)
	_, err = m.client.PutObject(ctx, m.bucket, object, r, size, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", object, err)
	}
	m.logger.Debug("uploaded", "bucket", m.bucket, "key", object, "size", size)
	return nil
}
