package uploader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"media_bot/internal/config"
)

// S3 uploads to AWS S3, or to a custom endpoint with path-style addressing.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3 creates an S3 uploader. Static keys are used when configured,
// otherwise the default AWS credential chain.
func NewS3(ctx context.Context, s config.UploadSettings, logger *slog.Logger) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(s.Region)}
	if s.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{client: client, bucket: s.Bucket, prefix: s.Prefix, logger: logger}, nil
}

// Upload implements Uploader.
func (u *S3) Upload(ctx context.Context, localPath, key string, progress func(int64)) error {
	r, size, err := openProgress(localPath, progress)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	object := objectKey(u.prefix, key)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(object),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType(localPath)),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", object, err)
	}
	u.logger.Debug("uploaded", "bucket", u.bucket, "key", object, "size", size)
	return nil
}
