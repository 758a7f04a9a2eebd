package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/config"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver keeps a copy of raw provider payloads for support and replays.
type Archiver interface {
	Archive(ctx context.Context, key string, body []byte) error
}

type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewArchiver returns an S3 backed archiver, or a no-op one when no bucket
// is configured.
func NewArchiver(cfg config.S3Config) Archiver {
	if cfg.Bucket == "" {
		logger.Info("Payload archive disabled, no s3 bucket configured")
		return NopArchiver{}
	}

	opts := s3.Options{
		Region: cfg.Region,
	}
	if cfg.AccessKeyID != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return &S3Archiver{
		client: s3.New(opts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}
}

func (a *S3Archiver) Archive(ctx context.Context, key string, body []byte) error {
	objectKey := path.Join(a.prefix, key)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", objectKey, err)
	}
	return nil
}

type NopArchiver struct{}

func (NopArchiver) Archive(context.Context, string, []byte) error { return nil }
