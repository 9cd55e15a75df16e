package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"paytrack/internal/domain"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
}

// S3Client stores evidence files in an S3 compatible bucket.
type S3Client struct {
	raw    *minio.Client
	bucket string
	region string
	prefix string
}

func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	return &S3Client{
		raw:    client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		prefix: cfg.Prefix,
	}, nil
}

// EnsureBucket creates the configured bucket when it does not exist yet.
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.raw.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.raw.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
		return fmt.Errorf("create bucket %q: %w", c.bucket, err)
	}
	return nil
}

func (c *S3Client) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if c.raw == nil {
		return "", fmt.Errorf("s3 client is nil")
	}

	_, err := c.raw.PutObject(ctx, c.bucket, c.prefix+key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %q failed: %w", key, err)
	}

	return key, nil
}

func (c *S3Client) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if c.raw == nil {
		return nil, fmt.Errorf("s3 client is nil")
	}

	obj, err := c.raw.GetObject(ctx, c.bucket, c.prefix+key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q failed: %w", key, mapS3Error(err))
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller
	// starts streaming.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("get object %q failed: %w", key, mapS3Error(err))
	}
	return obj, nil
}

func (c *S3Client) Remove(ctx context.Context, key string) error {
	if c.raw == nil {
		return fmt.Errorf("s3 client is nil")
	}
	if err := c.raw.RemoveObject(ctx, c.bucket, c.prefix+key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q failed: %w", key, mapS3Error(err))
	}
	return nil
}

func mapS3Error(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return err
}
