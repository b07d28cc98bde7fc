package blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint  string
	bucket    string
	accessKey string
	secretKey string
	useSSL    bool
}

// MinioSink stores payloads as objects in an S3-compatible bucket.
type MinioSink struct {
	cfg    *minioConfig
	client *minio.Client

	ensureOnce sync.Once
	ensureErr  error
}

func NewMinioSink(opts ...MinioOpts) (*MinioSink, error) {
	cfg := &minioConfig{useSSL: false}
	for _, o := range opts {
		o(cfg)
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	return &MinioSink{cfg: cfg, client: client}, nil
}

// Write uploads data under key, creating the bucket on first use. The
// returned reference is the object key.
func (s *MinioSink) Write(ctx context.Context, key string, data []byte) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	_, err := s.client.PutObject(ctx, s.cfg.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentTypeForKey(key)})
	if err != nil {
		return "", fmt.Errorf("putting object %s: %w", key, err)
	}

	return key, nil
}

func (s *MinioSink) ensureBucket(ctx context.Context) error {
	s.ensureOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.cfg.bucket)
		if err != nil {
			s.ensureErr = fmt.Errorf("checking bucket %s: %w", s.cfg.bucket, err)
			return
		}
		if exists {
			return
		}
		if err := s.client.MakeBucket(ctx, s.cfg.bucket, minio.MakeBucketOptions{}); err != nil {
			s.ensureErr = fmt.Errorf("creating bucket %s: %w", s.cfg.bucket, err)
		}
	})
	return s.ensureErr
}

func contentTypeForKey(key string) string {
	if ct := mimeTypes[strings.ToLower(path.Ext(key))]; ct != "" {
		return ct
	}
	return "application/octet-stream"
}

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		c.bucket = bucket
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretKey = secretKey
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}

var _ Sink = (*MinioSink)(nil)
