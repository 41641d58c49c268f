package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	defaultObjectName = "report"
)

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	region          string
	objectName      string
	useSSL          bool
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		useSSL:     false,
		objectName: defaultObjectName,
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

type minioUploader struct {
	cfg    *minioConfig
	client *minio.Client
}

// NewMinioUploader returns an uploader storing reports in an S3 compatible bucket.
func NewMinioUploader(opts ...MinioOpts) (*minioUploader, error) {
	cfg := newConfig(opts...)
	if cfg.endpoint == "" || cfg.bucket == "" {
		return nil, fmt.Errorf("archive endpoint and bucket are required")
	}

	minioClient, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
		Region: cfg.region,
	})
	if err != nil {
		return nil, err
	}

	return &minioUploader{cfg: cfg, client: minioClient}, nil
}

// ObjectKey returns the key a report of the given run is stored under.
func (s *minioUploader) ObjectKey(runID, extension string) string {
	return ObjectKey(runID, s.cfg.objectName, extension)
}

// Put uploads content under <runID>/<object name>.<extension> and returns the key.
func (s *minioUploader) Put(ctx context.Context, runID, extension, contentType string, content []byte) (string, error) {
	key := s.ObjectKey(runID, extension)
	_, err := s.client.PutObject(ctx, s.cfg.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %s: %w", key, s.cfg.bucket, err)
	}
	return key, nil
}

func (s *minioUploader) Type() string {
	return "minio"
}

func ObjectKey(runID, name, extension string) string {
	return path.Join(runID, name+"."+extension)
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

func WithObjectName(name string) MinioOpts {
	return func(c *minioConfig) {
		c.objectName = name
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithRegion(region string) MinioOpts {
	return func(c *minioConfig) {
		c.region = region
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}
