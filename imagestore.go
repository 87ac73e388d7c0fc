package pubsync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ImageStore persists processed uploads and returns the path clients use
// to reference them.
type ImageStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, name string) bool
}

// DiskImageStore writes images below Dir and serves them under URLPrefix.
type DiskImageStore struct {
	Dir       string
	URLPrefix string
}

func (d DiskImageStore) Put(_ context.Context, name string, data []byte, _ string) (string, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path.Join(d.URLPrefix, name), nil
}

func (d DiskImageStore) Exists(_ context.Context, name string) bool {
	_, err := os.Stat(filepath.Join(d.Dir, name))
	return err == nil
}

// s3API is the subset of the S3 client used here.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3ImageStore writes images to an S3-compatible bucket.
type S3ImageStore struct {
	client    s3API
	bucket    string
	prefix    string
	publicURL string
}

// NewS3ImageStore builds a store from the S3 settings of cfg. Static
// credentials are used when an access key is configured; otherwise the
// default AWS credential chain applies.
func NewS3ImageStore(ctx context.Context, cfg SiteConfig) (*S3ImageStore, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	publicURL := cfg.S3PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.S3Region)
	}
	return newS3ImageStore(client, cfg.S3Bucket, publicURL), nil
}

func newS3ImageStore(client s3API, bucket, publicURL string) *S3ImageStore {
	return &S3ImageStore{
		client:    client,
		bucket:    bucket,
		prefix:    "uploads",
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (s *S3ImageStore) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *S3ImageStore) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", s.key(name), err)
	}
	return s.publicURL + "/" + s.key(name), nil
}

func (s *S3ImageStore) Exists(ctx context.Context, name string) bool {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	return err == nil
}
