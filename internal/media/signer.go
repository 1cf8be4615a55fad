package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"valentine/internal/config"
)

var ErrInvalidKey = errors.New("invalid media key")

// Signer turns a catalog media key into a URL the visitor can fetch.
type Signer interface {
	URL(ctx context.Context, key string) (string, error)
}

// New returns an S3 presigner when a bucket is configured and a static
// URL builder otherwise.
func New(ctx context.Context, cfg config.MediaConfig) (Signer, error) {
	if cfg.Bucket == "" {
		return StaticSigner{BaseURL: cfg.BaseURL}, nil
	}
	return NewS3Signer(ctx, cfg)
}

type S3Signer struct {
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

func NewS3Signer(ctx context.Context, cfg config.MediaConfig) (*S3Signer, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &S3Signer{presign: s3.NewPresignClient(client), bucket: cfg.Bucket, ttl: ttl}, nil
}

func (s *S3Signer) URL(ctx context.Context, key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// StaticSigner joins keys onto a fixed base, for media served from disk.
type StaticSigner struct {
	BaseURL string
}

func (s StaticSigner) URL(_ context.Context, key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	base := s.BaseURL
	if base == "" {
		base = "/media/"
	}
	return url.JoinPath(base, key)
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}
