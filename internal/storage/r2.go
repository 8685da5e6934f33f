// Package storage writes image blobs to a Cloudflare R2 bucket through the
// S3 API.
package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/petermazzocco/go-image-host/internal/config"
	"go.uber.org/zap"
)

// BlobStore is where original images and their compressed variants live.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Delete(ctx context.Context, path string) error
	URL(path string) string
}

// objectAPI is the subset of *s3.Client the store needs.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type R2Store struct {
	client    objectAPI
	bucket    string
	publicURL string
	log       *zap.Logger
}

// NewHTTPClient returns the TLS-restricted client used to talk to R2.
func NewHTTPClient() *http.Client {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			},
		},
	}
	return &http.Client{Transport: tr}
}

// NewR2Store builds an S3 client for the account's R2 endpoint.
func NewR2Store(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*R2Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage.bucket is required")
	}
	if cfg.AccountID == "" {
		return nil, fmt.Errorf("storage.account_id is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithHTTPClient(NewHTTPClient()),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
	})

	return newR2Store(client, cfg.Bucket, cfg.PublicURL, log), nil
}

func newR2Store(client objectAPI, bucket, publicURL string, log *zap.Logger) *R2Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &R2Store{
		client:    client,
		bucket:    bucket,
		publicURL: publicURL,
		log:       log,
	}
}

func (s *R2Store) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	obj, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	s.log.Debug("uploaded object",
		zap.String("key", path),
		zap.Int("bytes", len(data)),
		zap.String("etag", aws.ToString(obj.ETag)),
	)
	return nil
}

func (s *R2Store) Delete(ctx context.Context, path string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	s.log.Debug("deleted object", zap.String("key", path))
	return nil
}

// URL returns the public address of path. A public URL containing %s is
// used as a format string; otherwise path is appended to it.
func (s *R2Store) URL(path string) string {
	if path == "" {
		return ""
	}
	if strings.Contains(s.publicURL, "%s") {
		return CleanURL(fmt.Sprintf(s.publicURL, path))
	}
	return CleanURL(strings.TrimRight(s.publicURL, "/") + "/" + strings.TrimLeft(path, "/"))
}

func CleanURL(urlStr string) string {
	urlStr = strings.ReplaceAll(urlStr, " ", "%20")
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}

	return parsedURL.String()
}
