package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"
	config "github.com/maheshrc27/contentops/configs"
)

var ErrImageNotReachable = errors.New("image URL is not publicly reachable")

type ObjectUploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// R2Uploader writes objects to a Cloudflare R2 bucket through the S3 API.
type R2Uploader struct {
	client *s3.Client
	bucket string
}

func NewR2Uploader(ctx context.Context, cfg config.R2) (*R2Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("load r2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
	})
	return &R2Uploader{client: client, bucket: cfg.BucketName}, nil
}

func (r *R2Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// MediaStager turns an item's image reference into a URL the platform can fetch.
type MediaStager struct {
	uploadDir     string
	publicBaseURL string
	objectBaseURL string
	uploader      ObjectUploader

	mu     sync.Mutex
	staged map[string]string
}

// NewMediaStager builds a stager. uploader may be nil, in which case relative
// images are served from publicBaseURL.
func NewMediaStager(uploadDir, publicBaseURL, objectBaseURL string, uploader ObjectUploader) *MediaStager {
	return &MediaStager{
		uploadDir:     uploadDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		objectBaseURL: strings.TrimRight(objectBaseURL, "/"),
		uploader:      uploader,
		staged:        map[string]string{},
	}
}

// Stage returns a publicly reachable URL for imageURL. Absolute http(s) URLs pass
// through; relative ones are uploaded to object storage or resolved against the
// public base URL. An upload is staged once per process; retries reuse its URL.
func (m *MediaStager) Stage(ctx context.Context, imageURL string) (string, error) {
	switch {
	case strings.HasPrefix(imageURL, "https://"), strings.HasPrefix(imageURL, "http://"):
		return imageURL, nil
	case !strings.HasPrefix(imageURL, "/"):
		return "", fmt.Errorf("%w: %q", ErrImageNotReachable, imageURL)
	}

	clean := path.Clean(imageURL)

	if m.uploader != nil && m.objectBaseURL != "" {
		return m.upload(ctx, clean)
	}
	if m.publicBaseURL != "" {
		return m.publicBaseURL + clean, nil
	}
	return "", fmt.Errorf("%w: %q", ErrImageNotReachable, imageURL)
}

func (m *MediaStager) upload(ctx context.Context, clean string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if staged, ok := m.staged[clean]; ok {
		return staged, nil
	}

	rel := strings.TrimPrefix(strings.TrimPrefix(clean, "/uploads/"), "/")
	data, err := os.ReadFile(filepath.Join(m.uploadDir, filepath.FromSlash(rel)))
	if err != nil {
		return "", fmt.Errorf("read upload %s: %w", rel, err)
	}

	kind, err := filetype.Match(data)
	if err != nil || !filetype.IsImage(data) {
		return "", fmt.Errorf("upload %s is not an image", rel)
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate object key: %w", err)
	}
	key := fmt.Sprintf("media/%s.%s", id, kind.Extension)

	if err := m.uploader.Upload(ctx, key, data, kind.MIME.Value); err != nil {
		return "", err
	}
	staged := m.objectBaseURL + "/" + key
	m.staged[clean] = staged
	return staged, nil
}
