// Package media stores admin image uploads in S3-compatible object storage.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const DefaultMaxBytes = 5 << 20

var (
	ErrTooLarge        = errors.New("upload exceeds size limit")
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrEmpty           = errors.New("upload is empty")
)

// Sniffed content type to object extension. SVG is left out since it can
// carry script.
var extensions = map[string]string{
	"image/png":    ".png",
	"image/jpeg":   ".jpg",
	"image/gif":    ".gif",
	"image/webp":   ".webp",
	"image/bmp":    ".bmp",
	"image/x-icon": ".ico",
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL prefixes object keys in returned URLs. Defaults to the
	// endpoint's path-style bucket URL.
	PublicURL string
	MaxBytes  int64
}

type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Upload struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type Uploader struct {
	objects   objectStore
	bucket    string
	publicURL string
	maxBytes  int64
	now       func() time.Time
	newID     func() string
}

func New(cfg Config) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
	}
	return newUploader(client, cfg.Bucket, publicURL, cfg.MaxBytes), nil
}

func newUploader(objects objectStore, bucket, publicURL string, maxBytes int64) *Uploader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Uploader{
		objects:   objects,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		maxBytes:  maxBytes,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (u *Uploader) MaxBytes() int64 {
	return u.maxBytes
}

// EnsureBucket creates the bucket when it does not exist yet.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.objects.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.objects.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", u.bucket, err)
	}
	return nil
}

// Upload stores one image. The content type is sniffed from the bytes; the
// client-declared type is ignored.
func (u *Uploader) Upload(ctx context.Context, r io.Reader) (Upload, error) {
	payload, err := io.ReadAll(io.LimitReader(r, u.maxBytes+1))
	if err != nil {
		return Upload{}, fmt.Errorf("read upload: %w", err)
	}
	if len(payload) == 0 {
		return Upload{}, ErrEmpty
	}
	if int64(len(payload)) > u.maxBytes {
		return Upload{}, fmt.Errorf("%w: max %d bytes", ErrTooLarge, u.maxBytes)
	}

	contentType := http.DetectContentType(payload)
	ext, ok := extensions[contentType]
	if !ok {
		return Upload{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	now := u.now().UTC()
	key := fmt.Sprintf("uploads/%04d/%02d/%s%s", now.Year(), int(now.Month()), u.newID(), ext)
	if _, err := u.objects.PutObject(ctx, u.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	}); err != nil {
		return Upload{}, fmt.Errorf("put object %s: %w", key, err)
	}

	return Upload{
		Key:         key,
		URL:         u.publicURL + "/" + key,
		ContentType: contentType,
		Size:        int64(len(payload)),
	}, nil
}
