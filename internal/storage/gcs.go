package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Compile-time check that GCSPublisher implements Publisher.
var _ Publisher = (*GCSPublisher)(nil)

// GCSConfig holds the configuration for Google Cloud Storage publishing.
type GCSConfig struct {
	Bucket string
	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string
	// SignedURLTTL is how long returned URLs stay valid. Zero returns the
	// public object URL.
	SignedURLTTL time.Duration
}

// GCSPublisher uploads finished videos to a GCS bucket.
type GCSPublisher struct {
	client *gcs.Client
	bucket string
	ttl    time.Duration
	logger *slog.Logger
}

// NewGCSPublisher creates a new GCSPublisher. Close releases the client.
func NewGCSPublisher(ctx context.Context, cfg GCSConfig, logger *slog.Logger) (*GCSPublisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: GCS bucket is empty", ErrPublisherNotConfigured)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	return &GCSPublisher{client: client, bucket: cfg.Bucket, ttl: cfg.SignedURLTTL, logger: logger}, nil
}

// Publish uploads the file at path and returns a URL for it. When the client
// cannot sign URLs the public object URL is returned instead.
func (p *GCSPublisher) Publish(ctx context.Context, key, path, contentType string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - path is produced by the scratch area
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer func() { _ = f.Close() }()

	bucket := p.client.Bucket(p.bucket)
	w := bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload to GCS: %w", err)
	}

	public := p.objectURL(key)
	if p.ttl <= 0 {
		return public, nil
	}

	signed, err := bucket.SignedURL(key, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(p.ttl),
	})
	if err != nil {
		p.logger.Warn("cannot sign GCS url, returning object url",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return public, nil
	}
	return signed, nil
}

// Close releases the underlying client.
func (p *GCSPublisher) Close() error {
	return p.client.Close()
}

func (p *GCSPublisher) objectURL(key string) string {
	u := url.URL{Scheme: "https", Host: "storage.googleapis.com", Path: "/" + p.bucket + "/" + key}
	return u.String()
}
