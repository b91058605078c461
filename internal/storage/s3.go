package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Compile-time check that S3Publisher implements Publisher.
var _ Publisher = (*S3Publisher)(nil)

// S3Config holds the configuration for S3 publishing.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
	// SignedURLTTL is how long returned URLs stay valid. Zero returns the
	// unsigned object URL, for public buckets.
	SignedURLTTL time.Duration
}

// S3Publisher uploads finished videos to an S3 bucket.
type S3Publisher struct {
	uploader *manager.Uploader
	presign  *s3.PresignClient
	bucket   string
	region   string
	ttl      time.Duration
}

// NewS3Publisher creates a new S3Publisher.
func NewS3Publisher(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: S3 bucket is empty", ErrPublisherNotConfigured)
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
			// S3-compatible stores often reject the default trailing checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Publisher{
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		ttl:      cfg.SignedURLTTL,
	}, nil
}

// Publish uploads the file at path and returns a URL for it. The local file
// is left in place.
func (p *S3Publisher) Publish(ctx context.Context, key, path, contentType string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - path is produced by the scratch area
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer func() { _ = f.Close() }()

	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}

	if p.ttl <= 0 {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.bucket, p.region, key), nil
	}

	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return "", fmt.Errorf("presign S3 object: %w", err)
	}
	return req.URL, nil
}
