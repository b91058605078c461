// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/photoreel-api/internal/composition"
)

// Publish backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
)

// Static errors for configuration validation.
var (
	// ErrUnknownPublishBackend is returned when PUBLISH_BACKEND is not local, s3 or gcs.
	ErrUnknownPublishBackend = errors.New("config: PUBLISH_BACKEND must be local, s3 or gcs")
	// ErrS3BucketRequired is returned when the s3 backend is selected without S3_BUCKET and S3_REGION.
	ErrS3BucketRequired = errors.New("config: S3_BUCKET and S3_REGION are required for the s3 backend")
	// ErrGCSBucketRequired is returned when the gcs backend is selected without GCS_BUCKET.
	ErrGCSBucketRequired = errors.New("config: GCS_BUCKET is required for the gcs backend")
	// ErrPublicDirRequired is returned when the local backend has no PUBLIC_DIR.
	ErrPublicDirRequired = errors.New("config: PUBLIC_DIR is required for the local backend")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Scratch and assets
	TempDir  string `env:"TEMP_DIR, default=/tmp/photoreel" json:"temp_dir"`
	MusicDir string `env:"MUSIC_DIR, default=./assets/music" json:"music_dir"`

	// Encoder settings
	FFmpegPath    string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	EncodeTimeout time.Duration `env:"ENCODE_TIMEOUT, default=10m" json:"encode_timeout"`

	// Staging settings
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT, default=30s" json:"fetch_timeout"`
	FetchConcurrency int           `env:"FETCH_CONCURRENCY, default=4" json:"fetch_concurrency"`
	FetchMaxRetries  int           `env:"FETCH_MAX_RETRIES, default=2" json:"fetch_max_retries"`
	MaxPhotos        int           `env:"MAX_PHOTOS, default=50" json:"max_photos"`
	MaxPhotoBytes    int64         `env:"MAX_PHOTO_BYTES, default=26214400" json:"max_photo_bytes"`

	// Scratch housekeeping
	StaleScratchAge time.Duration `env:"STALE_SCRATCH_AGE, default=6h" json:"stale_scratch_age"`
	MinFreeBytes    uint64        `env:"MIN_FREE_BYTES, default=1073741824" json:"min_free_bytes"`

	// Publishing
	PublishBackend string        `env:"PUBLISH_BACKEND, default=local" json:"publish_backend"`
	PublicDir      string        `env:"PUBLIC_DIR, default=/tmp/photoreel/public" json:"public_dir"`
	PublicBaseURL  string        `env:"PUBLIC_BASE_URL" json:"public_base_url,omitempty"`
	SignedURLTTL   time.Duration `env:"SIGNED_URL_TTL, default=1h" json:"signed_url_ttl"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Optional GCS settings
	GCSBucket          string `env:"GCS_BUCKET" json:"gcs_bucket,omitempty"`
	GCSCredentialsFile string `env:"GCS_CREDENTIALS_FILE" json:"-"`

	// Composition defaults applied to fields a request omits
	Defaults Defaults `env:", prefix=DEFAULT_" json:"defaults"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// Defaults are the process-wide composition defaults. They are read once at
// startup and never change afterwards.
type Defaults struct {
	Transition         string  `env:"TRANSITION, default=fade" json:"transition"`
	PhotoDuration      float64 `env:"PHOTO_DURATION, default=3" json:"photo_duration"`
	TransitionDuration float64 `env:"TRANSITION_DURATION, default=1" json:"transition_duration"`
	Width              int     `env:"WIDTH, default=1280" json:"width"`
	Height             int     `env:"HEIGHT, default=720" json:"height"`
	FPS                int     `env:"FPS, default=30" json:"fps"`
	CRF                int     `env:"CRF, default=23" json:"crf"`
	Preset             string  `env:"PRESET, default=medium" json:"preset"`
	BackgroundColor    string  `env:"BACKGROUND_COLOR, default=black" json:"background_color"`
	ZoomDirection      string  `env:"ZOOM_DIRECTION, default=in" json:"zoom_direction"`
	ZoomRate           float64 `env:"ZOOM_RATE, default=0.0015" json:"zoom_rate"`
	MusicVolume        float64 `env:"MUSIC_VOLUME, default=0.8" json:"music_volume"`
}

// Composition returns the defaults as a composition config.
func (d Defaults) Composition() composition.Config {
	return composition.Config{
		TransitionMode:            composition.TransitionMode(strings.ToLower(d.Transition)),
		PhotoDurationSeconds:      d.PhotoDuration,
		TransitionDurationSeconds: d.TransitionDuration,
		Width:                     d.Width,
		Height:                    d.Height,
		FPS:                       d.FPS,
		QualityCRF:                d.CRF,
		EncoderPreset:             d.Preset,
		BackgroundColor:           d.BackgroundColor,
		ZoomDirection:             composition.ZoomDirection(strings.ToLower(d.ZoomDirection)),
		ZoomRatePerFrame:          d.ZoomRate,
		MusicVolume:               d.MusicVolume,
	}
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the publish backend settings and the composition defaults.
func (c *Config) Validate() error {
	switch strings.ToLower(c.PublishBackend) {
	case BackendLocal:
		if c.PublicDir == "" {
			return ErrPublicDirRequired
		}
	case BackendS3:
		if c.S3Bucket == "" || c.S3Region == "" {
			return ErrS3BucketRequired
		}
	case BackendGCS:
		if c.GCSBucket == "" {
			return ErrGCSBucketRequired
		}
	default:
		return ErrUnknownPublishBackend
	}

	if err := composition.ValidateConfig(c.Defaults.Composition()); err != nil {
		return fmt.Errorf("config: DEFAULT_* settings: %w", err)
	}
	return nil
}

// Limits returns the request limits.
func (c *Config) Limits() composition.Limits {
	return composition.Limits{MaxPhotos: c.MaxPhotos}
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger writing to w.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, MusicDir: %s, FFmpegPath: %s, EncodeTimeout: %s, FetchTimeout: %s, FetchConcurrency: %d, MaxPhotos: %d, PublishBackend: %s, S3Bucket: %s, S3Region: %s, GCSBucket: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.MusicDir,
		c.FFmpegPath,
		c.EncodeTimeout,
		c.FetchTimeout,
		c.FetchConcurrency,
		c.MaxPhotos,
		c.PublishBackend,
		c.S3Bucket,
		c.S3Region,
		c.GCSBucket,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
