// Package bootstrap provides dependency initialization for the photoreel API.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/maauso/photoreel-api/internal/audio"
	"github.com/maauso/photoreel-api/internal/config"
	"github.com/maauso/photoreel-api/internal/encoder"
	"github.com/maauso/photoreel-api/internal/job"
	"github.com/maauso/photoreel-api/internal/preflight"
	"github.com/maauso/photoreel-api/internal/stage"
	"github.com/maauso/photoreel-api/internal/storage"
)

// Pipeline is the composition pipeline without a publisher. The CLI uses it
// directly; the HTTP server wraps it in Dependencies.
type Pipeline struct {
	Service *job.ComposeService
	Scratch *storage.Scratch
	Music   *audio.Registry
}

// NewPipeline wires scratch, music registry, stager, encoder and job service.
// Stale scratch entries from earlier runs are removed first.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	scratch, err := storage.NewScratch(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create scratch: %w", err)
	}
	if cfg.StaleScratchAge > 0 {
		removed, err := scratch.CleanStale(ctx, cfg.StaleScratchAge)
		if err != nil {
			logger.Warn("failed to clean stale scratch entries",
				slog.String("dir", scratch.Root()),
				slog.String("error", err.Error()),
			)
		} else if removed > 0 {
			logger.Info("removed stale scratch entries",
				slog.Int("count", removed),
				slog.Duration("max_age", cfg.StaleScratchAge),
			)
		}
	}

	music := audio.NewRegistry(cfg.MusicDir)
	logger.Debug("music registry configured",
		slog.String("dir", music.Dir()),
		slog.Int("tracks", len(music.Keys())),
	)

	stager := stage.New(music,
		stage.WithHTTPClient(&http.Client{}),
		stage.WithLogger(logger),
		stage.WithFetchTimeout(cfg.FetchTimeout),
		stage.WithMaxRetries(cfg.FetchMaxRetries),
		stage.WithConcurrency(cfg.FetchConcurrency),
		stage.WithMaxPhotoBytes(cfg.MaxPhotoBytes),
	)

	enc := encoder.New(cfg.FFmpegPath, encoder.WithLogger(logger))

	svc := job.NewComposeService(job.NewMemoryRepository(), stager, enc, scratch,
		job.WithLogger(logger),
		job.WithLimits(cfg.Limits()),
		job.WithEncodeTimeout(cfg.EncodeTimeout),
	)

	return &Pipeline{Service: svc, Scratch: scratch, Music: music}, nil
}

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	*Pipeline
	Publisher storage.Publisher

	cfg     *config.Config
	closers []func() error
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	pipeline, err := NewPipeline(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{Pipeline: pipeline, cfg: cfg}
	if err := deps.initPublisher(ctx, logger); err != nil {
		return nil, err
	}
	return deps, nil
}

// HealthCheck runs the preflight checks against the configured encoder and
// scratch directory.
func (d *Dependencies) HealthCheck(ctx context.Context) []preflight.Result {
	return preflight.RunAll(ctx, d.cfg.FFmpegPath, d.Scratch.Root(), d.cfg.MinFreeBytes)
}

// Close releases publisher clients.
func (d *Dependencies) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// initPublisher creates the publish backend selected by configuration.
func (d *Dependencies) initPublisher(ctx context.Context, logger *slog.Logger) error {
	cfg := d.cfg
	switch strings.ToLower(cfg.PublishBackend) {
	case config.BackendS3:
		pub, err := storage.NewS3Publisher(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			SignedURLTTL:    cfg.SignedURLTTL,
		})
		if err != nil {
			return fmt.Errorf("create S3 publisher: %w", err)
		}
		logger.Info("S3 publisher configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		d.Publisher = pub

	case config.BackendGCS:
		pub, err := storage.NewGCSPublisher(ctx, storage.GCSConfig{
			Bucket:          cfg.GCSBucket,
			CredentialsFile: cfg.GCSCredentialsFile,
			SignedURLTTL:    cfg.SignedURLTTL,
		}, logger)
		if err != nil {
			return fmt.Errorf("create GCS publisher: %w", err)
		}
		logger.Info("GCS publisher configured",
			slog.String("bucket", cfg.GCSBucket),
		)
		d.Publisher = pub
		d.closers = append(d.closers, pub.Close)

	default:
		pub, err := storage.NewLocalPublisher(cfg.PublicDir, cfg.PublicBaseURL)
		if err != nil {
			return fmt.Errorf("create local publisher: %w", err)
		}
		logger.Info("local publisher configured",
			slog.String("public_dir", cfg.PublicDir),
		)
		d.Publisher = pub
	}
	return nil
}
