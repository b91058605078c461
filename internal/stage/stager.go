// Package stage resolves composition inputs into readable local files inside
// a job's scratch directory.
package stage

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder
	"golang.org/x/sync/errgroup"

	"github.com/maauso/photoreel-api/internal/audio"
	"github.com/maauso/photoreel-api/internal/composition"
)

// Static errors for staging.
var (
	// ErrNotRegularFile is returned when a local source is a directory or device.
	ErrNotRegularFile = errors.New("stage: not a regular file")
	// ErrJobDirRequired is returned when Stage is called without a scratch directory.
	ErrJobDirRequired = errors.New("stage: job directory is required")
)

// MusicResolver maps an audio selection to a track path.
type MusicResolver interface {
	Resolve(key composition.AudioSelection) (string, error)
}

// Staged is the outcome of a successful Stage call.
type Staged struct {
	// Photos are in input order.
	Photos []composition.StagedAsset
	// Music is nil when no track was selected.
	Music *composition.StagedAsset
}

// Stager fetches and verifies photos and the music track.
type Stager struct {
	music        MusicResolver
	httpClient   *http.Client
	logger       *slog.Logger
	fetchTimeout time.Duration
	maxRetries   int
	baseBackoff  time.Duration
	concurrency  int
	maxBytes     int64
	probe        func(path string) float64
}

// Option configures a Stager.
type Option func(*Stager)

// WithHTTPClient sets the client used for remote photos.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Stager) {
		s.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stager) {
		s.logger = l
	}
}

// WithFetchTimeout bounds each download attempt.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Stager) {
		s.fetchTimeout = d
	}
}

// WithMaxRetries sets how many times a transient fetch failure is retried.
func WithMaxRetries(n int) Option {
	return func(s *Stager) {
		s.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff between fetch attempts.
func WithBaseBackoff(d time.Duration) Option {
	return func(s *Stager) {
		s.baseBackoff = d
	}
}

// WithConcurrency sets how many photos are staged at once.
func WithConcurrency(n int) Option {
	return func(s *Stager) {
		s.concurrency = n
	}
}

// WithMaxPhotoBytes caps the size of a downloaded photo.
func WithMaxPhotoBytes(n int64) Option {
	return func(s *Stager) {
		s.maxBytes = n
	}
}

// WithDurationProbe replaces the music length probe.
func WithDurationProbe(fn func(path string) float64) Option {
	return func(s *Stager) {
		s.probe = fn
	}
}

// New creates a Stager that resolves music through music.
func New(music MusicResolver, opts ...Option) *Stager {
	s := &Stager{
		music:        music,
		httpClient:   &http.Client{},
		fetchTimeout: 30 * time.Second,
		maxRetries:   2,
		baseBackoff:  500 * time.Millisecond,
		concurrency:  4,
		maxBytes:     25 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.probe == nil {
		logger := s.logger
		s.probe = func(path string) float64 { return audio.ProbeDurationOrZero(logger, path) }
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s
}

// Stage makes every photo and the selected music track readable from local
// files. Remote photos are written into jobDir. On failure every file the
// call wrote is removed before the error is returned.
func (s *Stager) Stage(ctx context.Context, jobDir string, photos []composition.PhotoInput, sel composition.AudioSelection) (*Staged, error) {
	if jobDir == "" {
		return nil, ErrJobDirRequired
	}

	music, err := s.stageMusic(sel)
	if err != nil {
		return nil, err
	}

	created, err := ensureDir(jobDir)
	if err != nil {
		return nil, fmt.Errorf("stage: create job dir: %w", err)
	}

	w := &writeLog{}
	staged := make([]composition.StagedAsset, len(photos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, p := range photos {
		g.Go(func() error {
			asset, err := s.stagePhoto(gctx, jobDir, i, p, w)
			if err != nil {
				return err
			}
			staged[i] = asset
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.rollback(jobDir, created, w)
		return nil, err
	}

	s.logger.Debug("assets staged",
		slog.String("dir", jobDir),
		slog.Int("photos", len(staged)),
		slog.Bool("music", music != nil),
	)
	return &Staged{Photos: staged, Music: music}, nil
}

func (s *Stager) stagePhoto(ctx context.Context, jobDir string, i int, p composition.PhotoInput, w *writeLog) (composition.StagedAsset, error) {
	if p.IsRemote() {
		return s.fetchPhoto(ctx, jobDir, i, p, w)
	}
	return s.verifyLocal(i, p)
}

func (s *Stager) verifyLocal(i int, p composition.PhotoInput) (composition.StagedAsset, error) {
	path := localPath(p.Source)
	missing := func(err error) (composition.StagedAsset, error) {
		return composition.StagedAsset{}, &composition.AssetMissingError{Index: i, Path: path, Err: err}
	}

	fi, err := os.Stat(path)
	if err != nil {
		return missing(err)
	}
	if !fi.Mode().IsRegular() {
		return missing(ErrNotRegularFile)
	}
	if fi.Size() == 0 {
		return missing(composition.ErrEmptyAsset)
	}

	cfg, format, err := sniff(path)
	if err != nil {
		return missing(err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return missing(err)
	}

	return composition.StagedAsset{
		Index:           i,
		Source:          p.Source,
		Path:            abs,
		Size:            fi.Size(),
		Format:          format,
		Width:           cfg.Width,
		Height:          cfg.Height,
		DurationSeconds: p.DurationSeconds,
	}, nil
}

func (s *Stager) stageMusic(sel composition.AudioSelection) (*composition.StagedAsset, error) {
	path, err := s.music.Resolve(sel)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, nil
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, &composition.AssetMissingError{Index: -1, Path: path, Err: err}
	}
	if !fi.Mode().IsRegular() {
		return nil, &composition.AssetMissingError{Index: -1, Path: path, Err: ErrNotRegularFile}
	}
	if fi.Size() == 0 {
		return nil, &composition.AssetMissingError{Index: -1, Path: path, Err: composition.ErrEmptyAsset}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &composition.AssetMissingError{Index: -1, Path: path, Err: err}
	}
	_ = f.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &composition.AssetMissingError{Index: -1, Path: path, Err: err}
	}

	return &composition.StagedAsset{
		Index:           -1,
		Source:          string(sel),
		Path:            abs,
		Size:            fi.Size(),
		Format:          "audio",
		DurationSeconds: s.probe(abs),
	}, nil
}

func (s *Stager) rollback(jobDir string, created bool, w *writeLog) {
	for _, path := range w.paths() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove staged file", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	if created {
		if err := os.RemoveAll(jobDir); err != nil {
			s.logger.Warn("failed to remove job dir", slog.String("dir", jobDir), slog.String("error", err.Error()))
		}
	}
}

// sniff decodes only the image header.
func sniff(path string) (image.Config, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return image.Config{}, "", fmt.Errorf("%w: %v", composition.ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, "", fmt.Errorf("%w: zero dimensions", composition.ErrUnsupportedImage)
	}
	return cfg, format, nil
}

func extensionFor(format string) string {
	if format == "jpeg" {
		return ".jpg"
	}
	return "." + format
}

func localPath(source string) string {
	if strings.HasPrefix(strings.ToLower(source), "file://") {
		if u, err := url.Parse(source); err == nil && u.Path != "" {
			return u.Path
		}
	}
	return source
}

// ensureDir creates dir and reports whether it did not exist before.
func ensureDir(dir string) (bool, error) {
	if _, err := os.Stat(dir); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	return true, nil
}

// writeLog records every path a Stage call has created.
type writeLog struct {
	mu    sync.Mutex
	files []string
}

func (w *writeLog) add(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files = append(w.files, path)
}

func (w *writeLog) paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.files...)
}
