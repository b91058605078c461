package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/maauso/photoreel-api/internal/composition"
)

// Static errors for remote fetches.
var (
	// ErrServerError is returned when the origin answers with a 5xx status code.
	ErrServerError = errors.New("stage: server error")
	// ErrRateLimited is returned when the origin answers with 429.
	ErrRateLimited = errors.New("stage: rate limited")
	// ErrRequestFailed is returned for any other non-2xx status code.
	ErrRequestFailed = errors.New("stage: request failed")
)

func (s *Stager) fetchPhoto(ctx context.Context, jobDir string, i int, p composition.PhotoInput, w *writeLog) (composition.StagedAsset, error) {
	fail := func(err error) (composition.StagedAsset, error) {
		return composition.StagedAsset{}, &composition.AssetFetchError{Index: i, URL: p.Source, Err: err}
	}

	part := filepath.Join(jobDir, fmt.Sprintf("photo_%03d.part", i))
	w.add(part)

	size, err := s.downloadWithRetry(ctx, p.Source, part)
	if err != nil {
		if ctx.Err() != nil {
			return composition.StagedAsset{}, fmt.Errorf("fetch photo %d: %w", i, ctx.Err())
		}
		return fail(err)
	}

	cfg, format, err := sniff(part)
	if err != nil {
		return fail(err)
	}

	final := filepath.Join(jobDir, fmt.Sprintf("photo_%03d%s", i, extensionFor(format)))
	w.add(final)
	if err := os.Rename(part, final); err != nil {
		return fail(fmt.Errorf("rename staged photo: %w", err))
	}

	abs, err := filepath.Abs(final)
	if err != nil {
		return fail(err)
	}

	s.logger.Debug("photo fetched",
		slog.Int("index", i),
		slog.String("format", format),
		slog.Int64("bytes", size),
	)

	return composition.StagedAsset{
		Index:           i,
		Source:          p.Source,
		Path:            abs,
		Size:            size,
		Format:          format,
		Width:           cfg.Width,
		Height:          cfg.Height,
		DurationSeconds: p.DurationSeconds,
		Owned:           true,
	}, nil
}

// downloadWithRetry fetches rawURL into dest with exponential backoff.
func (s *Stager) downloadWithRetry(ctx context.Context, rawURL, dest string) (int64, error) {
	var lastErr error
	backoff := s.baseBackoff

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, fmt.Errorf("context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		n, err := s.download(ctx, rawURL, dest)
		if err == nil {
			return n, nil
		}
		if ctx.Err() != nil {
			return 0, fmt.Errorf("context cancelled: %w", ctx.Err())
		}
		if !isRetryable(err) {
			return 0, err
		}

		s.logger.Debug("retrying photo fetch",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		lastErr = err
	}

	return 0, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// download performs a single bounded GET.
func (s *Stager) download(ctx context.Context, rawURL, dest string) (int64, error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, &retryableError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		if resp.StatusCode >= 500 {
			return 0, &retryableError{err: fmt.Errorf("%w %d", ErrServerError, resp.StatusCode)}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return 0, &retryableError{err: ErrRateLimited}
		}
		return 0, fmt.Errorf("%w with status %d", ErrRequestFailed, resp.StatusCode)
	}

	if resp.ContentLength > s.maxBytes {
		return 0, fmt.Errorf("%w: %d bytes", composition.ErrAssetTooLarge, resp.ContentLength)
	}

	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create staged file: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return 0, &retryableError{err: fmt.Errorf("read body: %w", err)}
	}
	if n > s.maxBytes {
		return 0, fmt.Errorf("%w: more than %d bytes", composition.ErrAssetTooLarge, s.maxBytes)
	}
	if n == 0 {
		return 0, composition.ErrEmptyAsset
	}
	return n, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
