// Package encoder runs ffmpeg over a filter graph and reports its progress.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/maauso/photoreel-api/internal/composition"
	"github.com/maauso/photoreel-api/internal/graph"
)

// DefaultTailLines is how many diagnostic lines an EncodeError keeps.
const DefaultTailLines = 20

// Progress is a snapshot of how far the encoder has got.
type Progress struct {
	// Seconds of output written so far.
	Seconds float64
	// Fraction of the total duration in [0, 1].
	Fraction float64
}

// Encoder drives the ffmpeg binary.
type Encoder struct {
	binary    string
	logger    *slog.Logger
	tailLines int
	waitDelay time.Duration
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithLogger sets the logger used for diagnostic lines.
func WithLogger(l *slog.Logger) Option {
	return func(e *Encoder) {
		e.logger = l
	}
}

// WithTailLines sets how many trailing diagnostic lines are retained.
func WithTailLines(n int) Option {
	return func(e *Encoder) {
		e.tailLines = n
	}
}

// New creates an Encoder. If binary is empty, it defaults to "ffmpeg"
// (found via PATH).
func New(binary string, opts ...Option) *Encoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	e := &Encoder{
		binary:    binary,
		tailLines: DefaultTailLines,
		waitDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tailLines < 1 {
		e.tailLines = DefaultTailLines
	}
	return e
}

// Encode renders g into outputPath. onProgress may be nil.
// On any failure the output file is removed.
func (e *Encoder) Encode(ctx context.Context, g *graph.FilterGraph, outputPath string, cfg composition.Config, onProgress func(Progress)) error {
	if err := g.Check(); err != nil {
		return fmt.Errorf("%w: %v", composition.ErrInternal, err)
	}
	args, err := Args(g, outputPath, cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	diag := newDiagnostics(e.tailLines, func(line string) {
		e.logger.Debug("ffmpeg", slog.String("line", line))
		if secs, ok := parseTime(line); ok && onProgress != nil {
			onProgress(Progress{Seconds: secs, Fraction: fraction(secs, g.TotalDuration)})
		}
	})

	// #nosec G204 - binary comes from process configuration and args never pass through a shell
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Stderr = diag
	cmd.WaitDelay = e.waitDelay

	e.logger.Debug("starting encoder",
		slog.String("binary", e.binary),
		slog.String("output", outputPath),
		slog.Float64("total_seconds", g.TotalDuration),
	)

	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &composition.EncoderUnavailableError{Binary: e.binary, Err: err}
	}

	runErr := cmd.Wait()
	diag.Flush()

	if runErr != nil {
		e.removeOutput(outputPath)
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &composition.EncodeError{ExitCode: code, DiagnosticTail: diag.Tail(), Err: runErr}
	}

	fi, err := os.Stat(outputPath)
	if err != nil || fi.Size() == 0 {
		e.removeOutput(outputPath)
		return &composition.EncodeError{ExitCode: 0, DiagnosticTail: diag.Tail(), Err: composition.ErrEmptyOutput}
	}

	if onProgress != nil {
		onProgress(Progress{Seconds: g.TotalDuration, Fraction: 1})
	}
	return nil
}

func (e *Encoder) removeOutput(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("failed to remove partial output", slog.String("path", path), slog.String("error", err.Error()))
	}
}

func fraction(secs, total float64) float64 {
	if total <= 0 || secs <= 0 {
		return 0
	}
	if secs >= total {
		return 1
	}
	return secs / total
}
