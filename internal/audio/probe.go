package audio

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

type decodeFunc func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)

func decodeMP3(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) }
func decodeWAV(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) }

// ProbeDuration returns the playback length of the track at path in seconds.
// The decoder is picked from the extension, falling back to the other one.
func ProbeDuration(path string) (float64, error) {
	decoders := []decodeFunc{decodeMP3, decodeWAV}
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		decoders = []decodeFunc{decodeWAV, decodeMP3}
	}

	var lastErr error
	for _, decode := range decoders {
		seconds, err := probeWith(path, decode)
		if err == nil {
			return seconds, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("decode %s: %w", path, lastErr)
}

// ProbeDurationOrZero is ProbeDuration for callers that can live without a
// length. Zero means unknown; the failure is logged to logger.
func ProbeDurationOrZero(logger *slog.Logger, path string) float64 {
	seconds, err := ProbeDuration(path)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("could not determine track length",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return seconds
}

func probeWith(path string, decode decodeFunc) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}

	streamer, format, err := decode(f)
	if err != nil {
		f.Close()
		return 0, err
	}
	defer streamer.Close()

	if format.SampleRate <= 0 {
		return 0, fmt.Errorf("invalid sample rate %d", format.SampleRate)
	}
	return format.SampleRate.D(streamer.Len()).Seconds(), nil
}
