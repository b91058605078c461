package audio

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSilentWAV writes a mono 8 kHz WAV of the given length.
func writeSilentWAV(t *testing.T, path string, seconds int) {
	t.Helper()

	format := beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, wav.Encode(f, beep.Silence(int(format.SampleRate)*seconds), format))
}

func TestProbeDuration_WAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.wav")
	writeSilentWAV(t, path, 2)

	got, err := ProbeDuration(path)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 0.01)
}

func TestProbeDuration_WAVWithMisleadingExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.mp3")
	writeSilentWAV(t, path, 3)

	got, err := ProbeDuration(path)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, got, 0.01)
}

func TestProbeDuration_Undecodable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.mp3")
	require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o644))

	_, err := ProbeDuration(path)
	assert.Error(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	assert.Zero(t, ProbeDurationOrZero(logger, path))
	assert.Contains(t, buf.String(), `"msg":"could not determine track length"`)
	assert.Contains(t, buf.String(), `"path":"`+path+`"`)
}

func TestProbeDuration_Missing(t *testing.T) {
	_, err := ProbeDuration(filepath.Join(t.TempDir(), "nope.wav"))
	assert.Error(t, err)
}
