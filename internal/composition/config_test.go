package composition

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onePhoto() []PhotoInput {
	return []PhotoInput{{Source: "https://example.com/a.jpg"}}
}

func TestDefaults_AreValid(t *testing.T) {
	require.NoError(t, ValidateConfig(Defaults()))
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	assert.NoError(t, Validate(onePhoto(), Defaults(), DefaultLimits()))
}

func TestValidate_EmptyPhotos(t *testing.T) {
	err := Validate(nil, Defaults(), DefaultLimits())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "photos", verr.Field)
	assert.ErrorIs(t, err, ErrNoPhotos)
}

func TestValidate_TooManyPhotos(t *testing.T) {
	photos := make([]PhotoInput, 3)
	for i := range photos {
		photos[i] = PhotoInput{Source: fmt.Sprintf("/tmp/%d.jpg", i)}
	}

	err := Validate(photos, Defaults(), Limits{MaxPhotos: 2})
	assert.ErrorIs(t, err, ErrTooManyPhotos)

	require.NoError(t, Validate(photos, Defaults(), Limits{MaxPhotos: 3}))
}

func TestValidate_PhotoFields(t *testing.T) {
	tests := []struct {
		name  string
		photo PhotoInput
	}{
		{"empty source", PhotoInput{Source: ""}},
		{"negative duration", PhotoInput{Source: "a.jpg", DurationSeconds: -1}},
		{"duration too long", PhotoInput{Source: "a.jpg", DurationSeconds: 61}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]PhotoInput{tt.photo}, Defaults(), DefaultLimits())
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Field, "photos[0]")
		})
	}
}

func TestValidateConfig_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown mode", func(c *Config) { c.TransitionMode = "wipe" }, "transition_mode"},
		{"zero photo duration", func(c *Config) { c.PhotoDurationSeconds = 0 }, "photo_duration_seconds"},
		{"crf too high", func(c *Config) { c.QualityCRF = 52 }, "quality_crf"},
		{"crf negative", func(c *Config) { c.QualityCRF = -1 }, "quality_crf"},
		{"bad preset", func(c *Config) { c.EncoderPreset = "turbo" }, "encoder_preset"},
		{"width too small", func(c *Config) { c.Width = 8 }, "width"},
		{"height too large", func(c *Config) { c.Height = 5000 }, "height"},
		{"odd width", func(c *Config) { c.Width = 1281 }, "width"},
		{"fps zero", func(c *Config) { c.FPS = 0 }, "fps"},
		{"volume above one", func(c *Config) { c.MusicVolume = 1.5 }, "music_volume"},
		{"volume negative", func(c *Config) { c.MusicVolume = -0.1 }, "music_volume"},
		{"color with injection", func(c *Config) { c.BackgroundColor = "black:x=1" }, "background_color"},
		{"three digit hex color", func(c *Config) { c.BackgroundColor = "#abc" }, "background_color"},
		{"four digit hex color", func(c *Config) { c.BackgroundColor = "#abcd" }, "background_color"},
		{"seven digit hex color", func(c *Config) { c.BackgroundColor = "#1234567" }, "background_color"},
		{"unknown color name", func(c *Config) { c.BackgroundColor = "notacolor" }, "background_color"},
		{"fade without transition", func(c *Config) { c.TransitionDurationSeconds = 0 }, "transition_duration_seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)

			err := ValidateConfig(cfg)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Field, tt.field)
		})
	}
}

func TestValidateConfig_ModeSpecificFields(t *testing.T) {
	t.Run("none mode ignores transition duration", func(t *testing.T) {
		cfg := Defaults()
		cfg.TransitionMode = TransitionNone
		cfg.TransitionDurationSeconds = 0
		assert.NoError(t, ValidateConfig(cfg))
	})

	t.Run("zoom mode requires a rate", func(t *testing.T) {
		cfg := Defaults()
		cfg.TransitionMode = TransitionZoom
		cfg.ZoomRatePerFrame = 0
		assert.Error(t, ValidateConfig(cfg))
	})

	t.Run("zoom mode requires a direction", func(t *testing.T) {
		cfg := Defaults()
		cfg.TransitionMode = TransitionZoom
		cfg.ZoomDirection = ""
		assert.Error(t, ValidateConfig(cfg))
	})

	t.Run("fade mode ignores zoom fields", func(t *testing.T) {
		cfg := Defaults()
		cfg.ZoomDirection = ""
		cfg.ZoomRatePerFrame = 0
		assert.NoError(t, ValidateConfig(cfg))
	})

	t.Run("encoder colors accepted", func(t *testing.T) {
		for _, color := range []string{"#1a2B3c", "#1a2b3c80", "0xFFFFFF", "Black", "navy"} {
			cfg := Defaults()
			cfg.BackgroundColor = color
			assert.NoError(t, ValidateConfig(cfg), "color %q", color)
		}
	})
}

func TestConfig_ClipDuration(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 3.0, cfg.ClipDuration(PhotoInput{Source: "a"}))
	assert.Equal(t, 5.5, cfg.ClipDuration(PhotoInput{Source: "a", DurationSeconds: 5.5}))
}

func TestPhotoInput_IsRemote(t *testing.T) {
	assert.True(t, PhotoInput{Source: "https://cdn.example.com/p.jpg"}.IsRemote())
	assert.True(t, PhotoInput{Source: "HTTP://cdn.example.com/p.jpg"}.IsRemote())
	assert.False(t, PhotoInput{Source: "/var/photos/p.jpg"}.IsRemote())
	assert.False(t, PhotoInput{Source: "file:///var/photos/p.jpg"}.IsRemote())
	assert.False(t, PhotoInput{Source: "relative/p.jpg"}.IsRemote())
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&ValidationError{Field: "photos"}, KindValidation},
		{&JobError{JobID: "j", Stage: "staging", Err: &AssetFetchError{Index: 1, Err: errors.New("404")}}, KindAssetFetch},
		{&AssetMissingError{Index: 0, Path: "/x"}, KindAssetMissing},
		{&UnknownAudioTrackError{Key: "jazz"}, KindUnknownAudioTrack},
		{&EncoderUnavailableError{Binary: "ffmpeg"}, KindEncoderUnavailable},
		{fmt.Errorf("wrap: %w", &EncodeError{ExitCode: 1}), KindEncode},
		{fmt.Errorf("encode: %w", context.Canceled), KindCancelled},
		{ErrInternal, KindInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err), "err=%v", tt.err)
	}
}

func TestJobError_Unwraps(t *testing.T) {
	inner := &EncodeError{ExitCode: 3, DiagnosticTail: "Invalid argument"}
	err := &JobError{JobID: "job-1", Stage: "encoding", Err: inner}

	var got *EncodeError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 3, got.ExitCode)
	assert.Contains(t, err.Error(), "job-1")
	assert.Contains(t, err.Error(), "encoding")
}
