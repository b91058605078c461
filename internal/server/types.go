// Package server provides the HTTP server for the photoreel API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"strings"
	"time"

	"github.com/maauso/photoreel-api/internal/composition"
	"github.com/maauso/photoreel-api/internal/job"
	"github.com/maauso/photoreel-api/internal/preflight"
)

// PhotoDTO is one photo in a composition request.
type PhotoDTO struct {
	// Source is an http(s) URL. Server-local paths are not accepted over HTTP.
	Source string `json:"source" validate:"required,http_url"`
	// Duration overrides the photo duration for this photo only.
	Duration *float64 `json:"duration,omitempty" validate:"omitempty,gt=0,lte=60"`
}

// CreateCompositionRequest is the HTTP request body for creating a composition.
// Every setting is optional; omitted ones take the server defaults.
type CreateCompositionRequest struct {
	Photos []PhotoDTO `json:"photos" validate:"required,min=1,dive"`
	// Audio is a background music key. Empty means no music.
	Audio string `json:"audio,omitempty"`

	Transition         *string  `json:"transition,omitempty"`
	PhotoDuration      *float64 `json:"photo_duration,omitempty"`
	TransitionDuration *float64 `json:"transition_duration,omitempty"`
	Width              *int     `json:"width,omitempty"`
	Height             *int     `json:"height,omitempty"`
	FPS                *int     `json:"fps,omitempty"`
	CRF                *int     `json:"crf,omitempty"`
	Preset             *string  `json:"preset,omitempty"`
	BackgroundColor    *string  `json:"background_color,omitempty"`
	ZoomDirection      *string  `json:"zoom_direction,omitempty"`
	ZoomRate           *float64 `json:"zoom_rate,omitempty"`
	MusicVolume        *float64 `json:"music_volume,omitempty"`
}

// toDomain merges the request over defaults. Range checks are left to the
// composition validator.
func (r CreateCompositionRequest) toDomain(defaults composition.Config) job.Request {
	cfg := defaults
	if r.Transition != nil {
		cfg.TransitionMode = composition.TransitionMode(strings.ToLower(*r.Transition))
	}
	if r.PhotoDuration != nil {
		cfg.PhotoDurationSeconds = *r.PhotoDuration
	}
	if r.TransitionDuration != nil {
		cfg.TransitionDurationSeconds = *r.TransitionDuration
	}
	if r.Width != nil {
		cfg.Width = *r.Width
	}
	if r.Height != nil {
		cfg.Height = *r.Height
	}
	if r.FPS != nil {
		cfg.FPS = *r.FPS
	}
	if r.CRF != nil {
		cfg.QualityCRF = *r.CRF
	}
	if r.Preset != nil {
		cfg.EncoderPreset = *r.Preset
	}
	if r.BackgroundColor != nil {
		cfg.BackgroundColor = *r.BackgroundColor
	}
	if r.ZoomDirection != nil {
		cfg.ZoomDirection = composition.ZoomDirection(strings.ToLower(*r.ZoomDirection))
	}
	if r.ZoomRate != nil {
		cfg.ZoomRatePerFrame = *r.ZoomRate
	}
	if r.MusicVolume != nil {
		cfg.MusicVolume = *r.MusicVolume
	}

	photos := make([]composition.PhotoInput, len(r.Photos))
	for i, p := range r.Photos {
		photos[i] = composition.PhotoInput{Source: p.Source}
		if p.Duration != nil {
			photos[i].DurationSeconds = *p.Duration
		}
	}

	return job.Request{
		Photos: photos,
		Audio:  composition.AudioSelection(strings.ToLower(strings.TrimSpace(r.Audio))),
		Config: cfg,
	}
}

// CreateCompositionResponse is the HTTP response after creating a composition.
type CreateCompositionResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the job status at submission time.
	Status string `json:"status"`
}

// CompositionResponse is the HTTP response for getting composition details.
type CompositionResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	// ErrorKind is the stable classification of Error.
	ErrorKind   string `json:"error_kind,omitempty"`
	Error       string `json:"error,omitempty"`
	FailedStage string `json:"failed_stage,omitempty"`
	// VideoURL is set once the video has been published.
	VideoURL             string     `json:"video_url,omitempty"`
	TotalDurationSeconds float64    `json:"total_duration_seconds,omitempty"`
	SizeBytes            int64      `json:"size_bytes,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

func toCompositionResponse(j *job.Job) CompositionResponse {
	resp := CompositionResponse{
		ID:                   j.ID,
		Status:               string(j.Status),
		Progress:             j.Progress,
		ErrorKind:            j.ErrorKind,
		Error:                j.Error,
		FailedStage:          strings.ToLower(string(j.FailedStage)),
		VideoURL:             j.VideoURL,
		TotalDurationSeconds: j.TotalDuration,
		SizeBytes:            j.Size,
		CreatedAt:            j.CreatedAt,
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

// ListCompositionsResponse is the HTTP response for listing compositions.
type ListCompositionsResponse struct {
	Compositions []CompositionResponse `json:"compositions"`
}

// AudioTracksResponse lists the selectable background music keys.
type AudioTracksResponse struct {
	Tracks []string `json:"tracks"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is "ok" when every check passed, "degraded" otherwise.
	Status string             `json:"status"`
	Checks []preflight.Result `json:"checks,omitempty"`
}
