// Package composition holds the domain types shared by the photo-to-video
// pipeline: caller inputs, the composition configuration, staged assets and
// the result handed to a publisher.
package composition

import (
	"net/url"
	"strings"
)

// TransitionMode is the visual blending strategy between consecutive clips.
type TransitionMode string

const (
	// TransitionNone concatenates clips back to back.
	TransitionNone TransitionMode = "none"
	// TransitionFade crossfades each pair of clips.
	TransitionFade TransitionMode = "fade"
	// TransitionSlide slides the next clip over the previous one.
	TransitionSlide TransitionMode = "slide"
	// TransitionZoom applies a per-clip zoom and concatenates without blending.
	TransitionZoom TransitionMode = "zoom"
)

// IsValid returns true if the mode is one of the known modes.
func (m TransitionMode) IsValid() bool {
	switch m {
	case TransitionNone, TransitionFade, TransitionSlide, TransitionZoom:
		return true
	}
	return false
}

// Blends reports whether the mode overlaps neighbouring clips.
func (m TransitionMode) Blends() bool {
	return m == TransitionFade || m == TransitionSlide
}

// ZoomDirection controls whether zoom mode magnifies or shrinks over a clip.
type ZoomDirection string

const (
	ZoomIn  ZoomDirection = "in"
	ZoomOut ZoomDirection = "out"
)

// AudioSelection is a key into the fixed background music registry.
// The empty selection means the video has no soundtrack.
type AudioSelection string

const (
	AudioNone      AudioSelection = ""
	AudioAdventure AudioSelection = "adventure"
	AudioEpic      AudioSelection = "epic"
	AudioPeaceful  AudioSelection = "peaceful"
)

// PhotoInput is one photo in display order.
type PhotoInput struct {
	// Source is an http(s) URL or a path on the local filesystem.
	Source string `json:"source" yaml:"source" validate:"required"`
	// DurationSeconds overrides Config.PhotoDurationSeconds when positive.
	DurationSeconds float64 `json:"duration_seconds,omitempty" yaml:"duration,omitempty" validate:"gte=0,lte=60"`
}

// IsRemote reports whether the source must be fetched over HTTP.
func (p PhotoInput) IsRemote() bool {
	u, err := url.Parse(strings.TrimSpace(p.Source))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// StagedAsset is a photo or music track resolved to a readable local file.
type StagedAsset struct {
	// Index is the photo position, or -1 for the music track.
	Index int
	// Source is the original reference (URL, path or track key).
	Source string
	// Path is the local file the encoder reads.
	Path string
	// Size is the verified byte size.
	Size int64
	// Format is the sniffed image format ("jpeg", "png", ...) or "audio".
	Format string
	Width  int
	Height int
	// DurationSeconds is the per-photo override for photos, or the probed
	// track length for music (0 when unknown).
	DurationSeconds float64
	// Owned is true when the file lives in the job scratch directory and is
	// deleted with it.
	Owned bool
}

// ContentTypeMP4 is the media type of every composed video.
const ContentTypeMP4 = "video/mp4"

// Result describes a successfully composed video awaiting publication.
type Result struct {
	JobID                string
	OutputPath           string
	ContentType          string
	Size                 int64
	TotalDurationSeconds float64
}
