package composition

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Zoom factor bounds applied in zoom mode.
const (
	MinZoomFactor = 1.0
	MaxZoomFactor = 1.5
)

// AudioFadeSeconds is the length of the soundtrack fade-out.
const AudioFadeSeconds = 2.0

// Config controls how a set of photos is composed into a video.
// Every field is required by the core; callers fill omitted values from
// Defaults() before handing the config over.
type Config struct {
	TransitionMode            TransitionMode `json:"transition_mode" yaml:"transition_mode" validate:"required"`
	PhotoDurationSeconds      float64        `json:"photo_duration_seconds" yaml:"photo_duration" validate:"gt=0,lte=60"`
	TransitionDurationSeconds float64        `json:"transition_duration_seconds" yaml:"transition_duration" validate:"gte=0,lte=10"`
	Width                     int            `json:"width" yaml:"width" validate:"min=16,max=4096"`
	Height                    int            `json:"height" yaml:"height" validate:"min=16,max=4096"`
	FPS                       int            `json:"fps" yaml:"fps" validate:"min=1,max=60"`
	QualityCRF                int            `json:"quality_crf" yaml:"quality_crf" validate:"gte=0,lte=51"`
	EncoderPreset             string         `json:"encoder_preset" yaml:"encoder_preset" validate:"oneof=ultrafast superfast veryfast faster fast medium slow slower veryslow"`
	BackgroundColor           string         `json:"background_color" yaml:"background_color" validate:"required,encodercolor"`
	ZoomDirection             ZoomDirection  `json:"zoom_direction" yaml:"zoom_direction" validate:"omitempty,oneof=in out"`
	ZoomRatePerFrame          float64        `json:"zoom_rate_per_frame" yaml:"zoom_rate_per_frame" validate:"gte=0,lte=0.05"`
	MusicVolume               float64        `json:"music_volume" yaml:"music_volume" validate:"gte=0,lte=1"`
}

// Defaults returns the built-in composition defaults.
func Defaults() Config {
	return Config{
		TransitionMode:            TransitionFade,
		PhotoDurationSeconds:      3,
		TransitionDurationSeconds: 1,
		Width:                     1280,
		Height:                    720,
		FPS:                       30,
		QualityCRF:                23,
		EncoderPreset:             "medium",
		BackgroundColor:           "black",
		ZoomDirection:             ZoomIn,
		ZoomRatePerFrame:          0.0015,
		MusicVolume:               0.8,
	}
}

// ClipDuration returns how long photo p is shown on its own.
func (c Config) ClipDuration(p PhotoInput) float64 {
	if p.DurationSeconds > 0 {
		return p.DurationSeconds
	}
	return c.PhotoDurationSeconds
}

// Limits bounds a single composition request.
type Limits struct {
	MaxPhotos int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxPhotos: 50}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("encodercolor", isEncoderColor); err != nil {
		panic(fmt.Sprintf("register encodercolor validation: %v", err))
	}
	return v
}

var hexColor = regexp.MustCompile(`^(#|0x)[0-9a-fA-F]{6}([0-9a-fA-F]{2})?$`)

// encoderColorNames is the subset of the encoder's named colors accepted in
// a config. Names are matched case-insensitively.
var encoderColorNames = map[string]struct{}{
	"black": {}, "white": {}, "gray": {}, "grey": {}, "silver": {}, "darkgray": {},
	"lightgray": {}, "dimgray": {}, "red": {}, "darkred": {}, "maroon": {}, "crimson": {},
	"orange": {}, "darkorange": {}, "gold": {}, "yellow": {}, "beige": {}, "ivory": {},
	"khaki": {}, "green": {}, "darkgreen": {}, "lime": {}, "olive": {}, "teal": {},
	"cyan": {}, "aqua": {}, "blue": {}, "darkblue": {}, "navy": {}, "skyblue": {},
	"steelblue": {}, "purple": {}, "indigo": {}, "violet": {}, "magenta": {},
	"fuchsia": {}, "pink": {}, "brown": {}, "chocolate": {}, "tan": {}, "wheat": {},
	"linen": {}, "snow": {}, "whitesmoke": {}, "gainsboro": {}, "slategray": {},
	"midnightblue": {},
}

func isEncoderColor(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if hexColor.MatchString(s) {
		return true
	}
	_, ok := encoderColorNames[strings.ToLower(s)]
	return ok
}

// Validate checks a composition request in a single pass. It has no side
// effects and returns a *ValidationError describing the first problem found.
// The music selection is resolved against the registry while staging.
func Validate(photos []PhotoInput, cfg Config, limits Limits) error {
	if len(photos) == 0 {
		return &ValidationError{Field: "photos", Reason: "at least one photo is required", Err: ErrNoPhotos}
	}
	if limits.MaxPhotos > 0 && len(photos) > limits.MaxPhotos {
		return &ValidationError{
			Field:  "photos",
			Reason: fmt.Sprintf("%d photos exceeds the limit of %d", len(photos), limits.MaxPhotos),
			Err:    ErrTooManyPhotos,
		}
	}
	for i, p := range photos {
		if err := validate.Struct(p); err != nil {
			return fromValidator(fmt.Sprintf("photos[%d]", i), err)
		}
	}
	return ValidateConfig(cfg)
}

// ValidateConfig checks the numeric ranges and cross-field rules of cfg.
func ValidateConfig(cfg Config) error {
	if !cfg.TransitionMode.IsValid() {
		return &ValidationError{Field: "transition_mode", Reason: fmt.Sprintf("unknown mode %q", cfg.TransitionMode)}
	}
	if err := validate.Struct(cfg); err != nil {
		return fromValidator("config", err)
	}
	if cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		return &ValidationError{Field: "config.width/height", Reason: "dimensions must be even"}
	}
	if cfg.TransitionMode.Blends() && cfg.TransitionDurationSeconds <= 0 {
		return &ValidationError{Field: "config.transition_duration_seconds", Reason: "must be positive for " + string(cfg.TransitionMode)}
	}
	if cfg.TransitionMode == TransitionZoom {
		if cfg.ZoomDirection != ZoomIn && cfg.ZoomDirection != ZoomOut {
			return &ValidationError{Field: "config.zoom_direction", Reason: "must be in or out for zoom mode"}
		}
		if cfg.ZoomRatePerFrame <= 0 {
			return &ValidationError{Field: "config.zoom_rate_per_frame", Reason: "must be positive for zoom mode"}
		}
	}
	return nil
}

func fromValidator(prefix string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: prefix, Reason: err.Error(), Err: err}
	}
	fe := verrs[0]
	field := fe.Field()
	if fe.Param() != "" {
		return &ValidationError{
			Field:  prefix + "." + toSnake(field),
			Reason: fmt.Sprintf("failed %s=%s (got %v)", fe.Tag(), fe.Param(), fe.Value()),
			Err:    err,
		}
	}
	return &ValidationError{
		Field:  prefix + "." + toSnake(field),
		Reason: fmt.Sprintf("failed %s (got %v)", fe.Tag(), fe.Value()),
		Err:    err,
	}
}

// toSnake converts a Go field name to the snake_case key callers send.
func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
