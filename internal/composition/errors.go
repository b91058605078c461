package composition

import (
	"context"
	"errors"
	"fmt"
)

// Static errors for composition requests.
var (
	// ErrNoPhotos is returned when a request has an empty photo list.
	ErrNoPhotos = errors.New("no photos provided")
	// ErrTooManyPhotos is returned when a request exceeds Limits.MaxPhotos.
	ErrTooManyPhotos = errors.New("too many photos")
	// ErrEmptyAsset is returned when a staged asset has zero bytes.
	ErrEmptyAsset = errors.New("asset is empty")
	// ErrAssetTooLarge is returned when a remote photo exceeds the size cap.
	ErrAssetTooLarge = errors.New("asset exceeds size limit")
	// ErrUnsupportedImage is returned when a photo cannot be decoded as an image.
	ErrUnsupportedImage = errors.New("unsupported image format")
	// ErrEmptyOutput is returned when the encoder exits cleanly without output.
	ErrEmptyOutput = errors.New("encoder produced no output")
	// ErrInternal marks invariant violations inside the pipeline.
	ErrInternal = errors.New("internal pipeline error")
)

// ValidationError reports a rejected request. No side effects happen before
// it is returned.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AssetFetchError reports a remote photo that could not be downloaded.
type AssetFetchError struct {
	Index int
	URL   string
	Err   error
}

func (e *AssetFetchError) Error() string {
	return fmt.Sprintf("fetch photo %d (%s): %v", e.Index, e.URL, e.Err)
}

func (e *AssetFetchError) Unwrap() error { return e.Err }

// AssetMissingError reports a local asset that does not exist or is unreadable.
// Index is -1 for the music track.
type AssetMissingError struct {
	Index int
	Path  string
	Err   error
}

func (e *AssetMissingError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("music track %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("photo %d (%s): %v", e.Index, e.Path, e.Err)
}

func (e *AssetMissingError) Unwrap() error { return e.Err }

// UnknownAudioTrackError reports a music key outside the fixed registry.
type UnknownAudioTrackError struct {
	Key string
}

func (e *UnknownAudioTrackError) Error() string {
	return fmt.Sprintf("unknown audio track %q", e.Key)
}

// EncoderUnavailableError reports that the encoder process could not be started.
type EncoderUnavailableError struct {
	Binary string
	Err    error
}

func (e *EncoderUnavailableError) Error() string {
	return fmt.Sprintf("encoder %q unavailable: %v", e.Binary, e.Err)
}

func (e *EncoderUnavailableError) Unwrap() error { return e.Err }

// EncodeError reports an encoder run that exited unsuccessfully.
// DiagnosticTail holds only the last lines of the encoder's diagnostics.
type EncodeError struct {
	ExitCode       int
	DiagnosticTail string
	Err            error
}

func (e *EncodeError) Error() string {
	if e.DiagnosticTail == "" {
		return fmt.Sprintf("encoder exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("encoder exited with code %d: %s", e.ExitCode, e.DiagnosticTail)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// JobError wraps a failure with the job and pipeline stage it came from.
type JobError struct {
	JobID string
	Stage string
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %s: %v", e.JobID, e.Stage, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Error kinds returned by Kind.
const (
	KindValidation         = "validation"
	KindAssetFetch         = "asset_fetch"
	KindAssetMissing       = "asset_missing"
	KindUnknownAudioTrack  = "unknown_audio_track"
	KindEncoderUnavailable = "encoder_unavailable"
	KindEncode             = "encode"
	KindCancelled          = "cancelled"
	KindInternal           = "internal"
)

// Kind classifies err into one of the stable error kinds.
func Kind(err error) string {
	var (
		validationErr  *ValidationError
		fetchErr       *AssetFetchError
		missingErr     *AssetMissingError
		unknownErr     *UnknownAudioTrackError
		unavailableErr *EncoderUnavailableError
		encodeErr      *EncodeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &unknownErr):
		return KindUnknownAudioTrack
	case errors.As(err, &fetchErr):
		return KindAssetFetch
	case errors.As(err, &missingErr):
		return KindAssetMissing
	case errors.As(err, &unavailableErr):
		return KindEncoderUnavailable
	case errors.As(err, &encodeErr):
		return KindEncode
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindInternal
	}
}
