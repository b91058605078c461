// Package job provides the composition job record, its state machine and the
// service that drives a job from validation to a finished video.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/photoreel-api/internal/composition"
	"github.com/maauso/photoreel-api/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusIdle is a job that has been created but not looked at.
	StatusIdle Status = "IDLE"
	// StatusValidating is a job whose request is being (or has been) validated.
	StatusValidating Status = "VALIDATING"
	// StatusStaging is a job whose photos and music are being fetched.
	StatusStaging Status = "STAGING"
	// StatusBuilding is a job whose filter graph is being built.
	StatusBuilding Status = "BUILDING"
	// StatusEncoding is a job with a running encoder.
	StatusEncoding Status = "ENCODING"
	// StatusSucceeded is a job with a finished output file.
	StatusSucceeded Status = "SUCCEEDED"
	// StatusFailed is a job that stopped with an error.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed. Stages run
// strictly in order and any of them may fail.
var validTransitions = map[Status][]Status{
	StatusIdle:       {StatusValidating, StatusFailed},
	StatusValidating: {StatusStaging, StatusFailed},
	StatusStaging:    {StatusBuilding, StatusFailed},
	StatusBuilding:   {StatusEncoding, StatusFailed},
	StatusEncoding:   {StatusSucceeded, StatusFailed},
	StatusSucceeded:  {},
	StatusFailed:     {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Request is what a caller asked to be composed.
type Request struct {
	Photos []composition.PhotoInput
	Audio  composition.AudioSelection
	Config composition.Config
}

// Job is a single composition. It is created per request and never reused.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job. It also names the scratch directory.
	ID string
	// Status is the current job state.
	Status Status
	// Request is the validated input.
	Request Request
	// Progress is the percentage of completion (0-100).
	Progress int
	// Error contains the error message if the job failed.
	Error string
	// ErrorKind is the stable classification of Error.
	ErrorKind string
	// FailedStage is the state the job was in when it failed.
	FailedStage Status
	// OutputPath is the local file produced by the encoder.
	OutputPath string
	// ContentType is the media type of OutputPath.
	ContentType string
	// Size is the byte size of OutputPath.
	Size int64
	// TotalDuration is the video length in seconds.
	TotalDuration float64
	// VideoURL is where the publisher made the video available.
	VideoURL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when staging started.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID in the IDLE state.
func New(req Request) *Job {
	return NewWithID(id.Generate(), req)
}

// NewWithID creates a new Job with the specified ID in the IDLE state.
func NewWithID(jobID string, req Request) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusIdle,
		Request:   cloneRequest(req),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusStaging:
		j.StartedAt = j.UpdatedAt
	case StatusSucceeded, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Fail moves the job to FAILED and records err.
func (j *Job) Fail(err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	stage := j.Status
	if transErr := j.transitionLocked(StatusFailed); transErr != nil {
		return transErr
	}
	j.FailedStage = stage
	if err != nil {
		j.Error = err.Error()
		j.ErrorKind = composition.Kind(err)
	}
	return nil
}

// Succeed moves the job to SUCCEEDED and records the result.
func (j *Job) Succeed(res composition.Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(StatusSucceeded); err != nil {
		return err
	}
	j.OutputPath = res.OutputPath
	j.ContentType = res.ContentType
	j.Size = res.Size
	j.TotalDuration = res.TotalDurationSeconds
	j.Progress = 100
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress sets the progress percentage (0-100). Progress never moves
// backwards.
func (j *Job) UpdateProgress(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress < j.Progress {
		return
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
}

// SetVideoURL records where the video was published.
func (j *Job) SetVideoURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.VideoURL = url
	j.UpdatedAt = time.Now()
}

// ClearOutput forgets the local output, e.g. after it was moved by a publisher.
func (j *Job) ClearOutput() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = ""
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:            j.ID,
		Status:        j.Status,
		Request:       cloneRequest(j.Request),
		Progress:      j.Progress,
		Error:         j.Error,
		ErrorKind:     j.ErrorKind,
		FailedStage:   j.FailedStage,
		OutputPath:    j.OutputPath,
		ContentType:   j.ContentType,
		Size:          j.Size,
		TotalDuration: j.TotalDuration,
		VideoURL:      j.VideoURL,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
}

func cloneRequest(r Request) Request {
	photos := make([]composition.PhotoInput, len(r.Photos))
	copy(photos, r.Photos)
	r.Photos = photos
	return r
}
