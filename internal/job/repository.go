package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// Repository stores composition jobs so their status can be queried while
// they run and after they finish.
type Repository interface {
	// Save persists a job, replacing any earlier copy with the same ID.
	Save(ctx context.Context, job *Job) error

	// FindByID retrieves a job by its unique identifier.
	// Returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// Update applies fn to the stored job atomically. If fn returns an error
	// the stored job is left unchanged.
	Update(ctx context.Context, id string, fn func(*Job) error) error

	// List returns all jobs, newest first.
	List(ctx context.Context) ([]*Job, error)

	// Delete removes a job from storage.
	// Returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id string) error
}
