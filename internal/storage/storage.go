// Package storage provides the scratch area used while a composition runs and
// the publishers that make finished videos available to callers.
package storage

import (
	"context"
	"errors"
)

// Static errors for storage operations.
var (
	// ErrInvalidJobID is returned when a job ID cannot name a scratch entry.
	ErrInvalidJobID = errors.New("invalid job id")
	// ErrPublisherNotConfigured is returned when a publish backend lacks its settings.
	ErrPublisherNotConfigured = errors.New("publisher is not configured")
)

// Publisher makes a finished video available outside the process.
// Implementations may move or copy the file at path.
type Publisher interface {
	// Publish stores the file at path under key and returns a URL for it.
	Publish(ctx context.Context, key, path, contentType string) (url string, err error)
}
