// Package id provides unique identifier generation for jobs.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// Prefix starts every job ID.
const Prefix = "job-"

// Generate creates a new unique job ID.
// Format: job-<uuid>
// Example: job-3f1c9a52-6f0e-4f59-9c1e-0b8f7d2a4c11
func Generate() string {
	return Prefix + uuid.NewString()
}

// Valid reports whether s looks like an ID produced by Generate. Job IDs are
// used as directory names, so anything else is rejected.
func Valid(s string) bool {
	rest, ok := strings.CutPrefix(s, Prefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil && len(rest) == 36
}
