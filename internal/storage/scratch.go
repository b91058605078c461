package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const outputDirName = "output"

// Scratch is the local working area. Each job gets a directory named after
// its ID; finished videos land in a shared output directory.
type Scratch struct {
	root string
}

// NewScratch creates a Scratch rooted at root. If root is empty a directory
// under os.TempDir() is used. Missing directories are created.
func NewScratch(root string) (*Scratch, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "photoreel")
	}

	if err := os.MkdirAll(filepath.Join(root, outputDirName), 0750); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}

	return &Scratch{root: root}, nil
}

// Root returns the scratch root directory.
func (s *Scratch) Root() string {
	return s.root
}

// JobDir returns the scratch directory for a job. It is not created here.
func (s *Scratch) JobDir(jobID string) (string, error) {
	if err := checkJobID(jobID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, jobID), nil
}

// OutputPath returns where the encoder writes the video for a job.
func (s *Scratch) OutputPath(jobID string) (string, error) {
	if err := checkJobID(jobID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, outputDirName, jobID+".mp4"), nil
}

// RemoveJobDir removes a job's scratch directory and everything in it.
func (s *Scratch) RemoveJobDir(jobID string) error {
	dir, err := s.JobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove job directory: %w", err)
	}
	return nil
}

// RemoveOutput removes a job's output video if present.
func (s *Scratch) RemoveOutput(jobID string) error {
	path, err := s.OutputPath(jobID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove output: %w", err)
	}
	return nil
}

// CleanStale removes job directories and outputs last modified before
// maxAge ago. It is meant to run at startup, before any job, to reclaim
// space left by a crashed process. It returns the number of entries removed.
func (s *Scratch) CleanStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	sweep := func(dir string, match func(os.DirEntry) bool) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("read %s: %w", dir, err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("context cancelled: %w", err)
			}
			if !match(e) {
				continue
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				return fmt.Errorf("remove %s: %w", e.Name(), err)
			}
			removed++
		}
		return nil
	}

	err := sweep(s.root, func(e os.DirEntry) bool {
		return e.IsDir() && e.Name() != outputDirName
	})
	if err != nil {
		return removed, err
	}
	err = sweep(filepath.Join(s.root, outputDirName), func(e os.DirEntry) bool {
		return !e.IsDir()
	})
	return removed, err
}

func checkJobID(jobID string) error {
	if jobID == "" || jobID == "." || jobID == ".." || jobID == outputDirName ||
		strings.ContainsAny(jobID, `/\`) || filepath.Base(jobID) != jobID {
		return fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	return nil
}
