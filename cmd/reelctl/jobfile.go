package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/maauso/photoreel-api/internal/composition"
)

const defaultOutput = "photoreel.mp4"

var errNoPhotos = errors.New("no photos: pass --file or --photo")

// jobFile is the YAML description of a single composition.
//
//	photos:
//	  - source: beach.jpg
//	  - source: https://example.com/sunset.png
//	    duration: 5
//	audio: peaceful
//	output: holiday.mp4
//	config:
//	  transition_mode: slide
//	  width: 1920
//	  height: 1080
type jobFile struct {
	Photos []composition.PhotoInput `yaml:"photos"`
	Audio  string                   `yaml:"audio"`
	Output string                   `yaml:"output"`
	Config composition.Config       `yaml:"config"`
}

// jobFlags are the flags shared by commands that take a job.
type jobFlags struct {
	file       string
	output     string
	photos     []string
	music      string
	transition string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "YAML job file")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output video path (default "+defaultOutput+")")
	cmd.Flags().StringArrayVar(&f.photos, "photo", nil, "Photo path or URL; repeat to add more, replaces the job file photos")
	cmd.Flags().StringVar(&f.music, "music", "", "Background music key")
	cmd.Flags().StringVar(&f.transition, "transition", "", "Transition mode: none, fade, slide or zoom")
}

// resolve builds the job from the job file, if any, and the flag overrides.
// Settings missing from both take defaults.
func (f *jobFlags) resolve(defaults composition.Config) (*jobFile, error) {
	job := &jobFile{Config: defaults}
	if f.file != "" {
		loaded, err := loadJobFile(f.file, defaults)
		if err != nil {
			return nil, err
		}
		job = loaded
	}

	if len(f.photos) > 0 {
		job.Photos = make([]composition.PhotoInput, len(f.photos))
		for i, src := range f.photos {
			job.Photos[i] = composition.PhotoInput{Source: src}
		}
	}
	if f.music != "" {
		job.Audio = f.music
	}
	if f.transition != "" {
		job.Config.TransitionMode = composition.TransitionMode(strings.ToLower(f.transition))
	}
	if f.output != "" {
		job.Output = f.output
	}
	if job.Output == "" {
		job.Output = defaultOutput
	}

	if len(job.Photos) == 0 {
		return nil, errNoPhotos
	}
	return job, nil
}

// loadJobFile reads a job file over defaults. Relative photo paths are taken
// relative to the file's directory.
func loadJobFile(path string, defaults composition.Config) (*jobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}

	job := &jobFile{Config: defaults}
	if err := yaml.Unmarshal(data, job); err != nil {
		return nil, fmt.Errorf("parse job file %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i, p := range job.Photos {
		if p.IsRemote() || p.Source == "" || filepath.IsAbs(p.Source) {
			continue
		}
		job.Photos[i].Source = filepath.Join(base, p.Source)
	}
	job.Config.TransitionMode = composition.TransitionMode(strings.ToLower(string(job.Config.TransitionMode)))
	job.Audio = strings.ToLower(strings.TrimSpace(job.Audio))
	return job, nil
}
