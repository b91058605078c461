// Package graph builds the typed filter graph that turns staged photos and an
// optional music track into one video stream and one audio stream.
//
// The graph is plain data. It is turned into encoder arguments only by the
// encoder package.
package graph

import (
	"errors"
	"fmt"
)

// InputKind tells the encoder how to open an input.
type InputKind int

const (
	// InputImage is a still image.
	InputImage InputKind = iota
	// InputAudio is the music track.
	InputAudio
)

// Input is one file opened by the encoder, in index order.
type Input struct {
	Kind InputKind
	Path string
	// Loop repeats a still image as a video stream.
	Loop bool
	// HoldSeconds bounds a looped image. Zero means unbounded.
	HoldSeconds float64
	// StreamLoop repeats the whole input indefinitely.
	StreamLoop bool
}

// Param is a single filter argument. An empty Key is positional.
type Param struct {
	Key   string
	Value string
}

// Filter is one filter with its arguments in order.
type Filter struct {
	Name   string
	Params []Param
}

// Stage is a linear filter chain between labelled pads.
// Input pads of the form "N:v" or "N:a" refer to encoder inputs.
type Stage struct {
	In      []string
	Filters []Filter
	Out     []string
}

// Fade is the audio fade-out window in seconds.
type Fade struct {
	Start float64
	End   float64
}

// FilterGraph is the complete processing description for one composition.
type FilterGraph struct {
	Inputs []Input
	Stages []Stage
	// VideoOut is the label of the final video pad.
	VideoOut string
	// AudioOut is the label of the final audio pad, empty without music.
	AudioOut string
	// TotalDuration is the output length in seconds.
	TotalDuration float64
	// AudioFade is set when AudioOut is.
	AudioFade *Fade
	FPS       int
	Width     int
	Height    int
}

// HasAudio reports whether the graph produces an audio stream.
func (g *FilterGraph) HasAudio() bool {
	return g.AudioOut != ""
}

// ErrMalformedGraph is returned by Check for graphs the encoder cannot run.
var ErrMalformedGraph = errors.New("graph: malformed filter graph")

// Check verifies that every pad is produced before it is consumed, that each
// pad is consumed at most once and that the declared outputs exist.
func (g *FilterGraph) Check() error {
	if len(g.Inputs) == 0 {
		return fmt.Errorf("%w: no inputs", ErrMalformedGraph)
	}
	if g.TotalDuration <= 0 {
		return fmt.Errorf("%w: total duration %v", ErrMalformedGraph, g.TotalDuration)
	}

	available := make(map[string]bool)
	for i, in := range g.Inputs {
		if in.Kind == InputAudio {
			available[fmt.Sprintf("%d:a", i)] = true
		} else {
			available[fmt.Sprintf("%d:v", i)] = true
		}
	}

	for si, st := range g.Stages {
		if len(st.Filters) == 0 {
			return fmt.Errorf("%w: stage %d has no filters", ErrMalformedGraph, si)
		}
		for _, pad := range st.In {
			if !available[pad] {
				return fmt.Errorf("%w: stage %d consumes unknown pad %q", ErrMalformedGraph, si, pad)
			}
			delete(available, pad)
		}
		for _, pad := range st.Out {
			if available[pad] {
				return fmt.Errorf("%w: pad %q produced twice", ErrMalformedGraph, pad)
			}
			available[pad] = true
		}
	}

	if !available[g.VideoOut] {
		return fmt.Errorf("%w: missing video output %q", ErrMalformedGraph, g.VideoOut)
	}
	if g.AudioOut != "" && !available[g.AudioOut] {
		return fmt.Errorf("%w: missing audio output %q", ErrMalformedGraph, g.AudioOut)
	}
	if g.AudioOut != "" && g.AudioFade == nil {
		return fmt.Errorf("%w: audio output without fade", ErrMalformedGraph)
	}
	return nil
}
