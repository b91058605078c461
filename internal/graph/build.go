package graph

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/maauso/photoreel-api/internal/composition"
)

// ErrNoClips is returned when Build is given no photos.
var ErrNoClips = errors.New("graph: at least one photo is required")

// TotalDuration returns the output length for clips shown for durations
// seconds each. Blending modes overlap neighbours by transition seconds, and
// every clip but the first is held that much longer, so each transition adds
// its length once.
func TotalDuration(durations []float64, mode composition.TransitionMode, transition float64) float64 {
	var sum float64
	for _, d := range durations {
		sum += d
	}
	if mode.Blends() && len(durations) > 1 {
		sum += float64(len(durations)-1) * transition
	}
	return round(sum)
}

// Build describes how photos and the optional music track are combined
// under cfg. It is pure: it touches no files and spawns nothing.
func Build(photos []composition.StagedAsset, music *composition.StagedAsset, cfg composition.Config) (*FilterGraph, error) {
	if len(photos) == 0 {
		return nil, ErrNoClips
	}

	durations := make([]float64, len(photos))
	for i, p := range photos {
		durations[i] = cfg.ClipDuration(composition.PhotoInput{DurationSeconds: p.DurationSeconds})
		if durations[i] <= 0 {
			return nil, fmt.Errorf("graph: photo %d has non-positive duration %v", i, durations[i])
		}
	}

	g := &FilterGraph{
		TotalDuration: TotalDuration(durations, cfg.TransitionMode, cfg.TransitionDurationSeconds),
		FPS:           cfg.FPS,
		Width:         cfg.Width,
		Height:        cfg.Height,
		VideoOut:      "vout",
	}

	switch cfg.TransitionMode {
	case composition.TransitionNone:
		buildConcat(g, photos, durations, cfg)
	case composition.TransitionFade, composition.TransitionSlide:
		buildBlend(g, photos, durations, cfg)
	case composition.TransitionZoom:
		buildZoom(g, photos, durations, cfg)
	default:
		return nil, fmt.Errorf("graph: unknown transition mode %q", cfg.TransitionMode)
	}

	if music != nil {
		addMusic(g, music, cfg)
	}

	if err := g.Check(); err != nil {
		return nil, err
	}
	return g, nil
}

// buildConcat shows every clip for exactly its duration, back to back.
func buildConcat(g *FilterGraph, photos []composition.StagedAsset, durations []float64, cfg composition.Config) {
	labels := make([]string, len(photos))
	for i, p := range photos {
		g.Inputs = append(g.Inputs, Input{Kind: InputImage, Path: p.Path, Loop: true, HoldSeconds: round(durations[i])})
		labels[i] = fmt.Sprintf("v%d", i)
		g.Stages = append(g.Stages, Stage{
			In:      []string{fmt.Sprintf("%d:v", i)},
			Filters: normalize(cfg),
			Out:     []string{labels[i]},
		})
	}
	g.Stages = append(g.Stages, concat(labels, g.VideoOut))
}

// buildBlend chains xfade filters. Clip hold lengths are d1+T for the first,
// di+2T for middle clips and dn+T for the last one, so the k-th transition
// starts at d1+...+dk + (k-1)T.
func buildBlend(g *FilterGraph, photos []composition.StagedAsset, durations []float64, cfg composition.Config) {
	n := len(photos)
	t := cfg.TransitionDurationSeconds

	for i, p := range photos {
		hold := durations[i]
		if n > 1 {
			switch i {
			case 0, n - 1:
				hold += t
			default:
				hold += 2 * t
			}
		}
		g.Inputs = append(g.Inputs, Input{Kind: InputImage, Path: p.Path, Loop: true, HoldSeconds: round(hold)})

		out := fmt.Sprintf("v%d", i)
		if n == 1 {
			out = g.VideoOut
		}
		g.Stages = append(g.Stages, Stage{
			In:      []string{fmt.Sprintf("%d:v", i)},
			Filters: normalize(cfg),
			Out:     []string{out},
		})
	}
	if n == 1 {
		return
	}

	transition := "fade"
	if cfg.TransitionMode == composition.TransitionSlide {
		transition = "slideleft"
	}

	prev := "v0"
	var offset float64
	for k := 1; k < n; k++ {
		offset += durations[k-1]
		if k > 1 {
			offset += t
		}
		out := fmt.Sprintf("x%d", k)
		if k == n-1 {
			out = g.VideoOut
		}
		g.Stages = append(g.Stages, Stage{
			In: []string{prev, fmt.Sprintf("v%d", k)},
			Filters: []Filter{{
				Name: "xfade",
				Params: []Param{
					{Key: "transition", Value: transition},
					{Key: "duration", Value: seconds(t)},
					{Key: "offset", Value: seconds(offset)},
				},
			}},
			Out: []string{out},
		})
		prev = out
	}
}

// buildZoom renders each still through zoompan for a fixed number of frames
// and concatenates the results. The image is upscaled first so the zoom does
// not jitter on integer pixel steps.
func buildZoom(g *FilterGraph, photos []composition.StagedAsset, durations []float64, cfg composition.Config) {
	labels := make([]string, len(photos))
	for i, p := range photos {
		g.Inputs = append(g.Inputs, Input{Kind: InputImage, Path: p.Path})

		// Whole frames only: each clip runs up to half a frame long or short
		// (a full frame for clips shorter than that), so the concat output can
		// drift from TotalDuration by n/2 frames. The encoder's -t cuts it.
		frames := int(math.Round(durations[i] * float64(cfg.FPS)))
		if frames < 1 {
			frames = 1
		}

		filters := []Filter{
			scaleFit(2*cfg.Width, 2*cfg.Height),
			padTo(2*cfg.Width, 2*cfg.Height, cfg.BackgroundColor),
			{Name: "zoompan", Params: []Param{
				{Key: "z", Value: zoomExpr(cfg.ZoomDirection, cfg.ZoomRatePerFrame)},
				{Key: "x", Value: "iw/2-(iw/zoom/2)"},
				{Key: "y", Value: "ih/2-(ih/zoom/2)"},
				{Key: "d", Value: strconv.Itoa(frames)},
				{Key: "s", Value: fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)},
				{Key: "fps", Value: strconv.Itoa(cfg.FPS)},
			}},
			{Name: "setsar", Params: []Param{{Value: "1"}}},
			{Name: "format", Params: []Param{{Value: "yuv420p"}}},
		}

		labels[i] = fmt.Sprintf("v%d", i)
		g.Stages = append(g.Stages, Stage{
			In:      []string{fmt.Sprintf("%d:v", i)},
			Filters: filters,
			Out:     []string{labels[i]},
		})
	}
	g.Stages = append(g.Stages, concat(labels, g.VideoOut))
}

// zoomExpr is the per-output-frame zoom factor, clamped to
// [MinZoomFactor, MaxZoomFactor].
func zoomExpr(dir composition.ZoomDirection, rate float64) string {
	r := strconv.FormatFloat(rate, 'f', -1, 64)
	lo := strconv.FormatFloat(composition.MinZoomFactor, 'f', -1, 64)
	hi := strconv.FormatFloat(composition.MaxZoomFactor, 'f', -1, 64)
	if dir == composition.ZoomOut {
		return fmt.Sprintf("max(%s-%s*on,%s)", hi, r, lo)
	}
	return fmt.Sprintf("min(%s+%s*on,%s)", lo, r, hi)
}

func addMusic(g *FilterGraph, music *composition.StagedAsset, cfg composition.Config) {
	idx := len(g.Inputs)
	loop := music.DurationSeconds <= 0 || music.DurationSeconds < g.TotalDuration
	g.Inputs = append(g.Inputs, Input{Kind: InputAudio, Path: music.Path, StreamLoop: loop})

	fade := &Fade{Start: round(math.Max(0, g.TotalDuration-composition.AudioFadeSeconds)), End: g.TotalDuration}
	g.AudioFade = fade
	g.AudioOut = "aout"

	g.Stages = append(g.Stages, Stage{
		In: []string{fmt.Sprintf("%d:a", idx)},
		Filters: []Filter{
			{Name: "volume", Params: []Param{{Value: strconv.FormatFloat(cfg.MusicVolume, 'f', -1, 64)}}},
			{Name: "atrim", Params: []Param{{Key: "end", Value: seconds(g.TotalDuration)}}},
			{Name: "asetpts", Params: []Param{{Value: "PTS-STARTPTS"}}},
			{Name: "afade", Params: []Param{
				{Key: "t", Value: "out"},
				{Key: "st", Value: seconds(fade.Start)},
				{Key: "d", Value: seconds(fade.End - fade.Start)},
			}},
		},
		Out: []string{g.AudioOut},
	})
}

// normalize fits a looped still into the output frame.
func normalize(cfg composition.Config) []Filter {
	return []Filter{
		scaleFit(cfg.Width, cfg.Height),
		padTo(cfg.Width, cfg.Height, cfg.BackgroundColor),
		{Name: "setsar", Params: []Param{{Value: "1"}}},
		{Name: "fps", Params: []Param{{Value: strconv.Itoa(cfg.FPS)}}},
		{Name: "format", Params: []Param{{Value: "yuv420p"}}},
	}
}

func scaleFit(w, h int) Filter {
	return Filter{Name: "scale", Params: []Param{
		{Key: "w", Value: strconv.Itoa(w)},
		{Key: "h", Value: strconv.Itoa(h)},
		{Key: "force_original_aspect_ratio", Value: "decrease"},
	}}
}

func padTo(w, h int, color string) Filter {
	return Filter{Name: "pad", Params: []Param{
		{Key: "w", Value: strconv.Itoa(w)},
		{Key: "h", Value: strconv.Itoa(h)},
		{Key: "x", Value: "(ow-iw)/2"},
		{Key: "y", Value: "(oh-ih)/2"},
		{Key: "color", Value: color},
	}}
}

func concat(labels []string, out string) Stage {
	return Stage{
		In: labels,
		Filters: []Filter{{Name: "concat", Params: []Param{
			{Key: "n", Value: strconv.Itoa(len(labels))},
			{Key: "v", Value: "1"},
			{Key: "a", Value: "0"},
		}}},
		Out: []string{out},
	}
}

// round trims float noise to the millisecond.
func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func seconds(v float64) string {
	return strconv.FormatFloat(round(v), 'f', -1, 64)
}
