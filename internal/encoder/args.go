package encoder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/maauso/photoreel-api/internal/composition"
	"github.com/maauso/photoreel-api/internal/graph"
)

// Audio encoding settings for every composition.
const (
	audioCodec   = "aac"
	audioBitrate = "192k"
)

var (
	labelPattern  = regexp.MustCompile(`^[A-Za-z0-9_:]+$`)
	filterPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
	keyPattern    = regexp.MustCompile(`^[a-z_]+$`)
)

// Args serializes g into an ffmpeg argument list that writes outputPath.
// The list is passed to the process directly, never through a shell.
func Args(g *graph.FilterGraph, outputPath string, cfg composition.Config) ([]string, error) {
	fc, err := FilterComplex(g)
	if err != nil {
		return nil, err
	}

	fps := strconv.Itoa(g.FPS)
	args := []string{"-hide_banner", "-nostdin"}

	for _, in := range g.Inputs {
		switch {
		case in.Kind == graph.InputImage && in.Loop:
			args = append(args, "-loop", "1", "-framerate", fps)
			if in.HoldSeconds > 0 {
				args = append(args, "-t", formatSeconds(in.HoldSeconds))
			}
		case in.Kind == graph.InputAudio && in.StreamLoop:
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-i", in.Path)
	}

	args = append(args, "-filter_complex", fc, "-map", "["+g.VideoOut+"]")
	if g.HasAudio() {
		args = append(args, "-map", "["+g.AudioOut+"]", "-c:a", audioCodec, "-b:a", audioBitrate)
	} else {
		args = append(args, "-an")
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", cfg.EncoderPreset,
		"-crf", strconv.Itoa(cfg.QualityCRF),
		"-pix_fmt", "yuv420p",
		"-r", fps,
		"-t", formatSeconds(g.TotalDuration),
		"-movflags", "+faststart",
		"-y", outputPath,
	)
	return args, nil
}

// FilterComplex renders the stages of g in filter graph syntax.
func FilterComplex(g *graph.FilterGraph) (string, error) {
	chains := make([]string, 0, len(g.Stages))
	for si, st := range g.Stages {
		var b strings.Builder
		for _, pad := range st.In {
			if !labelPattern.MatchString(pad) {
				return "", fmt.Errorf("%w: stage %d: bad input pad %q", composition.ErrInternal, si, pad)
			}
			b.WriteString("[" + pad + "]")
		}
		for fi, f := range st.Filters {
			if fi > 0 {
				b.WriteByte(',')
			}
			s, err := renderFilter(f)
			if err != nil {
				return "", fmt.Errorf("stage %d: %w", si, err)
			}
			b.WriteString(s)
		}
		for _, pad := range st.Out {
			if !labelPattern.MatchString(pad) {
				return "", fmt.Errorf("%w: stage %d: bad output pad %q", composition.ErrInternal, si, pad)
			}
			b.WriteString("[" + pad + "]")
		}
		chains = append(chains, b.String())
	}
	return strings.Join(chains, ";"), nil
}

func renderFilter(f graph.Filter) (string, error) {
	if !filterPattern.MatchString(f.Name) {
		return "", fmt.Errorf("%w: bad filter name %q", composition.ErrInternal, f.Name)
	}
	if len(f.Params) == 0 {
		return f.Name, nil
	}

	parts := make([]string, 0, len(f.Params))
	for _, p := range f.Params {
		if p.Key == "" {
			parts = append(parts, quote(p.Value))
			continue
		}
		if !keyPattern.MatchString(p.Key) {
			return "", fmt.Errorf("%w: bad option %q for %s", composition.ErrInternal, p.Key, f.Name)
		}
		parts = append(parts, p.Key+"="+quote(p.Value))
	}
	return f.Name + "=" + strings.Join(parts, ":"), nil
}

// quote wraps values containing filter graph metacharacters in single quotes.
// A literal quote is closed, escaped and reopened.
func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, `\':,;[]= `) {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
