package graph

import (
	"fmt"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/photoreel-api/internal/composition"
)

func stagedPhotos(durations ...float64) []composition.StagedAsset {
	out := make([]composition.StagedAsset, len(durations))
	for i, d := range durations {
		out[i] = composition.StagedAsset{
			Index:           i,
			Path:            fmt.Sprintf("/scratch/job/photo_%03d.jpg", i),
			Format:          "jpeg",
			DurationSeconds: d,
		}
	}
	return out
}

func configFor(mode composition.TransitionMode) composition.Config {
	cfg := composition.Defaults()
	cfg.TransitionMode = mode
	return cfg
}

func param(t *testing.T, f Filter, key string) string {
	t.Helper()
	for _, p := range f.Params {
		if p.Key == key {
			return p.Value
		}
	}
	t.Fatalf("filter %s has no param %q", f.Name, key)
	return ""
}

func paramFloat(t *testing.T, f Filter, key string) float64 {
	t.Helper()
	v, err := strconv.ParseFloat(param(t, f, key), 64)
	require.NoError(t, err)
	return v
}

func stagesWith(g *FilterGraph, name string) []Stage {
	var out []Stage
	for _, st := range g.Stages {
		for _, f := range st.Filters {
			if f.Name == name {
				out = append(out, st)
				break
			}
		}
	}
	return out
}

func TestBuild_SinglePhotoNone(t *testing.T) {
	g, err := Build(stagedPhotos(0), nil, configFor(composition.TransitionNone))
	require.NoError(t, err)

	assert.Equal(t, 3.0, g.TotalDuration)
	require.Len(t, g.Inputs, 1)
	assert.True(t, g.Inputs[0].Loop)
	assert.Equal(t, 3.0, g.Inputs[0].HoldSeconds)
	assert.False(t, g.HasAudio())
	assert.Nil(t, g.AudioFade)
	assert.Equal(t, "vout", g.VideoOut)
}

func TestBuild_TwoPhotosFade(t *testing.T) {
	cfg := configFor(composition.TransitionFade)
	cfg.PhotoDurationSeconds = 3
	cfg.TransitionDurationSeconds = 1

	g, err := Build(stagedPhotos(0, 0), nil, cfg)
	require.NoError(t, err)

	assert.Equal(t, 7.0, g.TotalDuration)

	xfades := stagesWith(g, "xfade")
	require.Len(t, xfades, 1)
	assert.Equal(t, []string{"v0", "v1"}, xfades[0].In)
	assert.Equal(t, []string{"vout"}, xfades[0].Out)

	f := xfades[0].Filters[0]
	assert.Equal(t, "fade", param(t, f, "transition"))
	assert.Equal(t, 3.0, paramFloat(t, f, "offset"))
	assert.Equal(t, 1.0, paramFloat(t, f, "duration"))

	assert.Equal(t, 4.0, g.Inputs[0].HoldSeconds)
	assert.Equal(t, 4.0, g.Inputs[1].HoldSeconds)
}

func TestBuild_SlideUsesSlideTransition(t *testing.T) {
	g, err := Build(stagedPhotos(0, 0, 0), nil, configFor(composition.TransitionSlide))
	require.NoError(t, err)

	for _, st := range stagesWith(g, "xfade") {
		assert.Equal(t, "slideleft", param(t, st.Filters[0], "transition"))
	}
}

func TestBuild_SinglePhotoFadeIsPassthrough(t *testing.T) {
	g, err := Build(stagedPhotos(4), nil, configFor(composition.TransitionFade))
	require.NoError(t, err)

	assert.Empty(t, stagesWith(g, "xfade"))
	assert.Equal(t, 4.0, g.TotalDuration)
	assert.Equal(t, 4.0, g.Inputs[0].HoldSeconds)
}

func TestBuild_ChainOffsets(t *testing.T) {
	cfg := configFor(composition.TransitionFade)
	cfg.TransitionDurationSeconds = 0.5

	g, err := Build(stagedPhotos(2, 3, 4, 5), nil, cfg)
	require.NoError(t, err)

	xfades := stagesWith(g, "xfade")
	require.Len(t, xfades, 3)

	wantOffsets := []float64{2, 2 + 3 + 0.5, 2 + 3 + 4 + 1}
	for i, st := range xfades {
		assert.InDelta(t, wantOffsets[i], paramFloat(t, st.Filters[0], "offset"), 1e-9, "transition %d", i)
	}
	assert.Equal(t, []string{"x1", "v2"}, xfades[1].In)

	wantHolds := []float64{2.5, 4, 5, 5.5}
	for i, in := range g.Inputs {
		assert.InDelta(t, wantHolds[i], in.HoldSeconds, 1e-9, "input %d", i)
	}
	assert.InDelta(t, 15.5, g.TotalDuration, 1e-9)
}

func TestBuild_Zoom(t *testing.T) {
	cfg := configFor(composition.TransitionZoom)
	cfg.FPS = 25
	cfg.ZoomRatePerFrame = 0.002

	g, err := Build(stagedPhotos(2, 0), nil, cfg)
	require.NoError(t, err)

	assert.Equal(t, 5.0, g.TotalDuration)
	for _, in := range g.Inputs {
		assert.False(t, in.Loop)
	}

	zooms := stagesWith(g, "zoompan")
	require.Len(t, zooms, 2)

	var zp Filter
	for _, f := range zooms[0].Filters {
		if f.Name == "zoompan" {
			zp = f
		}
	}
	assert.Equal(t, "min(1+0.002*on,1.5)", param(t, zp, "z"))
	assert.Equal(t, "50", param(t, zp, "d"))
	assert.Equal(t, "1280x720", param(t, zp, "s"))

	cfg.ZoomDirection = composition.ZoomOut
	g, err = Build(stagedPhotos(2), nil, cfg)
	require.NoError(t, err)
	for _, f := range stagesWith(g, "zoompan")[0].Filters {
		if f.Name == "zoompan" {
			assert.Equal(t, "max(1.5-0.002*on,1)", param(t, f, "z"))
		}
	}

	assert.Len(t, stagesWith(g, "concat"), 1)
}

func TestBuild_ZoomFramesTrackTotalDuration(t *testing.T) {
	cfg := configFor(composition.TransitionZoom)
	cfg.FPS = 30
	durations := []float64{1.01, 2.49, 3.333, 0.75}

	g, err := Build(stagedPhotos(durations...), nil, cfg)
	require.NoError(t, err)

	halfFrame := 0.5 / float64(cfg.FPS)
	rendered := 0.0
	for i, st := range stagesWith(g, "zoompan") {
		for _, f := range st.Filters {
			if f.Name != "zoompan" {
				continue
			}
			clip := paramFloat(t, f, "d") / float64(cfg.FPS)
			assert.InDelta(t, durations[i], clip, halfFrame+1e-9, "clip %d", i)
			rendered += clip
		}
	}
	assert.InDelta(t, g.TotalDuration, rendered, float64(len(durations))*halfFrame)
}

func TestBuild_ZoomClipShorterThanAFrame(t *testing.T) {
	cfg := configFor(composition.TransitionZoom)
	cfg.FPS = 30

	g, err := Build(stagedPhotos(0.01), nil, cfg)
	require.NoError(t, err)

	for _, f := range stagesWith(g, "zoompan")[0].Filters {
		if f.Name == "zoompan" {
			assert.Equal(t, "1", param(t, f, "d"))
		}
	}
	assert.InDelta(t, 0.01, g.TotalDuration, 1e-9)
}

func TestBuild_MusicStage(t *testing.T) {
	music := &composition.StagedAsset{Index: -1, Path: "/music/epic.mp3", DurationSeconds: 120}

	g, err := Build(stagedPhotos(0, 0), music, configFor(composition.TransitionFade))
	require.NoError(t, err)

	require.True(t, g.HasAudio())
	audioIn := g.Inputs[len(g.Inputs)-1]
	assert.Equal(t, InputAudio, audioIn.Kind)
	assert.False(t, audioIn.StreamLoop)

	require.NotNil(t, g.AudioFade)
	assert.Equal(t, 5.0, g.AudioFade.Start)
	assert.Equal(t, 7.0, g.AudioFade.End)

	st := stagesWith(g, "afade")
	require.Len(t, st, 1)
	assert.Equal(t, []string{"2:a"}, st[0].In)
	names := make([]string, 0, len(st[0].Filters))
	for _, f := range st[0].Filters {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"volume", "atrim", "asetpts", "afade"}, names)
	assert.Equal(t, "7", param(t, st[0].Filters[1], "end"))
}

func TestBuild_ShortOrUnknownTrackIsLooped(t *testing.T) {
	for _, length := range []float64{0, 4} {
		music := &composition.StagedAsset{Index: -1, Path: "/music/adventure.mp3", DurationSeconds: length}
		g, err := Build(stagedPhotos(3, 3), music, configFor(composition.TransitionFade))
		require.NoError(t, err)
		assert.True(t, g.Inputs[len(g.Inputs)-1].StreamLoop, "length %v", length)
	}
}

func TestBuild_FadeClampedForShortVideos(t *testing.T) {
	music := &composition.StagedAsset{Index: -1, Path: "/music/peaceful.mp3", DurationSeconds: 60}
	cfg := configFor(composition.TransitionNone)
	cfg.PhotoDurationSeconds = 1.25

	g, err := Build(stagedPhotos(0), music, cfg)
	require.NoError(t, err)

	assert.Equal(t, 0.0, g.AudioFade.Start)
	assert.Equal(t, 1.25, g.AudioFade.End)
}

func TestBuild_NoPhotos(t *testing.T) {
	_, err := Build(nil, nil, composition.Defaults())
	assert.ErrorIs(t, err, ErrNoClips)
}

func TestBuild_Pure(t *testing.T) {
	music := &composition.StagedAsset{Index: -1, Path: "/music/epic.mp3", DurationSeconds: 30}
	for _, mode := range []composition.TransitionMode{
		composition.TransitionNone, composition.TransitionFade, composition.TransitionSlide, composition.TransitionZoom,
	} {
		photos := stagedPhotos(1.5, 0, 2.25)
		a, err := Build(photos, music, configFor(mode))
		require.NoError(t, err)
		b, err := Build(photos, music, configFor(mode))
		require.NoError(t, err)
		assert.Equal(t, a, b, "mode %s", mode)
	}
}

// expectedTotal is the closed form written out independently of TotalDuration.
func expectedTotal(durations []float64, mode composition.TransitionMode, t float64) float64 {
	n := float64(len(durations))
	var sum float64
	for _, d := range durations {
		sum += d
	}
	if mode == composition.TransitionFade || mode == composition.TransitionSlide {
		return sum + (n-1)*t
	}
	return sum
}

func TestBuild_DurationAndFadeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(20241015))
	modes := []composition.TransitionMode{
		composition.TransitionNone, composition.TransitionFade, composition.TransitionSlide, composition.TransitionZoom,
	}
	music := &composition.StagedAsset{Index: -1, Path: "/music/epic.mp3"}

	for n := 1; n <= 50; n++ {
		for _, mode := range modes {
			cfg := configFor(mode)
			cfg.TransitionDurationSeconds = float64(1+rng.Intn(20)) / 10

			durations := make([]float64, n)
			for i := range durations {
				// millisecond resolution keeps float sums exact enough to compare
				durations[i] = float64(100+rng.Intn(9900)) / 1000
			}

			g, err := Build(stagedPhotos(durations...), music, cfg)
			require.NoError(t, err, "n=%d mode=%s", n, mode)

			want := expectedTotal(durations, mode, cfg.TransitionDurationSeconds)
			assert.InDelta(t, want, g.TotalDuration, 1e-6, "n=%d mode=%s", n, mode)

			require.NotNil(t, g.AudioFade)
			assert.GreaterOrEqual(t, g.AudioFade.Start, 0.0)
			assert.LessOrEqual(t, g.AudioFade.End, g.TotalDuration)
			assert.LessOrEqual(t, g.AudioFade.Start, g.AudioFade.End)

			if mode.Blends() && n > 1 {
				xfades := stagesWith(g, "xfade")
				require.Len(t, xfades, n-1)
				last := paramFloat(t, xfades[n-2].Filters[0], "offset")
				hold := g.Inputs[n-1].HoldSeconds
				assert.InDelta(t, g.TotalDuration, last+hold, 1e-6, "n=%d mode=%s", n, mode)
			}
		}
	}
}

func TestTotalDuration(t *testing.T) {
	assert.Equal(t, 3.0, TotalDuration([]float64{3}, composition.TransitionNone, 1))
	assert.Equal(t, 7.0, TotalDuration([]float64{3, 3}, composition.TransitionFade, 1))
	assert.Equal(t, 6.0, TotalDuration([]float64{3, 3}, composition.TransitionZoom, 1))
	assert.Equal(t, 3.0, TotalDuration([]float64{3}, composition.TransitionSlide, 1))
	assert.Equal(t, 0.0, TotalDuration(nil, composition.TransitionFade, 1))
}

func TestCheck_RejectsMalformedGraphs(t *testing.T) {
	tests := []struct {
		name string
		g    FilterGraph
	}{
		{"no inputs", FilterGraph{TotalDuration: 1, VideoOut: "vout"}},
		{"unknown pad", FilterGraph{
			Inputs:        []Input{{Kind: InputImage, Path: "a"}},
			Stages:        []Stage{{In: []string{"3:v"}, Filters: []Filter{{Name: "null"}}, Out: []string{"vout"}}},
			TotalDuration: 1, VideoOut: "vout",
		}},
		{"pad consumed twice", FilterGraph{
			Inputs: []Input{{Kind: InputImage, Path: "a"}},
			Stages: []Stage{
				{In: []string{"0:v"}, Filters: []Filter{{Name: "null"}}, Out: []string{"v0"}},
				{In: []string{"v0", "v0"}, Filters: []Filter{{Name: "hstack"}}, Out: []string{"vout"}},
			},
			TotalDuration: 1, VideoOut: "vout",
		}},
		{"missing output", FilterGraph{
			Inputs:        []Input{{Kind: InputImage, Path: "a"}},
			Stages:        []Stage{{In: []string{"0:v"}, Filters: []Filter{{Name: "null"}}, Out: []string{"v0"}}},
			TotalDuration: 1, VideoOut: "vout",
		}},
		{"zero duration", FilterGraph{
			Inputs:        []Input{{Kind: InputImage, Path: "a"}},
			Stages:        []Stage{{In: []string{"0:v"}, Filters: []Filter{{Name: "null"}}, Out: []string{"vout"}}},
			TotalDuration: 0, VideoOut: "vout",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.g.Check(), ErrMalformedGraph)
		})
	}
}
