package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maauso/photoreel-api/internal/audio"
	"github.com/maauso/photoreel-api/internal/composition"
	"github.com/maauso/photoreel-api/internal/config"
	"github.com/maauso/photoreel-api/internal/encoder"
	"github.com/maauso/photoreel-api/internal/graph"
)

type planResult struct {
	Binary               string   `json:"binary"`
	Args                 []string `json:"args"`
	TotalDurationSeconds float64  `json:"total_duration_seconds"`
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var flags jobFlags
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the encoder command a job would run",
		Long:  "Plan validates a job and prints the encoder invocation without fetching photos or running the encoder.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			job, err := flags.resolve(cfg.Defaults.Composition())
			if err != nil {
				return err
			}

			plan, err := buildPlan(cfg, job, ctx.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, plan)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# total duration: %.2fs\n", plan.TotalDurationSeconds)
			fmt.Fprintln(out, shellJoin(append([]string{plan.Binary}, plan.Args...)))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the plan as JSON")
	return cmd
}

// buildPlan builds the graph from the job's declared sources. Photos are not
// staged, so the paths in the plan are the sources as given.
func buildPlan(cfg *config.Config, job *jobFile, logger *slog.Logger) (planResult, error) {
	if err := composition.Validate(job.Photos, job.Config, cfg.Limits()); err != nil {
		return planResult{}, err
	}

	photos := make([]composition.StagedAsset, len(job.Photos))
	for i, p := range job.Photos {
		photos[i] = composition.StagedAsset{
			Index:           i,
			Source:          p.Source,
			Path:            p.Source,
			DurationSeconds: p.DurationSeconds,
		}
	}

	var music *composition.StagedAsset
	trackPath, err := audio.NewRegistry(cfg.MusicDir).Resolve(composition.AudioSelection(job.Audio))
	if err != nil {
		return planResult{}, err
	}
	if trackPath != "" {
		if _, err := os.Stat(trackPath); err != nil {
			return planResult{}, &composition.AssetMissingError{Index: -1, Path: trackPath, Err: err}
		}
		music = &composition.StagedAsset{
			Index:           -1,
			Source:          job.Audio,
			Path:            trackPath,
			Format:          "audio",
			DurationSeconds: audio.ProbeDurationOrZero(logger, trackPath),
		}
	}

	g, err := graph.Build(photos, music, job.Config)
	if err != nil {
		return planResult{}, err
	}
	args, err := encoder.Args(g, job.Output, job.Config)
	if err != nil {
		return planResult{}, err
	}
	return planResult{Binary: cfg.FFmpegPath, Args: args, TotalDurationSeconds: g.TotalDuration}, nil
}

// shellJoin quotes each argument that a POSIX shell would split or expand.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a != "" && !strings.ContainsAny(a, " \t\n'\"\\$`;&|<>()[]*?!#~=") {
			quoted[i] = a
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}
