package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/maauso/photoreel-api/internal/bootstrap"
	"github.com/maauso/photoreel-api/internal/composition"
	"github.com/maauso/photoreel-api/internal/storage"
)

type composeResult struct {
	JobID                string  `json:"job_id"`
	Output               string  `json:"output"`
	SizeBytes            int64   `json:"size_bytes"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
}

func newComposeCommand(ctx *commandContext) *cobra.Command {
	var flags jobFlags
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose a video and write it to a local file",
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
			output, err := filepath.Abs(job.Output)
			if err != nil {
				return fmt.Errorf("resolve output path: %w", err)
			}

			logger := ctx.logger(cmd.ErrOrStderr())
			pipeline, err := bootstrap.NewPipeline(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			res, err := pipeline.Service.Compose(cmd.Context(), job.Photos, composition.AudioSelection(job.Audio), job.Config)
			if err != nil {
				return err
			}

			// The scratch output is moved next to the requested path
			pub, err := storage.NewLocalPublisher(filepath.Dir(output), "")
			if err != nil {
				return err
			}
			if _, err := pub.Publish(cmd.Context(), filepath.Base(output), res.OutputPath, res.ContentType); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			if err := pipeline.Service.MarkPublished(cmd.Context(), res.JobID, output); err != nil {
				logger.Warn("failed to record output", slog.String("error", err.Error()))
			}

			result := composeResult{
				JobID:                res.JobID,
				Output:               output,
				SizeBytes:            res.Size,
				TotalDurationSeconds: res.TotalDurationSeconds,
			}
			if jsonOutput {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%.2fs, %d bytes)\n", result.Output, result.TotalDurationSeconds, result.SizeBytes)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	return cmd
}
