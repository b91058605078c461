package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maauso/photoreel-api/internal/preflight"
)

var errPreflightFailed = errors.New("preflight checks failed")

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the encoder and scratch directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			results := preflight.RunAll(cmd.Context(), cfg.FFmpegPath, cfg.TempDir, cfg.MinFreeBytes)
			if jsonOutput {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				for _, r := range results {
					status := "OK"
					if !r.Passed {
						status = "FAIL"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", status, r.Name, r.Detail)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			if !preflight.AllPassed(results) {
				return errPreflightFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	return cmd
}
