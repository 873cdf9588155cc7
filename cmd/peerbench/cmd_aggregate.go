package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/anushabukke/peerBench-sub002/internal/aggregate"
	"github.com/anushabukke/peerBench-sub002/internal/utils"
)

func newAggregateCommand(_ *app) *cobra.Command {
	var (
		format        string
		outputPath    string
		passThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "aggregate <scores.json|dir|glob>...",
		Short: "Rank models by their scores",
		Long: `Aggregate score files into one row per provider and model.

Rows report the number of responses, how many scored at or above the pass
threshold, accuracy with a Wilson 95% interval, and the mean score and
latency. Rows are ranked by mean score, best first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := utils.ExpandFiles(args, ".scores")
			if err != nil {
				return err
			}
			rows, err := aggregate.FromFiles(files, aggregate.Options{PassThreshold: passThreshold})
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("creating %s: %w", outputPath, err)
				}
				defer f.Close() //nolint:errcheck
				w = f
			}

			switch format {
			case "table":
				return aggregate.WriteTable(w, rows)
			case "json":
				return aggregate.WriteJSON(w, rows)
			default:
				return fmt.Errorf("unknown format %q (want table or json)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table or json")
	cmd.Flags().StringVar(&outputPath, "output", "", "Write to this file instead of stdout")
	cmd.Flags().Float64Var(&passThreshold, "pass-threshold", aggregate.DefaultPassThreshold, "Minimum score counted as a correct answer")

	return cmd
}
