package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/linknode/internal/app"
)

func newMetricsReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics-report <metrics_csv>",
		Short: "Summarize a per-update metrics CSV",
		Long: `Read a metrics CSV written by 'run --metrics-file' and print update counts,
outcome rates and RTT statistics for the recorded window.`,
		Example: `  linknode metrics-report runs/metrics.csv`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "<metrics_csv>")
			}
			return app.RunMetricsReport(args[0], cmd.OutOrStdout())
		},
	}
	return cmd
}
