package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/linknode/internal/app"
	"github.com/tturner/linknode/internal/config"
)

type replayFlags struct {
	capturePort int
	host        string
	port        int
	timeoutMs   int
	reportJSON  string
	logFile     string
	verbose     bool
	debug       bool
	noProgress  bool
}

func newReplayCmd() *cobra.Command {
	flags := &replayFlags{}

	cmd := &cobra.Command{
		Use:   "replay <pcap_file|dir>",
		Short: "Resend captured updates and compare the replies",
		Long: `Extract every status update sent to --capture-port from a capture (for
example one written by 'run --pcap'), resend them to the central node engine
and compare each new reply with the captured one. A directory replays every
.pcap/.pcapng file below it in name order.`,
		Example: `  linknode replay runs/run.pcap
  linknode replay runs/
  linknode replay old.pcap --host 10.0.0.5 --report-json replay.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "<pcap_file|dir>")
			}
			err := app.RunReplay(app.ReplayOptions{
				PCAPFile:   args[0],
				ServerPort: flags.capturePort,
				Host:       flags.host,
				Port:       flags.port,
				TimeoutMs:  flags.timeoutMs,
				ReportJSON: flags.reportJSON,
				LogFile:    flags.logFile,
				Verbose:    flags.verbose,
				Debug:      flags.debug,
				NoProgress: flags.noProgress,
			})
			if err != nil {
				exitFatal(err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&flags.capturePort, "capture-port", config.DefaultPort, "Central node UDP port in the capture")
	cmd.Flags().StringVar(&flags.host, "host", config.DefaultHost, "Central node engine host")
	cmd.Flags().IntVar(&flags.port, "port", config.DefaultPort, "Central node engine UDP port")
	cmd.Flags().IntVar(&flags.timeoutMs, "timeout-ms", 1000, "Reply timeout in milliseconds (0 = wait forever)")
	cmd.Flags().StringVar(&flags.reportJSON, "report-json", "", "Write the replay summary as JSON to a file, or - for stdout")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "Log file path")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "Enable verbose output")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug output")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Disable the progress bar")

	return cmd
}
