package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/linknode/internal/app"
	"github.com/tturner/linknode/internal/config"
)

type runFlags struct {
	host        string
	port        int
	start       int
	size        int
	repeat      int
	timeoutMs   int
	layout      string
	strict      bool
	config      string
	logFile     string
	reportJSON  string
	metricsFile string
	metricsJSON string
	outputDir   string
	pcapFile    string
	verbose     bool
	debug       bool
	tui         bool

	statusEndpoint string
	statusUnitID   int
	statusAddress  int
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <input_name> <mitigation_name>",
		Short: "Send update cycles to the central node and validate replies",
		Long: `Send one UDP status update per index and validate the mitigation reply.

Each cycle reads <input_name>-<i>.txt for i in [start, start+size), encodes the
transition lines into a status buffer, sends it to the central node engine and
compares the decoded power classes with the first line of
<mitigation_name>-<i>.txt. Mismatches are printed and the run continues; a
missing file or a socket failure stops the run with exit status 2.

With --config the file names and settings come from a run config (see
'linknode init'); flags given on the command line override it.`,
		Example: `  # One update per cycle, forever, against the default central node
  linknode run updates mitigation

  # Indexes 1..4, three cycles, debug bit trace
  linknode run updates mitigation --host 10.0.0.5 --size 4 --repeat 3 --debug

  # Keep artifacts (run.json, metrics, capture) and publish status over Modbus
  linknode run --config run.yaml --output-dir runs/ --status-endpoint 10.0.0.9:502`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.config == "" && len(args) < 2 {
				return missingArgError(cmd, "<input_name> <mitigation_name>")
			}
			opts := runOptionsFromFlags(cmd, flags, args)
			if err := app.RunHarness(opts); err != nil {
				exitFatal(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", config.DefaultHost, "Central node engine host")
	cmd.Flags().IntVar(&flags.port, "port", config.DefaultPort, "Central node engine UDP port")
	cmd.Flags().IntVar(&flags.start, "start", 1, "First file index")
	cmd.Flags().IntVar(&flags.size, "size", 1, "Number of updates per cycle")
	cmd.Flags().IntVar(&flags.repeat, "repeat", 0, "Number of cycles (0 = run forever)")
	cmd.Flags().IntVar(&flags.timeoutMs, "timeout-ms", 0, "Reply timeout in milliseconds (0 = wait forever)")
	cmd.Flags().StringVar(&flags.layout, "layout", "per-line", "Status buffer layout: per-line|paired")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "Reject malformed transition lines instead of padding them")
	cmd.Flags().StringVar(&flags.config, "config", "", "Run config YAML file")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "Log file path (default: stdout/stderr only)")
	cmd.Flags().StringVar(&flags.reportJSON, "report-json", "", "Write the run summary as JSON to a file, or - for stdout")
	cmd.Flags().StringVar(&flags.metricsFile, "metrics-file", "", "Per-update metrics CSV output")
	cmd.Flags().StringVar(&flags.metricsJSON, "metrics-json", "", "Per-update metrics JSON output")
	cmd.Flags().StringVar(&flags.outputDir, "output-dir", "", "Output directory for artifacts (run.json, summary, metrics, pcap)")
	cmd.Flags().StringVar(&flags.pcapFile, "pcap", "", "Record sent updates and replies to a PCAP file")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "Enable verbose output")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug output, including the per-block bit trace")
	cmd.Flags().BoolVar(&flags.tui, "tui", false, "Show the live cycle monitor")
	cmd.Flags().StringVar(&flags.statusEndpoint, "status-endpoint", "", "Modbus TCP endpoint (host:port) receiving per-cycle status")
	cmd.Flags().IntVar(&flags.statusUnitID, "status-unit-id", 1, "Modbus unit ID for status writes")
	cmd.Flags().IntVar(&flags.statusAddress, "status-address", 0, "First holding register of the status block")

	return cmd
}

// runOptionsFromFlags copies only the flags the user set so a run config
// keeps its values for the rest.
func runOptionsFromFlags(cmd *cobra.Command, flags *runFlags, args []string) app.RunOptions {
	opts := app.RunOptions{
		ConfigPath:      flags.config,
		Strict:          flags.strict,
		LogFile:         flags.logFile,
		ReportJSON:      flags.reportJSON,
		MetricsFile:     flags.metricsFile,
		MetricsJSONFile: flags.metricsJSON,
		OutputDir:       flags.outputDir,
		PCAPFile:        flags.pcapFile,
		Verbose:         flags.verbose,
		Debug:           flags.debug,
		TUI:             flags.tui,
		StatusEndpoint:  flags.statusEndpoint,
		Version:         version,
	}
	if len(args) > 0 {
		opts.InputName = args[0]
	}
	if len(args) > 1 {
		opts.MitigationName = args[1]
	}

	changed := cmd.Flags().Changed
	if changed("host") {
		opts.Host = flags.host
	}
	if changed("port") {
		opts.Port = flags.port
	}
	if changed("layout") {
		opts.Layout = flags.layout
	}
	intFlags := []struct {
		name string
		val  int
		dst  **int
	}{
		{"start", flags.start, &opts.Start},
		{"size", flags.size, &opts.Size},
		{"repeat", flags.repeat, &opts.Repeat},
		{"timeout-ms", flags.timeoutMs, &opts.TimeoutMs},
		{"status-unit-id", flags.statusUnitID, &opts.StatusUnitID},
		{"status-address", flags.statusAddress, &opts.StatusAddress},
	}
	for _, f := range intFlags {
		if changed(f.name) {
			v := f.val
			*f.dst = &v
		}
	}
	return opts
}
