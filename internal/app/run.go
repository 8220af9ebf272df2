package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/tturner/linknode/internal/artifact"
	"github.com/tturner/linknode/internal/capture"
	"github.com/tturner/linknode/internal/config"
	lnerrors "github.com/tturner/linknode/internal/errors"
	"github.com/tturner/linknode/internal/harness"
	"github.com/tturner/linknode/internal/logging"
	"github.com/tturner/linknode/internal/metrics"
	"github.com/tturner/linknode/internal/report"
	"github.com/tturner/linknode/internal/status"
	"github.com/tturner/linknode/internal/transport"
	"github.com/tturner/linknode/internal/tui"
	"github.com/tturner/linknode/internal/update"
)

// RunOptions are the `run` command inputs. Nil pointers and empty strings
// leave the config file (or default) value in place.
type RunOptions struct {
	InputName      string
	MitigationName string
	ConfigPath     string

	Host      string
	Port      int
	Start     *int
	Size      *int
	Repeat    *int
	TimeoutMs *int
	Layout    string
	Strict    bool

	StatusEndpoint string
	StatusUnitID   *int
	StatusAddress  *int

	LogFile         string
	ReportJSON      string
	MetricsFile     string
	MetricsJSONFile string
	OutputDir       string
	PCAPFile        string
	Verbose         bool
	Debug           bool
	TUI             bool
	Version         string
}

// ResolveRunConfig loads the config file, if any, and applies the options on top.
func ResolveRunConfig(opts RunOptions) (*config.RunConfig, error) {
	cfg := config.CreateDefaultRunConfig()
	if opts.ConfigPath != "" {
		loaded, err := config.LoadRunConfig(opts.ConfigPath, false)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.InputName != "" {
		cfg.Files.Input = opts.InputName
	}
	if opts.MitigationName != "" {
		cfg.Files.Mitigation = opts.MitigationName
	}
	if opts.Host != "" {
		cfg.Target.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Target.Port = opts.Port
	}
	if opts.TimeoutMs != nil {
		cfg.Target.TimeoutMs = *opts.TimeoutMs
	}
	if opts.Start != nil {
		cfg.Iteration.Start = *opts.Start
	}
	if opts.Size != nil {
		cfg.Iteration.Size = *opts.Size
	}
	if opts.Repeat != nil {
		cfg.Iteration.Repeat = *opts.Repeat
	}
	if opts.Layout != "" {
		cfg.Encoding.Layout = opts.Layout
	}
	if opts.Strict {
		cfg.Encoding.Strict = true
	}
	if opts.StatusEndpoint != "" {
		cfg.Status.Endpoint = opts.StatusEndpoint
	}
	if opts.StatusUnitID != nil {
		if *opts.StatusUnitID < 0 || *opts.StatusUnitID > 255 {
			return nil, fmt.Errorf("status unit id must be between 0 and 255")
		}
		cfg.Status.UnitID = uint8(*opts.StatusUnitID)
	}
	if opts.StatusAddress != nil {
		if *opts.StatusAddress < 0 || *opts.StatusAddress > 0xFFFF {
			return nil, fmt.Errorf("status address must be between 0 and 65535")
		}
		cfg.Status.Address = uint16(*opts.StatusAddress)
	}

	config.ApplyDefaults(cfg)
	if err := config.ValidateRunConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Files.Input == "" || cfg.Files.Mitigation == "" {
		return nil, fmt.Errorf("input and mitigation file names are required")
	}
	return cfg, nil
}

// RunHarness runs update cycles until the repeat limit, a fatal error or an
// interrupt.
func RunHarness(opts RunOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runHarness(ctx, opts, os.Stdout)
}

func logLevel(verbose, debug bool) logging.LogLevel {
	switch {
	case debug:
		return logging.LogLevelDebug
	case verbose:
		return logging.LogLevelVerbose
	default:
		return logging.LogLevelInfo
	}
}

func runHarness(ctx context.Context, opts RunOptions, out io.Writer) error {
	cfg, err := ResolveRunConfig(opts)
	if err != nil {
		return err
	}
	layout, err := update.ParseLayout(cfg.Encoding.Layout)
	if err != nil {
		return err
	}
	host, port := cfg.Target.Host, cfg.Target.Port
	target := net.JoinHostPort(host, strconv.Itoa(port))

	logger, err := logging.NewLogger(logLevel(opts.Verbose, opts.Debug), opts.LogFile)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()
	logger.SetConsole(out)

	var outputMgr *artifact.OutputManager
	if opts.OutputDir != "" {
		outputMgr, err = artifact.NewOutputManager(opts.OutputDir)
		if err != nil {
			return fmt.Errorf("create output manager: %w", err)
		}
		if opts.PCAPFile == "" {
			opts.PCAPFile = outputMgr.PCAPPath()
			outputMgr.SetPCAPFile(filepath.Base(opts.PCAPFile))
		}
		if opts.MetricsFile == "" {
			opts.MetricsFile = outputMgr.MetricsPath()
			outputMgr.SetMetricsFile(filepath.Base(opts.MetricsFile))
		}
		if opts.MetricsJSONFile == "" {
			opts.MetricsJSONFile = outputMgr.MetricsJSONPath()
			outputMgr.SetMetricsJSONFile(filepath.Base(opts.MetricsJSONFile))
		}
		outputMgr.SetTarget(host, port)
		outputMgr.SetInputs(cfg.Files.Input, cfg.Files.Mitigation, layout.String(), cfg.Encoding.Strict)
		outputMgr.SetIteration(cfg.Iteration.Start, cfg.Iteration.Size, cfg.Iteration.Repeat)
		fmt.Fprintf(out, "Output directory: %s\n", opts.OutputDir)
	}

	sink := metrics.NewSink()
	var metricsWriter *metrics.Writer
	if opts.MetricsFile != "" || opts.MetricsJSONFile != "" {
		metricsWriter, err = metrics.NewWriter(opts.MetricsFile, opts.MetricsJSONFile)
		if err != nil {
			return fmt.Errorf("create metrics writer: %w", err)
		}
		defer metricsWriter.Close()
	}

	logger.LogStartup(host, port, layout.String(), cfg.Iteration.Start, cfg.Iteration.Size, cfg.Iteration.Repeat, opts.ConfigPath)

	tr := transport.NewUDPTransport(time.Duration(cfg.Target.TimeoutMs) * time.Millisecond)
	if err := tr.Connect(ctx, target); err != nil {
		return lnerrors.WrapNetworkError(err, host, port)
	}
	defer tr.Disconnect()

	var exchanger harness.Exchanger = tr
	if opts.PCAPFile != "" {
		recorder, err := capture.NewRecorder(opts.PCAPFile, tr.LocalAddr(), tr.RemoteAddr())
		if err != nil {
			return fmt.Errorf("start packet capture: %w", err)
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Error("Failed to close capture: %v", err)
			}
			logger.Verbose("Captured %d packets to %s", recorder.PacketCount(), opts.PCAPFile)
		}()
		exchanger = recorder.Wrap(tr)
	}

	failures := newFailureCollector(maxKeptFailures)
	observers := harness.Observers{
		&logObserver{logger: logger},
		&metricsObserver{sink: sink, writer: metricsWriter, logger: logger},
		failures,
	}

	var publisher *status.Publisher
	if cfg.Status.Enabled() {
		cli, err := status.NewEndpointClient(status.ClientConfig{
			Endpoint: cfg.Status.Endpoint,
			Timeout:  time.Duration(cfg.Status.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return fmt.Errorf("connect status endpoint %s: %w", cfg.Status.Endpoint, err)
		}
		defer cli.Close()
		publisher, err = status.NewPublisher(cli, cfg.Status.UnitID, cfg.Status.Address, func(err error) {
			logger.Error("Status publication failed: %v", err)
		})
		if err != nil {
			return err
		}
		observers = append(observers, publisher)
	}

	encoding := update.Options{Strict: cfg.Encoding.Strict}
	if !opts.TUI {
		encoding.Trace = logger.TraceWriter()
		observers = append(observers, newConsoleObserver(out))
		fmt.Fprintln(out, startBanner(cfg.Iteration.Size, host, port, cfg.Iteration.Repeat))
	}

	env := harness.Env{
		Files: harness.Files{InputBase: cfg.Files.Input, MitigationBase: cfg.Files.Mitigation},
		Iteration: harness.Iteration{
			Start:       cfg.Iteration.Start,
			Count:       cfg.Iteration.Size,
			RepeatLimit: harness.Repeat(cfg.Iteration.Repeat),
		},
		Layout:    layout,
		Encoding:  encoding,
		Exchanger: exchanger,
		Observer:  observers,
	}

	var sum harness.Summary
	var runErr error
	if opts.TUI {
		sum, runErr = tui.Run(ctx, "linknode", target, func(ctx context.Context, obs harness.Observer) (harness.Summary, error) {
			e := env
			e.Observer = append(observers, obs)
			return harness.Run(ctx, e)
		})
	} else {
		sum, runErr = harness.Run(ctx, env)
	}

	interrupted := errors.Is(runErr, context.Canceled)
	if interrupted {
		logger.Info("Interrupted after %d cycles", sum.Cycles)
		runErr = nil
	}
	if runErr != nil {
		if errors.Is(runErr, lnerrors.ErrTransport) {
			runErr = lnerrors.WrapNetworkError(runErr, host, port)
		}
		if publisher != nil {
			if err := publisher.MarkError(); err != nil {
				logger.Error("Status publication failed: %v", err)
			}
		}
	}

	if metricsWriter != nil {
		if err := metricsWriter.Close(); err != nil {
			logger.Error("Failed to close metrics writer: %v", err)
		}
	}
	summary := sink.GetSummary()

	rep := report.RunReport{
		GeneratedAt:     report.FormatTimestamp(),
		Version:         opts.Version,
		Target:          target,
		Layout:          layout.String(),
		InputBase:       cfg.Files.Input,
		MitigationBase:  cfg.Files.Mitigation,
		Cycles:          sum.Cycles,
		Updates:         sum.Updates,
		Mismatches:      sum.Mismatches,
		LengthWarnings:  sum.LengthWarnings,
		BytesSent:       sum.BytesSent,
		DurationMs:      sum.EndTime.Sub(sum.StartTime).Milliseconds(),
		Interrupted:     interrupted,
		Failures:        failures.Entries(),
		FailuresOmitted: failures.dropped,
	}
	if runErr != nil {
		rep.Error = runErr.Error()
	}
	if opts.ReportJSON != report.StdoutPath {
		fmt.Fprintln(out)
		report.WriteRunSummary(out, rep)
	}
	if opts.ReportJSON != "" {
		if err := report.EmitJSON(opts.ReportJSON, out, rep); err != nil {
			logger.Error("Failed to write run report: %v", err)
		}
	}
	if opts.Verbose || opts.Debug {
		fmt.Fprintf(out, "\n%s", metrics.FormatSummary(summary))
	}

	if outputMgr != nil {
		exitCode := 0
		if runErr != nil {
			exitCode = 2
		}
		if err := outputMgr.Finalize(summary, sum.Cycles, exitCode, runErr); err != nil {
			logger.Error("Failed to finalize artifacts: %v", err)
		} else {
			fmt.Fprintf(out, "Artifacts written to: %s\n", opts.OutputDir)
		}
	}

	return runErr
}

// startBanner announces the run: ctrl-C is the only way out of a run that
// repeats forever.
func startBanner(size int, host string, port, repeat int) string {
	msg := fmt.Sprintf("Sending %d updates to central node engine at %s:%d.", size, host, port)
	if repeat > 0 {
		return fmt.Sprintf("%s Repeating %d times.", msg, repeat)
	}
	return msg + " Press ctrl-C to stop."
}
