package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	lnerrors "github.com/tturner/linknode/internal/errors"
	"github.com/tturner/linknode/internal/logging"
	"github.com/tturner/linknode/internal/mitigation"
	"github.com/tturner/linknode/internal/pcap"
	"github.com/tturner/linknode/internal/progress"
	"github.com/tturner/linknode/internal/report"
	"github.com/tturner/linknode/internal/transport"
)

// ReplayOptions are the `replay` command inputs.
type ReplayOptions struct {
	PCAPFile string
	// ServerPort selects the central node side of the captured exchanges.
	ServerPort int
	Host       string
	Port       int
	TimeoutMs  int
	// ReportJSON is a file path, or "-" to print JSON instead of the text summary.
	ReportJSON string
	LogFile    string
	Verbose    bool
	Debug      bool
	NoProgress bool
}

// RunReplay resends every captured update and compares each reply with the
// one in the capture.
func RunReplay(opts ReplayOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runReplay(ctx, opts, os.Stdout, os.Stderr)
}

func runReplay(ctx context.Context, opts ReplayOptions, out, progressOut io.Writer) error {
	if opts.ServerPort <= 0 || opts.ServerPort > 65535 {
		return fmt.Errorf("capture port must be between 1 and 65535")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	logger, err := logging.NewLogger(logLevel(opts.Verbose, opts.Debug), opts.LogFile)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()
	logger.SetConsole(out)

	exchanges, err := collectExchanges(opts.PCAPFile, uint16(opts.ServerPort))
	if err != nil {
		return err
	}
	if len(exchanges) == 0 {
		return fmt.Errorf("no updates to port %d found in %s", opts.ServerPort, opts.PCAPFile)
	}

	target := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	tr := transport.NewUDPTransport(time.Duration(opts.TimeoutMs) * time.Millisecond)
	if err := tr.Connect(ctx, target); err != nil {
		return lnerrors.WrapNetworkError(err, opts.Host, opts.Port)
	}
	defer tr.Disconnect()

	fmt.Fprintf(out, "Replaying %d updates from %s to %s\n", len(exchanges), opts.PCAPFile, target)

	bar := progress.NewBar(len(exchanges), "Replaying")
	bar.SetOutput(progressOut)
	if opts.NoProgress {
		bar.Disable()
	}

	rep := report.ReplayReport{
		PCAP:      opts.PCAPFile,
		Target:    target,
		Exchanges: len(exchanges),
	}
	var runErr error
	for i, ex := range exchanges {
		if err := ctx.Err(); err != nil {
			break
		}
		logger.LogHex(fmt.Sprintf("update #%d", i+1), ex.Update.Payload)

		start := time.Now()
		reply, err := tr.Exchange(ctx, ex.Update.Payload, mitigation.ReplySize)
		rtt := time.Since(start)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			runErr = lnerrors.WrapNetworkError(err, opts.Host, opts.Port)
			logger.LogExchange(i+1, opts.PCAPFile, len(ex.Update.Payload), 0, rttMs(rtt), 0, err)
			bar.Step(false)
			break
		}
		rep.Sent++
		rep.Replies++

		mismatches := 0
		if ex.Reply != nil {
			captured := mitigation.DecodeReply(ex.Reply.Payload)
			expected := make([]int, len(captured))
			for j, c := range captured {
				expected[j] = int(c)
			}
			res := mitigation.Validate(mitigation.DecodeReply(reply), expected)
			mismatches = len(res.Mismatches)
			if res.OK() && res.Length == nil {
				rep.Matched++
			} else {
				rep.Differed++
			}
			for _, m := range res.Mismatches {
				rep.Failures = append(rep.Failures, report.MismatchEntry{Index: i + 1, Mismatch: m})
			}
		}
		logger.LogExchange(i+1, opts.PCAPFile, len(ex.Update.Payload), len(reply), rttMs(rtt), mismatches, nil)
		bar.Step(mismatches == 0)
	}
	bar.Finish()

	rep.GeneratedAt = report.FormatTimestamp()
	if runErr != nil {
		rep.Error = runErr.Error()
	}
	if opts.ReportJSON != report.StdoutPath {
		report.WriteReplaySummary(out, rep)
	}
	if opts.ReportJSON != "" {
		if err := report.EmitJSON(opts.ReportJSON, out, rep); err != nil {
			logger.Error("Failed to write replay report: %v", err)
		}
	}
	return runErr
}

// collectExchanges reads the exchanges of every capture path names, in file
// order.
func collectExchanges(path string, port uint16) ([]pcap.Exchange, error) {
	files, err := pcap.CaptureFiles(path)
	if err != nil {
		return nil, fmt.Errorf("open captures: %w", err)
	}
	var all []pcap.Exchange
	for _, file := range files {
		exchanges, err := pcap.ExtractExchanges(file, port)
		if err != nil {
			return nil, fmt.Errorf("extract updates from %s: %w", file, err)
		}
		all = append(all, exchanges...)
	}
	return all, nil
}
