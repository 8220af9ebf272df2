package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tturner/linknode/internal/harness"
	"github.com/tturner/linknode/internal/logging"
	"github.com/tturner/linknode/internal/metrics"
	"github.com/tturner/linknode/internal/report"
)

// consoleObserver prints the operator-facing progress lines.
type consoleObserver struct {
	out       io.Writer
	lastCycle int
}

func newConsoleObserver(out io.Writer) *consoleObserver {
	return &consoleObserver{out: out}
}

func (c *consoleObserver) OnIndex(r harness.IndexResult) {
	if r.Cycle != c.lastCycle {
		c.lastCycle = r.Cycle
		fmt.Fprintf(c.out, "Update cycle #%d\n", r.Cycle)
	}
	if r.Sent != nil {
		fmt.Fprintf(c.out, "Update #%d sent. (file=%s)\n", r.Index, r.InputPath)
	}
	if r.Err != nil {
		return
	}
	if r.Result.Length != nil {
		fmt.Fprintf(c.out, "WARNING: %s\n", r.Result.Length.String())
	}
	for _, m := range r.Result.Mismatches {
		fmt.Fprintf(c.out, "ERROR: %s\n", m.String())
	}
}

func (c *consoleObserver) OnCycle(harness.CycleResult) {}

// logObserver writes one leveled log line per exchange.
type logObserver struct {
	logger *logging.Logger
}

func (l *logObserver) OnIndex(r harness.IndexResult) {
	if r.Sent != nil {
		l.logger.LogHex(fmt.Sprintf("update #%d", r.Index), r.Sent)
	}
	if r.Reply != nil {
		l.logger.LogHex(fmt.Sprintf("reply #%d", r.Index), r.Reply)
	}
	l.logger.LogExchange(r.Index, r.InputPath, len(r.Sent), len(r.Reply), rttMs(r.RTT), len(r.Result.Mismatches), r.Err)
}

func (l *logObserver) OnCycle(c harness.CycleResult) {
	l.logger.Verbose("Cycle #%d: %d updates, %d mismatches, %d length warnings in %s",
		c.Cycle, len(c.Results), c.Mismatches, c.LengthWarnings, c.Duration)
}

// metricsObserver turns exchanges into metrics rows.
type metricsObserver struct {
	sink   *metrics.Sink
	writer *metrics.Writer
	logger *logging.Logger
}

func (m *metricsObserver) OnIndex(r harness.IndexResult) {
	if r.Err != nil && errors.Is(r.Err, context.Canceled) {
		return
	}
	metric := m.sink.Record(metricFromResult(r))
	if m.writer != nil {
		if err := m.writer.WriteMetric(metric); err != nil {
			m.logger.Error("Failed to write metric: %v", err)
		}
	}
}

func (m *metricsObserver) OnCycle(harness.CycleResult) {}

func metricFromResult(r harness.IndexResult) metrics.Metric {
	metric := metrics.Metric{
		Timestamp:  r.Timestamp,
		Cycle:      r.Cycle,
		Index:      r.Index,
		File:       r.InputPath,
		BytesSent:  len(r.Sent),
		ReplyBytes: len(r.Reply),
		RTTMs:      rttMs(r.RTT),
		Mismatches: len(r.Result.Mismatches),
	}
	switch {
	case r.Err != nil:
		metric.Outcome = metrics.OutcomeFailed
		metric.Error = r.Err.Error()
	case r.Result.OK():
		metric.Outcome = metrics.OutcomeMatch
	default:
		metric.Outcome = metrics.OutcomeMismatch
	}
	if r.Result.Length != nil {
		metric.LengthWarning = r.Result.Length.String()
	}
	return metric
}

func rttMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// maxKeptFailures bounds the mismatches held for the end-of-run report.
const maxKeptFailures = 200

// failureCollector keeps the most recent device mismatches and counts the
// ones it had to drop.
type failureCollector struct {
	entries []report.MismatchEntry
	next    int
	dropped int
	limit   int
}

func newFailureCollector(limit int) *failureCollector {
	return &failureCollector{limit: limit}
}

func (f *failureCollector) OnIndex(r harness.IndexResult) {
	for _, m := range r.Result.Mismatches {
		entry := report.MismatchEntry{Cycle: r.Cycle, Index: r.Index, Mismatch: m}
		if len(f.entries) < f.limit {
			f.entries = append(f.entries, entry)
			continue
		}
		f.entries[f.next] = entry
		f.next = (f.next + 1) % f.limit
		f.dropped++
	}
}

// Entries returns the kept mismatches, oldest first.
func (f *failureCollector) Entries() []report.MismatchEntry {
	out := make([]report.MismatchEntry, 0, len(f.entries))
	out = append(out, f.entries[f.next:]...)
	return append(out, f.entries[:f.next]...)
}

func (f *failureCollector) OnCycle(harness.CycleResult) {}
