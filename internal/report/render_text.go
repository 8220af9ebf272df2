package report

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")).Width(18)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true)
)

// maxListedFailures bounds the mismatch list printed at the end of a run.
const maxListedFailures = 20

func row(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %v\n", labelStyle.Render(label), value)
}

// WriteRunSummary prints the end-of-run summary.
func WriteRunSummary(w io.Writer, r RunReport) {
	fmt.Fprintln(w, titleStyle.Render("Run Summary:"))
	row(w, "Target:", r.Target)
	row(w, "Layout:", r.Layout)
	row(w, "Cycles:", r.Cycles)
	row(w, "Updates sent:", r.Updates)
	row(w, "Bytes sent:", r.BytesSent)
	row(w, "Duration:", (time.Duration(r.DurationMs) * time.Millisecond).String())

	switch {
	case r.Error != "":
		row(w, "Result:", errStyle.Render("FAILED"))
	case r.Mismatches > 0:
		row(w, "Result:", warnStyle.Render(fmt.Sprintf("%d mismatches", r.Mismatches)))
	case r.Interrupted:
		row(w, "Result:", warnStyle.Render("interrupted"))
	default:
		row(w, "Result:", okStyle.Render("all replies matched"))
	}
	if r.LengthWarnings > 0 {
		row(w, "Length warnings:", warnStyle.Render(fmt.Sprintf("%d", r.LengthWarnings)))
	}
	writeFailures(w, r.Failures, r.FailuresOmitted)
}

// WriteReplaySummary prints the outcome of a replay.
func WriteReplaySummary(w io.Writer, r ReplayReport) {
	fmt.Fprintln(w, titleStyle.Render("Replay Summary:"))
	row(w, "Capture:", r.PCAP)
	row(w, "Target:", r.Target)
	row(w, "Exchanges:", r.Exchanges)
	row(w, "Sent:", r.Sent)
	row(w, "Replies:", r.Replies)
	row(w, "Same as capture:", okStyle.Render(fmt.Sprintf("%d", r.Matched)))
	if r.Differed > 0 {
		row(w, "Differed:", warnStyle.Render(fmt.Sprintf("%d", r.Differed)))
	}
	if r.Error != "" {
		row(w, "Error:", errStyle.Render(r.Error))
	}
	writeFailures(w, r.Failures, 0)
}

func writeFailures(w io.Writer, failures []MismatchEntry, omitted int) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Mismatches:"))
	if omitted > 0 {
		fmt.Fprintf(w, "  (%d earlier mismatches not kept)\n", omitted)
	}
	for i, f := range failures {
		if i == maxListedFailures {
			fmt.Fprintf(w, "  ... %d more\n", len(failures)-maxListedFailures)
			break
		}
		fmt.Fprintf(w, "  cycle %d, update #%d: %s\n", f.Cycle, f.Index, f.Mismatch.String())
	}
}
