package update

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// traceRows bounds the per-block table to the first 28 inputs.
const traceRows = 7

const traceRule = "+---------------------------------------+"

var (
	traceTitleStyle = lipgloss.NewStyle().Bold(true)
	traceRuleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	traceSetStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a"))
)

func bit(v byte, n int) string {
	if v&(1<<n) != 0 {
		return traceSetStyle.Render("1")
	}
	return "0"
}

func tracePerLine(w io.Writer, app int, block []byte) {
	fmt.Fprintln(w, traceRuleStyle.Render(traceRule))
	fmt.Fprintln(w, traceTitleStyle.Render(fmt.Sprintf("| Global AppId #%d", app)))
	fmt.Fprintln(w, traceRuleStyle.Render(traceRule))
	fmt.Fprintln(w, "| LN Inputs\t| L H | L H | L H | L H |")
	fmt.Fprintln(w, traceRuleStyle.Render(traceRule))

	input := 1
	for row, v := range block[perLineReservedSize:] {
		if row >= traceRows {
			break
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "| %03d..%03d\t| ", input, input+3)
		for i := 0; i < perLineInputsByte; i++ {
			sb.WriteString(bit(v, 2*i) + " " + bit(v, 2*i+1) + " | ")
		}
		fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
		input += perLineInputsByte
	}
	fmt.Fprintln(w, traceRuleStyle.Render(traceRule))
}

func tracePaired(w io.Writer, app int, high, low []byte) {
	fmt.Fprintln(w, traceRuleStyle.Render(traceRule))
	fmt.Fprintln(w, traceTitleStyle.Render(fmt.Sprintf("| Global AppId #%d", app)))
	fmt.Fprintln(w, traceRuleStyle.Render(traceRule))
	for _, half := range []struct {
		label string
		data  []byte
	}{{"wasHigh", high}, {"wasLow", low}} {
		input := 1
		for _, v := range half.data {
			var sb strings.Builder
			fmt.Fprintf(&sb, "| %-7s %03d..%03d\t| ", half.label, input, input+7)
			for n := 0; n < 8; n++ {
				sb.WriteString(bit(v, n) + " ")
			}
			sb.WriteString("|")
			fmt.Fprintln(w, sb.String())
			input += 8
		}
	}
	fmt.Fprintln(w, traceRuleStyle.Render(traceRule))
}
