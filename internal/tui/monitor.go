// Package tui provides the live cycle monitor shown by `run --tui`.
package tui

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tturner/linknode/internal/harness"
)

// maxEvents bounds the scrolling event list.
const maxEvents = 12

// writeClipboard is swapped out in tests.
var writeClipboard = clipboard.WriteAll

type indexMsg struct{ result harness.IndexResult }

type cycleMsg struct{ result harness.CycleResult }

type doneMsg struct {
	summary harness.Summary
	err     error
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model is the bubbletea model of the monitor.
type Model struct {
	styles  Styles
	title   string
	target  string
	cancel  context.CancelFunc
	started time.Time
	now     time.Time

	cycle          int
	updates        int
	mismatches     int
	lengthWarnings int
	lastIndex      int
	lastRTT        time.Duration
	lastSent       []byte

	events []string
	notice string

	done    bool
	stopped bool
	summary harness.Summary
	err     error
}

// NewModel builds a monitor for a run against target. cancel stops the run.
func NewModel(title, target string, cancel context.CancelFunc) *Model {
	now := time.Now()
	return &Model{
		styles:  DefaultStyles,
		title:   title,
		target:  target,
		cancel:  cancel,
		started: now,
		now:     now,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.now = time.Time(msg)
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case indexMsg:
		m.applyIndex(msg.result)
		return m, nil

	case cycleMsg:
		m.cycle = msg.result.Cycle
		m.addEvent(m.styles.Info.Render(fmt.Sprintf("cycle #%d complete in %s (%d mismatches)",
			msg.result.Cycle, msg.result.Duration.Round(time.Millisecond), msg.result.Mismatches)))
		return m, nil

	case doneMsg:
		m.done = true
		m.summary = msg.summary
		m.err = msg.err
		m.now = time.Now()
		if m.stopped || errors.Is(msg.err, context.Canceled) {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		if m.done {
			return m, tea.Quit
		}
		m.stopped = true
		m.notice = "stopping..."
		if m.cancel != nil {
			m.cancel()
		}
		return m, nil
	case "c":
		if len(m.lastSent) == 0 {
			m.notice = "nothing sent yet"
			return m, nil
		}
		if err := writeClipboard(hex.EncodeToString(m.lastSent)); err != nil {
			m.notice = fmt.Sprintf("copy failed: %v", err)
			return m, nil
		}
		m.notice = fmt.Sprintf("update #%d copied to clipboard (%d bytes)", m.lastIndex, len(m.lastSent))
		return m, nil
	}
	return m, nil
}

func (m *Model) applyIndex(r harness.IndexResult) {
	m.cycle = r.Cycle
	m.lastIndex = r.Index
	if r.Sent != nil {
		m.lastSent = r.Sent
	}
	if r.Err != nil {
		m.addEvent(m.styles.Error.Render(fmt.Sprintf("#%d failed: %v", r.Index, r.Err)))
		return
	}
	m.updates++
	m.lastRTT = r.RTT
	m.mismatches += len(r.Result.Mismatches)

	if r.Result.Length != nil {
		m.lengthWarnings++
		m.addEvent(m.styles.Warning.Render(fmt.Sprintf("#%d %s", r.Index, r.Result.Length.String())))
	}
	if r.Result.OK() {
		m.addEvent(m.styles.Success.Render(fmt.Sprintf("#%d match (%s)", r.Index, r.RTT.Round(time.Microsecond))))
		return
	}
	for _, mm := range r.Result.Mismatches {
		m.addEvent(m.styles.Error.Render(fmt.Sprintf("#%d %s", r.Index, mm.String())))
	}
}

func (m *Model) addEvent(line string) {
	m.events = append(m.events, line)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

func (m *Model) row(label string, value any) string {
	return fmt.Sprintf("%s %v", m.styles.Label.Render(label), value)
}

// View implements tea.Model.
func (m *Model) View() string {
	var state string
	switch {
	case m.done && m.err != nil && !m.stopped:
		state = m.styles.Error.Render("FAILED")
	case m.done:
		state = m.styles.Success.Render("finished")
	case m.stopped:
		state = m.styles.Warning.Render("stopping")
	default:
		state = m.styles.Running.Render("running")
	}

	mismatches := m.styles.Success.Render("0")
	if m.mismatches > 0 {
		mismatches = m.styles.Error.Render(fmt.Sprintf("%d", m.mismatches))
	}

	stats := strings.Join([]string{
		m.row("Target:", m.target),
		m.row("State:", state),
		m.row("Cycle:", m.cycle),
		m.row("Updates:", m.updates),
		m.row("Mismatches:", mismatches),
		m.row("Length warns:", m.lengthWarnings),
		m.row("Last update:", fmt.Sprintf("#%d", m.lastIndex)),
		m.row("Last RTT:", m.lastRTT.Round(time.Microsecond)),
		m.row("Elapsed:", m.now.Sub(m.started).Round(time.Second)),
	}, "\n")

	events := m.styles.Dim.Render("waiting for the first reply")
	if len(m.events) > 0 {
		events = strings.Join(m.events, "\n")
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render(m.title))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.styles.Panel.Render(m.styles.PanelTitle.Render("Status")+"\n"+stats),
		m.styles.Panel.Render(m.styles.PanelTitle.Render("Events")+"\n"+events),
	))
	b.WriteString("\n")
	if m.done && m.err != nil {
		b.WriteString(m.styles.Error.Render(m.err.Error()))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(m.styles.Dim.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(m.footer())
	return b.String()
}

func (m *Model) footer() string {
	key := func(k, hint string) string {
		return m.styles.KeyBinding.Render(k) + " " + m.styles.KeyHint.Render(hint)
	}
	quit := key("q", "stop")
	if m.done {
		quit = key("q", "exit")
	}
	return m.styles.Footer.Render(quit + "  " + key("c", "copy last update hex"))
}
