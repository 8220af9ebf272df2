package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tturner/linknode/internal/harness"
)

// Observer forwards harness results to a running monitor.
type Observer struct {
	send func(tea.Msg)
}

// OnIndex implements harness.Observer.
func (o Observer) OnIndex(r harness.IndexResult) {
	o.send(indexMsg{result: r})
}

// OnCycle implements harness.Observer.
func (o Observer) OnCycle(r harness.CycleResult) {
	o.send(cycleMsg{result: r})
}

// RunFunc runs the harness, reporting progress to obs.
type RunFunc func(ctx context.Context, obs harness.Observer) (harness.Summary, error)

// Run shows the monitor while fn executes and returns fn's result once the
// user leaves the monitor.
func Run(ctx context.Context, title, target string, fn RunFunc) (harness.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewModel(title, target, cancel)
	program := tea.NewProgram(model, tea.WithAltScreen())

	type outcome struct {
		summary harness.Summary
		err     error
	}
	results := make(chan outcome, 1)
	go func() {
		summary, err := fn(ctx, Observer{send: program.Send})
		results <- outcome{summary, err}
		program.Send(doneMsg{summary: summary, err: err})
	}()

	_, uiErr := program.Run()
	cancel()
	out := <-results
	if out.err == nil && uiErr != nil {
		return out.summary, uiErr
	}
	return out.summary, out.err
}
