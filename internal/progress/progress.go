// Package progress renders single-line progress for replays and open-ended runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	barWidth       = 40
	renderInterval = 100 * time.Millisecond
)

// Bar tracks progress toward a known number of exchanges.
type Bar struct {
	mu          sync.Mutex
	total       int
	current     int
	failed      int
	startTime   time.Time
	lastRender  time.Time
	output      io.Writer
	enabled     bool
	description string
}

// NewBar creates a bar writing to stderr so it does not mix with stdout.
func NewBar(total int, description string) *Bar {
	return &Bar{
		total:       total,
		startTime:   time.Now(),
		output:      os.Stderr,
		enabled:     true,
		description: description,
	}
}

// SetOutput redirects rendering.
func (b *Bar) SetOutput(w io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.output = w
}

// Disable suppresses all output.
func (b *Bar) Disable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = false
}

// Step records one finished exchange; ok=false counts it as failed.
func (b *Bar) Step(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current++
	if !ok {
		b.failed++
	}
	b.render(false)
}

// Finish draws the final state and ends the line.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled {
		return
	}
	b.render(true)
	fmt.Fprint(b.output, "\n")
}

func (b *Bar) render(force bool) {
	if !b.enabled {
		return
	}
	now := time.Now()
	if !force && now.Sub(b.lastRender) < renderInterval && b.current < b.total {
		return
	}
	b.lastRender = now

	var percent float64
	if b.total > 0 {
		percent = float64(b.current) / float64(b.total) * 100
	}
	filled := min(int(float64(barWidth)*percent/100), barWidth)

	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat("-", barWidth-filled-1)
	}

	elapsed := time.Since(b.startTime)
	line := fmt.Sprintf("\r[%s] %d/%d (%.1f%%)", bar, b.current, b.total, percent)
	if b.description != "" {
		line = fmt.Sprintf("\r%s %s", b.description, line[1:])
	}
	if b.failed > 0 {
		line += fmt.Sprintf(" | failed: %d", b.failed)
	}
	line += " | Elapsed: " + formatDuration(elapsed)

	if b.current > 0 && b.current < b.total {
		rate := float64(b.current) / elapsed.Seconds()
		if rate > 0 {
			eta := time.Duration(float64(b.total-b.current)/rate) * time.Second
			if eta > 0 {
				line += " | ETA: " + formatDuration(eta)
			}
		}
	}

	fmt.Fprint(b.output, line)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
