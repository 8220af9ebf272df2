package app

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	lnerrors "github.com/tturner/linknode/internal/errors"
	"github.com/tturner/linknode/internal/harness"
	"github.com/tturner/linknode/internal/mitigation"
)

func TestStartBanner(t *testing.T) {
	tests := []struct {
		repeat   int
		want     string
		unwanted string
	}{
		{0, "Sending 3 updates to central node engine at cn:4356. Press ctrl-C to stop.", "Repeating"},
		{5, "Sending 3 updates to central node engine at cn:4356. Repeating 5 times.", "ctrl-C"},
	}
	for _, tt := range tests {
		got := startBanner(3, "cn", 4356, tt.repeat)
		if got != tt.want {
			t.Errorf("startBanner(repeat=%d) = %q, want %q", tt.repeat, got, tt.want)
		}
		if strings.Contains(got, tt.unwanted) {
			t.Errorf("startBanner(repeat=%d) should not mention %q", tt.repeat, tt.unwanted)
		}
	}
}

func TestFailureCollectorIsBounded(t *testing.T) {
	f := newFailureCollector(4)
	for cycle := 1; cycle <= 10; cycle++ {
		f.OnIndex(harness.IndexResult{
			Cycle: cycle,
			Index: 1,
			Result: mitigation.Result{Mismatches: []mitigation.Mismatch{
				{Device: 1, Expected: 1, Actual: 2},
				{Device: 2, Expected: 1, Actual: 2},
			}},
		})
	}

	entries := f.Entries()
	if len(entries) != 4 {
		t.Fatalf("kept %d mismatches, want 4", len(entries))
	}
	if f.dropped != 16 {
		t.Errorf("dropped = %d, want 16", f.dropped)
	}
	want := []struct{ cycle, device int }{{9, 1}, {9, 2}, {10, 1}, {10, 2}}
	for i, w := range want {
		if entries[i].Cycle != w.cycle || entries[i].Device != w.device {
			t.Errorf("entries[%d] = cycle %d device %d, want cycle %d device %d",
				i, entries[i].Cycle, entries[i].Device, w.cycle, w.device)
		}
	}
}

func TestConsoleObserverSentLine(t *testing.T) {
	tests := []struct {
		name     string
		result   harness.IndexResult
		wantSent bool
	}{
		{
			name:     "delivered",
			result:   harness.IndexResult{Cycle: 1, Index: 1, InputPath: "updates-1.txt", Sent: make([]byte, 64)},
			wantSent: true,
		},
		{
			name: "receive failed after send",
			result: harness.IndexResult{Cycle: 1, Index: 1, InputPath: "updates-1.txt", Sent: make([]byte, 64),
				Err: errors.New("receive mitigation: i/o timeout")},
			wantSent: true,
		},
		{
			name: "send failed",
			result: harness.IndexResult{Cycle: 1, Index: 1, InputPath: "updates-1.txt",
				Err: lnerrors.ErrNotSent},
			wantSent: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			newConsoleObserver(&out).OnIndex(tt.result)
			got := strings.Contains(out.String(), "Update #1 sent.")
			if got != tt.wantSent {
				t.Errorf("sent line printed = %v, want %v:\n%s", got, tt.wantSent, out.String())
			}
		})
	}
}
