package status

import (
	"errors"
	"testing"
	"time"

	"github.com/tturner/linknode/internal/harness"
	"github.com/tturner/linknode/internal/mitigation"
)

type writeCall struct {
	unitID uint8
	addr   uint16
	regs   []uint16
}

type fakeEndpointClient struct {
	writes []writeCall
	fail   bool
}

func (f *fakeEndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if f.fail {
		return errors.New("connection reset")
	}
	f.writes = append(f.writes, writeCall{unitID: unitID, addr: addr, regs: append([]uint16(nil), regs...)})
	return nil
}

func TestEncode(t *testing.T) {
	regs := Encode(Snapshot{
		Health:         HealthMismatch,
		Cycle:          0x00012345,
		Updates:        70000,
		Mismatches:     3,
		LengthWarnings: 1,
		LastIndex:      5,
		LastRTTMs:      12,
		LastMismatches: 2,
	})
	if len(regs) != SlotsPerBlock {
		t.Fatalf("expected %d registers, got %d", SlotsPerBlock, len(regs))
	}
	want := map[int]uint16{
		SlotHealth:         HealthMismatch,
		SlotCycleHi:        0x0001,
		SlotCycleLo:        0x2345,
		SlotUpdatesHi:      1,
		SlotUpdatesLo:      70000 - 65536,
		SlotMismatches:     3,
		SlotLengthWarnings: 1,
		SlotLastIndex:      5,
		SlotLastRTTMs:      12,
		SlotLastMismatches: 2,
	}
	for slot, v := range want {
		if regs[slot] != v {
			t.Errorf("slot %d = %d, want %d", slot, regs[slot], v)
		}
	}
}

func TestPackRegisters(t *testing.T) {
	got := packRegisters([]uint16{0x1234, 0x00FF})
	want := []byte{0x12, 0x34, 0x00, 0xFF}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("packRegisters = % x, want % x", got, want)
		}
	}
}

func TestPublisherFullThenIncremental(t *testing.T) {
	cli := &fakeEndpointClient{}
	p, err := NewPublisher(cli, 7, 100, nil)
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}

	p.OnIndex(harness.IndexResult{Index: 1, RTT: 3 * time.Millisecond})
	p.OnCycle(harness.CycleResult{Cycle: 1})

	if len(cli.writes) != 1 {
		t.Fatalf("expected one full write, got %d", len(cli.writes))
	}
	first := cli.writes[0]
	if first.unitID != 7 || first.addr != 100 || len(first.regs) != SlotsPerBlock {
		t.Fatalf("unexpected full write %+v", first)
	}
	if first.regs[SlotHealth] != HealthOK || first.regs[SlotUpdatesLo] != 1 || first.regs[SlotLastRTTMs] != 3 {
		t.Fatalf("unexpected block %v", first.regs)
	}

	p.OnIndex(harness.IndexResult{
		Index:  1,
		RTT:    3 * time.Millisecond,
		Result: mitigation.Result{Mismatches: []mitigation.Mismatch{{Device: 2, Expected: 8, Actual: 9}}},
	})
	p.OnCycle(harness.CycleResult{Cycle: 2, Mismatches: 1})

	incremental := cli.writes[1:]
	if len(incremental) == 0 {
		t.Fatal("expected incremental writes")
	}
	for _, w := range incremental {
		if len(w.regs) == SlotsPerBlock {
			t.Fatalf("incremental update must not rewrite the full block: %+v", w)
		}
	}
	// health at slot 0 changed to mismatch
	if incremental[0].addr != 100+SlotHealth || incremental[0].regs[0] != HealthMismatch {
		t.Errorf("first incremental write = %+v", incremental[0])
	}
}

func TestPublisherReassertsAfterFailure(t *testing.T) {
	cli := &fakeEndpointClient{}
	var reported []error
	p, _ := NewPublisher(cli, 1, 0, func(err error) { reported = append(reported, err) })

	p.OnCycle(harness.CycleResult{Cycle: 1})
	cli.fail = true
	p.OnCycle(harness.CycleResult{Cycle: 2})
	if len(reported) != 1 || p.LastError() == nil {
		t.Fatalf("expected the failure to be reported, got %v", reported)
	}

	cli.fail = false
	cli.writes = nil
	p.OnCycle(harness.CycleResult{Cycle: 3})
	if len(cli.writes) != 1 || len(cli.writes[0].regs) != SlotsPerBlock {
		t.Fatalf("expected a full re-assert after failure, got %+v", cli.writes)
	}
	if p.LastError() != nil {
		t.Errorf("LastError should clear after success")
	}
}

func TestPublisherMarkError(t *testing.T) {
	cli := &fakeEndpointClient{}
	p, _ := NewPublisher(cli, 1, 0, nil)
	if err := p.MarkError(); err != nil {
		t.Fatalf("MarkError failed: %v", err)
	}
	if cli.writes[0].regs[SlotHealth] != HealthError {
		t.Errorf("health = %d, want %d", cli.writes[0].regs[SlotHealth], HealthError)
	}
}

func TestNewPublisherValidation(t *testing.T) {
	if _, err := NewPublisher(nil, 1, 0, nil); err == nil {
		t.Error("expected error without client")
	}
	if _, err := NewPublisher(&fakeEndpointClient{}, 1, 0xFFFF, nil); err == nil {
		t.Error("expected error when block exceeds register space")
	}
}

func TestChangedRuns(t *testing.T) {
	prev := []uint16{0, 1, 2, 3, 4}
	next := []uint16{9, 1, 7, 8, 4}
	runs := changedRuns(prev, next)
	if len(runs) != 2 || runs[0] != [2]int{0, 1} || runs[1] != [2]int{2, 4} {
		t.Errorf("changedRuns = %v", runs)
	}
	if got := changedRuns(prev, prev); len(got) != 0 {
		t.Errorf("identical blocks should have no runs, got %v", got)
	}
}

func TestSaturate16(t *testing.T) {
	tests := []struct {
		in   int
		want uint16
	}{
		{-1, 0},
		{0, 0},
		{65535, 65535},
		{70000, 65535},
	}
	for _, tt := range tests {
		if got := saturate16(tt.in); got != tt.want {
			t.Errorf("saturate16(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
