package status

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tturner/linknode/internal/harness"
)

// endpointClient is the write surface the publisher needs.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// Publisher turns harness results into status block writes. The first write
// and the first write after any failure re-assert the whole block; later
// writes only touch slots that changed.
type Publisher struct {
	mu       sync.Mutex
	cli      endpointClient
	unitID   uint8
	baseAddr uint16

	state    Snapshot
	last     Snapshot
	needFull bool
	lastErr  error
	onError  func(error)
}

// NewPublisher creates a publisher writing at baseAddr on unitID.
// onError, if set, receives write failures; they never stop the run.
func NewPublisher(cli endpointClient, unitID uint8, baseAddr uint16, onError func(error)) (*Publisher, error) {
	if cli == nil {
		return nil, errors.New("status publisher: missing client")
	}
	if int(baseAddr)+SlotsPerBlock > 0x10000 {
		return nil, fmt.Errorf("status publisher: block at %d exceeds register space", baseAddr)
	}
	return &Publisher{
		cli:      cli,
		unitID:   unitID,
		baseAddr: baseAddr,
		needFull: true,
		onError:  onError,
	}, nil
}

// OnIndex records the latest exchange; nothing is written until the cycle ends.
func (p *Publisher) OnIndex(r harness.IndexResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.LastIndex = saturate16(r.Index)
	p.state.LastRTTMs = saturate16(int(r.RTT.Milliseconds()))
	if r.Err != nil {
		p.state.Health = HealthError
		return
	}
	p.state.Updates++
	p.state.Mismatches = saturate16(int(p.state.Mismatches) + len(r.Result.Mismatches))
	if r.Result.Length != nil {
		p.state.LengthWarnings = saturate16(int(p.state.LengthWarnings) + 1)
	}
}

// OnCycle publishes the snapshot for a completed cycle.
func (p *Publisher) OnCycle(c harness.CycleResult) {
	p.mu.Lock()
	p.state.Cycle = uint32(c.Cycle)
	p.state.LastMismatches = saturate16(c.Mismatches)
	if c.Mismatches > 0 {
		p.state.Health = HealthMismatch
	} else {
		p.state.Health = HealthOK
	}
	snap := p.state
	p.mu.Unlock()

	if err := p.Publish(snap); err != nil && p.onError != nil {
		p.onError(err)
	}
}

// MarkError publishes an error health code, typically after a fatal run error.
func (p *Publisher) MarkError() error {
	p.mu.Lock()
	p.state.Health = HealthError
	snap := p.state
	p.mu.Unlock()
	return p.Publish(snap)
}

// Publish writes s, fully or incrementally.
func (p *Publisher) Publish(s Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := Encode(s)

	if p.needFull {
		if err := p.cli.WriteRegisters(p.unitID, p.baseAddr, next); err != nil {
			p.lastErr = err
			return fmt.Errorf("status publisher: full block write failed: %w", err)
		}
		p.needFull = false
		p.last = s
		p.lastErr = nil
		return nil
	}

	prev := Encode(p.last)
	for _, run := range changedRuns(prev, next) {
		if err := p.cli.WriteRegisters(p.unitID, p.baseAddr+uint16(run[0]), next[run[0]:run[1]]); err != nil {
			p.needFull = true
			p.lastErr = err
			return fmt.Errorf("status publisher: slot %d write failed: %w", run[0], err)
		}
	}
	p.last = s
	p.lastErr = nil
	return nil
}

// LastError returns the most recent write failure, or nil after a success.
func (p *Publisher) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// changedRuns returns [start, end) ranges of registers that differ.
func changedRuns(prev, next []uint16) [][2]int {
	var runs [][2]int
	start := -1
	for i := range next {
		if prev[i] != next[i] {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, [2]int{start, i})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, [2]int{start, len(next)})
	}
	return runs
}
