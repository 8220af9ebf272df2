// Package harness drives update/mitigation cycles against a central node.
//
// A cycle walks every index of an Iteration: it encodes <input>-<i>.txt,
// exchanges the status buffer for a mitigation reply, decodes the reply and
// validates it against <mitigation>-<i>.txt. Exchanges are strictly
// sequential with one request in flight.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	lnerrors "github.com/tturner/linknode/internal/errors"
	"github.com/tturner/linknode/internal/mitigation"
	"github.com/tturner/linknode/internal/update"
)

// Iteration selects the indexes of a cycle and how many cycles run.
type Iteration struct {
	Start int
	Count int
	// RepeatLimit caps the number of cycles; nil repeats until cancelled.
	RepeatLimit *int
}

// Repeat returns an Iteration limit of n cycles, or nil when n is 0.
func Repeat(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

// Indexes lists the file indexes visited by one cycle.
func (it Iteration) Indexes() []int {
	out := make([]int, 0, it.Count)
	for i := 0; i < it.Count; i++ {
		out = append(out, it.Start+i)
	}
	return out
}

// Forever reports whether the iteration has no repeat limit.
func (it Iteration) Forever() bool {
	return it.RepeatLimit == nil
}

// Files holds the base names of the per-index input and mitigation files.
type Files struct {
	InputBase      string
	MitigationBase string
}

// InputPath returns <input>-<index>.txt.
func (f Files) InputPath(index int) string {
	return fmt.Sprintf("%s-%d.txt", f.InputBase, index)
}

// MitigationPath returns <mitigation>-<index>.txt.
func (f Files) MitigationPath(index int) string {
	return fmt.Sprintf("%s-%d.txt", f.MitigationBase, index)
}

// Exchanger sends one status buffer and returns a reply of at most size bytes.
type Exchanger interface {
	Exchange(ctx context.Context, payload []byte, size int) ([]byte, error)
}

// Observer receives results as a run progresses. Either method may be a no-op.
type Observer interface {
	OnIndex(IndexResult)
	OnCycle(CycleResult)
}

// Observers fans results out to several observers in order.
type Observers []Observer

func (o Observers) OnIndex(r IndexResult) {
	for _, obs := range o {
		obs.OnIndex(r)
	}
}

func (o Observers) OnCycle(r CycleResult) {
	for _, obs := range o {
		obs.OnCycle(r)
	}
}

// Env is everything a run needs. It is passed by value and never mutated.
type Env struct {
	Files     Files
	Iteration Iteration
	Layout    update.Layout
	Encoding  update.Options
	Exchanger Exchanger
	Observer  Observer
	// ReplySize is the number of reply bytes requested; 0 means mitigation.ReplySize.
	ReplySize int
}

func (e Env) replySize() int {
	if e.ReplySize > 0 {
		return e.ReplySize
	}
	return mitigation.ReplySize
}

// IndexResult is the outcome of one exchange.
type IndexResult struct {
	Cycle     int
	Index     int
	InputPath string
	Sent      []byte
	Reply     []byte
	Classes   []uint8
	Expected  []int
	Result    mitigation.Result
	RTT       time.Duration
	Timestamp time.Time
	Err       error
}

// CycleResult aggregates the exchanges of one cycle.
type CycleResult struct {
	Cycle          int
	Results        []IndexResult
	Mismatches     int
	LengthWarnings int
	Duration       time.Duration
}

// Summary totals a whole run.
type Summary struct {
	Cycles         int
	Updates        int
	Mismatches     int
	LengthWarnings int
	BytesSent      int
	StartTime      time.Time
	EndTime        time.Time
}

// RunIndex encodes, exchanges and validates a single index. A missing input
// or mitigation file fails before anything is sent, so a silent central node
// cannot hide a broken fixture.
func RunIndex(ctx context.Context, env Env, cycle, index int) (IndexResult, error) {
	res := IndexResult{
		Cycle:     cycle,
		Index:     index,
		InputPath: env.Files.InputPath(index),
		Timestamp: time.Now(),
	}

	payload, err := update.EncodeFile(res.InputPath, env.Layout, env.Encoding)
	if err != nil {
		res.Err = err
		return res, err
	}
	expected, err := mitigation.ReadExpectedFile(env.Files.MitigationPath(index))
	if err != nil {
		res.Err = err
		return res, err
	}
	res.Expected = expected

	start := time.Now()
	reply, err := env.Exchanger.Exchange(ctx, payload, env.replySize())
	res.RTT = time.Since(start)
	if !errors.Is(err, lnerrors.ErrNotSent) {
		res.Sent = payload
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			res.Err = err
			return res, err
		}
		res.Err = fmt.Errorf("%w: update #%d: %w", lnerrors.ErrTransport, index, err)
		return res, res.Err
	}
	res.Reply = reply
	res.Classes = mitigation.DecodeReply(reply)
	res.Result = mitigation.Validate(res.Classes, expected)
	return res, nil
}

// RunCycle visits every index once. It stops at the first fatal error and
// returns the partial cycle with it.
func RunCycle(ctx context.Context, env Env, cycle int) (CycleResult, error) {
	out := CycleResult{Cycle: cycle}
	start := time.Now()

	for _, index := range env.Iteration.Indexes() {
		if err := ctx.Err(); err != nil {
			out.Duration = time.Since(start)
			return out, err
		}
		res, err := RunIndex(ctx, env, cycle, index)
		out.Results = append(out.Results, res)
		if env.Observer != nil {
			env.Observer.OnIndex(res)
		}
		if err != nil {
			out.Duration = time.Since(start)
			return out, err
		}
		out.Mismatches += len(res.Result.Mismatches)
		if res.Result.Length != nil {
			out.LengthWarnings++
		}
	}
	out.Duration = time.Since(start)
	return out, nil
}

// Run executes cycles until the repeat limit is reached, a fatal error
// occurs or ctx is cancelled. Cancellation is observed between exchanges and
// while waiting for a reply.
func Run(ctx context.Context, env Env) (Summary, error) {
	if env.Exchanger == nil {
		return Summary{}, fmt.Errorf("no exchanger configured")
	}
	if env.Iteration.Count < 1 {
		return Summary{}, fmt.Errorf("iteration count must be >= 1")
	}

	sum := Summary{StartTime: time.Now()}

	for cycle := 1; env.Iteration.Forever() || cycle <= *env.Iteration.RepeatLimit; cycle++ {
		if err := ctx.Err(); err != nil {
			sum.EndTime = time.Now()
			return sum, err
		}
		res, err := RunCycle(ctx, env, cycle)
		sum.add(res)
		if err != nil {
			sum.EndTime = time.Now()
			return sum, err
		}
		sum.Cycles++
		if env.Observer != nil {
			env.Observer.OnCycle(res)
		}
	}
	sum.EndTime = time.Now()
	return sum, nil
}

func (s *Summary) add(c CycleResult) {
	s.Mismatches += c.Mismatches
	s.LengthWarnings += c.LengthWarnings
	for _, r := range c.Results {
		if r.Sent != nil && r.Err == nil {
			s.Updates++
			s.BytesSent += len(r.Sent)
		}
	}
}
