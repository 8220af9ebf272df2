package harness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	lnerrors "github.com/tturner/linknode/internal/errors"
	"github.com/tturner/linknode/internal/mitigation"
	"github.com/tturner/linknode/internal/transport"
	"github.com/tturner/linknode/internal/update"
)

// fakeExchanger replies with a fixed payload and records what was sent.
type fakeExchanger struct {
	mu    sync.Mutex
	reply []byte
	err   error
	sent  [][]byte
	hook  func(n int)
}

func (f *fakeExchanger) Exchange(ctx context.Context, payload []byte, size int) ([]byte, error) {
	f.mu.Lock()
	f.sent = append(f.sent, append([]byte(nil), payload...))
	n := len(f.sent)
	f.mu.Unlock()
	if f.hook != nil {
		f.hook(n)
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.reply) > size {
		return f.reply[:size], nil
	}
	return f.reply, nil
}

func (f *fakeExchanger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type recordingObserver struct {
	indexes []IndexResult
	cycles  []CycleResult
}

func (r *recordingObserver) OnIndex(res IndexResult) { r.indexes = append(r.indexes, res) }
func (r *recordingObserver) OnCycle(res CycleResult) { r.cycles = append(r.cycles, res) }

func writeFixtures(t *testing.T, dir string, indexes []int, expected string) Files {
	t.Helper()
	files := Files{
		InputBase:      filepath.Join(dir, "updates"),
		MitigationBase: filepath.Join(dir, "mitigation"),
	}
	for _, i := range indexes {
		if err := os.WriteFile(files.InputPath(i), []byte("10110000\n"), 0644); err != nil {
			t.Fatalf("write input: %v", err)
		}
		if err := os.WriteFile(files.MitigationPath(i), []byte(expected+"\n"), 0644); err != nil {
			t.Fatalf("write mitigation: %v", err)
		}
	}
	return files
}

func TestFilesPaths(t *testing.T) {
	f := Files{InputBase: "data/updates", MitigationBase: "data/mitigation"}
	if got := f.InputPath(3); got != "data/updates-3.txt" {
		t.Errorf("InputPath(3) = %q", got)
	}
	if got := f.MitigationPath(12); got != "data/mitigation-12.txt" {
		t.Errorf("MitigationPath(12) = %q", got)
	}
}

func TestIterationIndexes(t *testing.T) {
	it := Iteration{Start: 4, Count: 3}
	got := it.Indexes()
	want := []int{4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("Indexes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Indexes() = %v, want %v", got, want)
		}
	}
	if !it.Forever() {
		t.Error("nil RepeatLimit should repeat forever")
	}
	if Repeat(0) != nil {
		t.Error("Repeat(0) should be nil")
	}
	if r := Repeat(2); r == nil || *r != 2 {
		t.Errorf("Repeat(2) = %v", r)
	}
}

func TestRunIndexMatch(t *testing.T) {
	files := writeFixtures(t, t.TempDir(), []int{1}, "1 2 3 4")
	ex := &fakeExchanger{reply: []byte{0x21, 0x43}}
	env := Env{Files: files, Layout: update.LayoutPerLine, Exchanger: ex}

	res, err := RunIndex(context.Background(), env, 1, 1)
	if err != nil {
		t.Fatalf("RunIndex failed: %v", err)
	}
	if len(res.Sent) != 64 || res.Sent[16] != 0x0D {
		t.Fatalf("unexpected payload: len=%d byte16=%#x", len(res.Sent), res.Sent[16])
	}
	if !res.Result.OK() {
		t.Fatalf("expected no mismatches, got %v", res.Result.Mismatches)
	}
	if res.Result.Length != nil {
		t.Fatalf("unexpected length warning: %v", res.Result.Length)
	}
}

func TestRunIndexMismatch(t *testing.T) {
	files := writeFixtures(t, t.TempDir(), []int{1}, "9 8")
	ex := &fakeExchanger{reply: []byte{0x99}}
	env := Env{Files: files, Layout: update.LayoutPerLine, Exchanger: ex}

	res, err := RunIndex(context.Background(), env, 1, 1)
	if err != nil {
		t.Fatalf("mismatches must not be fatal: %v", err)
	}
	if len(res.Result.Mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %v", res.Result.Mismatches)
	}
	m := res.Result.Mismatches[0]
	if m.Device != 2 || m.Expected != 8 || m.Actual != 9 {
		t.Errorf("unexpected mismatch %+v", m)
	}
}

func TestRunIndexMissingInput(t *testing.T) {
	dir := t.TempDir()
	files := writeFixtures(t, dir, []int{1, 2, 3, 4}, "0")
	ex := &fakeExchanger{reply: []byte{0x00}}
	env := Env{Files: files, Iteration: Iteration{Start: 1, Count: 5}, Layout: update.LayoutPerLine, Exchanger: ex}

	cycle, err := RunCycle(context.Background(), env, 1)
	if !errors.Is(err, lnerrors.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "updates-5.txt") {
		t.Errorf("error should name the missing file: %v", err)
	}
	if ex.count() != 4 {
		t.Errorf("expected 4 datagrams (none for index 5), got %d", ex.count())
	}
	last := cycle.Results[len(cycle.Results)-1]
	if last.Index != 5 || last.Sent != nil {
		t.Errorf("index 5 should have no payload: %+v", last)
	}
}

func TestRunIndexTransportError(t *testing.T) {
	files := writeFixtures(t, t.TempDir(), []int{1}, "0")
	ex := &fakeExchanger{err: fmt.Errorf("read UDP: i/o timeout")}
	env := Env{Files: files, Layout: update.LayoutPerLine, Exchanger: ex}

	_, err := RunIndex(context.Background(), env, 1, 1)
	if !errors.Is(err, lnerrors.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

// blockingExchanger waits for ctx like a central node that never replies.
type blockingExchanger struct{ calls int }

func (b *blockingExchanger) Exchange(ctx context.Context, payload []byte, size int) ([]byte, error) {
	b.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunIndexMissingMitigationFailsBeforeSend(t *testing.T) {
	dir := t.TempDir()
	files := writeFixtures(t, dir, []int{1}, "1 2")
	if err := os.Remove(files.MitigationPath(1)); err != nil {
		t.Fatal(err)
	}
	ex := &blockingExchanger{}
	env := Env{Files: files, Layout: update.LayoutPerLine, Exchanger: ex}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := RunIndex(ctx, env, 1, 1)
	if !errors.Is(err, lnerrors.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "mitigation-1.txt") {
		t.Errorf("error should name the mitigation file: %v", err)
	}
	if ex.calls != 0 {
		t.Errorf("exchanger called %d times, want 0", ex.calls)
	}
	if res.Sent != nil {
		t.Error("nothing should be marked sent")
	}
}

func TestRunIndexSendFailureLeavesSentEmpty(t *testing.T) {
	files := writeFixtures(t, t.TempDir(), []int{1}, "0")
	ex := &fakeExchanger{err: fmt.Errorf("%w: write UDP: network unreachable", lnerrors.ErrNotSent)}
	env := Env{Files: files, Layout: update.LayoutPerLine, Exchanger: ex}

	res, err := RunIndex(context.Background(), env, 1, 1)
	if !errors.Is(err, lnerrors.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if res.Sent != nil {
		t.Errorf("failed send should leave Sent empty, got %d bytes", len(res.Sent))
	}

	ex.err = fmt.Errorf("receive mitigation: read UDP: i/o timeout")
	res, _ = RunIndex(context.Background(), env, 1, 1)
	if len(res.Sent) != 64 {
		t.Errorf("receive failure happens after the send; Sent = %d bytes", len(res.Sent))
	}
}

func TestRunIndexParseError(t *testing.T) {
	files := writeFixtures(t, t.TempDir(), []int{1}, "1 x 3")
	ex := &fakeExchanger{reply: []byte{0x00, 0x00}}
	env := Env{Files: files, Layout: update.LayoutPerLine, Exchanger: ex}

	_, err := RunIndex(context.Background(), env, 1, 1)
	if !errors.Is(err, lnerrors.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestRunIndexStrict(t *testing.T) {
	files := writeFixtures(t, t.TempDir(), []int{1}, "0")
	ex := &fakeExchanger{reply: []byte{0x00}}
	env := Env{Files: files, Layout: update.LayoutPerLine, Encoding: update.Options{Strict: true}, Exchanger: ex}

	_, err := RunIndex(context.Background(), env, 1, 1)
	if !errors.Is(err, lnerrors.ErrMalformedLine) {
		t.Fatalf("expected ErrMalformedLine, got %v", err)
	}
	if ex.count() != 0 {
		t.Errorf("strict failure must not send, sent %d", ex.count())
	}
}

func TestRunRepeatLimit(t *testing.T) {
	files := writeFixtures(t, t.TempDir(), []int{1, 2}, "1 2 3 5")
	ex := &fakeExchanger{reply: []byte{0x21, 0x43}}
	obs := &recordingObserver{}
	env := Env{
		Files:     files,
		Iteration: Iteration{Start: 1, Count: 2, RepeatLimit: Repeat(3)},
		Layout:    update.LayoutPaired,
		Exchanger: ex,
		Observer:  obs,
	}

	sum, err := Run(context.Background(), env)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Cycles != 3 || sum.Updates != 6 {
		t.Errorf("summary cycles=%d updates=%d, want 3/6", sum.Cycles, sum.Updates)
	}
	if sum.Mismatches != 6 {
		t.Errorf("mismatches = %d, want 6", sum.Mismatches)
	}
	if sum.BytesSent != 6*update.EncodedLen(update.LayoutPaired, 1) {
		t.Errorf("bytes sent = %d", sum.BytesSent)
	}
	if len(obs.indexes) != 6 || len(obs.cycles) != 3 {
		t.Errorf("observer saw %d indexes, %d cycles", len(obs.indexes), len(obs.cycles))
	}
	if obs.cycles[2].Cycle != 3 {
		t.Errorf("last cycle = %d", obs.cycles[2].Cycle)
	}
}

func TestRunLengthWarningIsNotFatal(t *testing.T) {
	files := writeFixtures(t, t.TempDir(), []int{1}, "1 2 3")
	ex := &fakeExchanger{reply: []byte{0x21, 0x43}}
	env := Env{
		Files:     files,
		Iteration: Iteration{Start: 1, Count: 1, RepeatLimit: Repeat(2)},
		Layout:    update.LayoutPerLine,
		Exchanger: ex,
	}

	sum, err := Run(context.Background(), env)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.LengthWarnings != 2 || sum.Mismatches != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	files := writeFixtures(t, t.TempDir(), []int{1}, "0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := &fakeExchanger{reply: []byte{0x00}}
	ex.hook = func(n int) {
		if n == 5 {
			cancel()
		}
	}
	env := Env{
		Files:     files,
		Iteration: Iteration{Start: 1, Count: 1},
		Layout:    update.LayoutPerLine,
		Exchanger: ex,
	}

	sum, err := Run(ctx, env)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sum.Cycles != 5 {
		t.Errorf("cycles = %d, want 5", sum.Cycles)
	}
}

func TestRunRequiresExchanger(t *testing.T) {
	if _, err := Run(context.Background(), Env{Iteration: Iteration{Count: 1}}); err == nil {
		t.Fatal("expected error without exchanger")
	}
}

// TestRunOverUDP exercises a full cycle against a loopback central node.
func TestRunOverUDP(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer server.Close()

	var received []int
	var mu sync.Mutex
	go func() {
		buf := make([]byte, 2048)
		for {
			n, addr, err := server.ReadFromUDP(buf)
			if err != nil {
				return
			}
			mu.Lock()
			received = append(received, n)
			mu.Unlock()
			_, _ = server.WriteToUDP(mitigation.EncodeReply([]uint8{1, 2, 3, 4}), addr)
		}
	}()

	files := writeFixtures(t, t.TempDir(), []int{7, 8}, "1 2 3 4")
	tr := transport.NewUDPTransport(2 * time.Second)
	if err := tr.Connect(context.Background(), server.LocalAddr().String()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Disconnect()

	env := Env{
		Files:     files,
		Iteration: Iteration{Start: 7, Count: 2, RepeatLimit: Repeat(1)},
		Layout:    update.LayoutPerLine,
		Exchanger: tr,
	}
	sum, err := Run(context.Background(), env)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Updates != 2 || sum.Mismatches != 0 {
		t.Errorf("summary = %+v", sum)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 || received[0] != 64 {
		t.Errorf("server received %v", received)
	}
}
