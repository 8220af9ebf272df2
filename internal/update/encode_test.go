package update

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lnerrors "github.com/tturner/linknode/internal/errors"
)

func TestEncodePerLineFirstByte(t *testing.T) {
	line := "10110000" + strings.Repeat("0", 40)
	buf, err := Encode([]string{line}, LayoutPerLine, Options{})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(buf) != 64 {
		t.Fatalf("len = %d, want 64", len(buf))
	}
	for i := 0; i < perLineReservedSize; i++ {
		if buf[i] != 0 {
			t.Fatalf("reserved byte %d = 0x%02X, want 0", i, buf[i])
		}
	}
	if buf[16] != 0x0D {
		t.Errorf("byte 16 = 0x%02X, want 0x0D", buf[16])
	}
	if buf[17] != 0 || buf[18] != 0 {
		t.Errorf("bytes 17..18 = 0x%02X 0x%02X, want 0", buf[17], buf[18])
	}
}

func TestEncodePerLineBitOrder(t *testing.T) {
	tests := []struct {
		name string
		line string
		want byte
	}{
		{"wasLow input 0", "10", 0x01},
		{"wasHigh input 0", "01", 0x02},
		{"wasLow input 3", "000000" + "10", 0x40},
		{"wasHigh input 3", "000000" + "01", 0x80},
		{"all set", "11111111", 0xFF},
		{"non binary chars are zero", "1x1y1a1b", 0x55},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Encode([]string{tt.line}, LayoutPerLine, Options{})
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if buf[16] != tt.want {
				t.Errorf("byte 16 = 0x%02X, want 0x%02X", buf[16], tt.want)
			}
		})
	}
}

func TestEncodePerLineLength(t *testing.T) {
	for _, n := range []int{0, 1, 2, 7} {
		lines := make([]string, n)
		for i := range lines {
			lines[i] = "1"
		}
		buf, err := Encode(lines, LayoutPerLine, Options{})
		if err != nil {
			t.Fatalf("Encode(%d lines) failed: %v", n, err)
		}
		if len(buf) != 64*n {
			t.Errorf("Encode(%d lines) len = %d, want %d", n, len(buf), 64*n)
		}
		if len(buf) != EncodedLen(LayoutPerLine, n) {
			t.Errorf("EncodedLen mismatch for %d lines", n)
		}
	}
}

func TestDecodePerLineRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	lines := make([]string, 5)
	for i := range lines {
		var sb strings.Builder
		for c := 0; c < LineWidth(LayoutPerLine); c++ {
			if rng.Intn(2) == 1 {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		lines[i] = sb.String()
	}

	buf, err := Encode(lines, LayoutPerLine, Options{Strict: true})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	blocks, err := Blocks(buf, LayoutPerLine)
	if err != nil {
		t.Fatalf("Blocks failed: %v", err)
	}
	if len(blocks) != len(lines) {
		t.Fatalf("blocks = %d, want %d", len(blocks), len(lines))
	}
	for k, block := range blocks {
		got, err := DecodePerLine(block)
		if err != nil {
			t.Fatalf("DecodePerLine(%d) failed: %v", k, err)
		}
		if got != lines[k] {
			t.Errorf("block %d decoded to a different line", k)
		}
	}
}

func TestDecodePerLineShortLineZeroFilled(t *testing.T) {
	buf, err := Encode([]string{"0111"}, LayoutPerLine, Options{})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := DecodePerLine(buf)
	if err != nil {
		t.Fatalf("DecodePerLine failed: %v", err)
	}
	want := "0111" + strings.Repeat("0", LineWidth(LayoutPerLine)-4)
	if got != want {
		t.Errorf("decoded line does not match zero-filled input")
	}
	if _, err := DecodePerLine(buf[:10]); err == nil {
		t.Errorf("DecodePerLine on short block should fail")
	}
}

func TestEncodePaired(t *testing.T) {
	high := "10000000" + "00000001"
	low := "11110000"
	buf, err := Encode([]string{high, low}, LayoutPaired, Options{})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(buf) != 48+24 {
		t.Fatalf("len = %d, want 72", len(buf))
	}
	for i := 0; i < pairedHeaderSize; i++ {
		if buf[i] != 0 {
			t.Fatalf("header byte %d = 0x%02X, want 0", i, buf[i])
		}
	}
	if buf[48] != 0x01 || buf[49] != 0x80 {
		t.Errorf("wasHigh bytes = 0x%02X 0x%02X, want 0x01 0x80", buf[48], buf[49])
	}
	if buf[60] != 0x0F {
		t.Errorf("wasLow byte = 0x%02X, want 0x0F", buf[60])
	}
}

func TestEncodePairedUnpairedTrailingLine(t *testing.T) {
	lines := []string{"1", "1", strings.Repeat("1", 96)}
	buf, err := Encode(lines, LayoutPaired, Options{})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(buf) != 48+2*24 {
		t.Fatalf("len = %d, want %d", len(buf), 48+2*24)
	}
	block := buf[48+24:]
	for i := 0; i < pairedLineBytes; i++ {
		if block[i] != 0xFF {
			t.Fatalf("wasHigh byte %d = 0x%02X, want 0xFF", i, block[i])
		}
		if block[pairedLineBytes+i] != 0 {
			t.Fatalf("missing wasLow byte %d = 0x%02X, want 0", i, block[pairedLineBytes+i])
		}
	}
}

func TestEncodeStrict(t *testing.T) {
	valid := strings.Repeat("01", LineWidth(LayoutPerLine)/2)
	tests := []struct {
		name    string
		layout  Layout
		line    string
		wantErr bool
	}{
		{"valid per-line", LayoutPerLine, valid, false},
		{"short per-line", LayoutPerLine, "0101", true},
		{"bad character", LayoutPerLine, valid[:len(valid)-1] + "x", true},
		{"valid paired", LayoutPaired, strings.Repeat("1", 96), false},
		{"long paired", LayoutPaired, strings.Repeat("1", 97), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode([]string{tt.line}, tt.layout, Options{Strict: true})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Encode err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, lnerrors.ErrMalformedLine) {
				t.Errorf("error should match ErrMalformedLine: %v", err)
			}
		})
	}

	// The same malformed line is tolerated without strict mode.
	if _, err := Encode([]string{"0101"}, LayoutPerLine, Options{}); err != nil {
		t.Errorf("lenient Encode failed: %v", err)
	}
}

func TestEncodeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "updates-1.txt")
	if err := os.WriteFile(path, []byte("10110000\r\n11\n"), 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	buf, err := EncodeFile(path, LayoutPerLine, Options{})
	if err != nil {
		t.Fatalf("EncodeFile failed: %v", err)
	}
	if len(buf) != 128 {
		t.Fatalf("len = %d, want 128", len(buf))
	}
	if buf[16] != 0x0D || buf[64+16] != 0x03 {
		t.Errorf("data bytes = 0x%02X 0x%02X, want 0x0D 0x03", buf[16], buf[64+16])
	}

	_, err = EncodeFile(filepath.Join(dir, "updates-5.txt"), LayoutPerLine, Options{})
	if !errors.Is(err, lnerrors.ErrFileNotFound) {
		t.Fatalf("missing file err = %v, want ErrFileNotFound", err)
	}
}

func TestEncodeTrace(t *testing.T) {
	var trace bytes.Buffer
	_, err := Encode([]string{"10110000"}, LayoutPerLine, Options{Trace: &trace})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out := trace.String()
	for _, want := range []string{"Global AppId #1", "LN Inputs", "001..004", "025..028"} {
		if !strings.Contains(out, want) {
			t.Errorf("trace missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "029..032") {
		t.Errorf("trace should stop after %d rows", traceRows)
	}

	trace.Reset()
	if _, err := Encode([]string{"1", "0"}, LayoutPaired, Options{Trace: &trace}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(trace.String(), "wasLow") {
		t.Errorf("paired trace missing wasLow rows")
	}
}

func TestParseLayout(t *testing.T) {
	tests := []struct {
		in      string
		want    Layout
		wantErr bool
	}{
		{"", LayoutPerLine, false},
		{"per-line", LayoutPerLine, false},
		{"Paired", LayoutPaired, false},
		{"weird", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLayout(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLayout(%q) err = %v", tt.in, err)
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseLayout(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if LayoutPaired.String() != "paired" || LayoutPerLine.String() != "per-line" {
		t.Errorf("unexpected layout names")
	}
}

func TestBlocksRejectsPartial(t *testing.T) {
	if _, err := Blocks(make([]byte, 65), LayoutPerLine); err == nil {
		t.Errorf("Blocks should reject a partial block")
	}
	blocks, err := Blocks(make([]byte, 48+48), LayoutPaired)
	if err != nil {
		t.Fatalf("Blocks failed: %v", err)
	}
	if len(blocks) != 2 {
		t.Errorf("blocks = %d, want 2", len(blocks))
	}
}
