package update

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	lnerrors "github.com/tturner/linknode/internal/errors"
)

// Options controls how transition text is turned into a status buffer.
type Options struct {
	// Strict rejects lines of the wrong width or with characters other
	// than '0' and '1'. The default zero-pads short lines and truncates long ones.
	Strict bool
	// Trace receives a per-block bit table when set.
	Trace io.Writer
}

// EncodeFile reads transition text from path and encodes it.
func EncodeFile(path string, layout Layout, opts Options) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, lnerrors.FileNotFound(path)
		}
		return nil, fmt.Errorf("stat input file: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	lines, err := ReadLines(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Encode(lines, layout, opts)
}

// ReadLines splits r into transition lines without line terminators.
func ReadLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r\n"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// Encode packs transition lines into a status buffer using layout.
func Encode(lines []string, layout Layout, opts Options) ([]byte, error) {
	if opts.Strict {
		if err := checkLines(lines, LineWidth(layout)); err != nil {
			return nil, err
		}
	}

	switch layout {
	case LayoutPerLine:
		return encodePerLine(lines, opts.Trace), nil
	case LayoutPaired:
		return encodePaired(lines, opts.Trace), nil
	default:
		return nil, fmt.Errorf("unsupported layout %s", layout)
	}
}

func checkLines(lines []string, width int) error {
	for n, line := range lines {
		if len(line) != width {
			return fmt.Errorf("%w: line %d has %d characters, want %d", lnerrors.ErrMalformedLine, n+1, len(line), width)
		}
		for col := 0; col < len(line); col++ {
			if line[col] != '0' && line[col] != '1' {
				return fmt.Errorf("%w: line %d column %d: unexpected character %q", lnerrors.ErrMalformedLine, n+1, col+1, line[col])
			}
		}
	}
	return nil
}

// flag reports whether the character at i is '1'. Positions past the end read as 0.
func flag(line string, i int) byte {
	if i < len(line) && line[i] == '1' {
		return 1
	}
	return 0
}

// encodePerLine emits one block per line. Bytes 16..63 each carry four
// inputs as [L0 H0 L1 H1 L2 H2 L3 H3], bit 0 first.
func encodePerLine(lines []string, trace io.Writer) []byte {
	out := make([]byte, 0, EncodedLen(LayoutPerLine, len(lines)))

	for app, line := range lines {
		block := make([]byte, perLineBlockSize)
		col := 0
		for b := perLineReservedSize; b < perLineBlockSize; b++ {
			var v byte
			for i := 0; i < perLineInputsByte; i++ {
				v |= flag(line, col) << (2 * i)
				v |= flag(line, col+1) << (2*i + 1)
				col += 2
			}
			block[b] = v
		}
		if trace != nil {
			tracePerLine(trace, app+1, block)
		}
		out = append(out, block...)
	}
	return out
}

// encodePaired emits the zero header and one block per (wasHigh, wasLow)
// line pair. Each line is packed 8 characters per byte, first character in bit 0.
func encodePaired(lines []string, trace io.Writer) []byte {
	out := make([]byte, pairedHeaderSize, EncodedLen(LayoutPaired, len(lines)))

	for k := 0; k < len(lines); k += 2 {
		high := packLine(lines[k])
		var low []byte
		if k+1 < len(lines) {
			low = packLine(lines[k+1])
		} else {
			low = make([]byte, pairedLineBytes)
		}
		if trace != nil {
			tracePaired(trace, k/2, high, low)
		}
		out = append(out, high...)
		out = append(out, low...)
	}
	return out
}

func packLine(line string) []byte {
	half := make([]byte, pairedLineBytes)
	for b := range half {
		var v byte
		for bit := 0; bit < 8; bit++ {
			v |= flag(line, b*8+bit) << bit
		}
		half[b] = v
	}
	return half
}

// DecodePerLine rebuilds the transition line carried by one per-line block.
func DecodePerLine(block []byte) (string, error) {
	if len(block) != perLineBlockSize {
		return "", fmt.Errorf("per-line block must be %d bytes, got %d", perLineBlockSize, len(block))
	}

	var sb strings.Builder
	sb.Grow(perLineInputs * 2)
	for _, v := range block[perLineReservedSize:] {
		for bit := 0; bit < 8; bit++ {
			if v&(1<<bit) != 0 {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
	}
	return sb.String(), nil
}

// Blocks splits an encoded buffer into its application blocks, skipping the header.
func Blocks(buf []byte, layout Layout) ([][]byte, error) {
	head := HeaderSize(layout)
	size := BlockSize(layout)
	if len(buf) < head || (len(buf)-head)%size != 0 {
		return nil, fmt.Errorf("buffer of %d bytes is not a whole number of %s blocks", len(buf), layout)
	}

	blocks := make([][]byte, 0, (len(buf)-head)/size)
	for off := head; off < len(buf); off += size {
		blocks = append(blocks, buf[off:off+size])
	}
	return blocks, nil
}
