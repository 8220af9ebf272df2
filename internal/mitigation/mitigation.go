// Package mitigation decodes central node mitigation replies and checks them
// against expected power classes.
package mitigation

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	lnerrors "github.com/tturner/linknode/internal/errors"
)

// ReplySize is the number of bytes requested per mitigation reply.
const ReplySize = 8

// DecodeReply expands each reply byte into two 4-bit power classes, low nibble first.
func DecodeReply(b []byte) []uint8 {
	out := make([]uint8, 0, 2*len(b))
	for _, v := range b {
		out = append(out, v&0xF, (v>>4)&0xF)
	}
	return out
}

// EncodeReply packs power classes two per byte, low nibble first.
// An odd trailing class occupies the low nibble of the last byte.
func EncodeReply(classes []uint8) []byte {
	out := make([]byte, (len(classes)+1)/2)
	for i, c := range classes {
		if i%2 == 0 {
			out[i/2] |= c & 0xF
		} else {
			out[i/2] |= (c & 0xF) << 4
		}
	}
	return out
}

// ParseExpected parses one line of space-separated base-10 power classes.
func ParseExpected(line string) ([]int, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	tokens := strings.Split(line, " ")
	values := make([]int, 0, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: token %d %q is not a base-10 integer", lnerrors.ErrParse, i+1, tok)
		}
		values = append(values, v)
	}
	return values, nil
}

// ReadExpectedFile parses the first line of an expected mitigation file.
func ReadExpectedFile(path string) ([]int, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, lnerrors.FileNotFound(path)
		}
		return nil, fmt.Errorf("stat mitigation file: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mitigation file: %w", err)
	}
	defer f.Close()

	var line string
	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		line = scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	values, err := ParseExpected(line)
	if err != nil {
		return nil, lnerrors.WrapParseError(err, path)
	}
	return values, nil
}

// Mismatch is one device whose decoded power class differs from the expected one.
type Mismatch struct {
	Device   int `json:"device"` // 1-indexed
	Expected int `json:"expected"`
	Actual   int `json:"actual"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("expected power class %d for mitigation device #%d, got %d instead.", m.Expected, m.Device, m.Actual)
}

// LengthMismatch records that the reply and the expected list differ in length.
// Only the overlapping prefix is compared.
type LengthMismatch struct {
	Actual   int `json:"actual"`
	Expected int `json:"expected"`
}

func (l LengthMismatch) String() string {
	return fmt.Sprintf("decoded %d power classes but %d were expected; compared the first %d", l.Actual, l.Expected, min(l.Actual, l.Expected))
}

// Result is the outcome of one validation.
type Result struct {
	Mismatches []Mismatch      `json:"mismatches,omitempty"`
	Length     *LengthMismatch `json:"length_mismatch,omitempty"`
}

// OK reports whether every compared device matched.
func (r Result) OK() bool {
	return len(r.Mismatches) == 0
}

// Validate compares actual against expected over their common prefix.
func Validate(actual []uint8, expected []int) Result {
	var res Result
	n := min(len(actual), len(expected))
	for i := 0; i < n; i++ {
		if int(actual[i]) != expected[i] {
			res.Mismatches = append(res.Mismatches, Mismatch{
				Device:   i + 1,
				Expected: expected[i],
				Actual:   int(actual[i]),
			})
		}
	}
	if len(actual) != len(expected) {
		res.Length = &LengthMismatch{Actual: len(actual), Expected: len(expected)}
	}
	return res
}
