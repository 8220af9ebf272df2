package app

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tturner/linknode/internal/mitigation"
	"github.com/tturner/linknode/internal/pcap"
	"github.com/tturner/linknode/internal/update"
)

// EncodeOptions are the `encode` command inputs.
type EncodeOptions struct {
	InputFile string
	Layout    string
	Strict    bool
	Trace     bool
	// OutFile receives the raw status buffer instead of a hex dump.
	OutFile string
}

// RunEncode encodes one transition file and prints or writes the buffer.
func RunEncode(opts EncodeOptions, out io.Writer) error {
	layout, err := update.ParseLayout(opts.Layout)
	if err != nil {
		return err
	}
	encOpts := update.Options{Strict: opts.Strict}
	if opts.Trace {
		encOpts.Trace = out
	}

	buf, err := update.EncodeFile(opts.InputFile, layout, encOpts)
	if err != nil {
		return err
	}

	if opts.OutFile != "" {
		if err := os.WriteFile(opts.OutFile, buf, 0644); err != nil {
			return fmt.Errorf("write %s: %w", opts.OutFile, err)
		}
		fmt.Fprintf(out, "Wrote %d bytes (%s layout) to %s\n", len(buf), layout, opts.OutFile)
		return nil
	}

	fmt.Fprintf(out, "%s: %d bytes, %s layout\n", opts.InputFile, len(buf), layout)
	fmt.Fprint(out, pcap.FormatBlocks(buf, update.HeaderSize(layout), update.BlockSize(layout)))
	return nil
}

// DecodeOptions are the `decode` command inputs.
type DecodeOptions struct {
	ReplyHex     string
	ExpectedFile string
}

// ErrDecodeMismatch is returned when a decoded reply differs from the expected file.
var ErrDecodeMismatch = errors.New("reply does not match expected power classes")

// RunDecode decodes a hex mitigation reply and optionally validates it.
func RunDecode(opts DecodeOptions, out io.Writer) error {
	cleaned := strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(opts.ReplyHex)
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "0x"), "0X")
	reply, err := hex.DecodeString(cleaned)
	if err != nil {
		return fmt.Errorf("decode reply hex: %w", err)
	}

	classes := mitigation.DecodeReply(reply)
	fmt.Fprintf(out, "Reply (%d bytes): %s\n", len(reply), hex.EncodeToString(reply))
	for i, c := range classes {
		fmt.Fprintf(out, "  device #%-3d power class %d\n", i+1, c)
	}

	if opts.ExpectedFile == "" {
		return nil
	}
	expected, err := mitigation.ReadExpectedFile(opts.ExpectedFile)
	if err != nil {
		return err
	}
	res := mitigation.Validate(classes, expected)
	if res.Length != nil {
		fmt.Fprintf(out, "WARNING: %s\n", res.Length.String())
	}
	for _, m := range res.Mismatches {
		fmt.Fprintf(out, "ERROR: %s\n", m.String())
	}
	if !res.OK() {
		return fmt.Errorf("%w: %d devices differ", ErrDecodeMismatch, len(res.Mismatches))
	}
	fmt.Fprintf(out, "All %d compared devices match %s\n", min(len(classes), len(expected)), opts.ExpectedFile)
	return nil
}
