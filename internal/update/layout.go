package update

// Status buffer layouts sent by a link node.

import (
	"fmt"
	"strings"
)

// Layout selects the wire framing of a status buffer.
type Layout int

const (
	// LayoutPerLine emits one 64-byte block per transition line with
	// interleaved wasLow/wasHigh bit pairs. Canonical layout.
	LayoutPerLine Layout = iota
	// LayoutPaired emits a 48-byte header followed by one 24-byte block per
	// (wasHigh, wasLow) line pair. Kept for replay of older captures.
	LayoutPaired
)

const (
	pairedHeaderSize = 48
	pairedLineBytes  = 12
	pairedBlockSize  = 2 * pairedLineBytes

	perLineBlockSize    = 64
	perLineReservedSize = 16
	perLineInputsByte   = 4
	perLineInputs       = (perLineBlockSize - perLineReservedSize) * perLineInputsByte
)

// String returns the configuration name of the layout.
func (l Layout) String() string {
	switch l {
	case LayoutPerLine:
		return "per-line"
	case LayoutPaired:
		return "paired"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// ParseLayout maps a configuration name to a Layout.
func ParseLayout(name string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "per-line", "perline", "b":
		return LayoutPerLine, nil
	case "paired", "a":
		return LayoutPaired, nil
	default:
		return 0, fmt.Errorf("unknown layout %q; must be one of: per-line, paired", name)
	}
}

// HeaderSize is the fixed prefix emitted once per buffer.
func HeaderSize(l Layout) int {
	if l == LayoutPaired {
		return pairedHeaderSize
	}
	return 0
}

// BlockSize is the size of one application block.
func BlockSize(l Layout) int {
	if l == LayoutPaired {
		return pairedBlockSize
	}
	return perLineBlockSize
}

// LineWidth is the number of characters a full transition line carries.
func LineWidth(l Layout) int {
	if l == LayoutPaired {
		return pairedLineBytes * 8
	}
	return perLineInputs * 2
}

// EncodedLen returns the buffer length produced for the given line count.
func EncodedLen(l Layout, lines int) int {
	if l == LayoutPaired {
		pairs := (lines + 1) / 2
		return pairedHeaderSize + pairs*pairedBlockSize
	}
	return lines * perLineBlockSize
}
