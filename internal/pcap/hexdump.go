package pcap

// Hex dump utilities for status buffers and replies

import (
	"fmt"
	"strings"
)

// HexDump creates a hex dump of packet data
func HexDump(data []byte, width int) string {
	if width <= 0 {
		width = 16
	}

	var sb strings.Builder
	for i := 0; i < len(data); i += width {
		// Offset
		sb.WriteString(fmt.Sprintf("%04x: ", i))

		// Hex bytes
		for j := 0; j < width; j++ {
			if i+j < len(data) {
				sb.WriteString(fmt.Sprintf("%02x ", data[i+j]))
			} else {
				sb.WriteString("   ")
			}
		}

		// ASCII representation
		sb.WriteString(" |")
		for j := 0; j < width && i+j < len(data); j++ {
			b := data[i+j]
			if b >= 32 && b < 127 {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}

	return sb.String()
}

// FormatBlocks dumps a status buffer with its header and each block labelled.
// A zero blockSize falls back to a plain dump.
func FormatBlocks(data []byte, headerSize, blockSize int) string {
	if blockSize <= 0 || len(data) < headerSize {
		return HexDump(data, 16)
	}

	var sb strings.Builder
	if headerSize > 0 {
		sb.WriteString(fmt.Sprintf("Header (%d bytes):\n", headerSize))
		sb.WriteString(HexDump(data[:headerSize], 16))
	}

	body := data[headerSize:]
	for n, off := 1, 0; off < len(body); n, off = n+1, off+blockSize {
		end := min(off+blockSize, len(body))
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("Block #%d (offset %d):\n", n, headerSize+off))
		sb.WriteString(HexDump(body[off:end], 16))
	}

	return sb.String()
}
