package metrics

// Metrics output (CSV/JSON) and summary formatting

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

var csvHeader = []string{
	"timestamp",
	"cycle",
	"index",
	"file",
	"bytes_sent",
	"reply_bytes",
	"outcome",
	"rtt_ms",
	"jitter_ms",
	"mismatches",
	"length_warning",
	"error",
}

// Writer handles writing metrics to files
type Writer struct {
	csvFile   *os.File
	csvWriter *csv.Writer
	jsonFile  *os.File
	jsonCount int
}

// NewWriter creates a new metrics writer
func NewWriter(csvPath, jsonPath string) (*Writer, error) {
	w := &Writer{}

	// Open CSV file if path provided
	if csvPath != "" {
		file, err := os.Create(csvPath)
		if err != nil {
			return nil, fmt.Errorf("create CSV file: %w", err)
		}
		w.csvFile = file
		w.csvWriter = csv.NewWriter(file)

		if err := w.csvWriter.Write(csvHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("write CSV header: %w", err)
		}
		w.csvWriter.Flush()
	}

	// Open JSON file if path provided
	if jsonPath != "" {
		file, err := os.Create(jsonPath)
		if err != nil {
			if w.csvFile != nil {
				w.csvFile.Close()
			}
			return nil, fmt.Errorf("create JSON file: %w", err)
		}
		w.jsonFile = file

		if _, err := file.WriteString("[\n"); err != nil {
			file.Close()
			if w.csvFile != nil {
				w.csvFile.Close()
			}
			return nil, fmt.Errorf("write JSON start: %w", err)
		}
	}

	return w, nil
}

// WriteMetric writes a single metric
func (w *Writer) WriteMetric(m Metric) error {
	if w.csvWriter != nil {
		record := []string{
			m.Timestamp.Format(time.RFC3339Nano),
			strconv.Itoa(m.Cycle),
			strconv.Itoa(m.Index),
			m.File,
			strconv.Itoa(m.BytesSent),
			strconv.Itoa(m.ReplyBytes),
			string(m.Outcome),
			formatRTT(m.RTTMs),
			formatRTT(m.JitterMs),
			strconv.Itoa(m.Mismatches),
			m.LengthWarning,
			m.Error,
		}
		if err := w.csvWriter.Write(record); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
		w.csvWriter.Flush()
	}

	if w.jsonFile != nil {
		jsonData, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}

		if w.jsonCount > 0 {
			if _, err := w.jsonFile.WriteString(",\n"); err != nil {
				return fmt.Errorf("write JSON comma: %w", err)
			}
		}

		var buf bytes.Buffer
		if err := json.Indent(&buf, jsonData, "", "  "); err != nil {
			return fmt.Errorf("indent JSON: %w", err)
		}
		if _, err := w.jsonFile.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}
		w.jsonCount++
	}

	return nil
}

// Close flushes and closes both files. Later calls are no-ops.
func (w *Writer) Close() error {
	var errs []error

	if w.csvWriter != nil {
		w.csvWriter.Flush()
		w.csvWriter = nil
	}
	if w.csvFile != nil {
		if err := w.csvFile.Close(); err != nil {
			errs = append(errs, err)
		}
		w.csvFile = nil
	}

	if w.jsonFile != nil {
		if _, err := w.jsonFile.WriteString("\n]\n"); err != nil {
			errs = append(errs, err)
		}
		if err := w.jsonFile.Close(); err != nil {
			errs = append(errs, err)
		}
		w.jsonFile = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close writer: %v", errs)
	}

	return nil
}

// formatRTT formats RTT value for CSV (empty string if 0)
func formatRTT(rtt float64) string {
	if rtt == 0 {
		return ""
	}
	return fmt.Sprintf("%.3f", rtt)
}

// FormatSummary formats a summary for human-readable output
func FormatSummary(summary *Summary) string {
	var buf string

	if summary.TotalUpdates == 0 {
		return "Total Updates: 0\n"
	}

	buf += fmt.Sprintf("Total Updates: %d\n", summary.TotalUpdates)
	buf += fmt.Sprintf("Matched: %d (%.1f%%)\n",
		summary.Matched,
		float64(summary.Matched)/float64(summary.TotalUpdates)*100)
	buf += fmt.Sprintf("Mismatched: %d (%.1f%%)\n",
		summary.Mismatched,
		float64(summary.Mismatched)/float64(summary.TotalUpdates)*100)
	if summary.Failed > 0 {
		buf += fmt.Sprintf("Failed: %d\n", summary.Failed)
	}
	if summary.TimeoutCount > 0 {
		buf += fmt.Sprintf("Timeouts: %d\n", summary.TimeoutCount)
	}
	if summary.DeviceMismatch > 0 {
		buf += fmt.Sprintf("Device mismatches: %d\n", summary.DeviceMismatch)
	}
	if summary.LengthWarnings > 0 {
		buf += fmt.Sprintf("Length warnings: %d\n", summary.LengthWarnings)
	}
	buf += fmt.Sprintf("Bytes sent: %d\n", summary.BytesSent)

	if summary.Matched+summary.Mismatched > 0 && summary.MaxRTT > 0 {
		buf += "\nRTT Statistics:\n"
		buf += fmt.Sprintf("  Min: %.3f ms\n", summary.MinRTT)
		buf += fmt.Sprintf("  Max: %.3f ms\n", summary.MaxRTT)
		buf += fmt.Sprintf("  Avg: %.3f ms\n", summary.AvgRTT)
		if summary.P50RTT > 0 || summary.P90RTT > 0 || summary.P95RTT > 0 || summary.P99RTT > 0 {
			buf += fmt.Sprintf("  P50: %.3f ms\n", summary.P50RTT)
			buf += fmt.Sprintf("  P90: %.3f ms\n", summary.P90RTT)
			buf += fmt.Sprintf("  P95: %.3f ms\n", summary.P95RTT)
			buf += fmt.Sprintf("  P99: %.3f ms\n", summary.P99RTT)
		}
		if len(summary.RTTBuckets) > 0 {
			buf += fmt.Sprintf("  Buckets: <1ms=%d 1-5ms=%d 5-10ms=%d 10-50ms=%d 50-100ms=%d 100-500ms=%d >500ms=%d\n",
				summary.RTTBuckets["lt_1ms"],
				summary.RTTBuckets["1_5ms"],
				summary.RTTBuckets["5_10ms"],
				summary.RTTBuckets["10_50ms"],
				summary.RTTBuckets["50_100ms"],
				summary.RTTBuckets["100_500ms"],
				summary.RTTBuckets["gt_500ms"],
			)
		}
	}
	if summary.AvgJitter > 0 {
		buf += "\nJitter Statistics:\n"
		buf += fmt.Sprintf("  Max: %.3f ms\n", summary.MaxJitter)
		buf += fmt.Sprintf("  Avg: %.3f ms\n", summary.AvgJitter)
	}

	if len(summary.ByIndex) > 0 {
		buf += "\nPer-Index Statistics:\n"
		for _, idx := range summary.SortedIndexes() {
			stats := summary.ByIndex[idx]
			buf += fmt.Sprintf("  #%d: %d updates (%d matched, %d mismatched, %d failed)",
				idx, stats.Count, stats.Matched, stats.Mismatched, stats.Failed)
			if stats.SumRTT > 0 {
				buf += fmt.Sprintf(" - RTT: min=%.3fms, max=%.3fms, avg=%.3fms",
					stats.MinRTT, stats.MaxRTT, stats.AvgRTT)
			}
			buf += "\n"
		}
	}

	return buf
}
