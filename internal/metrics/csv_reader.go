package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// ReadMetricsCSV reads a metrics CSV file and returns the parsed metrics along
// with the first and last timestamps found in the data.
func ReadMetricsCSV(path string) ([]Metric, time.Time, time.Time, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("open metrics CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read and validate header
	header, err := reader.Read()
	if err != nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("read CSV header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[col] = i
	}

	requiredCols := []string{"timestamp", "cycle", "index", "outcome", "rtt_ms"}
	for _, col := range requiredCols {
		if _, ok := colIndex[col]; !ok {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("CSV missing required column: %s", col)
		}
	}

	field := func(record []string, name string) (string, bool) {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return "", false
		}
		return record[idx], true
	}
	atoi := func(record []string, name string) int {
		if v, ok := field(record, name); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return 0
	}
	atof := func(record []string, name string) float64 {
		if v, ok := field(record, name); ok && v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
		return 0
	}

	var metrics []Metric
	var firstTime, lastTime time.Time
	rowCount := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("read CSV row %d: %w", rowCount+2, err)
		}

		m := Metric{
			Cycle:      atoi(record, "cycle"),
			Index:      atoi(record, "index"),
			BytesSent:  atoi(record, "bytes_sent"),
			ReplyBytes: atoi(record, "reply_bytes"),
			RTTMs:      atof(record, "rtt_ms"),
			JitterMs:   atof(record, "jitter_ms"),
			Mismatches: atoi(record, "mismatches"),
		}
		if v, ok := field(record, "timestamp"); ok {
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				m.Timestamp = t
				if rowCount == 0 {
					firstTime = t
				}
				lastTime = t
			}
		}
		if v, ok := field(record, "file"); ok {
			m.File = v
		}
		if v, ok := field(record, "outcome"); ok {
			m.Outcome = Outcome(v)
		}
		if v, ok := field(record, "length_warning"); ok {
			m.LengthWarning = v
		}
		if v, ok := field(record, "error"); ok {
			m.Error = v
		}

		metrics = append(metrics, m)
		rowCount++
	}

	if rowCount == 0 {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("no data rows in CSV file")
	}

	return metrics, firstTime, lastTime, nil
}
