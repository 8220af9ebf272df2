// Package artifact handles structured output artifacts for harness runs.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tturner/linknode/internal/metrics"
)

// RunMetadata contains metadata about a harness run.
type RunMetadata struct {
	// Run identification
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  string    `json:"duration"`

	// Target information
	TargetHost string `json:"target_host"`
	TargetPort int    `json:"target_port"`

	// Inputs
	InputBase      string `json:"input_base"`
	MitigationBase string `json:"mitigation_base"`
	Layout         string `json:"layout"`
	Strict         bool   `json:"strict,omitempty"`

	// Iteration
	Start  int `json:"start"`
	Size   int `json:"size"`
	Repeat int `json:"repeat"` // 0 = forever

	// Results
	Stats    RunStats `json:"stats"`
	ExitCode int      `json:"exit_code"`
	Error    string   `json:"error,omitempty"`

	// Artifact paths (relative to output directory)
	Artifacts ArtifactPaths `json:"artifacts"`
}

// RunStats contains statistics from a harness run.
type RunStats struct {
	Cycles         int `json:"cycles"`
	TotalUpdates   int `json:"total_updates"`
	Matched        int `json:"matched"`
	Mismatched     int `json:"mismatched"`
	Failed         int `json:"failed"`
	DeviceMismatch int `json:"device_mismatches"`
	LengthWarnings int `json:"length_warnings"`
	TimeoutCount   int `json:"timeout_count"`
	BytesSent      int `json:"bytes_sent"`
	// RTT in milliseconds
	AvgRTTMs float64 `json:"avg_rtt_ms"`
	P50RTTMs float64 `json:"p50_rtt_ms"`
	P95RTTMs float64 `json:"p95_rtt_ms"`
	P99RTTMs float64 `json:"p99_rtt_ms"`
	MaxRTTMs float64 `json:"max_rtt_ms"`
}

// ArtifactPaths contains relative paths to generated artifacts.
type ArtifactPaths struct {
	RunJSON     string `json:"run_json"`
	MetricsCSV  string `json:"metrics_csv,omitempty"`
	MetricsJSON string `json:"metrics_json,omitempty"`
	SummaryTxt  string `json:"summary_txt,omitempty"`
	PCAPFile    string `json:"pcap_file,omitempty"`
}

// OutputManager manages artifact output for a run.
type OutputManager struct {
	outputDir string
	runID     string
	metadata  *RunMetadata
}

// NewOutputManager creates a new output manager for the given directory.
func NewOutputManager(outputDir string) (*OutputManager, error) {
	// Generate run ID from timestamp
	runID := time.Now().Format("20060102-150405")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	return &OutputManager{
		outputDir: outputDir,
		runID:     runID,
		metadata: &RunMetadata{
			RunID:     runID,
			StartTime: time.Now(),
			Artifacts: ArtifactPaths{
				RunJSON: "run.json",
			},
		},
	}, nil
}

// OutputDir returns the output directory path.
func (m *OutputManager) OutputDir() string {
	return m.outputDir
}

// RunID returns the run identifier.
func (m *OutputManager) RunID() string {
	return m.runID
}

// Metadata returns a copy of the current run metadata.
func (m *OutputManager) Metadata() RunMetadata {
	return *m.metadata
}

// SetTarget sets target information in metadata.
func (m *OutputManager) SetTarget(host string, port int) {
	m.metadata.TargetHost = host
	m.metadata.TargetPort = port
}

// SetInputs records the file bases and encoding of the run.
func (m *OutputManager) SetInputs(inputBase, mitigationBase, layout string, strict bool) {
	m.metadata.InputBase = inputBase
	m.metadata.MitigationBase = mitigationBase
	m.metadata.Layout = layout
	m.metadata.Strict = strict
}

// SetIteration records the index range and repeat count.
func (m *OutputManager) SetIteration(start, size, repeat int) {
	m.metadata.Start = start
	m.metadata.Size = size
	m.metadata.Repeat = repeat
}

// SetPCAPFile sets the PCAP file path (relative to output directory).
func (m *OutputManager) SetPCAPFile(filename string) {
	m.metadata.Artifacts.PCAPFile = filename
}

// SetMetricsFile sets the metrics file path (relative to output directory).
func (m *OutputManager) SetMetricsFile(filename string) {
	m.metadata.Artifacts.MetricsCSV = filename
}

// SetMetricsJSONFile sets the JSON metrics file path (relative to output directory).
func (m *OutputManager) SetMetricsJSONFile(filename string) {
	m.metadata.Artifacts.MetricsJSON = filename
}

// PCAPPath returns the full path for the PCAP file.
func (m *OutputManager) PCAPPath() string {
	return filepath.Join(m.outputDir, fmt.Sprintf("capture_%s.pcap", m.runID))
}

// MetricsPath returns the full path for the metrics file.
func (m *OutputManager) MetricsPath() string {
	return filepath.Join(m.outputDir, fmt.Sprintf("metrics_%s.csv", m.runID))
}

// MetricsJSONPath returns the full path for the JSON metrics file.
func (m *OutputManager) MetricsJSONPath() string {
	return filepath.Join(m.outputDir, fmt.Sprintf("metrics_%s.json", m.runID))
}

// SummaryPath returns the full path for the summary file.
func (m *OutputManager) SummaryPath() string {
	return filepath.Join(m.outputDir, fmt.Sprintf("summary_%s.txt", m.runID))
}

// RunJSONPath returns the full path for the run.json file.
func (m *OutputManager) RunJSONPath() string {
	return filepath.Join(m.outputDir, "run.json")
}

// Finalize completes the run and writes all artifacts.
func (m *OutputManager) Finalize(summary *metrics.Summary, cycles int, exitCode int, runErr error) error {
	m.metadata.EndTime = time.Now()
	m.metadata.Duration = m.metadata.EndTime.Sub(m.metadata.StartTime).String()
	m.metadata.ExitCode = exitCode
	m.metadata.Stats.Cycles = cycles

	if runErr != nil {
		m.metadata.Error = runErr.Error()
	}

	if summary != nil {
		m.metadata.Stats = RunStats{
			Cycles:         cycles,
			TotalUpdates:   summary.TotalUpdates,
			Matched:        summary.Matched,
			Mismatched:     summary.Mismatched,
			Failed:         summary.Failed,
			DeviceMismatch: summary.DeviceMismatch,
			LengthWarnings: summary.LengthWarnings,
			TimeoutCount:   summary.TimeoutCount,
			BytesSent:      summary.BytesSent,
			AvgRTTMs:       summary.AvgRTT,
			P50RTTMs:       summary.P50RTT,
			P95RTTMs:       summary.P95RTT,
			P99RTTMs:       summary.P99RTT,
			MaxRTTMs:       summary.MaxRTT,
		}
	}

	if err := m.writeSummary(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	m.metadata.Artifacts.SummaryTxt = filepath.Base(m.SummaryPath())

	if err := m.writeRunJSON(); err != nil {
		return fmt.Errorf("write run.json: %w", err)
	}

	return nil
}

// writeSummary writes a human-readable summary file.
func (m *OutputManager) writeSummary(summary *metrics.Summary) error {
	f, err := os.Create(m.SummaryPath())
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "linknode Run Summary\n")
	fmt.Fprintf(f, "====================\n\n")

	fmt.Fprintf(f, "Run ID:     %s\n", m.metadata.RunID)
	fmt.Fprintf(f, "Start Time: %s\n", m.metadata.StartTime.Format(time.RFC3339))
	fmt.Fprintf(f, "End Time:   %s\n", m.metadata.EndTime.Format(time.RFC3339))
	fmt.Fprintf(f, "Duration:   %s\n\n", m.metadata.Duration)

	fmt.Fprintf(f, "Target:     %s:%d\n", m.metadata.TargetHost, m.metadata.TargetPort)
	fmt.Fprintf(f, "Inputs:     %s-*.txt\n", m.metadata.InputBase)
	fmt.Fprintf(f, "Mitigation: %s-*.txt\n", m.metadata.MitigationBase)
	fmt.Fprintf(f, "Layout:     %s\n", m.metadata.Layout)
	fmt.Fprintf(f, "Indexes:    %d..%d\n", m.metadata.Start, m.metadata.Start+m.metadata.Size-1)
	fmt.Fprintf(f, "Cycles:     %d\n\n", m.metadata.Stats.Cycles)

	if summary != nil {
		fmt.Fprintf(f, "Results\n")
		fmt.Fprintf(f, "-------\n")
		fmt.Fprintf(f, "Total Updates:  %d\n", summary.TotalUpdates)
		fmt.Fprintf(f, "Matched:        %d (%.1f%%)\n", summary.Matched,
			float64(summary.Matched)/float64(max(summary.TotalUpdates, 1))*100)
		fmt.Fprintf(f, "Mismatched:     %d\n", summary.Mismatched)
		fmt.Fprintf(f, "Failed:         %d\n", summary.Failed)
		fmt.Fprintf(f, "Length Warning: %d\n\n", summary.LengthWarnings)

		fmt.Fprintf(f, "RTT (ms)\n")
		fmt.Fprintf(f, "--------\n")
		fmt.Fprintf(f, "Average: %.2f\n", summary.AvgRTT)
		fmt.Fprintf(f, "P50:     %.2f\n", summary.P50RTT)
		fmt.Fprintf(f, "P95:     %.2f\n", summary.P95RTT)
		fmt.Fprintf(f, "P99:     %.2f\n", summary.P99RTT)
		fmt.Fprintf(f, "Max:     %.2f\n\n", summary.MaxRTT)
	}

	if m.metadata.Error != "" {
		fmt.Fprintf(f, "Error: %s\n\n", m.metadata.Error)
	}

	fmt.Fprintf(f, "Artifacts\n")
	fmt.Fprintf(f, "---------\n")
	if m.metadata.Artifacts.PCAPFile != "" {
		fmt.Fprintf(f, "PCAP:    %s\n", m.metadata.Artifacts.PCAPFile)
	}
	if m.metadata.Artifacts.MetricsCSV != "" {
		fmt.Fprintf(f, "Metrics: %s\n", m.metadata.Artifacts.MetricsCSV)
	}
	fmt.Fprintf(f, "Summary: %s\n", filepath.Base(m.SummaryPath()))
	fmt.Fprintf(f, "Run JSON: %s\n", m.metadata.Artifacts.RunJSON)

	return nil
}

// writeRunJSON writes the run metadata as JSON.
func (m *OutputManager) writeRunJSON() error {
	data, err := json.MarshalIndent(m.metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.RunJSONPath(), data, 0644)
}
