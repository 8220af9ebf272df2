package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/tturner/linknode/internal/mitigation"
)

func TestEmitJSONStdout(t *testing.T) {
	report := RunReport{
		GeneratedAt: "2024-01-15T10:00:00Z",
		Version:     "1.0.0",
		Target:      "lcls-dev3:4356",
		Cycles:      3,
		Mismatches:  1,
		Failures: []MismatchEntry{
			{Cycle: 2, Index: 4, Mismatch: mitigation.Mismatch{Device: 2, Expected: 8, Actual: 9}},
		},
	}

	var buf bytes.Buffer
	if err := EmitJSON(StdoutPath, &buf, report); err != nil {
		t.Fatalf("EmitJSON failed: %v", err)
	}

	var decoded RunReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	if decoded.GeneratedAt != report.GeneratedAt {
		t.Errorf("GeneratedAt mismatch: got %q, want %q", decoded.GeneratedAt, report.GeneratedAt)
	}
	if len(decoded.Failures) != 1 || decoded.Failures[0].Device != 2 || decoded.Failures[0].Index != 4 {
		t.Errorf("Failures not preserved: %+v", decoded.Failures)
	}

	// embedded mismatch fields are flattened
	var raw map[string]any
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	failure := raw["failures"].([]any)[0].(map[string]any)
	if _, ok := failure["device"]; !ok {
		t.Errorf("expected flattened device field, got %v", failure)
	}
}

func TestWriteJSONFile(t *testing.T) {
	report := ReplayReport{
		GeneratedAt: "2024-01-15T10:00:00Z",
		PCAP:        "capture.pcap",
		Exchanges:   10,
		Matched:     10,
	}

	path := filepath.Join(t.TempDir(), "replay.json")
	if err := WriteJSONFile(path, report); err != nil {
		t.Fatalf("WriteJSONFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}

	var decoded ReplayReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Output file is not valid JSON: %v", err)
	}
	if decoded.PCAP != "capture.pcap" || decoded.Matched != 10 {
		t.Errorf("decoded = %+v", decoded)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat file: %v", err)
	}
	if info.Mode().Perm()&0400 == 0 {
		t.Error("File should be owner-readable")
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".replay.json.*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

func TestEmitJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	var stdout bytes.Buffer
	if err := EmitJSON(path, &stdout, RunReport{Target: "cn:4356"}); err != nil {
		t.Fatalf("EmitJSON failed: %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("file destination wrote to stdout: %q", stdout.String())
	}
	data, err := os.ReadFile(path)
	if err != nil || !bytes.Contains(data, []byte(`"target": "cn:4356"`)) {
		t.Errorf("report file = %q, err %v", data, err)
	}
}

func TestWriteJSONIndentation(t *testing.T) {
	var buf bytes.Buffer
	if err := EmitJSON(StdoutPath, &buf, RunReport{Target: "x"}); err != nil {
		t.Fatalf("EmitJSON failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("\n  \"")) {
		t.Errorf("Output should be indented with two spaces:\n%s", buf.String())
	}
}

func TestWriteJSONFileBadPath(t *testing.T) {
	if err := WriteJSONFile(filepath.Join(t.TempDir(), "missing", "r.json"), RunReport{}); err == nil {
		t.Error("expected error for missing directory")
	}
}
