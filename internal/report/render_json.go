package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StdoutPath selects standard output as the JSON report destination.
const StdoutPath = "-"

// EmitJSON writes report as indented JSON to path, or to stdout when path
// is StdoutPath.
func EmitJSON(path string, stdout io.Writer, report any) error {
	if path == StdoutPath {
		return encodeJSON(stdout, report)
	}
	return WriteJSONFile(path, report)
}

// WriteJSONFile writes report through a temporary sibling file and renames
// it into place, so a reader never sees a partial report.
func WriteJSONFile(path string, report any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encodeJSON(tmp, report); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func encodeJSON(w io.Writer, report any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
