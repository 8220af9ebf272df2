package report

import "github.com/tturner/linknode/internal/mitigation"

// RunReport captures the outcome of one harness run.
type RunReport struct {
	GeneratedAt    string          `json:"generated_at"`
	Version        string          `json:"linknode_version"`
	Target         string          `json:"target"`
	Layout         string          `json:"layout"`
	InputBase      string          `json:"input_base"`
	MitigationBase string          `json:"mitigation_base"`
	Cycles         int             `json:"cycles"`
	Updates        int             `json:"updates"`
	Mismatches     int             `json:"mismatches"`
	LengthWarnings int             `json:"length_warnings"`
	BytesSent      int             `json:"bytes_sent"`
	DurationMs     int64           `json:"duration_ms"`
	Interrupted    bool            `json:"interrupted,omitempty"`
	Error          string          `json:"error,omitempty"`
	Failures       []MismatchEntry `json:"failures,omitempty"`

	// FailuresOmitted counts older mismatches dropped from Failures.
	FailuresOmitted int `json:"failures_omitted,omitempty"`
}

// MismatchEntry locates a device mismatch within a run.
type MismatchEntry struct {
	Cycle int `json:"cycle"`
	Index int `json:"index"`
	mitigation.Mismatch
}

// ReplayReport captures the outcome of replaying a capture file.
type ReplayReport struct {
	GeneratedAt string          `json:"generated_at"`
	PCAP        string          `json:"pcap"`
	Target      string          `json:"target"`
	Exchanges   int             `json:"exchanges"`
	Sent        int             `json:"sent"`
	Replies     int             `json:"replies"`
	Matched     int             `json:"matched_capture"`
	Differed    int             `json:"differed_from_capture"`
	Failures    []MismatchEntry `json:"failures,omitempty"`
	Error       string          `json:"error,omitempty"`
}
