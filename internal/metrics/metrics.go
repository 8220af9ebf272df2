package metrics

// Metrics collection for update/mitigation exchanges

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Outcome classifies one exchange.
type Outcome string

const (
	OutcomeMatch    Outcome = "match"
	OutcomeMismatch Outcome = "mismatch"
	OutcomeFailed   Outcome = "failed"
)

// Metric represents a single exchange metric
type Metric struct {
	Timestamp     time.Time `json:"timestamp"`
	Cycle         int       `json:"cycle"`
	Index         int       `json:"index"`
	File          string    `json:"file"`
	BytesSent     int       `json:"bytes_sent"`
	ReplyBytes    int       `json:"reply_bytes"`
	Outcome       Outcome   `json:"outcome"`
	RTTMs         float64   `json:"rtt_ms"`
	JitterMs      float64   `json:"jitter_ms,omitempty"`
	Mismatches    int       `json:"mismatches"`
	LengthWarning string    `json:"length_warning,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Success reports whether the exchange completed, regardless of mismatches.
func (m Metric) Success() bool {
	return m.Outcome != OutcomeFailed
}

// DefaultWindow is how many recent metrics a Sink keeps. Totals, RTT buckets
// and per-index stats cover the whole run; percentiles cover the window.
const DefaultWindow = 4096

// Sink collects and aggregates metrics. Memory stays bounded however long
// the run is.
type Sink struct {
	mu      sync.RWMutex
	recent  []Metric
	next    int
	window  int
	summary *Summary
	lastRTT float64
}

func newSummary() *Summary {
	return &Summary{
		RTTBuckets: make(map[string]int),
		ByIndex:    make(map[int]*IndexStats),
	}
}

// Summary contains aggregated statistics
type Summary struct {
	TotalUpdates   int
	Matched        int
	Mismatched     int
	Failed         int
	TimeoutCount   int
	DeviceMismatch int
	LengthWarnings int
	BytesSent      int
	MinRTT         float64
	MaxRTT         float64
	AvgRTT         float64
	P50RTT         float64
	P90RTT         float64
	P95RTT         float64
	P99RTT         float64
	MaxJitter      float64
	AvgJitter      float64
	jitterCount    int
	completedCount int
	RTTBuckets     map[string]int
	ByIndex        map[int]*IndexStats
}

// IndexStats contains statistics for one file index across cycles
type IndexStats struct {
	Count      int
	Matched    int
	Mismatched int
	Failed     int
	MinRTT     float64
	MaxRTT     float64
	AvgRTT     float64
	SumRTT     float64
}

// NewSink creates a sink keeping the last DefaultWindow metrics.
func NewSink() *Sink {
	return NewSinkWithWindow(DefaultWindow)
}

// NewSinkWithWindow creates a sink keeping the last window metrics.
func NewSinkWithWindow(window int) *Sink {
	if window < 1 {
		window = 1
	}
	return &Sink{
		recent:  make([]Metric, 0, min(window, DefaultWindow)),
		window:  window,
		summary: newSummary(),
	}
}

// Record records a new metric. Jitter is derived from the previous
// completed exchange when the caller leaves it unset.
func (s *Sink) Record(m Metric) Metric {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Success() && m.RTTMs > 0 {
		if m.JitterMs == 0 && s.lastRTT > 0 {
			m.JitterMs = math.Abs(m.RTTMs - s.lastRTT)
		}
		s.lastRTT = m.RTTMs
	}

	if len(s.recent) < s.window {
		s.recent = append(s.recent, m)
	} else {
		s.recent[s.next] = m
		s.next = (s.next + 1) % s.window
	}
	s.updateSummary(m)
	return m
}

// GetMetrics returns the retained metrics, oldest first.
func (s *Sink) GetMetrics() []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := make([]Metric, 0, len(s.recent))
	metrics = append(metrics, s.recent[s.next:]...)
	metrics = append(metrics, s.recent[:s.next]...)
	return metrics
}

// GetSummary returns the aggregated summary
func (s *Sink) GetSummary() *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &Summary{
		TotalUpdates:   s.summary.TotalUpdates,
		Matched:        s.summary.Matched,
		Mismatched:     s.summary.Mismatched,
		Failed:         s.summary.Failed,
		TimeoutCount:   s.summary.TimeoutCount,
		DeviceMismatch: s.summary.DeviceMismatch,
		LengthWarnings: s.summary.LengthWarnings,
		BytesSent:      s.summary.BytesSent,
		MinRTT:         s.summary.MinRTT,
		MaxRTT:         s.summary.MaxRTT,
		AvgRTT:         s.summary.AvgRTT,
		MaxJitter:      s.summary.MaxJitter,
		AvgJitter:      s.summary.AvgJitter,
		RTTBuckets:     make(map[string]int),
		ByIndex:        make(map[int]*IndexStats),
	}

	for idx, stats := range s.summary.ByIndex {
		copied := *stats
		summary.ByIndex[idx] = &copied
	}

	rttPercentiles := summarizeDistribution(s.recent)
	summary.P50RTT = rttPercentiles[0]
	summary.P90RTT = rttPercentiles[1]
	summary.P95RTT = rttPercentiles[2]
	summary.P99RTT = rttPercentiles[3]
	for k, v := range s.summary.RTTBuckets {
		summary.RTTBuckets[k] = v
	}

	return summary
}

// updateSummary updates the summary statistics with a new metric
func (s *Sink) updateSummary(m Metric) {
	s.summary.TotalUpdates++
	s.summary.BytesSent += m.BytesSent
	s.summary.DeviceMismatch += m.Mismatches
	if m.LengthWarning != "" {
		s.summary.LengthWarnings++
	}

	switch m.Outcome {
	case OutcomeMatch:
		s.summary.Matched++
	case OutcomeMismatch:
		s.summary.Mismatched++
	default:
		s.summary.Failed++
		if strings.Contains(m.Error, "timeout") {
			s.summary.TimeoutCount++
		}
	}

	if m.JitterMs > 0 {
		if m.JitterMs > s.summary.MaxJitter {
			s.summary.MaxJitter = m.JitterMs
		}
		s.summary.jitterCount++
		totalJitter := s.summary.AvgJitter * float64(s.summary.jitterCount-1)
		totalJitter += m.JitterMs
		s.summary.AvgJitter = totalJitter / float64(s.summary.jitterCount)
	}

	// Update RTT statistics
	if m.Success() && m.RTTMs > 0 {
		if s.summary.MinRTT == 0 || m.RTTMs < s.summary.MinRTT {
			s.summary.MinRTT = m.RTTMs
		}
		if m.RTTMs > s.summary.MaxRTT {
			s.summary.MaxRTT = m.RTTMs
		}

		incrementBucket(s.summary.RTTBuckets, m.RTTMs)
		s.summary.completedCount++
		totalRTT := s.summary.AvgRTT * float64(s.summary.completedCount-1)
		totalRTT += m.RTTMs
		s.summary.AvgRTT = totalRTT / float64(s.summary.completedCount)
	}

	// Update index-specific stats
	stats, exists := s.summary.ByIndex[m.Index]
	if !exists {
		stats = &IndexStats{}
		s.summary.ByIndex[m.Index] = stats
	}
	stats.Count++
	switch m.Outcome {
	case OutcomeMatch:
		stats.Matched++
	case OutcomeMismatch:
		stats.Mismatched++
	default:
		stats.Failed++
	}
	if m.Success() && m.RTTMs > 0 {
		if stats.MinRTT == 0 || m.RTTMs < stats.MinRTT {
			stats.MinRTT = m.RTTMs
		}
		if m.RTTMs > stats.MaxRTT {
			stats.MaxRTT = m.RTTMs
		}
		stats.SumRTT += m.RTTMs
		stats.AvgRTT = stats.SumRTT / float64(stats.Matched+stats.Mismatched)
	}
}

// SortedIndexes returns the indexes present in the summary in ascending order.
func (s *Summary) SortedIndexes() []int {
	out := make([]int, 0, len(s.ByIndex))
	for idx := range s.ByIndex {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func summarizeDistribution(metrics []Metric) [4]float64 {
	rtts := make([]float64, 0, len(metrics))
	for _, m := range metrics {
		if m.Success() && m.RTTMs > 0 {
			rtts = append(rtts, m.RTTMs)
		}
	}
	return computePercentiles(rtts)
}

func incrementBucket(buckets map[string]int, value float64) {
	switch {
	case value < 1:
		buckets["lt_1ms"]++
	case value < 5:
		buckets["1_5ms"]++
	case value < 10:
		buckets["5_10ms"]++
	case value < 50:
		buckets["10_50ms"]++
	case value < 100:
		buckets["50_100ms"]++
	case value < 500:
		buckets["100_500ms"]++
	default:
		buckets["gt_500ms"]++
	}
}

func computePercentiles(values []float64) [4]float64 {
	var result [4]float64
	if len(values) == 0 {
		return result
	}
	sort.Float64s(values)
	result[0] = percentile(values, 0.50)
	result[1] = percentile(values, 0.90)
	result[2] = percentile(values, 0.95)
	result[3] = percentile(values, 0.99)
	return result
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
