package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// FormatText writes metrics in human-readable format.
func FormatText(w io.Writer, m *Metrics) {
	if m.TotalOperations == 0 {
		fmt.Fprintln(w, "No events collected")
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Ensemble - Workload Results")
	fmt.Fprintln(w, "===========================")
	fmt.Fprintln(w, "")
	if m.RunID != "" {
		fmt.Fprintf(w, "Run:            %s\n", m.RunID)
	}
	fmt.Fprintf(w, "Duration:       %v\n", m.TestDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "Operations:     %s\n", formatNumber(m.TotalOperations))
	fmt.Fprintf(w, "Success Rate:   %.1f%% (%s / %s)\n",
		m.SuccessRate, formatNumber(m.SuccessCount), formatNumber(m.TotalOperations))
	fmt.Fprintf(w, "Operations/sec: %.1f\n", m.OperationsPerSec)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Latency:")
	fmt.Fprintf(w, "  Min:    %s\n", FormatDuration(m.Duration.Min))
	fmt.Fprintf(w, "  Avg:    %s\n", FormatDuration(m.Duration.Avg))
	fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(m.Duration.P50))
	fmt.Fprintf(w, "  P90:    %s\n", FormatDuration(m.Duration.P90))
	fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(m.Duration.P95))
	fmt.Fprintf(w, "  P99:    %s\n", FormatDuration(m.Duration.P99))
	fmt.Fprintf(w, "  Max:    %s\n", FormatDuration(m.Duration.Max))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "By Operation:")
	for _, key := range sortedKeys(m.Operations) {
		op := m.Operations[key]
		fmt.Fprintf(w, "  %-25s %s ops   avg=%s  p95=%s  p99=%s\n",
			key, formatNumber(op.Count),
			FormatDuration(op.Duration.Avg),
			FormatDuration(op.Duration.P95),
			FormatDuration(op.Duration.P99))
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "By Phase:")
	for _, num := range sortedPhases(m.Phases) {
		ph := m.Phases[num]
		fmt.Fprintf(w, "  Phase %-4d %s ops   %s failed\n",
			num, formatNumber(ph.Count), formatNumber(ph.Failed))
	}
}

// FormatJSON writes metrics in JSON format.
func FormatJSON(w io.Writer, m *Metrics) error {
	output := struct {
		RunID            string                          `json:"runId,omitempty"`
		Duration         string                          `json:"duration"`
		TotalOperations  int                             `json:"totalOperations"`
		SuccessCount     int                             `json:"successCount"`
		FailureCount     int                             `json:"failureCount"`
		SuccessRate      float64                         `json:"successRate"`
		OperationsPerSec float64                         `json:"operationsPerSec"`
		Durations        jsonDurationMetrics             `json:"durations"`
		Operations       map[string]jsonOperationMetrics `json:"operations"`
		Phases           map[string]*PhaseMetrics        `json:"phases"`
	}{
		RunID:            m.RunID,
		Duration:         m.TestDuration.Round(time.Millisecond).String(),
		TotalOperations:  m.TotalOperations,
		SuccessCount:     m.SuccessCount,
		FailureCount:     m.FailureCount,
		SuccessRate:      m.SuccessRate,
		OperationsPerSec: m.OperationsPerSec,
		Durations:        toJSONDurationMetrics(m.Duration),
		Operations:       make(map[string]jsonOperationMetrics),
		Phases:           make(map[string]*PhaseMetrics),
	}

	for key, op := range m.Operations {
		output.Operations[key] = jsonOperationMetrics{
			Count:       op.Count,
			Success:     op.Success,
			Failed:      op.Failed,
			SuccessRate: float64(op.Success) / float64(op.Count) * 100,
			Durations:   toJSONDurationMetrics(op.Duration),
		}
	}
	for num, ph := range m.Phases {
		output.Phases[strconv.FormatUint(uint64(num), 10)] = ph
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

type jsonDurationMetrics struct {
	Min string `json:"min"`
	Max string `json:"max"`
	Avg string `json:"avg"`
	P50 string `json:"p50"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
	P99 string `json:"p99"`
}

type jsonOperationMetrics struct {
	Count       int                 `json:"count"`
	Success     int                 `json:"success"`
	Failed      int                 `json:"failed"`
	SuccessRate float64             `json:"successRate"`
	Durations   jsonDurationMetrics `json:"durations"`
}

func toJSONDurationMetrics(d DurationMetrics) jsonDurationMetrics {
	return jsonDurationMetrics{
		Min: FormatDuration(d.Min),
		Max: FormatDuration(d.Max),
		Avg: FormatDuration(d.Avg),
		P50: FormatDuration(d.P50),
		P90: FormatDuration(d.P90),
		P95: FormatDuration(d.P95),
		P99: FormatDuration(d.P99),
	}
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := strconv.Itoa(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}

func sortedKeys(m map[string]*OperationMetrics) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedPhases(m map[uint32]*PhaseMetrics) []uint32 {
	nums := make([]uint32, 0, len(m))
	for n := range m {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}
