package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/permlug/digestload/internal/metrics"
)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, s Summary) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if s.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", s.RunID)
	}
	fmt.Fprintf(w, "Duration:          %.0fms\n", s.DurationMs)
	it := s.Iterations
	fmt.Fprintf(w, "Iterations:        %d started, %d completed, %d interrupted, %d dropped\n",
		it.Started, it.Completed, it.Interrupted, it.Dropped)
	fmt.Fprintf(w, "Failed Iterations: %d\n", it.Errors)
	fmt.Fprintf(w, "Peak VUs:          %d\n", it.PeakVUs)

	for _, ts := range s.Metrics.Tags {
		fmt.Fprintf(w, "\n%s:\n", ts.Tag)
		writeTagStats(w, ts, s.TrendStats())
	}
	fmt.Fprintln(w, "\nOverall:")
	writeTagStats(w, s.Metrics.Overall, s.TrendStats())

	if buckets := s.Metrics.StatusBuckets(); len(buckets) > 0 {
		fmt.Fprintln(w, "\nStatus Buckets:")
		writeStatusBuckets(w, buckets, "  ")
	}

	if len(s.Thresholds) > 0 {
		passed := 0
		for _, r := range s.Thresholds {
			if r.Pass {
				passed++
			}
		}
		fmt.Fprintf(w, "\nThresholds (%d/%d passed):\n", passed, len(s.Thresholds))
		for _, r := range s.Thresholds {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
	}
}

func writeTagStats(w io.Writer, ts metrics.TagStats, trendStats []string) {
	fmt.Fprintf(w, "  Requests:        %d (%.2f/s)\n", ts.Total, ts.RequestsPerSec)
	fmt.Fprintf(w, "  Success Rate:    %.2f%% (%d ok, %d failed)\n", ts.Rate*100, ts.Successes, ts.Failures)

	parts := make([]string, 0, len(trendStats))
	for _, name := range trendStats {
		v, err := ts.Trend(name)
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%.2fms", name, v))
	}
	fmt.Fprintf(w, "  Duration:        %s\n", strings.Join(parts, " "))

	if len(ts.Errors) > 0 {
		labels := make([]string, 0, len(ts.Errors))
		for label := range ts.Errors {
			labels = append(labels, label)
		}
		sort.Slice(labels, func(i, j int) bool {
			if ts.Errors[labels[i]] != ts.Errors[labels[j]] {
				return ts.Errors[labels[i]] > ts.Errors[labels[j]]
			}
			return labels[i] < labels[j]
		})
		fmt.Fprintln(w, "  Errors:")
		for _, label := range labels {
			fmt.Fprintf(w, "    %s: %d\n", label, ts.Errors[label])
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func writeStatusBuckets(w io.Writer, buckets map[string]map[string]int, indent string) {
	rows := metrics.FlattenStatusBuckets(buckets)
	if len(rows) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s%s %s: %d\n", indent, row.Tag, row.Code, row.Count)
	}
}
