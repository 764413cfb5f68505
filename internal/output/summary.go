package output

import (
	"time"

	"github.com/permlug/digestload/internal/metrics"
	"github.com/permlug/digestload/internal/runner"
	"github.com/permlug/digestload/internal/threshold"
)

// Summary is the end-of-run report shared by the text, JSON and export writers.
type Summary struct {
	RunID      string                        `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time                     `json:"started_at" yaml:"started_at"`
	DurationMs float64                       `json:"duration_ms" yaml:"duration_ms"`
	Iterations runner.Result                 `json:"iterations" yaml:"iterations"`
	Metrics    metrics.Stats                 `json:"metrics" yaml:"metrics"`
	Trends     map[string]map[string]float64 `json:"trends_ms" yaml:"trends_ms"`
	Thresholds []threshold.Result            `json:"thresholds" yaml:"thresholds"`
	Passed     bool                          `json:"passed" yaml:"passed"`

	trendStats []string
}

// NewSummary assembles a summary. trendStats selects the latency statistics
// shown per tag; nil means metrics.DefaultTrendStats.
func NewSummary(runID string, startedAt time.Time, res runner.Result, stats metrics.Stats, results []threshold.Result, trendStats []string) Summary {
	if len(trendStats) == 0 {
		trendStats = metrics.DefaultTrendStats
	}
	s := Summary{
		RunID:      runID,
		StartedAt:  startedAt.UTC(),
		DurationMs: float64(res.Duration) / float64(time.Millisecond),
		Iterations: res,
		Metrics:    stats,
		Trends:     make(map[string]map[string]float64, len(stats.Tags)+1),
		Thresholds: results,
		Passed:     !threshold.Failed(results),
		trendStats: append([]string(nil), trendStats...),
	}
	for _, ts := range stats.Tags {
		s.Trends[string(ts.Tag)] = trendValues(ts, s.trendStats)
	}
	s.Trends["overall"] = trendValues(stats.Overall, s.trendStats)
	return s
}

// TrendStats returns the statistic names in display order.
func (s Summary) TrendStats() []string {
	if len(s.trendStats) == 0 {
		return metrics.DefaultTrendStats
	}
	return s.trendStats
}

func trendValues(ts metrics.TagStats, names []string) map[string]float64 {
	out := make(map[string]float64, len(names))
	for _, name := range names {
		// names are validated at config load; unknown ones are skipped
		if v, err := ts.Trend(name); err == nil {
			out[name] = v
		}
	}
	return out
}
