package metrics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

var reportedPercentiles = []float64{50, 75, 90, 95, 99}

// DefaultTrendStats is the summary used when none is configured.
var DefaultTrendStats = []string{"min", "avg", "med", "max", "p(75)", "p(90)", "p(95)", "p(99)"}

// TagStats is the aggregated rate, trend and counter for one tag.
type TagStats struct {
	Tag            Tag     `json:"tag" yaml:"tag"`
	Total          int64   `json:"count" yaml:"count"`
	Successes      int64   `json:"successes" yaml:"successes"`
	Failures       int64   `json:"failures" yaml:"failures"`
	Rate           float64 `json:"rate" yaml:"rate"`
	RequestsPerSec float64 `json:"requests_per_sec" yaml:"requests_per_sec"`

	MinMs       float64            `json:"min_ms" yaml:"min_ms"`
	AvgMs       float64            `json:"avg_ms" yaml:"avg_ms"`
	MedMs       float64            `json:"med_ms" yaml:"med_ms"`
	MaxMs       float64            `json:"max_ms" yaml:"max_ms"`
	Percentiles map[string]float64 `json:"percentiles_ms" yaml:"percentiles_ms"`
	StatusCodes map[string]int     `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`
	Errors      map[string]int     `json:"errors,omitempty" yaml:"errors,omitempty"`

	hist *hdrhistogram.Histogram
	min  time.Duration
	max  time.Duration
	avg  time.Duration
}

// Stats is a point-in-time view of every tag plus the overall totals.
type Stats struct {
	Tags       []TagStats    `json:"tags" yaml:"tags"`
	Overall    TagStats      `json:"overall" yaml:"overall"`
	Duration   time.Duration `json:"-" yaml:"-"`
	DurationMs float64       `json:"duration_ms" yaml:"duration_ms"`
}

// Tag returns the statistics for tag. A tag with no observations yields
// zero values.
func (s Stats) Tag(tag Tag) TagStats {
	for _, ts := range s.Tags {
		if ts.Tag == tag {
			return ts
		}
	}
	return TagStats{Tag: tag}
}

// MinLatency returns the smallest recorded latency.
func (t TagStats) MinLatency() time.Duration { return t.min }

// MaxLatency returns the largest recorded latency.
func (t TagStats) MaxLatency() time.Duration { return t.max }

// AvgLatency returns the mean recorded latency.
func (t TagStats) AvgLatency() time.Duration { return t.avg }

// Percentile returns the latency at percentile p (0-100) in milliseconds.
func (t TagStats) Percentile(p float64) float64 {
	if t.hist == nil || t.hist.TotalCount() == 0 {
		return 0
	}
	us := t.hist.ValueAtQuantile(p)
	return float64(us) / 1000
}

// Trend resolves a named summary statistic in milliseconds. Accepted names
// are min, avg (or mean), med, max and percentiles written as p(95) or p95.
func (t TagStats) Trend(name string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "min":
		return t.MinMs, nil
	case "avg", "mean":
		return t.AvgMs, nil
	case "med":
		return t.Percentile(50), nil
	case "max":
		return t.MaxMs, nil
	}
	p, err := ParsePercentile(name)
	if err != nil {
		return 0, err
	}
	return t.Percentile(p), nil
}

// ParsePercentile parses "p(95)", "p(99.9)" or "p95" into a percentile value.
func ParsePercentile(name string) (float64, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	if !strings.HasPrefix(s, "p") {
		return 0, fmt.Errorf("unknown trend stat %q", name)
	}
	s = strings.TrimPrefix(s, "p")
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = s[1 : len(s)-1]
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown trend stat %q", name)
	}
	if p < 0 || p > 100 {
		return 0, fmt.Errorf("percentile %q out of range", name)
	}
	return p, nil
}

// ValidateTrendStats reports the first unsupported name in stats.
func ValidateTrendStats(stats []string) error {
	var t TagStats
	for _, name := range stats {
		if _, err := t.Trend(name); err != nil {
			return err
		}
	}
	return nil
}
