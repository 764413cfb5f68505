package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/permlug/digestload/internal/metrics"
)

// Metric names understood by thresholds.
const (
	MetricSuccess  = "success"  // rate of successful requests
	MetricFailed   = "failed"   // rate of failed requests
	MetricDuration = "duration" // request latency trend in ms
	MetricRequests = "requests" // request counter
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string      // e.g., "duration", "success"
	Tag       metrics.Tag // empty means all tags
	Aggregate string      // e.g., "p(95)", "rate", "count"
	Operator  string      // e.g., "<", "<=", ">", ">=", "=="
	Value     float64     // The threshold value to compare against
	Raw       string      // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-" yaml:"-"`
	Name      string    `json:"threshold" yaml:"threshold"`
	Actual    float64   `json:"actual" yaml:"actual"`
	Pass      bool      `json:"ok" yaml:"ok"`
	Message   string    `json:"-" yaml:"-"`
}

// Evaluator evaluates thresholds against collected metrics.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Thresholds returns the thresholds the evaluator checks.
func (e *Evaluator) Thresholds() []Threshold {
	return append([]Threshold(nil), e.thresholds...)
}

// Evaluate checks all thresholds against the provided stats.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, stats))
	}
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return true
		}
	}
	return false
}

func (e *Evaluator) evaluateOne(t Threshold, stats metrics.Stats) Result {
	ts := stats.Overall
	if t.Tag != "" {
		ts = stats.Tag(t.Tag)
	}

	actual, err := extractMetricValue(t, ts)
	if err != nil {
		return Result{
			Threshold: t,
			Name:      t.Raw,
			Pass:      false,
			Message:   fmt.Sprintf("✗ %s: error: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Name:      t.Raw,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.4g %s %.4g", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+)(?:\{\s*([A-Za-z0-9_.:-]+)\s*\})?:\s*([a-z]+(?:\([0-9.]+\)|[0-9.]+)?)\s*([<>=!]+)\s*([0-9.eE+-]+)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "duration{randomRecord}:p(95) < 100"   (latency percentile in ms)
// - "duration:avg < 200"                   (average latency across all tags)
// - "success{recordsCount}:rate > 0.999"   (success ratio)
// - "failed:count < 10"                    (failed request count)
// - "requests{randomRecord}:count >= 30"   (request counter)
// The tag may also be written as {type:randomRecord}.
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric{tag}:aggregate operator value, e.g., 'duration{randomRecord}:p(95) < 100')", s)
	}

	metric := matches[1]
	tag := strings.TrimPrefix(matches[2], "type:")
	aggregate := matches[3]
	operator := matches[4]
	valueStr := matches[5]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	if !isValidMetric(metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: success, failed, duration, requests)", metric)
	}

	if err := validateAggregate(metric, aggregate); err != nil {
		return Threshold{}, err
	}

	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Tag:       metrics.Tag(tag),
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

// Defaults returns the pass/fail criteria applied to every tag when none
// are configured: success ratio above 0.999, p(95) latency under 100ms and
// at least half of the expected number of requests.
func Defaults(tags []metrics.Tag, duration time.Duration, rate float64, timeUnit time.Duration) []string {
	if timeUnit <= 0 {
		timeUnit = time.Second
	}
	expected := duration.Seconds() / timeUnit.Seconds() * rate
	minCount := strconv.FormatFloat(expected/2, 'f', -1, 64)

	out := make([]string, 0, len(tags)*3)
	for _, tag := range tags {
		out = append(out,
			fmt.Sprintf("%s{%s}:rate > 0.999", MetricSuccess, tag),
			fmt.Sprintf("%s{%s}:p(95) < 100", MetricDuration, tag),
			fmt.Sprintf("%s{%s}:count >= %s", MetricRequests, tag, minCount),
		)
	}
	return out
}

func isValidMetric(metric string) bool {
	switch metric {
	case MetricSuccess, MetricFailed, MetricDuration, MetricRequests:
		return true
	}
	return false
}

func validateAggregate(metric, aggregate string) error {
	switch metric {
	case MetricDuration:
		var probe metrics.TagStats
		if _, err := probe.Trend(aggregate); err != nil {
			return fmt.Errorf("unsupported aggregate: %q for %s (supported: min, avg, med, max, p(N))", aggregate, metric)
		}
	case MetricSuccess, MetricFailed, MetricRequests:
		if aggregate != "rate" && aggregate != "count" {
			return fmt.Errorf("unsupported aggregate: %q for %s (use 'rate' or 'count')", aggregate, metric)
		}
	}
	return nil
}

func isValidOperator(operator string) bool {
	valid := []string{"<", "<=", ">", ">=", "=="}
	for _, v := range valid {
		if operator == v {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, ts metrics.TagStats) (float64, error) {
	switch t.Metric {
	case MetricDuration:
		return ts.Trend(t.Aggregate)
	case MetricSuccess:
		if t.Aggregate == "count" {
			return float64(ts.Successes), nil
		}
		return ts.Rate, nil
	case MetricFailed:
		if t.Aggregate == "count" {
			return float64(ts.Failures), nil
		}
		if ts.Total == 0 {
			return 0, nil
		}
		return float64(ts.Failures) / float64(ts.Total), nil
	case MetricRequests:
		if t.Aggregate == "count" {
			return float64(ts.Total), nil
		}
		return ts.RequestsPerSec, nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
