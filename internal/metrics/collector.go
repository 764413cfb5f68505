package metrics

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Tag labels an observation for per-category aggregation.
type Tag string

// Observation is the outcome of a single request. Each observation counts as one.
type Observation struct {
	Tag      Tag
	Success  bool
	Duration time.Duration
	Status   int
	Err      error
}

const (
	lowestTrackableMicros  = 1
	highestTrackableMicros = 60_000_000
	significantFigures     = 3
)

// Collector records observations per tag in a thread-safe manner.
type Collector struct {
	mu    sync.RWMutex
	tags  map[Tag]*tagBucket
	order []Tag
	all   *tagBucket
	start time.Time
}

type tagBucket struct {
	mu        sync.Mutex
	hist      *hdrhistogram.Histogram
	successes int64
	failures  int64
	min       time.Duration
	max       time.Duration
	sum       time.Duration
	statuses  map[string]int
	errors    map[string]int
}

func newTagBucket() *tagBucket {
	return &tagBucket{
		hist:     hdrhistogram.New(lowestTrackableMicros, highestTrackableMicros, significantFigures),
		statuses: make(map[string]int),
		errors:   make(map[string]int),
	}
}

// NewCollector returns an empty collector. Tags passed here are reported
// even when no observation for them was ever recorded.
func NewCollector(tags ...Tag) *Collector {
	c := &Collector{
		tags:  make(map[Tag]*tagBucket),
		all:   newTagBucket(),
		start: time.Now(),
	}
	for _, tag := range tags {
		c.bucket(tag)
	}
	return c
}

// Start marks the beginning of the measured run for rate calculations.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

// Record adds one observation to the rate, trend and counter of its tag.
func (c *Collector) Record(obs Observation) {
	c.bucket(obs.Tag).record(obs)
	c.all.record(obs)
}

func (c *Collector) bucket(tag Tag) *tagBucket {
	c.mu.RLock()
	b, ok := c.tags[tag]
	c.mu.RUnlock()
	if ok {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok = c.tags[tag]; ok {
		return b
	}
	b = newTagBucket()
	c.tags[tag] = b
	c.order = append(c.order, tag)
	return b
}

func (b *tagBucket) record(obs Observation) {
	b.mu.Lock()
	defer b.mu.Unlock()

	latency := obs.Duration
	if latency < 0 {
		latency = 0
	}
	us := latency.Microseconds()
	if us < b.hist.LowestTrackableValue() {
		us = b.hist.LowestTrackableValue()
	}
	if us > b.hist.HighestTrackableValue() {
		us = b.hist.HighestTrackableValue()
	}
	_ = b.hist.RecordValue(us)

	b.sum += latency
	if b.successes+b.failures == 0 || latency < b.min {
		b.min = latency
	}
	if latency > b.max {
		b.max = latency
	}

	if obs.Status > 0 {
		b.statuses[strconv.Itoa(obs.Status)]++
	}
	if obs.Success {
		b.successes++
		return
	}
	b.failures++
	b.errors[ErrorLabel(obs.Err, obs.Status)]++
}

func (b *tagBucket) snapshot(tag Tag, elapsed time.Duration) TagStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := b.successes + b.failures
	ts := TagStats{
		Tag:       tag,
		Total:     total,
		Successes: b.successes,
		Failures:  b.failures,
		hist:      hdrhistogram.Import(b.hist.Export()),
		min:       b.min,
		max:       b.max,
	}
	if total > 0 {
		ts.Rate = float64(b.successes) / float64(total)
		ts.avg = time.Duration(int64(b.sum) / total)
	}
	if elapsed > 0 && total > 0 {
		ts.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	ts.MinMs = toMillis(ts.min)
	ts.MaxMs = toMillis(ts.max)
	ts.AvgMs = toMillis(ts.avg)
	ts.MedMs = ts.Percentile(50)
	ts.Percentiles = make(map[string]float64, len(reportedPercentiles))
	for _, p := range reportedPercentiles {
		ts.Percentiles[percentileName(p)] = ts.Percentile(p)
	}

	if len(b.statuses) > 0 {
		ts.StatusCodes = make(map[string]int, len(b.statuses))
		for k, v := range b.statuses {
			ts.StatusCodes[k] = v
		}
	}
	if len(b.errors) > 0 {
		ts.Errors = make(map[string]int, len(b.errors))
		for k, v := range b.errors {
			ts.Errors[k] = v
		}
	}
	return ts
}

// Snapshot computes aggregated statistics for every tag seen so far.
func (c *Collector) Snapshot() Stats {
	c.mu.RLock()
	start := c.start
	order := append([]Tag(nil), c.order...)
	buckets := make([]*tagBucket, len(order))
	for i, tag := range order {
		buckets[i] = c.tags[tag]
	}
	c.mu.RUnlock()

	elapsed := time.Since(start)
	stats := Stats{
		Duration:   elapsed,
		DurationMs: toMillis(elapsed),
		Tags:       make([]TagStats, len(order)),
	}
	for i, b := range buckets {
		stats.Tags[i] = b.snapshot(order[i], elapsed)
	}
	stats.Overall = c.all.snapshot("", elapsed)
	return stats
}

// StatusBuckets returns per-tag status code counts keyed by tag name.
func (s Stats) StatusBuckets() map[string]map[string]int {
	buckets := make(map[string]map[string]int)
	for _, ts := range s.Tags {
		if len(ts.StatusCodes) == 0 {
			continue
		}
		buckets[string(ts.Tag)] = ts.StatusCodes
	}
	return buckets
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func percentileName(p float64) string {
	return fmt.Sprintf("p(%s)", strconv.FormatFloat(p, 'f', -1, 64))
}
