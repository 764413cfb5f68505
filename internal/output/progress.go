package output

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/permlug/digestload/internal/metrics"
)

// Snapshotter provides point-in-time statistics. *metrics.Collector satisfies it.
type Snapshotter interface {
	Snapshot() metrics.Stats
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   Snapshotter
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(source Snapshotter, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		source:   source,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+progressLine(p.source.Snapshot()))
		case <-p.done:
			return
		}
	}
}

func progressLine(stats metrics.Stats) string {
	var b strings.Builder
	o := stats.Overall
	fmt.Fprintf(&b, "Requests: %d | Successes: %d | Failures: %d | RPS: %.1f",
		o.Total, o.Successes, o.Failures, o.RequestsPerSec)
	for _, ts := range stats.Tags {
		fmt.Fprintf(&b, " | %s: %d (p95 %.1fms)", ts.Tag, ts.Total, ts.Percentile(95))
	}
	return b.String()
}
