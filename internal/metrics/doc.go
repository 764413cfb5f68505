// Package metrics aggregates per-request observations for a load test run.
//
// Every request issued by a scenario produces one [Observation]. The
// [Collector] groups observations by [Tag] and keeps three metrics per tag:
//
//   - a rate: the ratio of successful requests to all requests
//   - a trend: the latency distribution, backed by an HDR histogram
//   - a counter: the number of requests recorded
//
// # Collector
//
//	collector := metrics.NewCollector()
//	collector.Start()
//
//	collector.Record(metrics.Observation{
//		Tag:      "randomRecord",
//		Success:  true,
//		Duration: 30 * time.Millisecond,
//		Status:   200,
//	})
//
//	stats := collector.Snapshot()
//	p95, _ := stats.Tag("randomRecord").Trend("p(95)")
//
// # Trend statistics
//
// [TagStats.Trend] answers the named statistics used by summaries and
// thresholds: min, avg, med, max and percentiles written as p(95) or p95.
// All latency values are reported in milliseconds.
//
// # Thread Safety
//
// Record is safe for concurrent use. Each tag has its own lock so requests
// of different tags never contend with each other.
package metrics
