// Package metrics collects request, probe and iteration statistics for a
// canaryload run.
//
// The [Collector] is shared by every VU:
//
//	collector := metrics.NewCollector()
//	collector.Start()
//
//	collector.RecordRequest(latency, err, &metrics.RequestMetadata{
//		Probe:      "/status",
//		Protocol:   "http",
//		StatusCode: "200",
//	})
//	collector.RecordIteration(iterationDuration, err)
//
//	stats := collector.Stats(elapsed)
//
// Latency percentiles come from HDR histograms (1µs to 60s, 3 significant
// figures). Run totals are recorded into sharded buckets so that hundreds of
// VUs do not contend on one lock; per-probe and iteration stats use a lock
// each.
//
// Only failed requests are counted into [Stats.StatusBuckets] and
// [ProbeStats.FailureCodes]; [ProbeStats.StatusCodes] count every response.
// Failures are also counted by kind (see [FriendlyErrorName]) in the Errors
// maps. [FailureRows] and [ErrorKinds] order both for display.
//
// Call [Collector.Snapshot] periodically to build the time series;
// [Collector.History] returns it for the dashboard's latency sparkline.
package metrics
