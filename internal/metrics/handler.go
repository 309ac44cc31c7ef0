package metrics

import (
	"fmt"
	"net/http"
	"strings"
)

// Handler exposes the metrics using a Prometheus-compatible text format.
// cacheSize reports the current cache occupancy.
func Handler(metrics *Metrics, cacheSize func() int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		builder := &strings.Builder{}
		writeMetric(builder, "f5_ref_cache_hits_total", "counter", metrics.CacheHits())
		writeMetric(builder, "f5_ref_cache_misses_total", "counter", metrics.CacheMisses())
		writeMetric(builder, "f5_ref_cache_evictions_total", "counter", metrics.CacheEvictions())
		if cacheSize != nil {
			writeMetric(builder, "f5_ref_cache_entries", "gauge", int64(cacheSize()))
		}
		writeMetric(builder, "f5_inference_jobs_waiting", "gauge", metrics.JobsWaiting())
		writeMetric(builder, "f5_inference_jobs_active", "gauge", metrics.JobsActive())
		writeMetric(builder, "f5_inference_jobs_completed_total", "counter", metrics.JobsCompleted())
		writeMetric(builder, "f5_inference_jobs_failed_total", "counter", metrics.JobsFailed())
		writeMetric(builder, "f5_streams_active", "gauge", metrics.ActiveStreams())
		writeMetric(builder, "f5_stream_chunks_total", "counter", metrics.ChunksStreamed())

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(builder.String()))
	})
}

func writeMetric(builder *strings.Builder, name, metricType string, value int64) {
	fmt.Fprintf(builder, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(builder, "%s %d\n", name, value)
}
