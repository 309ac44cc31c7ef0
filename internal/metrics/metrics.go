// Package metrics holds process-wide counters for the inference server.
package metrics

import "sync/atomic"

// Metrics exposes counters and gauges for cache, worker and stream activity.
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	cacheEvictions atomic.Int64

	jobsWaiting   atomic.Int64
	jobsActive    atomic.Int64
	jobsCompleted atomic.Int64
	jobsFailed    atomic.Int64

	activeStreams  atomic.Int64
	chunksStreamed atomic.Int64
}

// New constructs an empty Metrics collection.
func New() *Metrics {
	return &Metrics{}
}

// IncCacheHit counts a reference cache hit.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Add(1)
}

// IncCacheMiss counts a reference cache miss.
func (m *Metrics) IncCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Add(1)
}

// IncCacheEviction counts an evicted reference.
func (m *Metrics) IncCacheEviction() {
	if m == nil {
		return
	}
	m.cacheEvictions.Add(1)
}

// CacheHits reports the total number of cache hits.
func (m *Metrics) CacheHits() int64 {
	if m == nil {
		return 0
	}
	return m.cacheHits.Load()
}

// CacheMisses reports the total number of cache misses.
func (m *Metrics) CacheMisses() int64 {
	if m == nil {
		return 0
	}
	return m.cacheMisses.Load()
}

// CacheEvictions reports the total number of evictions.
func (m *Metrics) CacheEvictions() int64 {
	if m == nil {
		return 0
	}
	return m.cacheEvictions.Load()
}

// JobWaiting moves the waiting gauge by delta.
func (m *Metrics) JobWaiting(delta int64) {
	if m == nil {
		return
	}
	m.jobsWaiting.Add(delta)
}

// JobsWaiting reports how many callers wait for the inference worker.
func (m *Metrics) JobsWaiting() int64 {
	if m == nil {
		return 0
	}
	return m.jobsWaiting.Load()
}

// JobStarted marks a job as running on the inference worker.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsActive.Add(1)
}

// JobFinished marks a running job as done.
func (m *Metrics) JobFinished(err error) {
	if m == nil {
		return
	}
	m.jobsActive.Add(-1)
	if err != nil {
		m.jobsFailed.Add(1)
		return
	}
	m.jobsCompleted.Add(1)
}

// JobsActive reports the number of running jobs.
func (m *Metrics) JobsActive() int64 {
	if m == nil {
		return 0
	}
	return m.jobsActive.Load()
}

// JobsCompleted reports the number of successful jobs.
func (m *Metrics) JobsCompleted() int64 {
	if m == nil {
		return 0
	}
	return m.jobsCompleted.Load()
}

// JobsFailed reports the number of failed jobs.
func (m *Metrics) JobsFailed() int64 {
	if m == nil {
		return 0
	}
	return m.jobsFailed.Load()
}

// IncActiveStreams increments the active stream gauge.
func (m *Metrics) IncActiveStreams() {
	if m == nil {
		return
	}
	m.activeStreams.Add(1)
}

// DecActiveStreams decrements the active stream gauge.
func (m *Metrics) DecActiveStreams() {
	if m == nil {
		return
	}
	m.activeStreams.Add(-1)
}

// ActiveStreams reports the number of currently active streams.
func (m *Metrics) ActiveStreams() int64 {
	if m == nil {
		return 0
	}
	return m.activeStreams.Load()
}

// IncChunksStreamed counts an audio chunk produced for a stream.
func (m *Metrics) IncChunksStreamed() {
	if m == nil {
		return
	}
	m.chunksStreamed.Add(1)
}

// ChunksStreamed reports the total number of streamed chunks.
func (m *Metrics) ChunksStreamed() int64 {
	if m == nil {
		return 0
	}
	return m.chunksStreamed.Load()
}
