// Package metrics exposes Prometheus instrumentation for the chunk
// storage subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "chunkstore"
	subsystem = "chunk"
)

var (
	// DataBytesWritten tracks cumulative committed data bytes per chunk
	// number, incremented on every successful TryAppend.
	DataBytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "data_bytes_written_total",
		Help:      "Cumulative data bytes committed to a chunk's data region.",
	}, []string{"chunk_number"})

	// MirroredChunks counts chunks currently holding an in-memory mirror.
	MirroredChunks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "mirrored_chunks",
		Help:      "Number of chunks currently cached in memory.",
	})

	// CacheAdmissionDenied counts TryCacheInMemory calls refused due to
	// the memory budget (message_chunk_cache_max_percent).
	CacheAdmissionDenied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "cache_admission_denied_total",
		Help:      "TryCacheInMemory calls refused because the memory budget was exceeded.",
	})

	// MemoryUsedPercent mirrors the host's current used-memory percentage
	// observed during the last admission check.
	MemoryUsedPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "memory_used_percent",
		Help:      "Host memory-used percentage observed at the last cache admission check.",
	})
)

// Setter is implemented by any single-value Prometheus metric; kept
// narrow so call sites can be unit tested with a fake.
type Setter interface {
	Set(m float64)
}
