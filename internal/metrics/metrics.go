package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	defaultOnce     sync.Once
	defaultInstance *Metrics
)

// Metrics holds the Prometheus collectors for the gateway and nodes. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	NodeOpsTotal   *prometheus.CounterVec   // ravenfs_node_ops_total{node,op,status}
	NodeOpDuration *prometheus.HistogramVec // ravenfs_node_op_duration_seconds{op}

	ChunkHolders    prometheus.Histogram // ravenfs_chunk_holders
	DegradedChunks  prometheus.Counter   // ravenfs_degraded_chunks_total
	RejectedReplica prometheus.Counter   // ravenfs_rejected_replicas_total

	FileOpsTotal   *prometheus.CounterVec   // ravenfs_file_ops_total{op,status}
	FileOpDuration *prometheus.HistogramVec // ravenfs_file_op_duration_seconds{op}
	BytesUploaded  prometheus.Counter       // ravenfs_bytes_uploaded_total
	BytesServed    prometheus.Counter       // ravenfs_bytes_downloaded_total

	ChunkStoreOps *prometheus.CounterVec // ravenfs_chunk_store_ops_total{op,status}
}

// New registers a fresh set of collectors on registry.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	f := promauto.With(registry)

	return &Metrics{
		NodeOpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ravenfs_node_ops_total",
			Help: "Storage node calls by node, operation and outcome",
		}, []string{"node", "op", "status"}),

		NodeOpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ravenfs_node_op_duration_seconds",
			Help:    "Storage node call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),

		ChunkHolders: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ravenfs_chunk_holders",
			Help:    "Number of nodes acknowledging each replicated chunk",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		}),

		DegradedChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "ravenfs_degraded_chunks_total",
			Help: "Chunks stored on fewer nodes than configured",
		}),

		RejectedReplica: f.NewCounter(prometheus.CounterOpts{
			Name: "ravenfs_rejected_replicas_total",
			Help: "Retrieved chunk payloads discarded for a digest mismatch",
		}),

		FileOpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ravenfs_file_ops_total",
			Help: "File operations by operation and outcome",
		}, []string{"op", "status"}),

		FileOpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ravenfs_file_op_duration_seconds",
			Help:    "File operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),

		BytesUploaded: f.NewCounter(prometheus.CounterOpts{
			Name: "ravenfs_bytes_uploaded_total",
			Help: "File bytes accepted by the gateway",
		}),

		BytesServed: f.NewCounter(prometheus.CounterOpts{
			Name: "ravenfs_bytes_downloaded_total",
			Help: "File bytes returned by the gateway",
		}),

		ChunkStoreOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ravenfs_chunk_store_ops_total",
			Help: "Local chunk store operations on a storage node",
		}, []string{"op", "status"}),
	}
}

// Default returns the process-wide instance registered on the default
// registry. Metrics are only registered once.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultInstance = New(prometheus.DefaultRegisterer)
	})
	return defaultInstance
}

func (m *Metrics) ObserveNodeOp(node, op, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.NodeOpsTotal.WithLabelValues(node, op, status).Inc()
	m.NodeOpDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveReplication records how many holders a chunk ended up with.
func (m *Metrics) ObserveReplication(holders, configured int) {
	if m == nil {
		return
	}
	m.ChunkHolders.Observe(float64(holders))
	if holders < configured {
		m.DegradedChunks.Inc()
	}
}

func (m *Metrics) RecordRejectedReplica() {
	if m == nil {
		return
	}
	m.RejectedReplica.Inc()
}

func (m *Metrics) ObserveFileOp(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.FileOpsTotal.WithLabelValues(op, status).Inc()
	m.FileOpDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) RecordUpload(bytes int) {
	if m == nil {
		return
	}
	m.BytesUploaded.Add(float64(bytes))
}

func (m *Metrics) RecordDownload(bytes int) {
	if m == nil {
		return
	}
	m.BytesServed.Add(float64(bytes))
}

func (m *Metrics) RecordChunkStoreOp(op, status string) {
	if m == nil {
		return
	}
	m.ChunkStoreOps.WithLabelValues(op, status).Inc()
}
