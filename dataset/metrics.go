package dataset

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anskarl/swiftlearner/source"
)

// Metrics instruments a Loader. A nil *Metrics records nothing.
type Metrics struct {
	BytesRead      *prometheus.CounterVec
	RecordsDecoded *prometheus.CounterVec
	LoadDuration   *prometheus.HistogramVec
	CacheHits      *prometheus.CounterVec
}

// NewMetrics creates the loader metrics and registers them on registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	labels := []string{"resource"}
	metrics := &Metrics{
		BytesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mnist_source_bytes_read_total",
			Help: "Decompressed bytes read from the byte source, header included",
		}, labels),
		RecordsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mnist_records_decoded_total",
			Help: "Whole records found in a payload when it was first cached",
		}, labels),
		LoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mnist_source_load_duration_seconds",
			Help:    "Time spent opening and reading one resource",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, labels),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mnist_payload_cache_hits_total",
			Help: "Payload requests served from the decode cache",
		}, labels),
	}

	registry.MustRegister(
		metrics.BytesRead,
		metrics.RecordsDecoded,
		metrics.LoadDuration,
		metrics.CacheHits,
	)

	return metrics
}

func (m *Metrics) observeLoad(res source.Resource, bytes, records int, took time.Duration) {
	if m == nil {
		return
	}
	name := res.String()
	m.BytesRead.WithLabelValues(name).Add(float64(bytes))
	m.RecordsDecoded.WithLabelValues(name).Add(float64(records))
	m.LoadDuration.WithLabelValues(name).Observe(took.Seconds())
}

func (m *Metrics) observeHit(res source.Resource) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(res.String()).Inc()
}
