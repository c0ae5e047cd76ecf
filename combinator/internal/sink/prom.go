package sink

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/obsidianstack/combinator/pkg/types"
)

var chunksPublished = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "combinator_sink_chunks_published_total",
	Help: "Chunks of combined metric samples handed to publishers",
})

func init() {
	prometheus.MustRegister(chunksPublished)
}

// PromExporter exposes the latest value of every combined metric as a
// Prometheus gauge.
type PromExporter struct {
	value     *prometheus.GaugeVec
	timestamp *prometheus.GaugeVec

	mu    sync.Mutex
	known map[string]bool
}

// NewPromExporter creates the exporter's gauges and registers them with reg.
func NewPromExporter(reg prometheus.Registerer) *PromExporter {
	e := &PromExporter{
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "combinator_value",
			Help: "Latest value of a combined metric",
		}, []string{"metric"}),
		timestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "combinator_sample_timestamp_seconds",
			Help: "Timestamp of the latest sample of a combined metric",
		}, []string{"metric"}),
		known: make(map[string]bool),
	}
	reg.MustRegister(e.value, e.timestamp)
	return e
}

// Publish implements Publisher. Only the newest sample of the chunk is
// exported.
func (e *PromExporter) Publish(metric string, samples []types.Sample) {
	if len(samples) == 0 {
		return
	}
	last := samples[len(samples)-1]
	e.value.WithLabelValues(metric).Set(last.Value)
	e.timestamp.WithLabelValues(metric).Set(float64(last.Time) / 1e9)

	e.mu.Lock()
	e.known[metric] = true
	e.mu.Unlock()
}

// Retain deletes the series of every exported metric not in names.
func (e *PromExporter) Retain(names []string) {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for metric := range e.known {
		if keep[metric] {
			continue
		}
		e.value.DeleteLabelValues(metric)
		e.timestamp.DeleteLabelValues(metric)
		delete(e.known, metric)
	}
}
