package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics counts pipeline outcomes that never reach execution:
// cache hits and admission rejections.
type PipelineMetrics struct {
	cacheHits  *prometheus.CounterVec
	rejections *prometheus.CounterVec
	registered prometheus.Gauge
}

// NewPipelineMetrics registers the counters on reg. A nil reg uses the
// default registerer.
func NewPipelineMetrics(reg prometheus.Registerer, namespace string) *PipelineMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "toolpipe"
	}
	factory := promauto.With(reg)
	return &PipelineMetrics{
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "cache_hits_total",
			Help:      "Invocations answered from the result cache",
		}, []string{"tool_name"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "rejections_total",
			Help:      "Invocations rejected before execution, by reason",
		}, []string{"tool_name", "reason"}),
		registered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "registered_tools",
			Help:      "Number of tools currently registered",
		}),
	}
}

// RecordCacheHit increments the cache hit counter for tool.
func (m *PipelineMetrics) RecordCacheHit(tool string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(tool).Inc()
}

// RecordRejection increments the rejection counter for tool and reason.
func (m *PipelineMetrics) RecordRejection(tool, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(tool, reason).Inc()
}

// SetRegisteredTools records the current registry size.
func (m *PipelineMetrics) SetRegisteredTools(n int) {
	if m == nil {
		return
	}
	m.registered.Set(float64(n))
}
