package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "resolutions_total",
		Help:      "Count of resolutions by kind and outcome.",
	}, []string{"kind", "outcome"})
	resolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "resolution_duration_seconds",
		Help:      "Duration of transaction and account resolutions.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind", "outcome"})
	enrichmentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "enrichment_failures_total",
		Help:      "Count of failed enrichment branches.",
	}, []string{"branch", "mode"})
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "errors",
		Name:      "total",
		Help:      "Count of handled errors by type.",
	}, []string{"type", "component"})
)

// ObserveResolution 记录一次解析，outcome 为状态（mined/pending-public/...）或 error
func ObserveResolution(kind, outcome string, started time.Time) {
	if outcome == "" {
		outcome = "unknown"
	}
	resolutionsTotal.WithLabelValues(kind, outcome).Inc()
	resolutionDuration.WithLabelValues(kind, outcome).Observe(time.Since(started).Seconds())
}

// IncEnrichmentFailure 记录补充数据分支失败
func IncEnrichmentFailure(branch, mode string) {
	enrichmentFailures.WithLabelValues(branch, mode).Inc()
}

// IncError 记录经错误处理器处理的错误
func IncError(errorType, component string) {
	if component == "" {
		component = "unknown"
	}
	errorsTotal.WithLabelValues(errorType, component).Inc()
}
