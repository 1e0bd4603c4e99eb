package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "txlens"

var (
	sourceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "requests_total",
		Help:      "Count of upstream data source requests.",
	}, []string{"source", "operation", "status"})
	sourceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "request_duration_seconds",
		Help:      "Duration of upstream data source requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source", "operation", "status"})
	batchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "batch_size",
		Help:      "Number of elements per batched upstream request.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"source"})
	batchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "batch_element_failures_total",
		Help:      "Count of failed elements within batched upstream requests.",
	}, []string{"source"})
)

// ObserveSource 记录一次数据源请求
func ObserveSource(source, operation string, err error, started time.Time) {
	status := statusOf(err)
	sourceRequestsTotal.WithLabelValues(source, operation, status).Inc()
	sourceRequestDuration.WithLabelValues(source, operation, status).Observe(time.Since(started).Seconds())
}

// ObserveBatch 记录一次批量请求的规模和失败元素数
func ObserveBatch(source string, size, failed int) {
	batchSize.WithLabelValues(source).Observe(float64(size))
	if failed > 0 {
		batchFailures.WithLabelValues(source).Add(float64(failed))
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
