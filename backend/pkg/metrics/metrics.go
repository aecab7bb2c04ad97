package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	mutationsTotal *prometheus.CounterVec
	conflictsTotal *prometheus.CounterVec
	notifyTotal    *prometheus.CounterVec
	notifyLatency  prometheus.Histogram
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		mutationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "routine",
			Name:      "mutations_total",
			Help:      "Committed routine slot mutations by operation.",
		}, []string{"operation"}),
		conflictsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "routine",
			Name:      "conflicts_total",
			Help:      "Rejected placements by conflict type.",
		}, []string{"type"}),
		notifyTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "routine",
			Name:      "cache_notify_total",
			Help:      "Schedule-cache invalidation publishes by result.",
		}, []string{"result"}),
		notifyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "routine",
			Name:      "cache_notify_latency_seconds",
			Help:      "Latency of schedule-cache invalidation publishes.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
})

// ObserveMutation 记录一次已提交的变更（create|update|span|clear|delete|clear_cohort）
func ObserveMutation(operation string) {
	metricsSingleton().mutationsTotal.WithLabelValues(operation).Inc()
}

// ObserveConflict 记录一次被拒绝的冲突（teacher|room|section|duplicate）
func ObserveConflict(kind string) {
	metricsSingleton().conflictsTotal.WithLabelValues(kind).Inc()
}

// ObserveNotify 记录一次通知发布结果（ok|failed|dropped）及耗时
func ObserveNotify(result string, seconds float64) {
	m := metricsSingleton()
	m.notifyTotal.WithLabelValues(result).Inc()
	if seconds > 0 {
		m.notifyLatency.Observe(seconds)
	}
}

// Handler Prometheus 抓取端点
func Handler() http.Handler {
	return promhttp.Handler()
}
