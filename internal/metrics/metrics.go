// Package metrics txlog 的 prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace 所有指标的命名空间
const Namespace = "txlog"

func newCounter(name, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: Namespace, Name: name, Help: help}, labels)
}

var (
	transactionsTotal = newCounter("transactions_total", "Transactions logged", []string{"source"})
	decodeErrorsTotal = newCounter("decode_errors_total", "Transactions that failed to decode", []string{"source"})
	droppedTotal      = newCounter("dropped_total", "Packets dropped because the queue was full", []string{"source"})
	sinkErrorsTotal   = newCounter("sink_errors_total", "Failed downstream writes", []string{"sink"})

	feeLamports = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "fee_lamports",
		Help:      "Estimated transaction fee in lamports",
		Buckets:   prometheus.ExponentialBuckets(5000, 2, 16),
	}, []string{"source"})
)

// ReportTx 记录一笔已输出 txlog 的交易
func ReportTx(source string, fee uint64) {
	transactionsTotal.WithLabelValues(source).Inc()
	feeLamports.WithLabelValues(source).Observe(float64(fee))
}

func ReportDecodeError(source string) {
	decodeErrorsTotal.WithLabelValues(source).Inc()
}

func ReportDropped(source string) {
	droppedTotal.WithLabelValues(source).Inc()
}

func ReportSinkError(sink string) {
	sinkErrorsTotal.WithLabelValues(sink).Inc()
}
