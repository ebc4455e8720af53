package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// opsTotal counts store operations by backend and operation.
	opsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusd",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"backend", "op"},
	)

	// opDuration tracks operation latency by backend and operation.
	opDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "corpusd",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)
)

type opTimer struct {
	backend string
	op      string
	start   time.Time
}

func startOp(backend, op string) opTimer {
	return opTimer{backend: backend, op: op, start: time.Now()}
}

func (t opTimer) done() {
	opsTotal.WithLabelValues(t.backend, t.op).Inc()
	opDuration.WithLabelValues(t.backend, t.op).Observe(time.Since(t.start).Seconds())
}
