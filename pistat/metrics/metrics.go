// Package metrics tracks transfer operations both as in-process counters and
// as Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation names used as the "op" label.
const (
	OpCapture    = "capture"
	OpSeal       = "seal"
	OpSend       = "send"
	OpReceive    = "receive"
	OpAccumulate = "accumulate"
	OpArchive    = "archive"
	OpSeed       = "seed"
)

// BaseMetrics provides common fields used across different operations
type BaseMetrics struct {
	TotalOperations int64
	SuccessfulOps   int64
	FailedOps       int64
	LastOperation   time.Time
	TotalTime       time.Duration
	Mu              sync.RWMutex
}

// UpdateBaseMetrics records one finished operation that began at start.
func (bm *BaseMetrics) UpdateBaseMetrics(start time.Time, success bool) {
	bm.Mu.Lock()
	defer bm.Mu.Unlock()

	bm.TotalOperations++
	if success {
		bm.SuccessfulOps++
	} else {
		bm.FailedOps++
	}
	bm.LastOperation = time.Now()
	bm.TotalTime += bm.LastOperation.Sub(start)
}

// GetBaseMetrics returns the common metrics as a map
func (bm *BaseMetrics) GetBaseMetrics() map[string]interface{} {
	bm.Mu.RLock()
	defer bm.Mu.RUnlock()

	var avg time.Duration
	if bm.TotalOperations > 0 {
		avg = bm.TotalTime / time.Duration(bm.TotalOperations)
	}
	return map[string]interface{}{
		"total_operations": bm.TotalOperations,
		"successful_ops":   bm.SuccessfulOps,
		"failed_ops":       bm.FailedOps,
		"last_operation":   bm.LastOperation,
		"average_time":     avg,
	}
}

// TransferMetrics is the metrics sink of a warm-start service.
type TransferMetrics struct {
	mu  sync.Mutex
	ops map[string]*BaseMetrics

	gatherer   prometheus.Gatherer
	opTotal    *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	payload    prometheus.Histogram
	duplicates prometheus.Counter
	entries    *prometheus.CounterVec
}

// NewTransferMetrics registers the collectors on a fresh registry under
// namespace. A private registry keeps several services in one process apart.
func NewTransferMetrics(namespace string) *TransferMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &TransferMetrics{
		ops:      make(map[string]*BaseMetrics),
		gatherer: reg,
		opTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "operations_total",
			Help:      "Transfer operations by name and result.",
		}, []string{"op", "result"}),
		opDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "operation_duration_seconds",
			Help:      "Duration of transfer operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"op"}),
		payload: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "envelope_bytes",
			Help:      "Size of sealed envelopes sent or received.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "duplicates_total",
			Help:      "Redelivered envelopes skipped by the ledger.",
		}),
		entries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "entries_accumulated_total",
			Help:      "Variable statistics accumulated, by direction.",
		}, []string{"direction"}),
	}
}

// Observe records one operation that began at start and ended with err.
func (m *TransferMetrics) Observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.opTotal.WithLabelValues(op, result).Inc()
	m.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.base(op).UpdateBaseMetrics(start, err == nil)
}

func (m *TransferMetrics) ObservePayload(n int) { m.payload.Observe(float64(n)) }

func (m *TransferMetrics) Duplicate() { m.duplicates.Inc() }

func (m *TransferMetrics) Accumulated(direction string, n int) {
	m.entries.WithLabelValues(direction).Add(float64(n))
}

func (m *TransferMetrics) base(op string) *BaseMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	bm, ok := m.ops[op]
	if !ok {
		bm = &BaseMetrics{}
		m.ops[op] = bm
	}
	return bm
}

// GetMetrics returns the in-process counters keyed by operation.
func (m *TransferMetrics) GetMetrics() map[string]interface{} {
	m.mu.Lock()
	ops := make(map[string]*BaseMetrics, len(m.ops))
	for k, v := range m.ops {
		ops[k] = v
	}
	m.mu.Unlock()

	out := make(map[string]interface{}, len(ops))
	for op, bm := range ops {
		out[op] = bm.GetBaseMetrics()
	}
	return out
}

// Handler serves the collectors in Prometheus exposition format.
func (m *TransferMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry.
func (m *TransferMetrics) Gatherer() prometheus.Gatherer { return m.gatherer }
