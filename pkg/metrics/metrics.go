// Package metrics exposes Prometheus metrics for memgate.
//
// All collectors are registered with the default registry on import and
// labeled by connector name. They are always recorded; whether they are
// exported depends on Serve being started.
//
//	metrics.BytesRead.WithLabelValues("coredump").Add(float64(n))
//
//	timer := metrics.NewTimer()
//	inst, err := inv.Create(ctx, "coredump", args)
//	metrics.CreateLatency.WithLabelValues("coredump").Observe(timer.Stop().Seconds())
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

const namespace = "memgate"

var (
	// BytesRead counts bytes successfully read. Labels: connector.
	BytesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Total bytes read from physical memory",
		},
		[]string{"connector"},
	)

	// BytesWritten counts bytes successfully written. Labels: connector.
	BytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Total bytes written to physical memory",
		},
		[]string{"connector"},
	)

	// BatchSize tracks requests per dispatched batch. Labels: connector, op.
	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_requests",
			Help:      "Number of requests per dispatched batch",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"connector", "op"},
	)

	// RequestErrors counts failed requests. Labels: connector, op, kind.
	RequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_errors_total",
			Help:      "Failed memory requests by error kind",
		},
		[]string{"connector", "op", "kind"},
	)

	// LiveInstances is the number of unreleased connector instances.
	LiveInstances = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_instances",
			Help:      "Connector instances not yet released",
		},
		[]string{"connector"},
	)

	// CreateLatency tracks factory latency in seconds. Labels: connector.
	CreateLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "create_duration_seconds",
			Help:      "Time spent constructing connector instances",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
		},
		[]string{"connector"},
	)

	// PluginScans counts scanned plugin files. Labels: result (loaded/skipped).
	PluginScans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_scan_total",
			Help:      "Plugin files examined during inventory scans",
		},
		[]string{"result"},
	)

	// CacheLookups counts page cache lookups. Labels: result (hit/miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Page cache lookups",
		},
		[]string{"result"},
	)

	// Throughput is the last measured transfer rate in bytes per second.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_bytes_per_second",
			Help:      "Current transfer throughput in bytes per second",
		},
		[]string{"connector", "op"},
	)
)

// RecordError counts err against connector and op.
func RecordError(connector, op string, err error) {
	if err == nil {
		return
	}
	RequestErrors.WithLabelValues(connector, op, string(memerrors.TypeOf(err))).Inc()
}

// Timer measures an operation's duration.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the time elapsed since NewTimer. It may be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker measures bytes per second between resets. Safe for
// concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	connector string
	op        string
}

// NewThroughputTracker creates a tracker reporting under connector and op.
func NewThroughputTracker(connector, op string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		connector: connector,
		op:        op,
	}
}

// Add records n transferred bytes.
func (t *ThroughputTracker) Add(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// Total returns the bytes recorded since the last reset.
func (t *ThroughputTracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// GetAndReset returns the rate since the last reset, publishes it and starts
// a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	rate := float64(t.count) / elapsed
	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.connector, t.op).Set(rate)
	return rate
}
