package limits

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/treegate/pkg/limits"

// Metrics provides OpenTelemetry metrics for the limiter. A nil *Metrics is
// valid and records nothing, so wiring metrics stays optional.
type Metrics struct {
	filesProcessed    metric.Int64Counter
	bytesProcessed    metric.Int64Counter
	admissionRejected metric.Int64Counter
	activeOperations  metric.Int64UpDownCounter
	operationDuration metric.Float64Histogram
	heapUsed          metric.Int64Gauge
}

// NewMetrics creates a Metrics instance with the provided meter. If meter is
// nil, the global meter provider is used.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	m := &Metrics{}
	var err error

	m.filesProcessed, err = meter.Int64Counter(
		"treegate.limits.files_processed.total",
		metric.WithDescription("Total files recorded as processed"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	m.bytesProcessed, err = meter.Int64Counter(
		"treegate.limits.bytes_processed.total",
		metric.WithDescription("Total bytes recorded as processed"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	m.admissionRejected, err = meter.Int64Counter(
		"treegate.limits.admission_rejected.total",
		metric.WithDescription("Operations rejected at the concurrency ceiling"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	m.activeOperations, err = meter.Int64UpDownCounter(
		"treegate.limits.operations.active",
		metric.WithDescription("Currently admitted operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	m.operationDuration, err = meter.Float64Histogram(
		"treegate.limits.operation.duration.seconds",
		metric.WithDescription("Wall time of admitted operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.heapUsed, err = meter.Int64Gauge(
		"treegate.limits.heap_used.bytes",
		metric.WithDescription("Heap usage observed by the background sampler"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) recordOperationStarted() {
	if m == nil {
		return
	}
	m.activeOperations.Add(context.Background(), 1)
}

func (m *Metrics) recordOperationEnded(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.activeOperations.Add(context.Background(), -1)
	m.operationDuration.Record(context.Background(), elapsed.Seconds())
}

func (m *Metrics) recordAdmissionRejected() {
	if m == nil {
		return
	}
	m.admissionRejected.Add(context.Background(), 1)
}

func (m *Metrics) recordFileProcessed(size int64) {
	if m == nil {
		return
	}
	m.filesProcessed.Add(context.Background(), 1)
	m.bytesProcessed.Add(context.Background(), size)
}

func (m *Metrics) recordHeapSample(heap uint64) {
	if m == nil {
		return
	}
	m.heapUsed.Record(context.Background(), int64(heap)) //nolint:gosec // heap fits int64
}
