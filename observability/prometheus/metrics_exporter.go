package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-task-queue/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	// DurationBuckets are the flush duration histogram buckets in seconds.
	DurationBuckets []float64
}

// defaultFlushBuckets suit passes that mostly finish well under a millisecond.
var defaultFlushBuckets = prom.ExponentialBuckets(0.00001, 4, 10)

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	flushDurationSeconds *prom.HistogramVec
	tasksExecutedTotal   *prom.CounterVec
	taskErrorsTotal      *prom.CounterVec
	queueDepth           *prom.GaugeVec
	compactionsTotal     *prom.CounterVec
	compactionShifted    *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "taskqueue"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = defaultFlushBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "flush_duration_seconds",
		Help:      "Flush pass duration in seconds.",
		Buckets:   buckets,
	}, []string{"scheduler", "queue"})
	executedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_executed_total",
		Help:      "Total number of tasks invoked by flush passes.",
	}, []string{"scheduler", "queue"})
	errorsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_errors_total",
		Help:      "Total number of failed tasks.",
	}, []string{"scheduler", "queue", "handled"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Queue depth at the start of the last flush pass.",
	}, []string{"scheduler", "queue"})
	compactionsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "queue_compactions_total",
		Help:      "Total number of micro queue compactions.",
	}, []string{"scheduler", "queue"})
	shiftedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "queue_compaction_shifted_total",
		Help:      "Total number of pending tasks moved by compactions.",
	}, []string{"scheduler", "queue"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if executedVec, err = registerCollector(reg, executedVec); err != nil {
		return nil, err
	}
	if errorsVec, err = registerCollector(reg, errorsVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if compactionsVec, err = registerCollector(reg, compactionsVec); err != nil {
		return nil, err
	}
	if shiftedVec, err = registerCollector(reg, shiftedVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		flushDurationSeconds: durationVec,
		tasksExecutedTotal:   executedVec,
		taskErrorsTotal:      errorsVec,
		queueDepth:           queueDepthVec,
		compactionsTotal:     compactionsVec,
		compactionShifted:    shiftedVec,
	}, nil
}

// RecordFlush records a flush pass duration and the tasks it ran.
func (m *MetricsExporter) RecordFlush(schedulerName string, kind core.QueueKind, executed int, duration time.Duration) {
	if m == nil {
		return
	}
	name := normalizeLabel(schedulerName, "unknown")
	m.flushDurationSeconds.WithLabelValues(name, kind.String()).Observe(duration.Seconds())
	if executed > 0 {
		m.tasksExecutedTotal.WithLabelValues(name, kind.String()).Add(float64(executed))
	}
}

// RecordTaskError records failed tasks.
func (m *MetricsExporter) RecordTaskError(schedulerName string, kind core.QueueKind, handled bool) {
	if m == nil {
		return
	}
	m.taskErrorsTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown"), kind.String(), boolLabel(handled)).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(schedulerName string, kind core.QueueKind, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(schedulerName, "unknown"), kind.String()).Set(float64(depth))
}

// RecordCompaction records queue compactions.
func (m *MetricsExporter) RecordCompaction(schedulerName string, kind core.QueueKind, shifted int) {
	if m == nil {
		return
	}
	name := normalizeLabel(schedulerName, "unknown")
	m.compactionsTotal.WithLabelValues(name, kind.String()).Inc()
	m.compactionShifted.WithLabelValues(name, kind.String()).Add(float64(shifted))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
