package core

import (
	"time"
)

// =============================================================================
// ErrorReporter: the top-level channel for unhandled task errors
// =============================================================================

// ErrorReporter receives task errors that no ErrorHandler claimed.
//
// Reports are always delivered asynchronously, after the failing flush pass
// has returned, and may arrive on any goroutine. Implementations must be safe
// for concurrent use.
type ErrorReporter interface {
	ReportUncaught(schedulerName string, err error)
}

// DefaultErrorReporter logs unhandled task errors.
type DefaultErrorReporter struct {
	Logger Logger
}

// ReportUncaught logs err at error level, including its long stack if any.
func (r *DefaultErrorReporter) ReportUncaught(schedulerName string, err error) {
	logger := r.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}

	fields := []Field{F("scheduler", schedulerName), F("error", err.Error())}
	if stack := longStack(err); stack != "" {
		fields = append(fields, F("stack", stack))
	}
	logger.Error("uncaught task error", fields...)
}

// ErrorReporterFunc adapts a function to ErrorReporter.
type ErrorReporterFunc func(schedulerName string, err error)

func (f ErrorReporterFunc) ReportUncaught(schedulerName string, err error) { f(schedulerName, err) }

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting flush metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called from inside flush passes and should be non-blocking.
type Metrics interface {
	// RecordFlush records a completed (or aborted) flush pass.
	//
	// Parameters:
	// - schedulerName: The name of the scheduler
	// - kind: QueueMacro or QueueMicro (micro passes include the priority tier)
	// - executed: Number of tasks invoked during the pass
	// - duration: Wall time of the pass
	RecordFlush(schedulerName string, kind QueueKind, executed int, duration time.Duration)

	// RecordTaskError records a failed task.
	//
	// Parameters:
	// - schedulerName: The name of the scheduler
	// - kind: The queue the task was taken from
	// - handled: Whether the task's own ErrorHandler received the error
	RecordTaskError(schedulerName string, kind QueueKind, handled bool)

	// RecordQueueDepth records the number of tasks present when a pass starts.
	RecordQueueDepth(schedulerName string, kind QueueKind, depth int)

	// RecordCompaction records a compaction and how many pending tasks were shifted.
	RecordCompaction(schedulerName string, kind QueueKind, shifted int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordFlush(schedulerName string, kind QueueKind, executed int, duration time.Duration) {
}

func (m *NilMetrics) RecordTaskError(schedulerName string, kind QueueKind, handled bool) {}

func (m *NilMetrics) RecordQueueDepth(schedulerName string, kind QueueKind, depth int) {}

func (m *NilMetrics) RecordCompaction(schedulerName string, kind QueueKind, shifted int) {}

// =============================================================================
// SchedulerConfig: Configuration for Scheduler
// =============================================================================

// SchedulerConfig holds configuration options for Scheduler.
// All hooks are optional; if not provided, default implementations will be used.
type SchedulerConfig struct {
	// Name labels logs and metrics. Defaults to "default".
	Name string

	// MicroTaskQueueCapacity is the compaction threshold shared by the normal
	// and priority micro queues. Defaults to DefaultMicroTaskQueueCapacity.
	MicroTaskQueueCapacity int

	// LongStacks enables stack chaining from the start.
	LongStacks bool

	// FallbackInterval is the retry period of the timer trigger.
	// Defaults to DefaultFallbackInterval.
	FallbackInterval time.Duration

	// MicroTrigger overrides the micro flush trigger chosen from the host.
	MicroTrigger TriggerFactory

	// MacroTrigger overrides the macro flush trigger chosen from the host.
	MacroTrigger TriggerFactory

	// ErrorReporter receives unhandled task errors. Defaults to DefaultErrorReporter.
	ErrorReporter ErrorReporter

	// Metrics records flush metrics. Defaults to NilMetrics.
	Metrics Metrics

	// Logger defaults to NewDefaultLogger.
	Logger Logger
}

// DefaultSchedulerConfig returns a config with default handlers.
func DefaultSchedulerConfig() *SchedulerConfig {
	logger := NewDefaultLogger()
	return &SchedulerConfig{
		Name:                   "default",
		MicroTaskQueueCapacity: DefaultMicroTaskQueueCapacity,
		FallbackInterval:       DefaultFallbackInterval,
		ErrorReporter:          &DefaultErrorReporter{Logger: logger},
		Metrics:                &NilMetrics{},
		Logger:                 logger,
	}
}
