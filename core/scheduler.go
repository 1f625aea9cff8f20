package core

import (
	"math"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// Scheduler is a two-tier task queue. Micro tasks run before the host loop
// takes its next turn; macro tasks run on a later turn. Micro tasks come in
// two priorities, and the high priority tier is always drained first.
//
// A Scheduler is confined to one goroutine: the goroutine of its Host loop,
// or the caller's goroutine when it has no host. Only Stats may be called
// from elsewhere.
type Scheduler struct {
	name string

	microTaskQueue         *taskQueue
	priorityMicroTaskQueue *taskQueue
	taskQueue              *taskQueue
	microTaskQueueCapacity int

	flushing     atomic.Bool
	longStacks   atomic.Bool
	currentStack string

	requestFlushMicroTaskQueue RequestFlush
	requestFlushTaskQueue      RequestFlush

	host          Host
	errorReporter ErrorReporter
	metrics       Metrics
	logger        Logger

	counters schedulerCounters
}

type schedulerCounters struct {
	microPending    atomic.Int64
	priorityPending atomic.Int64
	macroPending    atomic.Int64
	microFlushes    atomic.Int64
	macroFlushes    atomic.Int64
	executed        atomic.Int64
	errors          atomic.Int64
	dropped         atomic.Int64
	compactions     atomic.Int64
	lastFlushAt     atomic.Int64
}

// NewScheduler creates a Scheduler living on host. The flush triggers are
// chosen once here: a host that implements ImmediateHost gets the immediate
// trigger for micro tasks, anything else the timer fallback. A nil host
// means flushes only happen when the owner calls them.
func NewScheduler(host Host, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}

	s := &Scheduler{
		name:                   config.Name,
		microTaskQueue:         newTaskQueue(),
		priorityMicroTaskQueue: newTaskQueue(),
		taskQueue:              newTaskQueue(),
		microTaskQueueCapacity: config.MicroTaskQueueCapacity,
		host:                   host,
		errorReporter:          config.ErrorReporter,
		metrics:                config.Metrics,
		logger:                 config.Logger,
	}

	// Use defaults if not provided
	if s.name == "" {
		s.name = "default"
	}
	if s.microTaskQueueCapacity <= 0 {
		s.microTaskQueueCapacity = DefaultMicroTaskQueueCapacity
	}
	if s.logger == nil {
		s.logger = NewDefaultLogger()
	}
	if s.errorReporter == nil {
		s.errorReporter = &DefaultErrorReporter{Logger: s.logger}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	s.longStacks.Store(config.LongStacks)

	micro, macro := selectTriggers(host, config, s.logger)
	s.requestFlushMicroTaskQueue = micro(s.FlushMicroTaskQueue)
	s.requestFlushTaskQueue = macro(s.FlushTaskQueue)

	return s
}

// Name returns the name of the scheduler
func (s *Scheduler) Name() string {
	return s.name
}

// Flushing reports whether a flush pass is executing. Tasks may read it.
func (s *Scheduler) Flushing() bool {
	return s.flushing.Load()
}

// LongStacks reports whether enqueue stacks are captured and chained.
func (s *Scheduler) LongStacks() bool {
	return s.longStacks.Load()
}

// SetLongStacks enables or disables long stack traces for tasks enqueued
// from now on.
func (s *Scheduler) SetLongStacks(enabled bool) {
	s.longStacks.Store(enabled)
}

// MicroTaskQueueCapacity returns the compaction threshold of the micro queues.
func (s *Scheduler) MicroTaskQueueCapacity() int {
	return s.microTaskQueueCapacity
}

// =============================================================================
// Enqueue
// =============================================================================

// EnqueueMicroTask queues task for execution before the host's next turn.
// Pass PriorityHigh to queue it ahead of every normal micro task.
//
// The task never runs before EnqueueMicroTask returns.
func (s *Scheduler) EnqueueMicroTask(task Task, priority ...Priority) {
	highPriority := len(priority) > 0 && priority[0] == PriorityHigh

	if s.microTaskQueue.isEmpty() && s.priorityMicroTaskQueue.isEmpty() {
		s.requestFlushMicroTaskQueue()
	}

	qt := newQueuedTask(task)
	if s.longStacks.Load() {
		if highPriority {
			qt.setStack(s.prepareQueueStack(PriorityMicroTaskStackSeparator))
		} else {
			qt.setStack(s.prepareQueueStack(MicroTaskStackSeparator))
		}
	}

	if highPriority {
		s.priorityMicroTaskQueue.push(qt)
	} else {
		s.microTaskQueue.push(qt)
	}
	s.refreshPending()
}

// EnqueueTask queues task for a later turn of the host loop.
//
// The task never runs before EnqueueTask returns.
func (s *Scheduler) EnqueueTask(task Task) {
	if s.taskQueue.isEmpty() {
		s.requestFlushTaskQueue()
	}

	qt := newQueuedTask(task)
	if s.longStacks.Load() {
		qt.setStack(s.prepareQueueStack(TaskStackSeparator))
	}

	s.taskQueue.push(qt)
	s.refreshPending()
}

// =============================================================================
// Flush
// =============================================================================

// FlushTaskQueue runs the macro tasks queued so far. Tasks they enqueue land
// in a fresh queue and wait for the next flush.
func (s *Scheduler) FlushTaskQueue() {
	queue := s.taskQueue
	s.taskQueue = newTaskQueue()

	s.counters.macroFlushes.Add(1)
	s.flushQueue(QueueMacro, queue, nil, math.MaxInt)
	s.refreshPending()
}

// FlushMicroTaskQueue runs micro tasks until both micro queues are empty,
// including the ones enqueued while flushing. If a task fails, the tasks it
// did not get to are discarded.
func (s *Scheduler) FlushMicroTaskQueue() {
	s.counters.microFlushes.Add(1)
	if aborted := s.flushQueue(QueueMicro, s.microTaskQueue, s.priorityMicroTaskQueue, s.microTaskQueueCapacity); aborted {
		s.priorityMicroTaskQueue.truncate()
	}
	s.microTaskQueue.truncate()
	s.refreshPending()
}

// flushRun tracks one flush pass.
type flushRun struct {
	primary  QueueKind
	kind     QueueKind
	task     *queuedTask
	index    int
	pIndex   int
	executed int
}

// flushQueue drains queue, giving priorityQueue (if any) precedence at every
// step, and reports whether the pass was aborted by a failing task.
func (s *Scheduler) flushQueue(kind QueueKind, queue, priorityQueue *taskQueue, capacity int) bool {
	run := &flushRun{primary: kind, kind: kind}
	started := time.Now()

	s.metrics.RecordQueueDepth(s.name, kind, queue.len())
	if priorityQueue != nil {
		s.metrics.RecordQueueDepth(s.name, QueuePriorityMicro, priorityQueue.len())
	}

	s.flushing.Store(true)
	defer func() {
		s.flushing.Store(false)
		s.currentStack = ""
		s.counters.lastFlushAt.Store(time.Now().UnixNano())
		s.metrics.RecordFlush(s.name, kind, run.executed, time.Since(started))
	}()

	err := s.drain(run, queue, priorityQueue, capacity)
	if err == nil {
		return false
	}

	dropped := queue.len() - run.index
	if run.kind == kind {
		dropped--
	}
	if priorityQueue != nil {
		dropped += priorityQueue.len() - run.pIndex
		if run.kind == QueuePriorityMicro {
			dropped--
		}
	}
	s.counters.dropped.Add(int64(dropped))
	s.logger.Warn("flush pass aborted by task error",
		F("scheduler", s.name),
		F("queue", run.kind.String()),
		F("dropped", dropped),
		F("error", err),
	)

	s.handleTaskError(run.kind, run.task, err)
	return true
}

// drain is the flush loop. One recovery boundary covers the whole loop, so
// the first failing task ends the pass.
func (s *Scheduler) drain(run *flushRun, queue, priorityQueue *taskQueue, capacity int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r, debug.Stack())
		}
	}()

	// The priority queue is checked before the exhaustion test so it also
	// runs when the primary queue is empty and after its last task.
	for {
		if priorityQueue != nil && !priorityQueue.isEmpty() {
			run.kind = QueuePriorityMicro
			run.pIndex = 0
			for run.pIndex < priorityQueue.len() {
				run.task = priorityQueue.at(run.pIndex)
				if err := s.runTask(run); err != nil {
					return err
				}
				run.pIndex++

				if run.pIndex > capacity {
					s.compact(QueuePriorityMicro, priorityQueue, run.pIndex)
					run.pIndex = 0
				}
			}
			priorityQueue.truncate()
			run.pIndex = 0
		}

		run.kind = run.primary
		if run.index >= queue.len() {
			return nil
		}

		run.task = queue.at(run.index)
		if err := s.runTask(run); err != nil {
			return err
		}
		run.index++

		// Executed tasks are not shifted off one at a time; instead the
		// unread suffix is moved to the front once every capacity tasks.
		if run.index > capacity {
			s.compact(run.primary, queue, run.index)
			run.index = 0
		}
	}
}

func (s *Scheduler) runTask(run *flushRun) error {
	if s.longStacks.Load() {
		s.currentStack = run.task.stack
	}
	run.executed++
	s.counters.executed.Add(1)
	return run.task.call()
}

func (s *Scheduler) compact(kind QueueKind, queue *taskQueue, executed int) {
	shifted := queue.compact(executed)
	s.counters.compactions.Add(1)
	s.metrics.RecordCompaction(s.name, kind, shifted)
	s.logger.Debug("queue compacted",
		F("scheduler", s.name),
		F("queue", kind.String()),
		F("executed", executed),
		F("shifted", shifted),
	)
}

// =============================================================================
// Errors
// =============================================================================

func (s *Scheduler) handleTaskError(kind QueueKind, task *queuedTask, err error) {
	if s.longStacks.Load() && task.stack != "" {
		err = withLongStack(err, task.stack)
	}
	s.counters.errors.Add(1)

	if task.onError != nil {
		s.metrics.RecordTaskError(s.name, kind, true)
		s.callErrorHandler(task.onError, err)
		return
	}

	s.metrics.RecordTaskError(s.name, kind, false)
	s.reportUncaught(err)
}

// callErrorHandler runs a task's own handler; if the handler panics, the
// panic is escalated like an unhandled task error.
func (s *Scheduler) callErrorHandler(h ErrorHandler, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.reportUncaught(newPanicError(r, debug.Stack()))
		}
	}()
	h.OnError(err)
}

// reportUncaught hands err to the ErrorReporter on a later host turn, never
// on the flushing call stack.
func (s *Scheduler) reportUncaught(err error) {
	report := func() {
		s.errorReporter.ReportUncaught(s.name, err)
	}
	if s.host != nil && s.host.Post(report) {
		return
	}
	go report()
}

// =============================================================================
// Stats
// =============================================================================

func (s *Scheduler) refreshPending() {
	s.counters.microPending.Store(int64(s.microTaskQueue.len()))
	s.counters.priorityPending.Store(int64(s.priorityMicroTaskQueue.len()))
	s.counters.macroPending.Store(int64(s.taskQueue.len()))
}

// Stats returns a snapshot of the scheduler counters. Safe to call from any
// goroutine.
func (s *Scheduler) Stats() SchedulerStats {
	stats := SchedulerStats{
		Name:            s.name,
		MicroPending:    int(s.counters.microPending.Load()),
		PriorityPending: int(s.counters.priorityPending.Load()),
		MacroPending:    int(s.counters.macroPending.Load()),
		Flushing:        s.flushing.Load(),
		LongStacks:      s.longStacks.Load(),
		MicroFlushes:    s.counters.microFlushes.Load(),
		MacroFlushes:    s.counters.macroFlushes.Load(),
		TasksExecuted:   s.counters.executed.Load(),
		TaskErrors:      s.counters.errors.Load(),
		TasksDropped:    s.counters.dropped.Load(),
		Compactions:     s.counters.compactions.Load(),
	}
	if ns := s.counters.lastFlushAt.Load(); ns != 0 {
		stats.LastFlushAt = time.Unix(0, ns)
	}
	return stats
}
